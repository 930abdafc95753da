// Package atmcorr turns interpolated radiative-transfer outputs into the
// linear coefficients that convert at-sensor radiance to surface
// reflectance for a given acquisition date.
package atmcorr

import (
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/ilut/internal/lut"
)

// Oracle outputs are computed at perihelion (January 4th); the Earth-Sun
// distance correction below rescales them to the acquisition date.
const (
	orbitAmplitude = 0.03275104
	orbitPeriod    = 59.66638337
	orbitOffset    = 0.96804905
)

// OrbitCorrection returns the irradiance scale factor for day of year doy,
// which must be in [1, 366].
func OrbitCorrection(doy int) (float64, error) {
	if doy < 1 || doy > 366 {
		return 0, fmt.Errorf("day of year %d outside [1, 366]", doy)
	}
	return orbitAmplitude*math.Cos(float64(doy)/orbitPeriod) + orbitOffset, nil
}

// DayOfYear returns the day-of-year of t in UTC.
func DayOfYear(t time.Time) int { return t.UTC().YearDay() }

// Coefficients relate radiance L and surface reflectance ρ by L = A + B·ρ.
type Coefficients struct {
	A float64 `json:"a"` // path radiance after orbit correction
	B float64 `json:"b"` // tau2·(Edir+Edif)/π after orbit correction
}

// NewCoefficients applies the orbit correction for doy to Edir, Edif and
// Lp and derives the radiance-to-reflectance coefficients.
func NewCoefficients(o lut.Outputs, doy int) (Coefficients, error) {
	corr, err := OrbitCorrection(doy)
	if err != nil {
		return Coefficients{}, err
	}
	return Coefficients{
		A: o.Lp * corr,
		B: o.Tau2 * (o.Edir + o.Edif) * corr / math.Pi,
	}, nil
}

// Reflectance converts at-sensor radiance to surface reflectance.
func (c Coefficients) Reflectance(radiance float64) (float64, error) {
	if c.B == 0 || math.IsNaN(c.B) {
		return math.NaN(), fmt.Errorf("degenerate coefficients a=%g b=%g", c.A, c.B)
	}
	return (radiance - c.A) / c.B, nil
}

// Radiance is the inverse of Reflectance.
func (c Coefficients) Radiance(reflectance float64) float64 {
	return c.A + c.B*reflectance
}

// SurfaceReflectance is π·(L − Lp)/(tau2·(Edir+Edif)) with no orbit
// correction.
func SurfaceReflectance(o lut.Outputs, radiance float64) float64 {
	return math.Pi * (radiance - o.Lp) / (o.Tau2 * (o.Edir + o.Edif))
}

// AtSensorRadiance is the radiance a Lambertian surface of reflectance ρ
// produces under o, with no orbit correction.
func AtSensorRadiance(o lut.Outputs, reflectance float64) float64 {
	return reflectance*o.Tau2*(o.Edir+o.Edif)/math.Pi + o.Lp
}
