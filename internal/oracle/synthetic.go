package oracle

import (
	"context"
	"math"

	"github.com/banshee-data/ilut/internal/lut"
)

// Synthetic is a fast closed-form stand-in for a radiative-transfer model.
// It follows Beer-Lambert attenuation through a single-layer atmosphere so
// that its outputs are smooth, positive and physically ordered, which makes
// it useful for dry runs of the build pipeline and for accuracy tests. It
// is not a substitute for a real model.
type Synthetic struct{}

// Evaluate computes the closed-form outputs for req.
func (Synthetic) Evaluate(ctx context.Context, req Request) (lut.Outputs, error) {
	if err := ctx.Err(); err != nil {
		return lut.Outputs{}, err
	}
	wl := req.Wavelength
	if wl <= 0 {
		wl = 0.55
	}
	muS := math.Cos(req.SolarZenith * math.Pi / 180)
	muV := math.Cos(float64(req.ViewZenith) * math.Pi / 180)

	// Exo-atmospheric irradiance, W/m2/um, roughly following the solar
	// spectrum across the VSWIR range.
	e0 := 1950 * math.Exp(-math.Pow((wl-0.48)/0.9, 2))

	rayleigh := 0.0088 * math.Pow(wl, -4.05) * math.Exp(-req.Altitude/8)
	aerosol := req.AOT * math.Pow(0.55/wl, 1.3) * math.Exp(-req.Altitude/2)
	gas := 0.03*req.WaterVapour*math.Exp(-req.Altitude/2)*wl + 0.04*req.Ozone
	tau := rayleigh + aerosol + gas

	direct := math.Exp(-tau / muS)
	return lut.Outputs{
		Edir: e0 * muS * direct,
		Edif: 0.5 * e0 * muS * (1 - direct),
		Tau2: math.Exp(-tau / muV),
		Lp:   0.05 * e0 * muS * (1 - math.Exp(-tau)) / math.Pi,
	}, nil
}
