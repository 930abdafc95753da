// Package lut holds the value types shared by the grid enumerator, the sample
// store, the build orchestrator and the interpolation layer.
package lut

import (
	"fmt"
	"math"
)

// Dimension identifies one of the five physical inputs of the oracle.
type Dimension int

const (
	SolarZenith Dimension = iota
	WaterVapour
	Ozone
	AOT
	Altitude
)

// NumDimensions is the dimensionality of every grid and interpolant.
const NumDimensions = 5

// Dimensions lists every dimension in canonical (storage and vector) order.
var Dimensions = [NumDimensions]Dimension{SolarZenith, WaterVapour, Ozone, AOT, Altitude}

var dimensionInfo = [NumDimensions]struct {
	name     string
	unit     string
	min, max float64
}{
	{"solar_zenith", "deg", 0, 75},
	{"water_vapour", "g/cm2", 0, 8.5},
	{"ozone", "atm-cm", 0, 0.8},
	{"aot", "", 0, 3},
	{"altitude", "km", 0, 7.75},
}

func (d Dimension) valid() bool { return d >= 0 && int(d) < NumDimensions }

// String returns the stable snake_case name used in artifacts and errors.
func (d Dimension) String() string {
	if !d.valid() {
		return fmt.Sprintf("dimension(%d)", int(d))
	}
	return dimensionInfo[d].name
}

// Unit returns the physical unit, empty for dimensionless quantities.
func (d Dimension) Unit() string {
	if !d.valid() {
		return ""
	}
	return dimensionInfo[d].unit
}

// Domain returns the closed physical range accepted for the dimension.
func (d Dimension) Domain() (min, max float64) {
	if !d.valid() {
		return math.NaN(), math.NaN()
	}
	return dimensionInfo[d].min, dimensionInfo[d].max
}

// InDomain reports whether v is finite and inside the dimension's domain.
func (d Dimension) InDomain(v float64) bool {
	lo, hi := d.Domain()
	return !math.IsNaN(v) && v >= lo && v <= hi
}

// ParseDimension accepts the snake_case name or a short alias.
func ParseDimension(s string) (Dimension, error) {
	switch s {
	case "solar_zenith", "sz":
		return SolarZenith, nil
	case "water_vapour", "water_vapor", "h2o", "wv":
		return WaterVapour, nil
	case "ozone", "o3":
		return Ozone, nil
	case "aot", "aot550":
		return AOT, nil
	case "altitude", "alt":
		return Altitude, nil
	}
	return 0, &ConfigurationError{Field: "dimension", Value: s, Reason: "unknown dimension"}
}

// ParameterPoint is a single location in the five-dimensional input space.
// It is comparable and may be used directly as a map key.
type ParameterPoint struct {
	SolarZenith float64 `json:"solar_zenith"`
	WaterVapour float64 `json:"water_vapour"`
	Ozone       float64 `json:"ozone"`
	AOT         float64 `json:"aot"`
	Altitude    float64 `json:"altitude"`
}

// Vector returns the coordinates in canonical dimension order.
func (p ParameterPoint) Vector() [NumDimensions]float64 {
	return [NumDimensions]float64{p.SolarZenith, p.WaterVapour, p.Ozone, p.AOT, p.Altitude}
}

// Get returns the coordinate for d.
func (p ParameterPoint) Get(d Dimension) float64 {
	return p.Vector()[d]
}

// PointFromVector is the inverse of Vector.
func PointFromVector(v [NumDimensions]float64) ParameterPoint {
	return ParameterPoint{
		SolarZenith: v[SolarZenith],
		WaterVapour: v[WaterVapour],
		Ozone:       v[Ozone],
		AOT:         v[AOT],
		Altitude:    v[Altitude],
	}
}

func (p ParameterPoint) String() string {
	return fmt.Sprintf("sz=%g h2o=%g o3=%g aot=%g alt=%g",
		p.SolarZenith, p.WaterVapour, p.Ozone, p.AOT, p.Altitude)
}

// Channel indexes the four outputs of the oracle.
type Channel int

const (
	Edir Channel = iota
	Edif
	Tau2
	Lp
)

// NumChannels is the number of oracle outputs.
const NumChannels = 4

// Channels lists the outputs in canonical order.
var Channels = [NumChannels]Channel{Edir, Edif, Tau2, Lp}

func (c Channel) String() string {
	switch c {
	case Edir:
		return "edir"
	case Edif:
		return "edif"
	case Tau2:
		return "tau2"
	case Lp:
		return "lp"
	}
	return fmt.Sprintf("channel(%d)", int(c))
}

// Outputs is the canonical four-value result of one oracle evaluation.
type Outputs struct {
	Edir float64 `json:"edir"` // direct solar irradiance at the surface
	Edif float64 `json:"edif"` // diffuse solar irradiance at the surface
	Tau2 float64 `json:"tau2"` // transmissivity, surface to sensor
	Lp   float64 `json:"lp"`   // path radiance
}

// Get returns the value for channel c.
func (o Outputs) Get(c Channel) float64 {
	switch c {
	case Edir:
		return o.Edir
	case Edif:
		return o.Edif
	case Tau2:
		return o.Tau2
	case Lp:
		return o.Lp
	}
	return math.NaN()
}

// Set assigns the value for channel c.
func (o *Outputs) Set(c Channel, v float64) {
	switch c {
	case Edir:
		o.Edir = v
	case Edif:
		o.Edif = v
	case Tau2:
		o.Tau2 = v
	case Lp:
		o.Lp = v
	}
}

// Validate checks the physical plausibility of an oracle result.
func (o Outputs) Validate() error {
	for _, c := range Channels {
		v := o.Get(c)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s is not finite: %v", c, v)
		}
		if v < 0 {
			return fmt.Errorf("%s is negative: %v", c, v)
		}
	}
	if o.Tau2 == 0 || o.Tau2 > 1 {
		return fmt.Errorf("tau2 must be in (0,1], got %v", o.Tau2)
	}
	return nil
}

// SampleKey identifies one stored oracle evaluation inside a configuration.
type SampleKey struct {
	Band  string
	Point ParameterPoint
}

func (k SampleKey) String() string {
	return fmt.Sprintf("%s[%s]", k.Band, k.Point)
}

// SampleRecord is a key together with the oracle result for it.
type SampleRecord struct {
	Key     SampleKey
	Outputs Outputs
}
