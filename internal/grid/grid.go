// Package grid enumerates the sample points of a look-up table build.
package grid

import (
	"fmt"
	"sort"

	"github.com/banshee-data/ilut/internal/lut"
)

// Axes holds the ordered node values of each dimension.
type Axes [lut.NumDimensions][]float64

// Clone returns a deep copy.
func (a Axes) Clone() Axes {
	var out Axes
	for d := range a {
		out[d] = append([]float64(nil), a[d]...)
	}
	return out
}

// Size is the number of points in the cartesian product.
func (a Axes) Size() int {
	n := 1
	for _, v := range a {
		n *= len(v)
	}
	return n
}

// Built-in axes. The full solar zenith axis ends at the domain maximum so
// that every supported geometry is covered without extrapolation.
var (
	testAxes = Axes{
		lut.SolarZenith: {0, 10, 20},
		lut.WaterVapour: {0, 2, 3},
		lut.Ozone:       {0, 0.4, 0.8},
		lut.AOT:         {0, 1},
		lut.Altitude:    {0, 2, 4},
	}
	fullAxes = Axes{
		lut.SolarZenith: {0, 10, 20, 30, 40, 50, 60, 75},
		lut.WaterVapour: {0, 0.25, 0.5, 1, 1.5, 2, 3, 5, 8.5},
		lut.Ozone:       {0, 0.8},
		lut.AOT:         {0, 0.25, 0.5, 0.75, 1, 1.25, 1.5, 2.25, 3},
		lut.Altitude:    {0, 1, 4, 7.75},
	}
)

// maxPointsPerBand guards against accidental grid explosions from overrides.
const maxPointsPerBand = 1_000_000

// Overrides replaces built-in axes per mode and dimension. A validation
// axis that is not overridden is derived from the midpoints of the
// effective full axis.
type Overrides map[lut.Mode]map[lut.Dimension][]float64

// Spec is the complete description of what a build must evaluate.
type Spec struct {
	Config lut.Config
	Axes   Axes
	Bands  []lut.Band
}

// Enumerate returns the grid for cfg, validating cfg and every axis.
func Enumerate(cfg lut.Config, overrides Overrides) (*Spec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	full := fullAxes.Clone()
	for d, v := range overrides[lut.ModeFull] {
		full[d] = append([]float64(nil), v...)
	}

	var axes Axes
	switch cfg.Mode {
	case lut.ModeTest:
		axes = testAxes.Clone()
	case lut.ModeFull:
		axes = full
	case lut.ModeValidation:
		for _, d := range lut.Dimensions {
			axes[d] = MidPoints(full[d])
		}
	}
	if cfg.Mode != lut.ModeFull {
		for d, v := range overrides[cfg.Mode] {
			axes[d] = append([]float64(nil), v...)
		}
	}

	if err := validateAxes(axes); err != nil {
		return nil, err
	}
	if cfg.Mode == lut.ModeValidation {
		if err := validateAxes(full); err != nil {
			return nil, err
		}
		if err := checkDisjoint(axes, full); err != nil {
			return nil, err
		}
	}

	return &Spec{Config: cfg, Axes: axes, Bands: cfg.Sensor.Bands()}, nil
}

func validateAxes(axes Axes) error {
	for _, d := range lut.Dimensions {
		vals := axes[d]
		if len(vals) == 0 {
			return &lut.ConfigurationError{Field: d.String(), Reason: "axis has no values"}
		}
		for i, v := range vals {
			if !d.InDomain(v) {
				lo, hi := d.Domain()
				return &lut.ConfigurationError{
					Field:  d.String(),
					Value:  fmt.Sprint(v),
					Reason: fmt.Sprintf("outside domain [%g, %g]", lo, hi),
				}
			}
			if i > 0 && v <= vals[i-1] {
				return &lut.ConfigurationError{
					Field:  d.String(),
					Value:  fmt.Sprint(v),
					Reason: "axis values must be strictly increasing",
				}
			}
		}
	}
	if n := axes.Size(); n > maxPointsPerBand {
		return &lut.ConfigurationError{
			Field:  "grid",
			Value:  fmt.Sprint(n),
			Reason: fmt.Sprintf("more than %d points per band", maxPointsPerBand),
		}
	}
	return nil
}

// checkDisjoint requires that no validation point is also a full point.
// Points are equal only when every coordinate is, so a single dimension
// without shared values is sufficient.
func checkDisjoint(validation, full Axes) error {
	for _, d := range lut.Dimensions {
		shared := false
		for _, v := range validation[d] {
			i := sort.SearchFloat64s(full[d], v)
			if i < len(full[d]) && full[d][i] == v {
				shared = true
				break
			}
		}
		if !shared {
			return nil
		}
	}
	return &lut.ConfigurationError{Field: "grid", Value: string(lut.ModeValidation), Reason: "validation grid intersects the full grid"}
}

// PointsPerBand is the number of parameter points in the cartesian product.
func (s *Spec) PointsPerBand() int { return s.Axes.Size() }

// Size is the total number of (band, point) samples.
func (s *Spec) Size() int { return len(s.Bands) * s.Axes.Size() }

// Points returns the cartesian product of the axes with the last
// dimension (altitude) varying fastest.
func (s *Spec) Points() []lut.ParameterPoint {
	total := s.Axes.Size()
	out := make([]lut.ParameterPoint, total)
	var idx [lut.NumDimensions]int
	for i := 0; i < total; i++ {
		var v [lut.NumDimensions]float64
		for d := range idx {
			v[d] = s.Axes[d][idx[d]]
		}
		out[i] = lut.PointFromVector(v)
		for d := lut.NumDimensions - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < len(s.Axes[d]) {
				break
			}
			idx[d] = 0
		}
	}
	return out
}

// Keys returns every sample key, band-major, in deterministic order.
func (s *Spec) Keys() []lut.SampleKey {
	points := s.Points()
	out := make([]lut.SampleKey, 0, len(points)*len(s.Bands))
	for _, b := range s.Bands {
		for _, p := range points {
			out = append(out, lut.SampleKey{Band: b.Name, Point: p})
		}
	}
	return out
}

// Band returns the named band of the spec.
func (s *Spec) Band(name string) (lut.Band, bool) {
	for _, b := range s.Bands {
		if b.Name == name {
			return b, true
		}
	}
	return lut.Band{}, false
}

// WithBands restricts the spec to the named bands, in the given order.
func (s *Spec) WithBands(names ...string) (*Spec, error) {
	out := &Spec{Config: s.Config, Axes: s.Axes.Clone()}
	for _, n := range names {
		b, ok := s.Band(n)
		if !ok {
			return nil, &lut.ConfigurationError{Field: "band", Value: n, Reason: fmt.Sprintf("not a band of %s", s.Config.Sensor)}
		}
		out.Bands = append(out.Bands, b)
	}
	return out, nil
}
