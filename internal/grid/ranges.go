package grid

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// RangeSpec is an inclusive "min:max:step" axis definition.
type RangeSpec struct {
	Min  float64
	Max  float64
	Step float64
}

// maxAxisValues bounds a single generated axis.
const maxAxisValues = 10000

// ParseRangeSpec parses a "min:max:step" string into a RangeSpec.
func ParseRangeSpec(s string) (RangeSpec, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return RangeSpec{}, fmt.Errorf("invalid range format %q: expected min:max:step", s)
	}

	var vals [3]float64
	for i, name := range []string{"min", "max", "step"} {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return RangeSpec{}, fmt.Errorf("invalid %s value %q: %w", name, parts[i], err)
		}
		vals[i] = v
	}

	if vals[2] <= 0 {
		return RangeSpec{}, fmt.Errorf("step must be positive, got %g", vals[2])
	}
	if vals[0] > vals[1] {
		return RangeSpec{}, fmt.Errorf("min %g exceeds max %g", vals[0], vals[1])
	}

	return RangeSpec{Min: vals[0], Max: vals[1], Step: vals[2]}, nil
}

// Values expands the spec. Values are rounded to 1e-6 so that repeated
// addition of the step cannot produce near-duplicate axis nodes.
func (r RangeSpec) Values() []float64 {
	if r.Step <= 0 || r.Min > r.Max {
		return nil
	}
	n := int(math.Floor((r.Max-r.Min)/r.Step+1e-9)) + 1
	if n > maxAxisValues || n < 0 {
		return nil
	}
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, math.Round((r.Min+float64(i)*r.Step)*1e6)/1e6)
	}
	return out
}

// ParseValueList parses either a "min:max:step" range or a comma separated
// list of values.
func ParseValueList(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.Contains(s, ":") {
		spec, err := ParseRangeSpec(s)
		if err != nil {
			return nil, err
		}
		vals := spec.Values()
		if len(vals) == 0 {
			return nil, fmt.Errorf("range %q expands to more than %d values", s, maxAxisValues)
		}
		return vals, nil
	}

	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// MidPoints returns the midpoints of consecutive values.
func MidPoints(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, len(values)-1)
	for i := range out {
		out[i] = (values[i] + values[i+1]) / 2
	}
	return out
}
