// Package validate measures how well an interpolated LUT reproduces the
// radiative-transfer model away from its grid nodes.
package validate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/valyala/fastrand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/ilut/internal/atmcorr"
	"github.com/banshee-data/ilut/internal/ilut"
	"github.com/banshee-data/ilut/internal/interp"
	"github.com/banshee-data/ilut/internal/lut"
	"github.com/banshee-data/ilut/internal/monitoring"
	"github.com/banshee-data/ilut/internal/oracle"
)

var logf = monitoring.Prefixed("[validate]")

// DefaultReflectance is the Lambertian surface used for the round-trip
// reflectance error.
const DefaultReflectance = 0.1

// Stats summarises a set of percentage differences. Percentiles are of the
// absolute differences.
type Stats struct {
	N    int     `json:"n"`
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	P90  float64 `json:"p90"`
	P95  float64 `json:"p95"`
	P99  float64 `json:"p99"`
}

// Summarise computes Stats over the finite entries of values.
func Summarise(values []float64) Stats {
	xs := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			xs = append(xs, v)
		}
	}
	if len(xs) == 0 {
		return Stats{}
	}
	mean, std := stat.PopMeanStdDev(xs, nil)
	s := Stats{N: len(xs), Mean: mean, Std: std, Min: floats.Min(xs), Max: floats.Max(xs)}

	abs := make([]float64, len(xs))
	for i, v := range xs {
		abs[i] = math.Abs(v)
	}
	sort.Float64s(abs)
	s.P90 = stat.Quantile(0.90, stat.Empirical, abs, nil)
	s.P95 = stat.Quantile(0.95, stat.Empirical, abs, nil)
	s.P99 = stat.Quantile(0.99, stat.Empirical, abs, nil)
	return s
}

// Pair is a model result and the interpolated estimate at the same point.
type Pair struct {
	Point    lut.ParameterPoint
	Truth    lut.Outputs
	Estimate lut.Outputs
}

// Result is the comparison of one band of one configuration.
type Result struct {
	Config      lut.Config       `json:"config"`
	Band        string           `json:"band"`
	Source      string           `json:"source"`
	Reflectance float64          `json:"reflectance"`
	Compared    int              `json:"compared"`
	Skipped     int              `json:"skipped"`
	Channels    map[string]Stats `json:"channels"`
	Surface     Stats            `json:"surface_reflectance"`

	// Raw percentage differences, kept for plotting.
	ChannelDiffs [lut.NumChannels][]float64 `json:"-"`
	SurfaceDiffs []float64                  `json:"-"`
}

func percentDiff(estimate, truth float64) float64 {
	if truth == 0 {
		return math.NaN()
	}
	return 100 * (estimate - truth) / truth
}

// Compare computes per-channel percentage differences and the surface
// reflectance error for a Lambertian target of reflectance rho. Pairs with
// a zero or non-finite reference are left out of the affected statistic.
func Compare(pairs []Pair, rho float64) *Result {
	r := &Result{Reflectance: rho, Compared: len(pairs), Channels: make(map[string]Stats, lut.NumChannels)}
	for _, p := range pairs {
		for _, c := range lut.Channels {
			r.ChannelDiffs[c] = append(r.ChannelDiffs[c], percentDiff(p.Estimate.Get(c), p.Truth.Get(c)))
		}
		radiance := atmcorr.AtSensorRadiance(p.Truth, rho)
		r.SurfaceDiffs = append(r.SurfaceDiffs, percentDiff(atmcorr.SurfaceReflectance(p.Estimate, radiance), rho))
	}
	for _, c := range lut.Channels {
		r.Channels[c.String()] = Summarise(r.ChannelDiffs[c])
	}
	r.Surface = Summarise(r.SurfaceDiffs)
	return r
}

// estimate evaluates l at p, reporting whether the point could be used.
// Points outside the domain or touching missing samples are skipped.
func estimate(l *ilut.ILUT, p lut.ParameterPoint) (lut.Outputs, bool, error) {
	out, err := l.Evaluate(p)
	if err == nil {
		return out, true, nil
	}
	var oe *lut.OutOfDomainError
	if errors.As(err, &oe) || errors.Is(err, interp.ErrMissingSample) {
		return lut.Outputs{}, false, nil
	}
	return lut.Outputs{}, false, err
}

// CompareStore compares l against every sample of the same band in a
// validation-mode store.
func CompareStore(ctx context.Context, src ilut.RecordSource, l *ilut.ILUT, rho float64) (*Result, error) {
	var pairs []Pair
	skipped := 0
	err := src.IterateBand(ctx, l.Band.Name, func(rec lut.SampleRecord) error {
		est, ok, err := estimate(l, rec.Key.Point)
		if err != nil {
			return err
		}
		if !ok {
			skipped++
			return nil
		}
		pairs = append(pairs, Pair{Point: rec.Key.Point, Truth: rec.Outputs, Estimate: est})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("compare band %s: %w", l.Band.Name, err)
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("no validation samples for band %s inside the interpolation domain", l.Band.Name)
	}
	r := Compare(pairs, rho)
	r.Config, r.Band, r.Source, r.Skipped = l.Config, l.Band.Name, "validation-grid", skipped
	logf("%s band %s: compared %d validation samples (%d skipped)", l.Config.Key(), l.Band.Name, r.Compared, skipped)
	return r, nil
}

// MonteCarlo evaluates n uniformly random points inside l's domain with
// both the oracle and l. The same seed gives the same points.
func MonteCarlo(ctx context.Context, o oracle.Oracle, l *ilut.ILUT, n int, seed uint32, rho float64) (*Result, error) {
	if n <= 0 {
		return nil, fmt.Errorf("monte carlo needs a positive sample count, got %d", n)
	}
	var rng fastrand.RNG
	rng.Seed(seed)

	pairs := make([]Pair, 0, n)
	skipped := 0
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var v [lut.NumDimensions]float64
		for _, d := range lut.Dimensions {
			lo, hi := l.Bounds(d)
			v[d] = lo + (hi-lo)*float64(rng.Uint32())/float64(math.MaxUint32)
		}
		p := lut.PointFromVector(v)

		est, ok, err := estimate(l, p)
		if err != nil {
			return nil, err
		}
		if !ok {
			skipped++
			continue
		}
		truth, err := o.Evaluate(ctx, oracle.NewRequest(l.Config, l.Band, p))
		if err != nil {
			return nil, &lut.OracleEvaluationError{Key: lut.SampleKey{Band: l.Band.Name, Point: p}, Attempts: 1, Err: err}
		}
		pairs = append(pairs, Pair{Point: p, Truth: truth, Estimate: est})
	}

	r := Compare(pairs, rho)
	r.Config, r.Band, r.Source, r.Skipped = l.Config, l.Band.Name, "monte-carlo", skipped
	logf("%s band %s: %d monte carlo samples (%d skipped)", l.Config.Key(), l.Band.Name, r.Compared, skipped)
	return r, nil
}
