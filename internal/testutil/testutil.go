// Package testutil provides shared test fixtures: in-memory sample
// sources, a closed-form model that piecewise-linear interpolation
// reproduces exactly, and small grids.
package testutil

import (
	"context"
	"testing"

	"github.com/banshee-data/ilut/internal/grid"
	"github.com/banshee-data/ilut/internal/lut"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// Records is an in-memory sample source.
type Records []lut.SampleRecord

// IterateBand calls fn for every record of band, in slice order.
func (r Records) IterateBand(ctx context.Context, band string, fn func(lut.SampleRecord) error) error {
	for _, rec := range r {
		if err := ctx.Err(); err != nil {
			return err
		}
		if rec.Key.Band != band {
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// Affine is a plausible model that is linear in every dimension, so an
// interpolant built from it is exact everywhere inside its domain.
func Affine(p lut.ParameterPoint) lut.Outputs {
	return lut.Outputs{
		Edir: 1000 - 5*p.SolarZenith - 20*p.AOT,
		Edif: 50 + 10*p.AOT + p.Altitude,
		Tau2: 0.9 - 0.05*p.WaterVapour - 0.1*p.Ozone,
		Lp:   2 + 3*p.AOT,
	}
}

// SmallSpec is a 3x2x2x3x2 grid over cfg restricted to one band.
func SmallSpec(t testing.TB, cfg lut.Config, band string) *grid.Spec {
	t.Helper()
	b, ok := cfg.Sensor.Band(band)
	if !ok {
		t.Fatalf("%s has no band %s", cfg.Sensor, band)
	}
	return &grid.Spec{
		Config: cfg,
		Axes: grid.Axes{
			lut.SolarZenith: {0, 30, 60},
			lut.WaterVapour: {0, 3},
			lut.Ozone:       {0, 0.8},
			lut.AOT:         {0, 1, 2},
			lut.Altitude:    {0, 4},
		},
		Bands: []lut.Band{b},
	}
}

// Fill evaluates f on every key of spec.
func Fill(spec *grid.Spec, f func(lut.ParameterPoint) lut.Outputs) Records {
	keys := spec.Keys()
	out := make(Records, len(keys))
	for i, k := range keys {
		out[i] = lut.SampleRecord{Key: k, Outputs: f(k.Point)}
	}
	return out
}
