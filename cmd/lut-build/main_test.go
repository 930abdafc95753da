package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/ilut/internal/build"
	"github.com/banshee-data/ilut/internal/lut"
	"github.com/banshee-data/ilut/internal/lutstore"
	"github.com/banshee-data/ilut/internal/monitoring"
	"github.com/banshee-data/ilut/internal/oracle"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

// setFlags assigns command-line flags for one test and restores their
// previous values afterwards.
func setFlags(t *testing.T, values map[string]string) {
	t.Helper()
	for name, v := range values {
		f := flag.Lookup(name)
		require.NotNil(t, f, name)
		old := f.Value.String()
		require.NoError(t, flag.Set(name, v))
		t.Cleanup(func() { flag.Set(name, old) })
	}
}

// writeConfig saves a build configuration for one test.
func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "build.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestResolveRejectsInvalidRequests(t *testing.T) {
	tests := []struct {
		name  string
		flags map[string]string
		field string
	}{
		{"missing mode", map[string]string{"sensor": "LANDSAT_OLI", "aero": "CO"}, "mode"},
		{"unknown sensor", map[string]string{"sensor": "MODIS", "aero": "CO", "mode": "test"}, "sensor"},
		{"unknown profile", map[string]string{"sensor": "LANDSAT_OLI", "aero": "XX", "mode": "test"}, "aerosol_profile"},
		{"view zenith too large", map[string]string{"sensor": "LANDSAT_OLI", "aero": "CO", "viewz": "80", "mode": "test"}, "view_zenith"},
		{"foreign band", map[string]string{"sensor": "LANDSAT_OLI", "aero": "CO", "mode": "test", "bands": "B8A"}, "band"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setFlags(t, map[string]string{"sensor": "", "aero": "", "viewz": "0", "mode": "", "bands": "", "config": ""})
			setFlags(t, tt.flags)

			_, _, err := resolve()
			var ce *lut.ConfigurationError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestResolveRequiresAnOracle(t *testing.T) {
	setFlags(t, map[string]string{
		"sensor": "LANDSAT_OLI",
		"aero":   "CO",
		"viewz":  "0",
		"mode":   "full",
		"bands":  "",
		"root":   t.TempDir(),
		"config": writeConfig(t, `{}`),
	})

	_, _, err := resolve()
	var ce *lut.ConfigurationError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, "oracle", ce.Field)
}

func TestRunRefusesStoreOfAnotherOracle(t *testing.T) {
	root := t.TempDir()
	setFlags(t, map[string]string{
		"sensor": "LANDSAT_OLI",
		"aero":   "CO",
		"viewz":  "0",
		"mode":   "test",
		"bands":  "B4",
		"root":   root,
		"config": writeConfig(t, `{"oracle": "synthetic"}`),
	})
	opts, spec, err := resolve()
	require.NoError(t, err)
	assert.Equal(t, "synthetic", opts.OracleKind)
	report, err := run(context.Background(), opts, spec)
	require.NoError(t, err)
	require.True(t, report.Complete())

	var calls atomic.Int64
	opts.Oracle = oracle.Func(func(ctx context.Context, req oracle.Request) (lut.Outputs, error) {
		calls.Add(1)
		return oracle.Synthetic{}.Evaluate(ctx, req)
	})
	opts.OracleKind = "command"
	_, err = run(context.Background(), opts, spec)
	var ce *lut.ConfigurationError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, "oracle", ce.Field)
	assert.Zero(t, calls.Load())
}

func TestRunIsIdempotent(t *testing.T) {
	root := t.TempDir()
	setFlags(t, map[string]string{
		"sensor": "landsat_oli",
		"aero":   "Continental",
		"viewz":  "5",
		"mode":   "test",
		"bands":  "B4",
		"root":   root,
		"config": writeConfig(t, `{"oracle": "synthetic"}`),
	})

	opts, spec, err := resolve()
	require.NoError(t, err)
	assert.Equal(t, root, opts.Root)
	require.Len(t, spec.Bands, 1)

	var calls atomic.Int64
	opts.Oracle = oracle.Func(func(ctx context.Context, req oracle.Request) (lut.Outputs, error) {
		calls.Add(1)
		return oracle.Synthetic{}.Evaluate(ctx, req)
	})
	var last build.Progress
	opts.Observe = func(p build.Progress) { last = p }

	report, err := run(context.Background(), opts, spec)
	require.NoError(t, err)
	require.True(t, report.Complete())
	assert.Equal(t, spec.PointsPerBand(), report.Evaluated)
	assert.Equal(t, int64(spec.PointsPerBand()), calls.Load())
	assert.Equal(t, spec.PointsPerBand(), last.Done)

	report, err = run(context.Background(), opts, spec)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Evaluated)
	assert.Equal(t, spec.PointsPerBand(), report.Existing)
	assert.Equal(t, int64(spec.PointsPerBand()), calls.Load(), "second run must not call the oracle")

	store, err := lutstore.OpenReadOnly(lutstore.Path(root, opts.Config))
	require.NoError(t, err)
	defer store.Close()
	n, err := store.Count(context.Background(), "B4")
	require.NoError(t, err)
	assert.Equal(t, spec.PointsPerBand(), n)
}
