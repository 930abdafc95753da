package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/ilut/internal/fsutil"
	"github.com/banshee-data/ilut/internal/ilut"
	"github.com/banshee-data/ilut/internal/lut"
	"github.com/banshee-data/ilut/internal/lutstore"
	"github.com/banshee-data/ilut/internal/monitoring"
	"github.com/banshee-data/ilut/internal/oracle"
	"github.com/banshee-data/ilut/internal/testutil"
	"github.com/banshee-data/ilut/internal/validate"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

var fullCfg = lut.Config{Sensor: lut.LandsatTM, AerosolProfile: lut.Urban, ViewZenith: 0, Mode: lut.ModeFull}

// setup saves a B4 artifact of the affine test model under root and, when
// withStore is set, a small validation store of midpoint samples.
func setup(t *testing.T, withStore bool) string {
	t.Helper()
	root := t.TempDir()
	spec := testutil.SmallSpec(t, fullCfg, "B4")
	l, err := ilut.Build(context.Background(), testutil.Fill(spec, testutil.Affine), spec, spec.Bands[0])
	require.NoError(t, err)
	require.NoError(t, l.Save(fsutil.OSFileSystem{}, ilut.ArtifactPath(root, fullCfg, "B4")))

	if withStore {
		vcfg := fullCfg
		vcfg.Mode = lut.ModeValidation
		store, err := lutstore.Create(lutstore.Path(root, vcfg), vcfg)
		require.NoError(t, err)
		defer store.Close()
		for _, sz := range []float64{15, 45} {
			for _, aot := range []float64{0.5, 1.5} {
				p := lut.ParameterPoint{SolarZenith: sz, WaterVapour: 1, Ozone: 0.4, AOT: aot, Altitude: 2}
				require.NoError(t, store.Put(context.Background(), lut.SampleRecord{
					Key:     lut.SampleKey{Band: "B4", Point: p},
					Outputs: testutil.Affine(p),
				}))
			}
		}
	}
	return root
}

func TestRunComparesStoreAndMonteCarlo(t *testing.T) {
	root := setup(t, true)
	j := job{
		Config:  fullCfg,
		Bands:   []string{"B4"},
		Root:    root,
		Samples: 25,
		Seed:    9,
		Rho:     validate.DefaultReflectance,
		Oracle: oracle.Func(func(_ context.Context, req oracle.Request) (lut.Outputs, error) {
			return testutil.Affine(req.Point()), nil
		}),
	}

	results, err := run(context.Background(), fsutil.OSFileSystem{}, j)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "validation-grid", results[0].Source)
	assert.Equal(t, 4, results[0].Compared)
	assert.Equal(t, "monte-carlo", results[1].Source)
	assert.Equal(t, 25, results[1].Compared)
	for _, r := range results {
		assert.InDelta(t, 0, r.Surface.Max, 1e-9, r.Source)
	}

	dir := t.TempDir()
	page, err := writeReports(fsutil.OSFileSystem{}, fullCfg, results, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "LANDSAT_TM_UR_0_full_validation.html"), page)
	for _, name := range []string{"LANDSAT_TM_UR_0_full_validation.html", "LANDSAT_TM_UR_0_full_validation.json"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
	pngs, err := filepath.Glob(filepath.Join(dir, "*.png"))
	require.NoError(t, err)
	assert.NotEmpty(t, pngs)
}

func TestRunRequiresSomethingToCompare(t *testing.T) {
	root := setup(t, false)
	_, err := run(context.Background(), fsutil.OSFileSystem{}, job{Config: fullCfg, Root: root, Bands: []string{"B4"}})
	assert.ErrorContains(t, err, "nothing to compare")
}

func TestRunErrors(t *testing.T) {
	root := setup(t, true)

	_, err := run(context.Background(), fsutil.OSFileSystem{}, job{Config: fullCfg, Root: root, Bands: []string{"B5"}})
	assert.ErrorContains(t, err, "band B5")

	_, err = run(context.Background(), fsutil.OSFileSystem{}, job{Config: fullCfg, Root: root, Bands: []string{"B8A"}})
	var ce *lut.ConfigurationError
	assert.ErrorAs(t, err, &ce)
}
