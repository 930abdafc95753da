package grid

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/ilut/internal/lut"
)

func cfg(mode lut.Mode) lut.Config {
	return lut.Config{Sensor: lut.LandsatOLI, AerosolProfile: lut.Continental, ViewZenith: 0, Mode: mode}
}

func TestEnumerateBuiltInModes(t *testing.T) {
	t.Parallel()

	test, err := Enumerate(cfg(lut.ModeTest), nil)
	require.NoError(t, err)
	assert.Equal(t, 3*3*3*2*3, test.PointsPerBand())
	assert.Equal(t, 6*test.PointsPerBand(), test.Size())

	full, err := Enumerate(cfg(lut.ModeFull), nil)
	require.NoError(t, err)
	assert.Equal(t, 8*9*2*9*4, full.PointsPerBand())
	assert.Equal(t, 75.0, full.Axes[lut.SolarZenith][len(full.Axes[lut.SolarZenith])-1])

	val, err := Enumerate(cfg(lut.ModeValidation), nil)
	require.NoError(t, err)
	want := []float64{0.4}
	if diff := cmp.Diff(want, val.Axes[lut.Ozone]); diff != "" {
		t.Errorf("validation ozone axis mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 7*8*1*8*3, val.PointsPerBand())

	fullPoints := map[lut.ParameterPoint]bool{}
	for _, p := range full.Points() {
		fullPoints[p] = true
	}
	for _, p := range val.Points() {
		assert.False(t, fullPoints[p], "validation point %s also in full grid", p)
	}
}

func TestPointsOrderLastDimensionFastest(t *testing.T) {
	t.Parallel()

	s := &Spec{
		Config: cfg(lut.ModeTest),
		Axes: Axes{
			lut.SolarZenith: {0, 10},
			lut.WaterVapour: {1},
			lut.Ozone:       {0.2},
			lut.AOT:         {0.5},
			lut.Altitude:    {0, 1, 2},
		},
		Bands: []lut.Band{{Name: "B2"}, {Name: "B3"}},
	}
	pts := s.Points()
	require.Len(t, pts, 6)
	alts := make([]float64, len(pts))
	for i, p := range pts {
		alts[i] = p.Altitude
	}
	assert.Equal(t, []float64{0, 1, 2, 0, 1, 2}, alts)
	assert.Equal(t, 0.0, pts[2].SolarZenith)
	assert.Equal(t, 10.0, pts[3].SolarZenith)

	keys := s.Keys()
	require.Len(t, keys, 12)
	assert.Equal(t, "B2", keys[5].Band)
	assert.Equal(t, "B3", keys[6].Band)
	assert.Equal(t, pts[0], keys[6].Point)

	assert.Equal(t, keys, s.Keys(), "enumeration must be deterministic")
}

func TestEnumerateOverrides(t *testing.T) {
	t.Parallel()

	ov := Overrides{
		lut.ModeFull: {lut.SolarZenith: {0, 30, 60}},
		lut.ModeTest: {lut.AOT: {0, 0.5, 1}},
	}
	full, err := Enumerate(cfg(lut.ModeFull), ov)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 30, 60}, full.Axes[lut.SolarZenith])

	val, err := Enumerate(cfg(lut.ModeValidation), ov)
	require.NoError(t, err)
	assert.Equal(t, []float64{15, 45}, val.Axes[lut.SolarZenith])

	test, err := Enumerate(cfg(lut.ModeTest), ov)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.5, 1}, test.Axes[lut.AOT])
	assert.Equal(t, []float64{0, 10, 20}, test.Axes[lut.SolarZenith])
}

func TestEnumerateRejectsInvalidGrids(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  lut.Config
		ov   Overrides
	}{
		{"empty axis", cfg(lut.ModeTest), Overrides{lut.ModeTest: {lut.Ozone: {}}}},
		{"out of domain", cfg(lut.ModeTest), Overrides{lut.ModeTest: {lut.SolarZenith: {0, 80}}}},
		{"not increasing", cfg(lut.ModeTest), Overrides{lut.ModeTest: {lut.Altitude: {0, 2, 1}}}},
		{"duplicate", cfg(lut.ModeFull), Overrides{lut.ModeFull: {lut.AOT: {0, 0, 1}}}},
		{"validation intersects full", cfg(lut.ModeValidation), Overrides{lut.ModeValidation: {
			lut.SolarZenith: {10}, lut.WaterVapour: {2}, lut.Ozone: {0.8}, lut.AOT: {1}, lut.Altitude: {4},
		}}},
		{"bad config", lut.Config{Sensor: "MODIS", AerosolProfile: lut.Continental, Mode: lut.ModeTest}, nil},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Enumerate(tt.cfg, tt.ov)
			var cfgErr *lut.ConfigurationError
			assert.True(t, errors.As(err, &cfgErr), "got %v", err)
		})
	}
}

func TestWithBands(t *testing.T) {
	t.Parallel()

	s, err := Enumerate(cfg(lut.ModeTest), nil)
	require.NoError(t, err)

	sub, err := s.WithBands("B4", "B2")
	require.NoError(t, err)
	require.Len(t, sub.Bands, 2)
	assert.Equal(t, "B4", sub.Bands[0].Name)
	assert.Equal(t, s.PointsPerBand()*2, sub.Size())

	_, err = s.WithBands("B1")
	assert.Error(t, err)
}

func TestParseValueList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    []float64
		wantErr bool
	}{
		{"0:60:10", []float64{0, 10, 20, 30, 40, 50, 60}, false},
		{"0:1:0.25", []float64{0, 0.25, 0.5, 0.75, 1}, false},
		{"0, 0.8", []float64{0, 0.8}, false},
		{"0:0.3:0.1", []float64{0, 0.1, 0.2, 0.3}, false},
		{"", nil, false},
		{"1:0:1", nil, true},
		{"0:1:0", nil, true},
		{"0:1", nil, true},
		{"a,b", nil, true},
	}
	for _, tt := range tests {
		got, err := ParseValueList(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	assert.Equal(t, []float64{0.5, 1.5}, MidPoints([]float64{0, 1, 2}))
	assert.Nil(t, MidPoints([]float64{1}))
}
