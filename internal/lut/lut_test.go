package lut

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	t.Parallel()

	cfg, err := ParseConfig("landsat_oli", "Continental", 0, "--full")
	require.NoError(t, err)
	assert.Equal(t, Config{Sensor: LandsatOLI, AerosolProfile: Continental, ViewZenith: 0, Mode: ModeFull}, cfg)
	assert.Equal(t, "LANDSAT_OLI_CO_0_full", cfg.Key())
	assert.Equal(t, "LANDSAT_OLI_CO", cfg.Family())

	tests := []struct {
		name    string
		sensor  string
		aero    string
		viewz   int
		mode    string
		wantFld string
	}{
		{"unknown sensor", "MODIS", "CO", 0, "full", "sensor"},
		{"unknown profile", "ASTER", "XX", 0, "full", "aerosol_profile"},
		{"negative view zenith", "ASTER", "MA", -1, "full", "view_zenith"},
		{"view zenith too large", "ASTER", "MA", 76, "full", "view_zenith"},
		{"unknown mode", "ASTER", "MA", 0, "quick", "mode"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseConfig(tt.sensor, tt.aero, tt.viewz, tt.mode)
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, tt.wantFld, cfgErr.Field)
		})
	}
}

func TestSensorBands(t *testing.T) {
	t.Parallel()

	counts := map[Sensor]int{
		LandsatTM:  6,
		LandsatETM: 6,
		LandsatOLI: 6,
		ASTER:      9,
		S2AMSI:     13,
	}
	for s, n := range counts {
		assert.Len(t, s.Bands(), n, s)
	}
	assert.Len(t, Sensors(), len(counts))

	b, ok := LandsatOLI.Band("B5")
	require.True(t, ok)
	assert.InDelta(t, 0.8646, b.Wavelength, 1e-9)
	_, ok = LandsatOLI.Band("B1")
	assert.False(t, ok, "OLI coastal band is not part of the VSWIR set")

	bands := LandsatTM.Bands()
	bands[0].Name = "mutated"
	assert.Equal(t, "B1", LandsatTM.Bands()[0].Name)
}

func TestParameterPointVector(t *testing.T) {
	t.Parallel()

	p := ParameterPoint{SolarZenith: 30, WaterVapour: 1.5, Ozone: 0.4, AOT: 0.25, Altitude: 2}
	v := p.Vector()
	assert.Equal(t, [NumDimensions]float64{30, 1.5, 0.4, 0.25, 2}, v)
	assert.Equal(t, p, PointFromVector(v))
	assert.Equal(t, 0.25, p.Get(AOT))

	seen := map[ParameterPoint]bool{p: true}
	assert.True(t, seen[PointFromVector(v)])
}

func TestDimensionDomain(t *testing.T) {
	t.Parallel()

	lo, hi := SolarZenith.Domain()
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 75.0, hi)
	assert.True(t, Altitude.InDomain(7.75))
	assert.False(t, Altitude.InDomain(8))
	assert.False(t, Ozone.InDomain(math.NaN()))

	d, err := ParseDimension("h2o")
	require.NoError(t, err)
	assert.Equal(t, WaterVapour, d)
	_, err = ParseDimension("pressure")
	assert.Error(t, err)
}

func TestOutputsValidate(t *testing.T) {
	t.Parallel()

	good := Outputs{Edir: 1500, Edif: 120, Tau2: 0.8, Lp: 12}
	require.NoError(t, good.Validate())

	tests := []struct {
		name string
		out  Outputs
	}{
		{"negative edir", Outputs{Edir: -1, Edif: 1, Tau2: 0.5, Lp: 1}},
		{"nan lp", Outputs{Edir: 1, Edif: 1, Tau2: 0.5, Lp: math.NaN()}},
		{"zero tau2", Outputs{Edir: 1, Edif: 1, Tau2: 0, Lp: 1}},
		{"tau2 above one", Outputs{Edir: 1, Edif: 1, Tau2: 1.2, Lp: 1}},
		{"infinite edif", Outputs{Edir: 1, Edif: math.Inf(1), Tau2: 0.5, Lp: 1}},
	}
	for _, tt := range tests {
		assert.Error(t, tt.out.Validate(), tt.name)
	}

	var o Outputs
	for i, c := range Channels {
		o.Set(c, float64(i+1))
	}
	assert.Equal(t, Outputs{Edir: 1, Edif: 2, Tau2: 3, Lp: 4}, o)
}

func TestErrorMessages(t *testing.T) {
	t.Parallel()

	err := &OutOfDomainError{Dimension: SolarZenith, Value: 80, Min: 0, Max: 75}
	assert.Contains(t, err.Error(), "solar_zenith=80")

	inc := &IncompleteGridError{Band: "B2", Missing: 1, Total: 32, Examples: []SampleKey{{Band: "B2"}}}
	assert.Contains(t, inc.Error(), "1 of 32")

	cause := errors.New("boom")
	oe := &OracleEvaluationError{Attempts: 2, Err: cause}
	assert.ErrorIs(t, oe, cause)

	se := &StorageCorruptionError{Path: "x.ilut", Reason: "checksum mismatch", Err: cause}
	assert.ErrorIs(t, se, cause)
	assert.Contains(t, se.Error(), "checksum mismatch")
}
