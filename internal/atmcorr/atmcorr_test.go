package atmcorr

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/ilut/internal/lut"
)

func TestOrbitCorrection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		doy     int
		want    float64
		wantErr bool
	}{
		{doy: 4, want: 1.0, wantErr: false},
		{doy: 1, want: 0.03275104*math.Cos(1/59.66638337) + 0.96804905},
		{doy: 366, want: 0.03275104*math.Cos(366/59.66638337) + 0.96804905},
		{doy: 0, wantErr: true},
		{doy: 367, wantErr: true},
		{doy: -10, wantErr: true},
	}
	for _, tt := range tests {
		got, err := OrbitCorrection(tt.doy)
		if tt.wantErr {
			assert.Error(t, err, "doy %d", tt.doy)
			continue
		}
		require.NoError(t, err)
		assert.InDelta(t, tt.want, got, 1e-3, "doy %d", tt.doy)
	}

	// Aphelion in early July reduces irradiance by several percent.
	july, err := OrbitCorrection(185)
	require.NoError(t, err)
	assert.Less(t, july, 0.94)
}

func TestDayOfYear(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 4, DayOfYear(time.Date(2024, 1, 4, 23, 0, 0, 0, time.UTC)))
	assert.Equal(t, 366, DayOfYear(time.Date(2024, 12, 31, 12, 0, 0, 0, time.UTC)))
}

func TestCoefficientsRoundTrip(t *testing.T) {
	t.Parallel()

	o := lut.Outputs{Edir: 1500, Edif: 200, Tau2: 0.85, Lp: 12}
	c, err := NewCoefficients(o, 200)
	require.NoError(t, err)
	corr, _ := OrbitCorrection(200)
	assert.InDelta(t, 12*corr, c.A, 1e-12)
	assert.InDelta(t, 0.85*1700*corr/math.Pi, c.B, 1e-9)

	for _, rho := range []float64{0, 0.05, 0.1, 0.5, 1} {
		got, err := c.Reflectance(c.Radiance(rho))
		require.NoError(t, err)
		assert.InDelta(t, rho, got, 1e-12)
	}

	_, err = NewCoefficients(o, 0)
	assert.Error(t, err)

	_, err = Coefficients{A: 1}.Reflectance(10)
	assert.Error(t, err)
}

func TestLambertianRoundTrip(t *testing.T) {
	t.Parallel()

	o := lut.Outputs{Edir: 900, Edif: 300, Tau2: 0.7, Lp: 20}
	l := AtSensorRadiance(o, 0.1)
	assert.InDelta(t, 0.1*0.7*1200/math.Pi+20, l, 1e-12)
	assert.InDelta(t, 0.1, SurfaceReflectance(o, l), 1e-12)

	// At perihelion the corrected coefficients agree with the raw formula.
	c, err := NewCoefficients(o, 4)
	require.NoError(t, err)
	rho, err := c.Reflectance(l)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, rho, 1e-3)
}
