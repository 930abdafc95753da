package interp

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fastrand"
)

var testAxes = [][]float64{
	{0, 10, 20, 30, 40, 50, 60, 75},
	{0, 0.25, 0.5, 1, 1.5, 2, 3, 5, 8.5},
	{0, 0.8},
	{0, 0.25, 0.5, 0.75, 1, 1.25, 1.5, 2.25, 3},
	{0, 1, 4, 7.75},
}

func fill(g *Grid, f func(x []float64) float64) []float64 {
	vals := make([]float64, g.Size())
	for n := range vals {
		vals[n] = f(g.Node(n))
	}
	return vals
}

func uniform(r *fastrand.RNG, lo, hi float64) float64 {
	return lo + (hi-lo)*float64(r.Uint32())/float64(math.MaxUint32)
}

func TestNewGridValidation(t *testing.T) {
	t.Parallel()

	_, err := NewGrid(nil)
	assert.Error(t, err)
	_, err = NewGrid([][]float64{{0, 1}, {}})
	assert.Error(t, err)
	_, err = NewGrid([][]float64{{0, 1, 1}})
	assert.Error(t, err)
	_, err = NewGrid([][]float64{{0, math.NaN()}})
	assert.Error(t, err)

	g, err := NewGrid(testAxes)
	require.NoError(t, err)
	assert.Equal(t, 8*9*2*9*4, g.Size())
	assert.Equal(t, 5, g.Dims())
	lo, hi := g.Bounds(0)
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 75.0, hi)
}

func TestNodeIndexRoundTrip(t *testing.T) {
	t.Parallel()

	g, err := NewGrid(testAxes)
	require.NoError(t, err)
	for n := 0; n < g.Size(); n += 37 {
		idx, ok := g.NodeIndex(g.Node(n))
		require.True(t, ok)
		assert.Equal(t, n, idx)
	}
	_, ok := g.NodeIndex([]float64{5, 0, 0, 0, 0})
	assert.False(t, ok)

	// Last axis varies fastest.
	assert.Equal(t, 1, g.Index([]int{0, 0, 0, 0, 1}))
	assert.Equal(t, []float64{0, 0, 0, 0, 1}, g.Node(1))
}

func TestExactAtNodes(t *testing.T) {
	t.Parallel()

	g, err := NewGrid(testAxes)
	require.NoError(t, err)

	var r fastrand.RNG
	r.Seed(42)
	vals := make([]float64, g.Size())
	for i := range vals {
		vals[i] = uniform(&r, -100, 100)
	}
	p, err := New(g, vals)
	require.NoError(t, err)

	for n := 0; n < g.Size(); n++ {
		got, err := p.At(g.Node(n))
		require.NoError(t, err)
		require.InDelta(t, vals[n], got, 1e-9, "node %d", n)
	}
}

func TestExactForAffineFunctions(t *testing.T) {
	t.Parallel()

	g, err := NewGrid(testAxes)
	require.NoError(t, err)
	affine := func(x []float64) float64 {
		return 3 + 0.5*x[0] - 2*x[1] + 7*x[2] + 0.25*x[3] - x[4]
	}
	p, err := New(g, fill(g, affine))
	require.NoError(t, err)

	var r fastrand.RNG
	r.Seed(7)
	for i := 0; i < 2000; i++ {
		x := make([]float64, g.Dims())
		for d := range x {
			lo, hi := g.Bounds(d)
			x[d] = uniform(&r, lo, hi)
		}
		got, err := p.At(x)
		require.NoError(t, err)
		require.InDelta(t, affine(x), got, 1e-9, "at %v", x)
	}
}

func TestSimplexWeights(t *testing.T) {
	t.Parallel()

	g, err := NewGrid([][]float64{{0, 1}, {0, 1}, {0, 2}})
	require.NoError(t, err)

	verts, err := g.Simplex([]float64{0.2, 0.7, 1})
	require.NoError(t, err)
	require.Len(t, verts, 4)
	sum := 0.0
	for _, v := range verts {
		assert.GreaterOrEqual(t, v.Weight, 0.0)
		sum += v.Weight
	}
	assert.InDelta(t, 1, sum, 1e-12)
	// t sorted descending: axis1 (0.7), axis2 (0.5), axis0 (0.2).
	assert.Equal(t, []Vertex{
		{Index: 0, Weight: 0.3},
		{Index: 2, Weight: 0.2},
		{Index: 3, Weight: 0.3},
		{Index: 7, Weight: 0.2},
	}, roundWeights(verts))

	// Upper boundary belongs to the last cell.
	verts, err = g.Simplex([]float64{1, 1, 2})
	require.NoError(t, err)
	val, err := Apply([]float64{0, 1, 2, 3, 4, 5, 6, 7}, verts)
	require.NoError(t, err)
	assert.InDelta(t, 7, val, 1e-12)
}

func roundWeights(vs []Vertex) []Vertex {
	out := make([]Vertex, len(vs))
	for i, v := range vs {
		out[i] = Vertex{Index: v.Index, Weight: math.Round(v.Weight*1e9) / 1e9}
	}
	return out
}

func TestSingletonAxis(t *testing.T) {
	t.Parallel()

	g, err := NewGrid([][]float64{{5}, {0, 1}})
	require.NoError(t, err)
	p, err := New(g, []float64{10, 20})
	require.NoError(t, err)
	v, err := p.At([]float64{5, 0.25})
	require.NoError(t, err)
	assert.InDelta(t, 12.5, v, 1e-12)

	_, err = p.At([]float64{5.1, 0.25})
	assert.Error(t, err)
}

func TestDomainErrors(t *testing.T) {
	t.Parallel()

	g, err := NewGrid(testAxes)
	require.NoError(t, err)
	p, err := New(g, make([]float64, g.Size()))
	require.NoError(t, err)

	_, err = p.At([]float64{80, 1, 0.4, 1, 1})
	var de *DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 0, de.Dim)
	assert.Equal(t, 75.0, de.Max)

	_, err = p.At([]float64{10, 1, 0.4, -0.1, 1})
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 3, de.Dim)

	_, err = p.At([]float64{10, math.NaN(), 0.4, 1, 1})
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 1, de.Dim)

	_, err = p.At([]float64{10, 1})
	assert.Error(t, err)

	_, err = New(g, []float64{1, 2})
	assert.Error(t, err)
}

func TestMissingSamples(t *testing.T) {
	t.Parallel()

	g, err := NewGrid([][]float64{{0, 1, 2}, {0, 1}})
	require.NoError(t, err)
	vals := []float64{0, 1, 2, 3, math.NaN(), math.NaN()}
	p, err := New(g, vals)
	require.NoError(t, err)

	v, err := p.At([]float64{0.5, 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 1.5, v, 1e-12)

	// On the shared face x0 = 1 the missing nodes carry zero weight.
	_, err = p.At([]float64{1, 0.3})
	require.NoError(t, err)

	_, err = p.At([]float64{1.5, 0.5})
	assert.ErrorIs(t, err, ErrMissingSample)
}

func TestAffineRank(t *testing.T) {
	t.Parallel()

	g, err := NewGrid(testAxes)
	require.NoError(t, err)
	pts := make([][]float64, 0, g.Size())
	for n := 0; n < g.Size(); n += 3 {
		pts = append(pts, g.Node(n))
	}
	rank, err := AffineRank(pts, 1e-10)
	require.NoError(t, err)
	assert.Equal(t, 5, rank)

	// Points on a plane in 3-D.
	flat := [][]float64{{0, 0, 1}, {1, 0, 1}, {0, 1, 1}, {1, 1, 1}}
	rank, err = AffineRank(flat, 1e-10)
	require.NoError(t, err)
	assert.Equal(t, 2, rank)

	// Collinear.
	line := [][]float64{{0, 0}, {1, 2}, {2, 4}}
	rank, err = AffineRank(line, 1e-10)
	require.NoError(t, err)
	assert.Equal(t, 1, rank)

	rank, err = AffineRank([][]float64{{3, 3}}, 1e-10)
	require.NoError(t, err)
	assert.Equal(t, 0, rank)

	_, err = AffineRank([][]float64{{1, 2}, {1}}, 1e-10)
	assert.Error(t, err)
}
