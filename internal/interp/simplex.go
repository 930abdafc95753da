// Package interp implements piecewise-linear interpolation on rectilinear
// grids using the Kuhn (Freudenthal) triangulation of each grid cell.
//
// Every hyper-rectangular cell of an n-dimensional grid is split into n!
// simplices, one per ordering of the local coordinates. A query point lies
// in the simplex selected by sorting its local coordinates, and its value
// is the barycentric combination of that simplex's n+1 vertices. The
// interpolant is continuous, exact at every node and exact for affine
// functions.
package interp

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrMissingSample is returned when a query depends on a node whose value
// is unknown (NaN).
var ErrMissingSample = errors.New("interpolation depends on a missing sample")

// DomainError reports a coordinate outside the grid's bounding box.
type DomainError struct {
	Dim      int
	Value    float64
	Min, Max float64
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("coordinate %d = %g outside [%g, %g]", e.Dim, e.Value, e.Min, e.Max)
}

// Vertex is one simplex vertex: a flat node index and its barycentric weight.
type Vertex struct {
	Index  int
	Weight float64
}

// Grid is an immutable rectilinear grid. Node values are stored by callers
// in flat arrays in row-major order (last axis fastest).
type Grid struct {
	axes    [][]float64
	strides []int
	size    int
}

// NewGrid validates axes and returns the grid over them. Every axis must be
// non-empty and strictly increasing.
func NewGrid(axes [][]float64) (*Grid, error) {
	if len(axes) == 0 {
		return nil, errors.New("grid needs at least one axis")
	}
	g := &Grid{
		axes:    make([][]float64, len(axes)),
		strides: make([]int, len(axes)),
		size:    1,
	}
	for d := len(axes) - 1; d >= 0; d-- {
		a := axes[d]
		if len(a) == 0 {
			return nil, fmt.Errorf("axis %d is empty", d)
		}
		for i, v := range a {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("axis %d value %d is not finite", d, i)
			}
			if i > 0 && v <= a[i-1] {
				return nil, fmt.Errorf("axis %d is not strictly increasing at index %d", d, i)
			}
		}
		g.axes[d] = append([]float64(nil), a...)
		g.strides[d] = g.size
		g.size *= len(a)
	}
	return g, nil
}

// Dims is the number of axes.
func (g *Grid) Dims() int { return len(g.axes) }

// Size is the number of nodes.
func (g *Grid) Size() int { return g.size }

// Axis returns a copy of axis d.
func (g *Grid) Axis(d int) []float64 { return append([]float64(nil), g.axes[d]...) }

// Bounds returns the extent of axis d.
func (g *Grid) Bounds(d int) (min, max float64) {
	a := g.axes[d]
	return a[0], a[len(a)-1]
}

// Index returns the flat index of the node with per-axis indices idx.
func (g *Grid) Index(idx []int) int {
	n := 0
	for d, i := range idx {
		n += i * g.strides[d]
	}
	return n
}

// NodeIndex returns the flat index of the node at exactly x.
func (g *Grid) NodeIndex(x []float64) (int, bool) {
	if len(x) != len(g.axes) {
		return 0, false
	}
	n := 0
	for d, v := range x {
		a := g.axes[d]
		i := sort.SearchFloat64s(a, v)
		if i == len(a) || a[i] != v {
			return 0, false
		}
		n += i * g.strides[d]
	}
	return n, true
}

// Node returns the coordinates of the node at flat index n.
func (g *Grid) Node(n int) []float64 {
	x := make([]float64, len(g.axes))
	for d := range g.axes {
		i := (n / g.strides[d]) % len(g.axes[d])
		x[d] = g.axes[d][i]
	}
	return x
}

// Simplex returns the vertices and barycentric weights of the simplex that
// contains x. Weights are non-negative and sum to one. Axes with a single
// node contribute no vertices.
func (g *Grid) Simplex(x []float64) ([]Vertex, error) {
	if len(x) != len(g.axes) {
		return nil, fmt.Errorf("point has %d coordinates, grid has %d axes", len(x), len(g.axes))
	}

	type local struct {
		stride int
		t      float64
	}
	locals := make([]local, 0, len(g.axes))
	base := 0
	for d, v := range x {
		a := g.axes[d]
		lo, hi := a[0], a[len(a)-1]
		if math.IsNaN(v) || v < lo || v > hi {
			return nil, &DomainError{Dim: d, Value: v, Min: lo, Max: hi}
		}
		if len(a) == 1 {
			continue
		}
		// Cell i satisfies a[i] <= v <= a[i+1]; the upper boundary falls in
		// the last cell with t = 1.
		i := sort.Search(len(a), func(i int) bool { return a[i] > v }) - 1
		if i >= len(a)-1 {
			i = len(a) - 2
		}
		t := (v - a[i]) / (a[i+1] - a[i])
		base += i * g.strides[d]
		locals = append(locals, local{stride: g.strides[d], t: t})
	}

	sort.SliceStable(locals, func(i, j int) bool { return locals[i].t > locals[j].t })

	verts := make([]Vertex, 0, len(locals)+1)
	idx := base
	prev := 1.0
	for _, l := range locals {
		verts = append(verts, Vertex{Index: idx, Weight: prev - l.t})
		idx += l.stride
		prev = l.t
	}
	verts = append(verts, Vertex{Index: idx, Weight: prev})
	return verts, nil
}

// Apply combines node values with simplex weights. A NaN value under a
// non-zero weight yields ErrMissingSample.
func Apply(values []float64, verts []Vertex) (float64, error) {
	sum := 0.0
	for _, v := range verts {
		if v.Weight == 0 {
			continue
		}
		y := values[v.Index]
		if math.IsNaN(y) {
			return math.NaN(), ErrMissingSample
		}
		sum += v.Weight * y
	}
	return sum, nil
}

// Interpolant pairs a grid with one array of node values.
type Interpolant struct {
	grid   *Grid
	values []float64
}

// New returns the interpolant of values over grid. values is copied.
func New(grid *Grid, values []float64) (*Interpolant, error) {
	if len(values) != grid.Size() {
		return nil, fmt.Errorf("got %d values for a grid of %d nodes", len(values), grid.Size())
	}
	return &Interpolant{grid: grid, values: append([]float64(nil), values...)}, nil
}

// Grid returns the underlying grid.
func (p *Interpolant) Grid() *Grid { return p.grid }

// At evaluates the interpolant at x.
func (p *Interpolant) At(x []float64) (float64, error) {
	verts, err := p.grid.Simplex(x)
	if err != nil {
		return math.NaN(), err
	}
	return Apply(p.values, verts)
}
