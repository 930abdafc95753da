// Package ilut holds interpolated look-up tables: a continuous 5-D function
// per band that answers arbitrary queries inside the sampled box.
package ilut

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/ilut/internal/grid"
	"github.com/banshee-data/ilut/internal/interp"
	"github.com/banshee-data/ilut/internal/lut"
	"github.com/banshee-data/ilut/internal/monitoring"
)

var logf = monitoring.Prefixed("[ilut]")

// Method names the interpolation scheme recorded in artifacts.
const Method = "kuhn-simplex-linear"

// ILUT is the interpolant of one band of one configuration. It is
// immutable and safe for concurrent queries.
type ILUT struct {
	Config         lut.Config
	Band           lut.Band
	BuiltAt        time.Time
	BuilderVersion string

	// Missing counts nodes with no stored sample. It is non-zero only for
	// test-mode tables.
	Missing int

	axes     grid.Axes
	grid     *interp.Grid
	channels [lut.NumChannels][]float64
}

func newILUT(cfg lut.Config, band lut.Band, axes grid.Axes, channels [lut.NumChannels][]float64) (*ILUT, error) {
	g, err := interp.NewGrid(axes[:])
	if err != nil {
		return nil, err
	}
	for c, vals := range channels {
		if len(vals) != g.Size() {
			return nil, fmt.Errorf("channel %s has %d values, grid has %d nodes", lut.Channel(c), len(vals), g.Size())
		}
	}
	l := &ILUT{
		Config:   cfg,
		Band:     band,
		axes:     axes.Clone(),
		grid:     g,
		channels: channels,
	}
	for n := 0; n < g.Size(); n++ {
		if math.IsNaN(channels[lut.Edir][n]) {
			l.Missing++
		}
	}
	return l, nil
}

// Axes returns a copy of the node values per dimension.
func (l *ILUT) Axes() grid.Axes { return l.axes.Clone() }

// Bounds returns the interpolation domain of dimension d.
func (l *ILUT) Bounds(d lut.Dimension) (min, max float64) {
	return l.grid.Bounds(int(d))
}

// Nodes is the number of grid nodes.
func (l *ILUT) Nodes() int { return l.grid.Size() }

// Evaluate interpolates all four channels at p. Points outside the sampled
// box fail with *lut.OutOfDomainError; no extrapolation is performed.
func (l *ILUT) Evaluate(p lut.ParameterPoint) (lut.Outputs, error) {
	x := p.Vector()
	verts, err := l.grid.Simplex(x[:])
	if err != nil {
		var de *interp.DomainError
		if errors.As(err, &de) {
			return lut.Outputs{}, &lut.OutOfDomainError{
				Dimension: lut.Dimension(de.Dim),
				Value:     de.Value,
				Min:       de.Min,
				Max:       de.Max,
			}
		}
		return lut.Outputs{}, err
	}

	var out lut.Outputs
	for _, c := range lut.Channels {
		v, err := interp.Apply(l.channels[c], verts)
		if err != nil {
			return lut.Outputs{}, fmt.Errorf("%s band %s at %s: %w", l.Config.Key(), l.Band.Name, p, err)
		}
		out.Set(c, v)
	}
	return out, nil
}

// Node returns the stored outputs at flat node index n, with NaN channels
// for missing samples.
func (l *ILUT) Node(n int) (lut.ParameterPoint, lut.Outputs) {
	var v [lut.NumDimensions]float64
	copy(v[:], l.grid.Node(n))
	var out lut.Outputs
	for _, c := range lut.Channels {
		out.Set(c, l.channels[c][n])
	}
	return lut.PointFromVector(v), out
}
