package ilut

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/ilut/internal/grid"
	"github.com/banshee-data/ilut/internal/interp"
	"github.com/banshee-data/ilut/internal/lut"
	"github.com/banshee-data/ilut/internal/version"
)

// RecordSource yields the stored samples of one band. *lutstore.Store
// satisfies it.
type RecordSource interface {
	IterateBand(ctx context.Context, band string, fn func(lut.SampleRecord) error) error
}

// maxMissingExamples bounds the keys quoted in an IncompleteGridError.
const maxMissingExamples = 5

// rankTolerance is relative to the largest eigenvalue of the scatter matrix.
const rankTolerance = 1e-10

// Build constructs the interpolant for band from the samples in src.
//
// Every key of the spec's grid must be present unless the spec is in test
// mode, in which case gaps are kept as missing nodes and only queries that
// depend on them fail.
func Build(ctx context.Context, src RecordSource, spec *grid.Spec, band lut.Band) (*ILUT, error) {
	if _, ok := spec.Band(band.Name); !ok {
		return nil, &lut.ConfigurationError{Field: "band", Value: band.Name, Reason: fmt.Sprintf("not part of %s", spec.Config.Sensor)}
	}
	for _, d := range lut.Dimensions {
		if len(spec.Axes[d]) < 2 {
			return nil, &lut.DegenerateGridError{
				Reason: fmt.Sprintf("%s has %d value(s); at least two are needed to span the domain", d, len(spec.Axes[d])),
			}
		}
	}

	g, err := interp.NewGrid(spec.Axes[:])
	if err != nil {
		return nil, &lut.ConfigurationError{Field: "grid", Reason: err.Error()}
	}

	var channels [lut.NumChannels][]float64
	for c := range channels {
		channels[c] = make([]float64, g.Size())
		for i := range channels[c] {
			channels[c][i] = math.NaN()
		}
	}

	present := make([]bool, g.Size())
	stray := 0
	err = src.IterateBand(ctx, band.Name, func(rec lut.SampleRecord) error {
		x := rec.Key.Point.Vector()
		n, ok := g.NodeIndex(x[:])
		if !ok {
			stray++
			return nil
		}
		for _, c := range lut.Channels {
			channels[c][n] = rec.Outputs.Get(c)
		}
		present[n] = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read samples for band %s: %w", band.Name, err)
	}
	if stray > 0 {
		logf("%s band %s: ignoring %d stored sample(s) not on the grid", spec.Config.Key(), band.Name, stray)
	}

	var missing []lut.SampleKey
	nMissing := 0
	points := make([][]float64, 0, g.Size())
	for n, ok := range present {
		if ok {
			points = append(points, g.Node(n))
			continue
		}
		nMissing++
		if len(missing) < maxMissingExamples {
			var v [lut.NumDimensions]float64
			copy(v[:], g.Node(n))
			missing = append(missing, lut.SampleKey{Band: band.Name, Point: lut.PointFromVector(v)})
		}
	}
	if nMissing > 0 && spec.Config.Mode != lut.ModeTest {
		return nil, &lut.IncompleteGridError{Band: band.Name, Missing: nMissing, Total: g.Size(), Examples: missing}
	}
	if nMissing > 0 {
		logf("%s band %s: %d of %d samples missing, queries touching them will fail", spec.Config.Key(), band.Name, nMissing, g.Size())
	}

	rank, err := interp.AffineRank(points, rankTolerance)
	if err != nil {
		return nil, err
	}
	if rank < lut.NumDimensions {
		return nil, &lut.DegenerateGridError{
			Reason: fmt.Sprintf("%d sample(s) of band %s span only %d of %d dimensions", len(points), band.Name, rank, lut.NumDimensions),
		}
	}

	l, err := newILUT(spec.Config, band, spec.Axes, channels)
	if err != nil {
		return nil, err
	}
	l.BuiltAt = time.Now().UTC()
	l.BuilderVersion = version.Version
	return l, nil
}

// BuildAll builds one interpolant per band of spec, stopping at the first
// error.
func BuildAll(ctx context.Context, src RecordSource, spec *grid.Spec) ([]*ILUT, error) {
	out := make([]*ILUT, 0, len(spec.Bands))
	for _, b := range spec.Bands {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		l, err := Build(ctx, src, spec, b)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}
