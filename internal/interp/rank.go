package interp

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// AffineRank returns the dimension of the affine hull of points, i.e. the
// rank of their centred scatter matrix. Eigenvalues below tol times the
// largest eigenvalue count as zero.
func AffineRank(points [][]float64, tol float64) (int, error) {
	if len(points) == 0 {
		return 0, nil
	}
	n := len(points[0])
	mean := make([]float64, n)
	for _, p := range points {
		if len(p) != n {
			return 0, errors.New("points have inconsistent dimensionality")
		}
		for d, v := range p {
			mean[d] += v
		}
	}
	for d := range mean {
		mean[d] /= float64(len(points))
	}

	scatter := mat.NewSymDense(n, nil)
	centred := make([]float64, n)
	for _, p := range points {
		for d, v := range p {
			centred[d] = v - mean[d]
		}
		scatter.SymRankOne(scatter, 1, mat.NewVecDense(n, centred))
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(scatter, false); !ok {
		return 0, errors.New("eigen decomposition of scatter matrix failed")
	}
	vals := eig.Values(nil)
	largest := 0.0
	for _, v := range vals {
		largest = math.Max(largest, v)
	}
	if largest == 0 {
		return 0, nil
	}
	rank := 0
	for _, v := range vals {
		if v > tol*largest {
			rank++
		}
	}
	return rank, nil
}
