package model

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// CovarianceParams are the hyperparameters of the exponential covariance.
// ScaleT is only used on a spatiotemporal mesh.
type CovarianceParams struct {
	Amp    float64 // Marginal standard deviation
	Scale  float64 // Spatial range, radians
	ScaleT float64 // Temporal range, same units as Mesh.T
}

// Check returns an error if any hyperparameter is unusable
func (p CovarianceParams) Check(temporal bool) error {
	if !(p.Amp > 0) {
		return errors.Errorf("Covariance amp must be > 0, got %v", p.Amp)
	}
	if !(p.Scale > 0) {
		return errors.Errorf("Covariance scale must be > 0, got %v", p.Scale)
	}
	if temporal && !(p.ScaleT > 0) {
		return errors.Errorf("Covariance temporal scale must be > 0, got %v", p.ScaleT)
	}
	return nil
}

// ExponentialCovariance evaluates C(x,x) over the mesh:
//
//	amp^2 * exp(-d/scale) [* exp(-|dt|/scaleT)]
//
// where d is great-circle distance. Rows are assembled by at most workers
// goroutines; the call returns only once the whole matrix is ready.
func ExponentialCovariance(ctx context.Context, m *Mesh, p CovarianceParams, workers int) (*mat.SymDense, error) {
	if err := p.Check(m.Temporal()); err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = 1
	}

	n := m.Len()
	c := mat.NewSymDense(n, nil)
	amp2 := p.Amp * p.Amp

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := 0; i < n; i++ {
		row := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			// Each row only writes its own upper-triangle entries
			for j := row; j < n; j++ {
				v := amp2 * math.Exp(-m.Distance(row, j)/p.Scale)
				if m.Temporal() {
					v *= math.Exp(-math.Abs(m.T[row]-m.T[j]) / p.ScaleT)
				}
				c.SetSym(row, j, v)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "Covariance evaluation interrupted")
	}

	return c, nil
}
