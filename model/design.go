package model

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Design is the K x N design matrix (one row per coefficient, one column per
// mesh location) and the prior variance of each coefficient. A prior variance
// of +Inf is a flat prior.
type Design struct {
	Names          []string
	X              *mat.Dense
	PriorVariances []float64
}

// NewDesign builds the design matrix from a covariate set.
func NewDesign(s *CovariateSet) (*Design, error) {
	if s == nil || s.Len() < 1 {
		return nil, errors.Errorf("Design needs at least one covariate row")
	}

	k := s.Len()
	n := len(s.Rows[0].Values)
	d := &Design{
		Names:          s.Names(),
		X:              mat.NewDense(k, n, nil),
		PriorVariances: make([]float64, k),
	}

	for i, r := range s.Rows {
		if len(r.Values) != n {
			return nil, errors.Errorf("Covariate %s has %d values, expected %d", r.Name, len(r.Values), n)
		}
		d.X.SetRow(i, r.Values)
		d.PriorVariances[i] = r.PriorVariance
	}

	if err := d.Check(); err != nil {
		return nil, err
	}
	return d, nil
}

// NewDesignFromRows builds a design directly from rows of X. Used when the
// caller supplies its own priors.
func NewDesignFromRows(names []string, rows [][]float64, priorVariances []float64) (*Design, error) {
	if len(rows) < 1 || len(rows[0]) < 1 {
		return nil, errors.Errorf("Design needs at least one non-empty row")
	}
	if len(names) != len(rows) || len(priorVariances) != len(rows) {
		return nil, errors.Errorf("Design has %d rows, %d names and %d prior variances", len(rows), len(names), len(priorVariances))
	}

	n := len(rows[0])
	d := &Design{
		Names:          append([]string(nil), names...),
		X:              mat.NewDense(len(rows), n, nil),
		PriorVariances: append([]float64(nil), priorVariances...),
	}
	for i, r := range rows {
		if len(r) != n {
			return nil, errors.Errorf("Design row %d has %d values, expected %d", i, len(r), n)
		}
		d.X.SetRow(i, r)
	}

	if err := d.Check(); err != nil {
		return nil, err
	}
	return d, nil
}

// Check returns an error if the design is unusable
func (d *Design) Check() error {
	k, n := d.X.Dims()
	if len(d.PriorVariances) != k || len(d.Names) != k {
		return errors.Errorf("Design has %d rows but %d names and %d prior variances", k, len(d.Names), len(d.PriorVariances))
	}
	for i, v := range d.PriorVariances {
		if !(v > 0) {
			return errors.Errorf("Coefficient %s has prior variance %v (must be > 0)", d.Names[i], v)
		}
	}
	for i := 0; i < k; i++ {
		for j := 0; j < n; j++ {
			x := d.X.At(i, j)
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return errors.Errorf("Design row %s has non-finite value at %d", d.Names[i], j)
			}
		}
	}
	return nil
}

// Coefficients is K, the number of design rows.
func (d *Design) Coefficients() int {
	k, _ := d.X.Dims()
	return k
}

// Locations is N, the number of design columns.
func (d *Design) Locations() int {
	_, n := d.X.Dims()
	return n
}
