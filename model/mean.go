package model

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// MeanParams are the parameters of the linear trend mean.
type MeanParams struct {
	Const    float64
	TimeCoef float64
}

// ZeroMean is the zero vector over the mesh.
func ZeroMean(m *Mesh) []float64 {
	return make([]float64, m.Len())
}

// ConstantMean is c at every location.
func ConstantMean(m *Mesh, c float64) []float64 {
	out := make([]float64, m.Len())
	for i := range out {
		out[i] = c
	}
	return out
}

// TrendMean is Const + TimeCoef*t. On a spatial mesh it is just Const.
func TrendMean(m *Mesh, p MeanParams) []float64 {
	out := ConstantMean(m, p.Const)
	if m.Temporal() {
		for i, t := range m.T {
			out[i] += p.TimeCoef * t
		}
	}
	return out
}

// LinearMean stores X' * beta in dst, the mean implied by the current
// coefficients.
func LinearMean(d *Design, beta []float64, dst []float64) error {
	k, n := d.X.Dims()
	if len(beta) != k {
		return errors.Errorf("Coefficient vector has %d values, design has %d rows", len(beta), k)
	}
	if len(dst) != n {
		return errors.Errorf("Mean vector has %d values, design has %d columns", len(dst), n)
	}

	out := mat.NewVecDense(n, dst)
	out.MulVec(d.X.T(), mat.NewVecDense(k, beta))
	return nil
}
