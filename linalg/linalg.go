// Package linalg holds the small set of dense linear algebra primitives the
// samplers share: checked Cholesky factorization, triangular solves that
// tolerate ill-conditioning, and helpers for assembling the observation
// convolved covariance.
package linalg

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrNotPositiveDefinite is the cause of every failed Cholesky factorization.
var ErrNotPositiveDefinite = errors.New("Matrix is not positive definite")

// ErrDimension is returned when matrix/vector sizes do not agree.
var ErrDimension = errors.New("Dimension mismatch")

// Factorize computes the Cholesky factorization of a into chol. The error
// wraps ErrNotPositiveDefinite when a is not numerically positive definite.
func Factorize(chol *mat.Cholesky, a mat.Symmetric, what string) error {
	if ok := chol.Factorize(a); !ok {
		return errors.Wrapf(ErrNotPositiveDefinite, "Cholesky of %s (%dx%d) failed", what, a.SymmetricDim(), a.SymmetricDim())
	}
	return nil
}

// IsNotPositiveDefinite reports whether err was caused by a failed
// factorization.
func IsNotPositiveDefinite(err error) bool {
	return errors.Is(err, ErrNotPositiveDefinite)
}

// softCondition drops gonum's Condition warning: the solution has still been
// computed, it is just less accurate. Anything else is passed through.
func softCondition(err error) error {
	var cond mat.Condition
	if errors.As(err, &cond) {
		return nil
	}
	return err
}

// SolveTri solves t * X = b for X and stores it in dst. t must be triangular
// (or the transpose of one).
func SolveTri(dst *mat.Dense, t mat.Triangular, b mat.Matrix) error {
	return softCondition(dst.Solve(t, b))
}

// SolveTriVec solves t * x = b for x and stores it in dst.
func SolveTriVec(dst *mat.VecDense, t mat.Triangular, b mat.Vector) error {
	return softCondition(dst.SolveVec(t, b))
}

// SubSym copies the rows/columns of a given by idx into dst, which must be
// len(idx) square.
func SubSym(dst *mat.SymDense, a mat.Symmetric, idx []int) {
	for i, ii := range idx {
		for j := i; j < len(idx); j++ {
			dst.SetSym(i, j, a.At(ii, idx[j]))
		}
	}
}

// AddDiag adds d to the diagonal of dst in place.
func AddDiag(dst *mat.SymDense, d []float64) {
	for i, v := range d {
		dst.SetSym(i, i, dst.At(i, i)+v)
	}
}

// CheckCovariance verifies a covariance matrix has size n, finite entries and
// a non-negative diagonal. Positive definiteness is only discovered when the
// samplers factorize.
func CheckCovariance(a mat.Symmetric, n int) error {
	if a == nil {
		return errors.Errorf("Covariance matrix is missing")
	}
	if a.SymmetricDim() != n {
		return errors.Wrapf(ErrDimension, "Covariance is %dx%d, expected %dx%d", a.SymmetricDim(), a.SymmetricDim(), n, n)
	}
	for i := 0; i < n; i++ {
		if a.At(i, i) < 0 {
			return errors.Errorf("Covariance has negative variance %v at %d", a.At(i, i), i)
		}
		for j := i; j < n; j++ {
			v := a.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.Errorf("Covariance has non-finite entry at (%d,%d)", i, j)
			}
		}
	}
	return nil
}

// CheckVector verifies v has length n and only finite values.
func CheckVector(v []float64, n int, what string) error {
	if len(v) != n {
		return errors.Wrapf(ErrDimension, "%s has length %d, expected %d", what, len(v), n)
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return errors.Errorf("%s has non-finite value at %d", what, i)
		}
	}
	return nil
}

// SolveCholVec solves A x = b given the factorization of A (one forward and
// one backward triangular solve).
func SolveCholVec(dst *mat.VecDense, chol *mat.Cholesky, b mat.Vector) error {
	return softCondition(chol.SolveVecTo(dst, b))
}

// InverseChol stores A^-1 = L^-T L^-1 in dst given the factorization of A.
func InverseChol(dst *mat.SymDense, chol *mat.Cholesky) error {
	return softCondition(chol.InverseTo(dst))
}
