package linalg

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Arena hands out the fixed-size scratch buffers a sampler needs. Buffers are
// allocated while the sampler is built; Seal is called before the first step
// and any later allocation is a bug.
type Arena struct {
	sealed bool
	floats int
}

func (a *Arena) grab(n int) []float64 {
	if a.sealed {
		panic(fmt.Sprintf("BUG: arena allocation of %d floats after seal", n))
	}
	a.floats += n
	return make([]float64, n)
}

// Dense returns an r x c scratch matrix.
func (a *Arena) Dense(r, c int) *mat.Dense {
	return mat.NewDense(r, c, a.grab(r*c))
}

// Sym returns an n x n scratch symmetric matrix.
func (a *Arena) Sym(n int) *mat.SymDense {
	return mat.NewSymDense(n, a.grab(n*n))
}

// Tri returns an n x n lower triangular scratch matrix.
func (a *Arena) Tri(n int) *mat.TriDense {
	return mat.NewTriDense(n, mat.Lower, a.grab(n*n))
}

// Vec returns a length n scratch vector.
func (a *Arena) Vec(n int) *mat.VecDense {
	return mat.NewVecDense(n, a.grab(n))
}

// Floats returns a length n scratch slice.
func (a *Arena) Floats(n int) []float64 {
	return a.grab(n)
}

// Seal stops further allocation.
func (a *Arena) Seal() {
	a.sealed = true
}

// Sealed is true once Seal has been called.
func (a *Arena) Sealed() bool {
	return a.sealed
}

// Size is the number of float64 values held by the arena.
func (a *Arena) Size() int {
	return a.floats
}
