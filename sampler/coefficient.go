package sampler

import (
	"log/slog"
	"math"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/CraigKelly/stgibbs/linalg"
	"github.com/CraigKelly/stgibbs/model"
	"github.com/CraigKelly/stgibbs/rand"
)

// CoefficientInputs change from step to step. They are read, never written.
type CoefficientInputs struct {
	Covariance mat.Symmetric // Residual covariance Sigma, N x N
	Target     []float64     // Residual target d, length N
}

type coefScratch struct {
	arena linalg.Arena

	sigmaL   *mat.TriDense // N
	solved   *mat.Dense    // L^-1 X', N x K
	white    *mat.VecDense // L^-1 d, N
	prec     *mat.SymDense // T, K
	precL    *mat.TriDense // K
	rhs      *mat.VecDense // K
	post     *mat.SymDense // P, K
	mean     *mat.VecDense // K
	z        *mat.VecDense // K
	noise    *mat.VecDense // K
	sigChol  mat.Cholesky
	precChol mat.Cholesky
}

func newCoefScratch(n int, k int) *coefScratch {
	s := &coefScratch{}
	a := &s.arena

	s.sigmaL = a.Tri(n)
	s.solved = a.Dense(n, k)
	s.white = a.Vec(n)
	s.prec = a.Sym(k)
	s.precL = a.Tri(k)
	s.rhs = a.Vec(k)
	s.post = a.Sym(k)
	s.mean = a.Vec(k)
	s.z = a.Vec(k)
	s.noise = a.Vec(k)

	a.Seal()
	return s
}

// CoefficientSampler is the generalized least squares conjugate update for
// the linear mean coefficients. It owns the coefficient vector.
//
// A finite prior variance v enters the posterior precision as
// T = X Sigma^-1 X' + diag(1/v). A +Inf prior variance adds nothing.
type CoefficientSampler struct {
	design *model.Design
	gen    *rand.Generator
	log    *slog.Logger
	n      int
	k      int
	beta   []float64

	in        CoefficientInputs
	hasInputs bool

	scratch *coefScratch

	steps   int64
	elapsed time.Duration
}

// NewCoefficientSampler creates a coefficient sampler starting at beta (which
// is copied).
func NewCoefficientSampler(gen *rand.Generator, design *model.Design, beta []float64, logger *slog.Logger) (*CoefficientSampler, error) {
	if gen == nil {
		return nil, errors.New("A random generator is required")
	}
	if design == nil {
		return nil, errors.New("A design matrix is required")
	}
	if err := design.Check(); err != nil {
		return nil, errors.Wrap(err, "Invalid design")
	}

	k, n := design.X.Dims()
	if err := linalg.CheckVector(beta, k, "Initial coefficients"); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &CoefficientSampler{
		design:  design,
		gen:     gen,
		log:     logger.With("sampler", "coefficients"),
		n:       n,
		k:       k,
		beta:    append([]float64(nil), beta...),
		scratch: newCoefScratch(n, k),
	}
	return c, nil
}

// Name implements Sampler
func (c *CoefficientSampler) Name() string {
	return "coefficients"
}

// SetInputs validates and installs the inputs for the next step(s).
func (c *CoefficientSampler) SetInputs(in CoefficientInputs) error {
	if err := linalg.CheckCovariance(in.Covariance, c.n); err != nil {
		return errors.Wrap(err, "Coefficient sampler covariance")
	}
	if err := linalg.CheckVector(in.Target, c.n, "Residual target"); err != nil {
		return err
	}

	c.in = in
	c.hasInputs = true
	return nil
}

// Step implements Sampler. Any factorization failure is Fatal and leaves the
// coefficients untouched.
func (c *CoefficientSampler) Step() Result {
	if !c.hasInputs {
		return Fail(errors.Wrap(ErrNoInputs, "Coefficient step"))
	}

	start := time.Now()
	defer func() {
		c.elapsed += time.Since(start)
		c.steps++
	}()

	if err := c.posterior(); err != nil {
		c.log.Debug("Coefficient posterior failed", "step", c.steps, "error", err)
		return Fail(err)
	}

	// beta = mu + l^-T z has covariance l^-T l^-1 = P
	s := c.scratch
	c.gen.FillNormal(s.z.RawVector().Data)
	if err := linalg.SolveTriVec(s.noise, s.precL.TTri(), s.z); err != nil {
		return Fail(errors.Wrap(err, "Coefficient noise solve failed"))
	}
	s.noise.AddVec(s.noise, s.mean)

	copy(c.beta, s.noise.RawVector().Data)
	return Ok()
}

// posterior fills the scratch posterior mean, covariance and the factor of
// the posterior precision.
func (c *CoefficientSampler) posterior() error {
	s := c.scratch
	in := c.in

	if err := linalg.Factorize(&s.sigChol, in.Covariance, "residual covariance"); err != nil {
		return err
	}
	s.sigChol.LTo(s.sigmaL)

	// solved = L^-1 X', white = L^-1 d
	if err := linalg.SolveTri(s.solved, s.sigmaL, c.design.X.T()); err != nil {
		return errors.Wrap(err, "Design solve failed")
	}
	if err := linalg.SolveTriVec(s.white, s.sigmaL, mat.NewVecDense(c.n, in.Target)); err != nil {
		return errors.Wrap(err, "Target solve failed")
	}

	// T = X Sigma^-1 X' + diag(1/v)
	for i := 0; i < c.k; i++ {
		ci := s.solved.ColView(i)
		for j := i; j < c.k; j++ {
			s.prec.SetSym(i, j, mat.Dot(ci, s.solved.ColView(j)))
		}
		if v := c.design.PriorVariances[i]; !math.IsInf(v, 1) {
			s.prec.SetSym(i, i, s.prec.At(i, i)+1.0/v)
		}
	}

	if err := linalg.Factorize(&s.precChol, s.prec, "coefficient posterior precision"); err != nil {
		return err
	}
	s.precChol.LTo(s.precL)

	if err := linalg.InverseChol(s.post, &s.precChol); err != nil {
		return errors.Wrap(err, "Posterior covariance failed")
	}

	// mu = P (X Sigma^-1 d)
	s.rhs.MulVec(s.solved.T(), s.white)
	if err := linalg.SolveCholVec(s.mean, &s.precChol, s.rhs); err != nil {
		return errors.Wrap(err, "Posterior mean solve failed")
	}

	return nil
}

// Coefficients returns a copy of the current coefficients.
func (c *CoefficientSampler) Coefficients() []float64 {
	return append([]float64(nil), c.beta...)
}

// PosteriorMean is the mean used by the last successful step.
func (c *CoefficientSampler) PosteriorMean() []float64 {
	return append([]float64(nil), c.scratch.mean.RawVector().Data...)
}

// PosteriorCovariance is a copy of the covariance used by the last
// successful step.
func (c *CoefficientSampler) PosteriorCovariance() *mat.SymDense {
	out := mat.NewSymDense(c.k, nil)
	out.CopySym(c.scratch.post)
	return out
}

// Design is the design this sampler regresses on.
func (c *CoefficientSampler) Design() *model.Design {
	return c.design
}

// ScratchSize is the number of float64 values held in preallocated scratch.
func (c *CoefficientSampler) ScratchSize() int {
	return c.scratch.arena.Size()
}

// Stats returns the step count and total time spent stepping.
func (c *CoefficientSampler) Stats() (steps int64, elapsed time.Duration) {
	return c.steps, c.elapsed
}
