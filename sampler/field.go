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

// GammaPrior is a Gamma(shape, rate) prior.
type GammaPrior struct {
	Shape float64
	Rate  float64
}

// Check returns an error if the prior is not proper
func (p GammaPrior) Check() error {
	if !(p.Shape > 0) || !(p.Rate > 0) || math.IsInf(p.Shape, 0) || math.IsInf(p.Rate, 0) {
		return errors.Errorf("Gamma prior needs finite shape > 0 and rate > 0, got %v/%v", p.Shape, p.Rate)
	}
	return nil
}

// FieldConfig is fixed for the life of a FieldSampler.
type FieldConfig struct {
	Groups        *model.Groups
	NoisePrior    GammaPrior
	JumpPrecision bool // Draw the noise precision along with the field

	// UseIncompressibility is reserved for vector-valued fields and must
	// be false.
	UseIncompressibility bool

	Logger *slog.Logger
}

// FieldInputs change from step to step. They are read, never written.
type FieldInputs struct {
	Covariance mat.Symmetric // C(x,x), N x N
	Mean       []float64     // M(x), length N
	Raw        []float64     // Noisy observations, length M
}

// fieldScratch is every buffer a field step needs, sized once for N
// locations of which nObs have observations.
type fieldScratch struct {
	arena linalg.Arena

	effVar   []float64      // nObs
	marg     *mat.SymDense  // S = C_OO + diag(effVar), nObs
	margL    *mat.TriDense  // nObs
	crossObs *mat.Dense     // C_O., nObs x N
	cross    *mat.Dense     // L^-1 C_O., nObs x N
	resid    *mat.VecDense  // ybar_O - M_O, nObs
	white    *mat.VecDense  // L^-1 resid, nObs
	cond     *mat.SymDense  // N
	condL    *mat.TriDense  // N
	mean     *mat.VecDense  // N
	z        *mat.VecDense  // N
	draw     *mat.VecDense  // N
	margChol mat.Cholesky   // Storage reused by Factorize
	condChol mat.Cholesky   // Storage reused by Factorize
}

func newFieldScratch(n int, nObs int) *fieldScratch {
	s := &fieldScratch{}
	a := &s.arena

	if nObs > 0 {
		s.effVar = a.Floats(nObs)
		s.marg = a.Sym(nObs)
		s.margL = a.Tri(nObs)
		s.crossObs = a.Dense(nObs, n)
		s.cross = a.Dense(nObs, n)
		s.resid = a.Vec(nObs)
		s.white = a.Vec(nObs)
	}
	s.cond = a.Sym(n)
	s.condL = a.Tri(n)
	s.mean = a.Vec(n)
	s.z = a.Vec(n)
	s.draw = a.Vec(n)

	a.Seal()
	return s
}

// FieldSampler is the Gibbs update for the latent field (and optionally the
// noise precision) given the aggregated observations. It owns the field and
// the precision: nothing else may write them.
type FieldSampler struct {
	cfg       FieldConfig
	gen       *rand.Generator
	log       *slog.Logger
	n         int
	observed  []int
	field     []float64
	precision float64

	in        FieldInputs
	hasInputs bool

	agg     *Aggregate
	scratch *fieldScratch

	steps   int64
	skips   int64
	elapsed time.Duration
}

// NewFieldSampler creates a field sampler starting at the given field and
// noise precision. Both are copied.
func NewFieldSampler(gen *rand.Generator, cfg FieldConfig, field []float64, precision float64) (*FieldSampler, error) {
	if gen == nil {
		return nil, errors.New("A random generator is required")
	}
	if cfg.Groups == nil {
		return nil, errors.New("Observation groups are required")
	}
	if cfg.UseIncompressibility {
		return nil, errors.New("Incompressibility constraint only applies to vector fields")
	}
	if err := cfg.NoisePrior.Check(); err != nil {
		return nil, errors.Wrap(err, "Invalid noise prior")
	}
	if !(precision > 0) || math.IsInf(precision, 1) {
		return nil, errors.Errorf("Initial noise precision must be finite and > 0, got %v", precision)
	}

	n := cfg.Groups.Len()
	if err := linalg.CheckVector(field, n, "Initial field"); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	observed := cfg.Groups.Observed()
	f := &FieldSampler{
		cfg:       cfg,
		gen:       gen,
		log:       logger.With("sampler", "field"),
		n:         n,
		observed:  observed,
		field:     append([]float64(nil), field...),
		precision: precision,
		agg:       NewAggregate(n),
		scratch:   newFieldScratch(n, len(observed)),
	}
	return f, nil
}

// Name implements Sampler
func (f *FieldSampler) Name() string {
	return "field"
}

// SetInputs validates and installs the inputs for the next step(s).
func (f *FieldSampler) SetInputs(in FieldInputs) error {
	if err := linalg.CheckCovariance(in.Covariance, f.n); err != nil {
		return errors.Wrap(err, "Field sampler covariance")
	}
	if err := linalg.CheckVector(in.Mean, f.n, "Mean vector"); err != nil {
		return err
	}
	if err := linalg.CheckVector(in.Raw, f.cfg.Groups.RawLen(), "Raw observations"); err != nil {
		return err
	}

	f.in = in
	f.hasInputs = true
	return nil
}

// Step implements Sampler. On Fatal neither the field nor the precision
// change. On Skipped the field is kept but a precision draw, if any, is
// kept too.
func (f *FieldSampler) Step() Result {
	if !f.hasInputs {
		return Fail(errors.Wrap(ErrNoInputs, "Field step"))
	}

	start := time.Now()
	defer func() {
		f.elapsed += time.Since(start)
		f.steps++
	}()

	in := f.in
	s := f.scratch

	if err := f.agg.Update(f.cfg.Groups, in.Raw, f.field); err != nil {
		return Fail(err)
	}

	precision := f.precision
	if f.cfg.JumpPrecision {
		shape := f.cfg.NoisePrior.Shape + float64(f.n)/2.0 + 1.0
		rate := f.cfg.NoisePrior.Rate + f.agg.SumSquaredDeviations()/2.0
		p, err := f.gen.Gamma(shape, rate)
		if err != nil {
			return Fail(errors.Wrap(err, "Noise precision draw failed"))
		}
		precision = p
	}

	m := mat.NewVecDense(f.n, in.Mean)

	if len(f.observed) == 0 {
		// Nothing to condition on: the full conditional is the prior
		s.cond.CopySym(in.Covariance)
		s.mean.CopyVec(m)
	} else {
		// S = C_OO + diag(1/(tau*n_i)); a failure here is fatal
		linalg.SubSym(s.marg, in.Covariance, f.observed)
		for k, i := range f.observed {
			s.effVar[k] = f.agg.EffectiveVariance(i, precision)
		}
		linalg.AddDiag(s.marg, s.effVar)

		if err := linalg.Factorize(&s.margChol, s.marg, "marginal observation covariance"); err != nil {
			return Fail(err)
		}
		s.margChol.LTo(s.margL)

		// cross = L^-1 C_O. so that cross' cross = C_.O S^-1 C_O.
		for k, i := range f.observed {
			for j := 0; j < f.n; j++ {
				s.crossObs.Set(k, j, in.Covariance.At(i, j))
			}
			s.resid.SetVec(k, f.agg.Means[i]-in.Mean[i])
		}
		if err := linalg.SolveTri(s.cross, s.margL, s.crossObs); err != nil {
			return Fail(errors.Wrap(err, "Cross covariance solve failed"))
		}
		if err := linalg.SolveTriVec(s.white, s.margL, s.resid); err != nil {
			return Fail(errors.Wrap(err, "Residual solve failed"))
		}

		// C_cond = C - cross' cross, m_cond = M + cross' L^-1 (ybar - M)
		s.cond.SymRankK(in.Covariance, -1.0, s.cross.T())
		s.mean.MulVec(s.cross.T(), s.white)
		s.mean.AddVec(s.mean, m)
	}

	// A failure here only skips this update
	if err := linalg.Factorize(&s.condChol, s.cond, "conditional field covariance"); err != nil {
		f.precision = precision
		f.skips++
		f.log.Warn("Full conditional covariance not positive definite: field not updated",
			"step", f.steps,
			"error", err,
		)
		return Skip(err)
	}
	s.condChol.LTo(s.condL)

	f.gen.FillNormal(s.z.RawVector().Data)
	s.draw.MulVec(s.condL, s.z)
	s.draw.AddVec(s.draw, s.mean)

	copy(f.field, s.draw.RawVector().Data)
	f.precision = precision
	return Ok()
}

// CopyField copies the current field into dst.
func (f *FieldSampler) CopyField(dst []float64) error {
	if len(dst) != f.n {
		return errors.Wrapf(linalg.ErrDimension, "Field copy needs %d values, got %d", f.n, len(dst))
	}
	copy(dst, f.field)
	return nil
}

// Field returns a copy of the current field.
func (f *FieldSampler) Field() []float64 {
	return append([]float64(nil), f.field...)
}

// Precision is the current noise precision.
func (f *FieldSampler) Precision() float64 {
	return f.precision
}

// ConditionalMean is the full conditional mean computed by the last step that
// got past the marginal factorization. Useful for checking the conditioning.
func (f *FieldSampler) ConditionalMean() []float64 {
	return append([]float64(nil), f.scratch.mean.RawVector().Data...)
}

// ConditionalCovariance is a copy of the last full conditional covariance.
func (f *FieldSampler) ConditionalCovariance() *mat.SymDense {
	return mat.NewSymDense(f.n, append([]float64(nil), f.scratch.cond.RawSymmetric().Data...))
}

// Aggregate is the observation summary from the last step. Read only.
func (f *FieldSampler) Aggregate() *Aggregate {
	return f.agg
}

// ScratchSize is the number of float64 values held in preallocated scratch.
func (f *FieldSampler) ScratchSize() int {
	return f.scratch.arena.Size()
}

// Stats returns the step count, skip count and total time spent stepping.
func (f *FieldSampler) Stats() (steps int64, skips int64, elapsed time.Duration) {
	return f.steps, f.skips, f.elapsed
}
