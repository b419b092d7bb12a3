package sampler

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/CraigKelly/stgibbs/buffer"
	"github.com/CraigKelly/stgibbs/linalg"
	"github.com/CraigKelly/stgibbs/model"
)

// PrecisionName is the trace name of the noise precision.
const PrecisionName = "tau"

// MinConvergenceWindow is the smallest usable convergence window.
const MinConvergenceWindow = 4

// Record is the state of the chain after one iteration.
type Record struct {
	Iteration    int64
	FieldStatus  Status
	Field        []float64
	Precision    float64
	Coefficients []float64
}

// Observer is told about every iteration a chain completes, kept or not.
type Observer interface {
	ObserveIteration(rec *Record)
}

// ChainConfig controls burn-in, thinning and the convergence window.
type ChainConfig struct {
	BurnIn            int64
	Thin              int64
	ConvergenceWindow int
	Observer          Observer
}

// Chain alternates the field and coefficient updates. The covariance is
// fixed for the life of the chain and the field mean is X'beta, rebuilt from
// the current coefficients before every field step.
type Chain struct {
	Field        *FieldSampler
	Coefficients *CoefficientSampler
	Covariance   mat.Symmetric
	Raw          []float64

	Thin             int64
	Iterations       int64
	TotalSampleCount int64
	Skips            int64
	ChainHistory     []*buffer.Window // One per coefficient, then precision

	observer Observer
	mean     []float64
	target   []float64
}

// NewChain returns a chain ready to go. It even performs burnin.
func NewChain(field *FieldSampler, coef *CoefficientSampler, cov mat.Symmetric, raw []float64, cfg ChainConfig) (*Chain, error) {
	if field == nil || coef == nil {
		return nil, errors.New("Both field and coefficient samplers are required")
	}
	if coef.Design().Locations() != field.n {
		return nil, errors.Wrapf(linalg.ErrDimension, "Design has %d locations, field has %d", coef.Design().Locations(), field.n)
	}
	if err := linalg.CheckCovariance(cov, field.n); err != nil {
		return nil, err
	}
	if cfg.Thin < 1 {
		cfg.Thin = 1
	}
	if cfg.BurnIn < 0 {
		return nil, errors.Errorf("Invalid burn in %d", cfg.BurnIn)
	}
	if cfg.ConvergenceWindow < MinConvergenceWindow {
		return nil, errors.Errorf("Convergence window must be at least %d, got %d", MinConvergenceWindow, cfg.ConvergenceWindow)
	}

	ch := &Chain{
		Field:        field,
		Coefficients: coef,
		Covariance:   cov,
		Raw:          raw,
		Thin:         cfg.Thin,
		ChainHistory: make([]*buffer.Window, coef.k+1),
		observer:     cfg.Observer,
		mean:         make([]float64, field.n),
		target:       make([]float64, field.n),
	}
	for i := range ch.ChainHistory {
		ch.ChainHistory[i] = buffer.NewWindow(cfg.ConvergenceWindow)
	}

	for i := int64(0); i < cfg.BurnIn; i++ {
		if _, err := ch.oneSample(false); err != nil {
			return nil, errors.Wrap(err, "Failure during chain burn in")
		}
	}

	return ch, nil
}

// Names are the names of the tracked scalar quantities, in ChainHistory order.
func (c *Chain) Names() []string {
	names := append([]string(nil), c.Coefficients.Design().Names...)
	return append(names, PrecisionName)
}

// Run performs iterations orchestration cycles, calling emit with every
// Thin-th record. It stops early on a fatal step, an emit error or when ctx
// is done.
func (c *Chain) Run(ctx context.Context, iterations int64, emit func(*Record) error) error {
	for i := int64(0); i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "Chain stopped after %d iterations", c.Iterations)
		}

		rec, err := c.oneSample(true)
		if err != nil {
			return err
		}

		if emit != nil && c.Iterations%c.Thin == 0 {
			if err := emit(rec); err != nil {
				return errors.Wrap(err, "Could not record iteration")
			}
		}
	}
	return nil
}

// oneSample runs the field then the coefficient update and optionally
// updates the chain state.
func (c *Chain) oneSample(updateHistory bool) (*Record, error) {
	coef := c.Coefficients
	field := c.Field

	if err := model.LinearMean(coef.Design(), coef.beta, c.mean); err != nil {
		return nil, err
	}
	err := field.SetInputs(FieldInputs{Covariance: c.Covariance, Mean: c.mean, Raw: c.Raw})
	if err != nil {
		return nil, err
	}

	fieldRes := field.Step()
	switch fieldRes.Status {
	case Fatal:
		return nil, errors.Wrap(fieldRes.Err, "Field step failed")
	case Skipped:
		c.Skips++
	}

	if err := field.CopyField(c.target); err != nil {
		return nil, err
	}
	err = coef.SetInputs(CoefficientInputs{Covariance: c.Covariance, Target: c.target})
	if err != nil {
		return nil, err
	}
	if res := coef.Step(); res.Status != OK {
		return nil, errors.Wrap(res.Err, "Coefficient step failed")
	}

	rec := &Record{
		FieldStatus:  fieldRes.Status,
		Field:        field.Field(),
		Precision:    field.Precision(),
		Coefficients: coef.Coefficients(),
	}

	if updateHistory {
		c.Iterations++
		c.TotalSampleCount++
		rec.Iteration = c.Iterations

		for i, b := range rec.Coefficients {
			c.ChainHistory[i].Add(b)
		}
		c.ChainHistory[len(c.ChainHistory)-1].Add(rec.Precision)
	}

	if c.observer != nil {
		c.observer.ObserveIteration(rec)
	}

	return rec, nil
}

// Convergence returns a split-half score for every tracked quantity (see
// SplitHalfScore), in Names order.
func (c *Chain) Convergence() []float64 {
	out := make([]float64, len(c.ChainHistory))
	for i, b := range c.ChainHistory {
		out[i] = SplitHalfScore(b)
	}
	return out
}

// SplitHalfScore compares the older and newer halves of a trace window: the
// absolute difference of their means over its standard error. Small values
// (under about 2) mean the two halves agree. NaN until the window is full.
func SplitHalfScore(w *buffer.Window) float64 {
	older, newer, ok := w.Summaries()
	if !ok {
		return math.NaN()
	}

	se := math.Sqrt(older.Variance/float64(older.N) + newer.Variance/float64(newer.N))
	if se == 0 {
		if older.Mean == newer.Mean {
			return 0
		}
		return math.Inf(1)
	}
	return math.Abs(older.Mean-newer.Mean) / se
}
