package sampler

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/CraigKelly/stgibbs/linalg"
	"github.com/CraigKelly/stgibbs/model"
)

// Aggregate holds the per-location summary of the raw observations for one
// step. Locations without observations are flagged in Empty; their Means
// entry is meaningless and left at zero.
type Aggregate struct {
	Means      []float64 // Group mean of the raw values
	Counts     []int     // Replicate count
	Empty      []bool    // No observations at this location
	Deviations []float64 // Sum over the group of (raw - field)
}

// NewAggregate allocates an aggregate for n locations.
func NewAggregate(n int) *Aggregate {
	return &Aggregate{
		Means:      make([]float64, n),
		Counts:     make([]int, n),
		Empty:      make([]bool, n),
		Deviations: make([]float64, n),
	}
}

// Update recomputes the aggregate from the current raw observations and
// field.
func (a *Aggregate) Update(g *model.Groups, raw []float64, field []float64) error {
	n := g.Len()
	if len(a.Means) != n {
		return errors.Wrapf(linalg.ErrDimension, "Aggregate sized for %d locations, groups have %d", len(a.Means), n)
	}
	if len(raw) != g.RawLen() {
		return errors.Wrapf(linalg.ErrDimension, "Got %d raw observations, groups expect %d", len(raw), g.RawLen())
	}
	if len(field) != n {
		return errors.Wrapf(linalg.ErrDimension, "Field has %d values for %d locations", len(field), n)
	}

	for i := 0; i < n; i++ {
		members := g.Members(i)
		a.Counts[i] = len(members)
		a.Empty[i] = len(members) == 0

		sum, dev := 0.0, 0.0
		for _, r := range members {
			sum += raw[r]
			dev += raw[r] - field[i]
		}
		a.Deviations[i] = dev

		if a.Empty[i] {
			a.Means[i] = 0
		} else {
			a.Means[i] = sum / float64(len(members))
		}
	}

	return nil
}

// SumSquaredDeviations is the dot product of Deviations with itself.
func (a *Aggregate) SumSquaredDeviations() float64 {
	return floats.Dot(a.Deviations, a.Deviations)
}

// EffectiveVariance is the noise variance of the mean at location i given the
// noise precision: 1/(precision*count), or +Inf without observations.
func (a *Aggregate) EffectiveVariance(i int, precision float64) float64 {
	if a.Empty[i] {
		return math.Inf(1)
	}
	return 1.0 / (precision * float64(a.Counts[i]))
}
