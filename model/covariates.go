package model

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// DefaultPriorScale inflates the empirical variance of each covariate to get
// a very vague prior on its coefficient.
const DefaultPriorScale = 1e6

// Names used for the two structural design rows.
const (
	InterceptName = "m"
	TrendName     = "t"
)

// Covariate is one row of the design: values at each mesh location and the
// prior variance of its coefficient.
type Covariate struct {
	Name          string
	Values        []float64
	PriorVariance float64
}

// CovariateSet is the intercept, the optional time trend and the named
// covariates, in design-row order.
type CovariateSet struct {
	Rows []Covariate
}

// NewCovariateSet builds the prior for every coefficient. Covariates get
// PopVar(values)*scale; on a temporal mesh the time coordinate gets
// PopVar(t)*scale; the intercept gets (sum of squared covariate means + 1)*scale.
// Named covariates are ordered by name.
func NewCovariateSet(m *Mesh, values map[string][]float64, scale float64) (*CovariateSet, error) {
	if !(scale > 0) {
		return nil, errors.Errorf("Prior scale must be > 0, got %v", scale)
	}

	n := m.Len()
	names := make([]string, 0, len(values))
	for name := range values {
		if name == InterceptName || name == TrendName {
			return nil, errors.Errorf("Covariate name %q is reserved", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var means []float64
	var trend *Covariate
	if m.Temporal() {
		mean, variance := stat.PopMeanVariance(m.T, nil)
		means = append(means, mean)
		trend = &Covariate{
			Name:          TrendName,
			Values:        append([]float64(nil), m.T...),
			PriorVariance: variance * scale,
		}
	}

	named := make([]Covariate, 0, len(names))
	for _, name := range names {
		vals := values[name]
		if len(vals) != n {
			return nil, errors.Errorf("Covariate %s has %d values for %d locations", name, len(vals), n)
		}
		mean, variance := stat.PopMeanVariance(vals, nil)
		means = append(means, mean)
		named = append(named, Covariate{
			Name:          name,
			Values:        append([]float64(nil), vals...),
			PriorVariance: variance * scale,
		})
	}

	sumSq := 0.0
	for _, mu := range means {
		sumSq += mu * mu
	}
	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1.0
	}

	set := &CovariateSet{}
	set.Rows = append(set.Rows, Covariate{
		Name:          InterceptName,
		Values:        ones,
		PriorVariance: (sumSq + 1) * scale,
	})
	if trend != nil {
		set.Rows = append(set.Rows, *trend)
	}
	set.Rows = append(set.Rows, named...)

	return set, nil
}

// Len is the number of coefficients.
func (s *CovariateSet) Len() int {
	return len(s.Rows)
}

// Names returns the coefficient names in design-row order.
func (s *CovariateSet) Names() []string {
	names := make([]string, len(s.Rows))
	for i, r := range s.Rows {
		names[i] = r.Name
	}
	return names
}

// CovariateNugget adds sum_k outer(x_k, x_k)/v_k to c in place. Rows with a
// zero or infinite prior variance (constant covariates, flat priors) are
// skipped.
func CovariateNugget(c *mat.SymDense, s *CovariateSet) error {
	n := c.SymmetricDim()
	for _, r := range s.Rows {
		if len(r.Values) != n {
			return errors.Errorf("Covariate %s has %d values for a %dx%d covariance", r.Name, len(r.Values), n, n)
		}
		if !(r.PriorVariance > 0) || math.IsInf(r.PriorVariance, 1) {
			continue
		}
		c.SymRankOne(c, 1.0/r.PriorVariance, mat.NewVecDense(n, r.Values))
	}
	return nil
}
