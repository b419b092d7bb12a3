package rand

import (
	"github.com/pkg/errors"
	"github.com/seehuhn/mt19937"
	"gonum.org/v1/gonum/stat/distuv"
)

// A Generator draws from a Mersenne twister. It satisfies math/rand/v2.Source
// so it can drive the gonum distributions directly.
//
// A Generator is not safe for concurrent use: independent chains running in
// parallel should each get their own.
type Generator struct {
	src *mt19937.MT19937
}

// NewGenerator returns a PRNG based on the given seed
func NewGenerator(seed int64) (*Generator, error) {
	r := mt19937.New()
	r.Seed(seed)
	return &Generator{src: r}, nil
}

// NewGeneratorSlice returns a PRNG seeded from the given key, which must not
// be empty.
func NewGeneratorSlice(key []uint64) (*Generator, error) {
	if len(key) < 1 {
		return nil, errors.Errorf("Seed key must have at least one value")
	}

	r := mt19937.New()
	r.SeedFromSlice(key)
	return &Generator{src: r}, nil
}

// Uint64 implements math/rand/v2.Source
func (g *Generator) Uint64() uint64 {
	return g.src.Uint64()
}

// Float64 returns a uniform value in [0, 1)
func (g *Generator) Float64() float64 {
	// Top 53 bits, see the Go lang comments for Rand Float64
	return float64(g.Uint64()>>11) / (1 << 53)
}

// Normal returns a single standard normal draw.
func (g *Generator) Normal() float64 {
	return distuv.Normal{Mu: 0, Sigma: 1, Src: g}.Rand()
}

// FillNormal fills dst with independent standard normal draws.
func (g *Generator) FillNormal(dst []float64) {
	n := distuv.Normal{Mu: 0, Sigma: 1, Src: g}
	for i := range dst {
		dst[i] = n.Rand()
	}
}

// Gamma returns a draw from the Gamma distribution with the given shape and
// rate (NOT scale).
func (g *Generator) Gamma(shape float64, rate float64) (float64, error) {
	if !(shape > 0) || !(rate > 0) {
		return 0, errors.Errorf("Invalid Gamma parameters shape=%v rate=%v", shape, rate)
	}
	return distuv.Gamma{Alpha: shape, Beta: rate, Src: g}.Rand(), nil
}
