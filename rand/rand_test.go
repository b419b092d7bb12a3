package rand

import (
	"math"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMTBadSeed(t *testing.T) {
	assert := assert.New(t)

	gen, err := NewGeneratorSlice([]uint64{})
	assert.Nil(gen)
	assert.Error(err)
}

func TestMTReferenceStream(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	key := []uint64{0x12345, 0x23456, 0x34567, 0x45678}
	want := []uint64{
		7266447313870364031,
		4946485549665804864,
		16945909448695747420,
		16394063075524226720,
		4873882236456199058,
	}

	gen, err := NewGeneratorSlice(key)
	require.NoError(err)
	for i, v := range want {
		assert.Equal(v, gen.Uint64(), "draw %d", i)
	}

	// Float64 keeps the top 53 bits of the same stream
	gen, err = NewGeneratorSlice(key)
	require.NoError(err)
	for i, v := range want {
		assert.Equal(float64(v>>11)/(1<<53), gen.Float64(), "draw %d", i)
	}
}

func TestGeneratorsStartNoGoroutines(t *testing.T) {
	assert := assert.New(t)

	before := runtime.NumGoroutine()
	gens := make([]*Generator, 0, 100)
	for i := 0; i < 100; i++ {
		gen, err := NewGeneratorSlice([]uint64{uint64(i), 1})
		assert.NoError(err)
		gens = append(gens, gen)
	}
	assert.LessOrEqual(runtime.NumGoroutine(), before+2)
	assert.Len(gens, 100)
}

func TestSameSeedSameStream(t *testing.T) {
	assert := assert.New(t)

	g1, err := NewGenerator(42)
	assert.NoError(err)
	g2, err := NewGenerator(42)
	assert.NoError(err)

	for i := 0; i < 64; i++ {
		assert.Equal(g1.Normal(), g2.Normal())
	}
}

func TestNormalMoments(t *testing.T) {
	assert := assert.New(t)

	gen, err := NewGenerator(7)
	assert.NoError(err)

	const n = 20000
	draws := make([]float64, n)
	gen.FillNormal(draws)

	var sum, sumSq float64
	for _, d := range draws {
		sum += d
		sumSq += d * d
	}
	mean := sum / n
	variance := sumSq/n - mean*mean

	assert.InDelta(0.0, mean, 0.05)
	assert.InDelta(1.0, variance, 0.05)
}

func TestGamma(t *testing.T) {
	assert := assert.New(t)

	gen, err := NewGenerator(11)
	assert.NoError(err)

	_, err = gen.Gamma(0, 1)
	assert.Error(err)
	_, err = gen.Gamma(1, -1)
	assert.Error(err)
	_, err = gen.Gamma(math.NaN(), 1)
	assert.Error(err)

	// shape=4, rate=2 => mean 2
	const n = 20000
	sum := 0.0
	for i := 0; i < n; i++ {
		g, err := gen.Gamma(4, 2)
		assert.NoError(err)
		sum += g
	}
	assert.InEpsilon(2.0, sum/n, 0.03)
}

func TestFloat64Range(t *testing.T) {
	assert := assert.New(t)

	gen, err := NewGenerator(3)
	assert.NoError(err)
	for i := 0; i < 1000; i++ {
		f := gen.Float64()
		assert.True(f >= 0 && f < 1)
	}
}
