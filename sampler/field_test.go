package sampler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/CraigKelly/stgibbs/linalg"
	"github.com/CraigKelly/stgibbs/model"
	"github.com/CraigKelly/stgibbs/rand"
)

func testGen(t testing.TB) *rand.Generator {
	gen, err := rand.NewGenerator(42)
	require.NoError(t, err)
	return gen
}

func testFieldSampler(t testing.TB, labels []int, n int, precision float64, jump bool) *FieldSampler {
	g, err := model.GroupsFromLabels(labels, n)
	require.NoError(t, err)

	cfg := FieldConfig{
		Groups:        g,
		NoisePrior:    GammaPrior{Shape: 2.0, Rate: 1.0},
		JumpPrecision: jump,
	}
	f, err := NewFieldSampler(testGen(t), cfg, make([]float64, n), precision)
	require.NoError(t, err)
	return f
}

func TestFieldConfigErrors(t *testing.T) {
	assert := assert.New(t)

	g, err := model.GroupsFromLabels([]int{0}, 1)
	assert.NoError(err)
	gen := testGen(t)
	good := FieldConfig{Groups: g, NoisePrior: GammaPrior{Shape: 1, Rate: 1}}

	_, err = NewFieldSampler(nil, good, []float64{0}, 1)
	assert.Error(err)

	noGroups := good
	noGroups.Groups = nil
	_, err = NewFieldSampler(gen, noGroups, []float64{0}, 1)
	assert.Error(err)

	incomp := good
	incomp.UseIncompressibility = true
	_, err = NewFieldSampler(gen, incomp, []float64{0}, 1)
	assert.Error(err)

	badPrior := good
	badPrior.NoisePrior = GammaPrior{Shape: 0, Rate: 1}
	_, err = NewFieldSampler(gen, badPrior, []float64{0}, 1)
	assert.Error(err)

	_, err = NewFieldSampler(gen, good, []float64{0}, 0)
	assert.Error(err)
	_, err = NewFieldSampler(gen, good, []float64{0}, math.Inf(1))
	assert.Error(err)

	_, err = NewFieldSampler(gen, good, []float64{0, 0}, 1)
	assert.ErrorIs(err, linalg.ErrDimension)

	f, err := NewFieldSampler(gen, good, []float64{0}, 1)
	assert.NoError(err)
	assert.Equal("field", f.Name())
}

func TestFieldInputsRequired(t *testing.T) {
	assert := assert.New(t)

	f := testFieldSampler(t, []int{0, 1}, 2, 1.0, false)
	res := f.Step()
	assert.Equal(Fatal, res.Status)
	assert.ErrorIs(res.Err, ErrNoInputs)

	eye := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	err := f.SetInputs(FieldInputs{Covariance: mat.NewSymDense(3, nil), Mean: []float64{0, 0}, Raw: []float64{1, 2}})
	assert.ErrorIs(err, linalg.ErrDimension)
	err = f.SetInputs(FieldInputs{Covariance: eye, Mean: []float64{0}, Raw: []float64{1, 2}})
	assert.ErrorIs(err, linalg.ErrDimension)
	err = f.SetInputs(FieldInputs{Covariance: eye, Mean: []float64{0, 0}, Raw: []float64{1}})
	assert.ErrorIs(err, linalg.ErrDimension)
	err = f.SetInputs(FieldInputs{Covariance: eye, Mean: []float64{0, 0}, Raw: []float64{1, math.NaN()}})
	assert.Error(err)

	assert.NoError(f.SetInputs(FieldInputs{Covariance: eye, Mean: []float64{0, 0}, Raw: []float64{1, 2}}))
	assert.Equal(OK, f.Step().Status)
}

// One location, one observation: the conditional is the scalar Gaussian
// update c*y/(c+v), c*v/(c+v) with v = 1/tau.
func TestFieldSingleLocationPosterior(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	const c, tau, y = 2.0, 4.0, 1.5
	v := 1.0 / tau
	expMean := c * y / (c + v)
	expVar := c * v / (c + v)

	f := testFieldSampler(t, []int{0}, 1, tau, false)
	require.NoError(f.SetInputs(FieldInputs{
		Covariance: mat.NewSymDense(1, []float64{c}),
		Mean:       []float64{0},
		Raw:        []float64{y},
	}))

	const draws = 20000
	vals := make([]float64, draws)
	for i := range vals {
		res := f.Step()
		require.Equal(OK, res.Status)
		require.NoError(res.Err)
		vals[i] = f.Field()[0]
	}

	assert.InDelta(expMean, f.ConditionalMean()[0], 1e-12)
	assert.InDelta(expVar, f.ConditionalCovariance().At(0, 0), 1e-12)
	assert.Equal(tau, f.Precision())

	mean, variance := stat.MeanVariance(vals, nil)
	assert.InDelta(expMean, mean, 0.02)
	assert.InDelta(expVar, variance, 0.01)
}

// With a diagonal prior an unobserved location learns nothing: its
// conditional is its prior.
func TestFieldEmptyLocation(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	f := testFieldSampler(t, []int{0, 0, 2}, 3, 1.0, false)
	require.NoError(f.SetInputs(FieldInputs{
		Covariance: mat.NewSymDense(3, []float64{
			1, 0, 0,
			0, 3, 0,
			0, 0, 1,
		}),
		Mean: []float64{0, 5, 0},
		Raw:  []float64{1, 3, 2},
	}))

	res := f.Step()
	require.Equal(OK, res.Status)

	agg := f.Aggregate()
	assert.True(agg.Empty[1])
	assert.True(math.IsInf(agg.EffectiveVariance(1, f.Precision()), 1))

	cm := f.ConditionalMean()
	cc := f.ConditionalCovariance()
	assert.InDelta(5.0, cm[1], 1e-12)
	assert.InDelta(3.0, cc.At(1, 1), 1e-12)

	// loc 0: mean 2 from two replicates, v = 1/2
	assert.InDelta(2.0*1.0/1.5, cm[0], 1e-12)
	assert.InDelta(0.5/1.5, cc.At(0, 0), 1e-12)
	// loc 2: one replicate, v = 1
	assert.InDelta(1.0, cm[2], 1e-12)
	assert.InDelta(0.5, cc.At(2, 2), 1e-12)
}

func TestFieldNoObservations(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	g, err := model.NewGroups([][]int{{}, {}}, 0)
	require.NoError(err)
	f, err := NewFieldSampler(testGen(t), FieldConfig{Groups: g, NoisePrior: GammaPrior{Shape: 1, Rate: 1}}, []float64{0, 0}, 1.0)
	require.NoError(err)

	prior := mat.NewSymDense(2, []float64{2, 0.5, 0.5, 1})
	require.NoError(f.SetInputs(FieldInputs{Covariance: prior, Mean: []float64{1, -1}, Raw: []float64{}}))
	require.Equal(OK, f.Step().Status)

	assert.Equal([]float64{1, -1}, f.ConditionalMean())
	assert.True(mat.EqualApprox(prior, f.ConditionalCovariance(), 1e-12))
}

func TestFieldReplicatesShrinkPosterior(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	c := mat.NewSymDense(1, []float64{1})

	one := testFieldSampler(t, []int{0}, 1, 1.0, false)
	require.NoError(one.SetInputs(FieldInputs{Covariance: c, Mean: []float64{0}, Raw: []float64{1}}))
	two := testFieldSampler(t, []int{0, 0}, 1, 1.0, false)
	require.NoError(two.SetInputs(FieldInputs{Covariance: c, Mean: []float64{0}, Raw: []float64{1, 1}}))

	const draws = 10000
	v1 := make([]float64, draws)
	v2 := make([]float64, draws)
	for i := 0; i < draws; i++ {
		require.Equal(OK, one.Step().Status)
		require.Equal(OK, two.Step().Status)
		v1[i] = one.Field()[0]
		v2[i] = two.Field()[0]
	}

	assert.InDelta(one.Aggregate().EffectiveVariance(0, 1.0)/2.0, two.Aggregate().EffectiveVariance(0, 1.0), 1e-12)
	assert.InDelta(0.5, one.ConditionalCovariance().At(0, 0), 1e-12)
	assert.InDelta(1.0/3.0, two.ConditionalCovariance().At(0, 0), 1e-12)

	_, var1 := stat.MeanVariance(v1, nil)
	_, var2 := stat.MeanVariance(v2, nil)
	assert.Less(var2, var1)
}

// Each precision draw is Gamma(a + N/2 + 1, b + d.d/2) given the field the
// step started from, so draw*rate/shape averages to one.
func TestFieldPrecisionDraw(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	f := testFieldSampler(t, []int{0, 0, 1, 1}, 2, 1.0, true)
	require.NoError(f.SetInputs(FieldInputs{
		Covariance: mat.NewSymDense(2, []float64{1, 0.3, 0.3, 1}),
		Mean:       []float64{0, 0},
		Raw:        []float64{0.5, 0.7, -0.2, 0.1},
	}))

	const draws = 5000
	shape := 2.0 + 2.0/2.0 + 1.0
	ratios := make([]float64, draws)
	for i := range ratios {
		res := f.Step()
		require.NotEqual(Fatal, res.Status)
		rate := 1.0 + f.Aggregate().SumSquaredDeviations()/2.0
		ratios[i] = f.Precision() * rate / shape
	}

	assert.InDelta(1.0, stat.Mean(ratios, nil), 0.03)
}

// The conditional covariance C - C S^-1 C is exactly zero when the noise
// vanishes and C is the identity: the update is skipped, nothing is raised.
func TestFieldSkipOnDegenerateConditional(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	f := testFieldSampler(t, []int{0, 1}, 2, 1e40, false)
	start := []float64{0.25, -0.75}
	f.field = append([]float64(nil), start...)

	require.NoError(f.SetInputs(FieldInputs{
		Covariance: mat.NewSymDense(2, []float64{1, 0, 0, 1}),
		Mean:       []float64{0, 0},
		Raw:        []float64{1, 2},
	}))

	var res Result
	assert.NotPanics(func() { res = f.Step() })
	assert.Equal(Skipped, res.Status)
	assert.Error(res.Err)
	assert.True(linalg.IsNotPositiveDefinite(res.Err))
	assert.Equal(start, f.Field())
	assert.Equal(1e40, f.Precision())

	steps, skips, _ := f.Stats()
	assert.Equal(int64(1), steps)
	assert.Equal(int64(1), skips)
}

// An indefinite marginal covariance is fatal and commits nothing, not even
// the precision draw.
func TestFieldFatalOnIndefiniteMarginal(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	f := testFieldSampler(t, []int{0, 1}, 2, 1.0, true)
	require.NoError(f.SetInputs(FieldInputs{
		Covariance: mat.NewSymDense(2, []float64{1, 100, 100, 1}),
		Mean:       []float64{0, 0},
		Raw:        []float64{1, 2},
	}))

	for i := 0; i < 5; i++ {
		res := f.Step()
		assert.Equal(Fatal, res.Status)
		assert.True(linalg.IsNotPositiveDefinite(res.Err))
		assert.Equal([]float64{0, 0}, f.Field())
		assert.Equal(1.0, f.Precision())
	}
}

func TestFieldScratchIsFixed(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	ctx := t.Context()
	mesh, err := model.NewSpatialMesh([]float64{0, 5, 10, 15, 20}, []float64{0, 1, 0, 1, 0})
	require.NoError(err)
	c, err := model.ExponentialCovariance(ctx, mesh, model.CovarianceParams{Amp: 1, Scale: 0.3}, 2)
	require.NoError(err)

	f := testFieldSampler(t, []int{0, 1, 1, 3, 4, 4, 4}, 5, 2.0, true)
	size := f.ScratchSize()
	assert.Greater(size, 0)

	require.NoError(f.SetInputs(FieldInputs{
		Covariance: c,
		Mean:       model.ZeroMean(mesh),
		Raw:        []float64{0.1, 0.3, 0.2, -0.4, 0.9, 1.1, 1.0},
	}))
	for i := 0; i < 50; i++ {
		require.NotEqual(Fatal, f.Step().Status)
	}
	assert.Equal(size, f.ScratchSize())

	steps, _, _ := f.Stats()
	assert.Equal(int64(50), steps)
}

func BenchmarkFieldStep(b *testing.B) {
	lon := make([]float64, 100)
	lat := make([]float64, 100)
	labels := make([]int, 0, 200)
	for i := range lon {
		lon[i] = float64(i%10) * 2.0
		lat[i] = float64(i/10) * 2.0
		labels = append(labels, i, i)
	}
	raw := make([]float64, len(labels))
	for i := range raw {
		raw[i] = math.Sin(float64(i))
	}

	mesh, err := model.NewSpatialMesh(lon, lat)
	require.NoError(b, err)
	c, err := model.ExponentialCovariance(b.Context(), mesh, model.CovarianceParams{Amp: 1, Scale: 0.2}, 4)
	require.NoError(b, err)

	f := testFieldSampler(b, labels, 100, 4.0, true)
	require.NoError(b, f.SetInputs(FieldInputs{Covariance: c, Mean: model.ZeroMean(mesh), Raw: raw}))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Step()
	}
}
