package cmd

import (
	"context"
	"fmt"
	"math"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/CraigKelly/stgibbs/model"
	"github.com/CraigKelly/stgibbs/sampler"
)

func newCheckCmd() *cobra.Command {
	var draws int
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare field draws against the closed-form conditional",
		Long: `check evaluates the covariance plus the covariate nugget, uses a zero
mean, holds the noise precision fixed and draws the field repeatedly. The
empirical mean and variance of the draws are compared against the exact
Gaussian conditional.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sp, err := newStartupParams(cmd)
			if err != nil {
				return err
			}
			_, err = checkField(cmd.Context(), sp, draws)
			return err
		},
	}
	cmd.Flags().IntVarP(&draws, "draws", "d", 5000, "Number of field draws")
	return cmd
}

// checkReport is the worst and average disagreement between the draws and
// the exact conditional, over all locations.
type checkReport struct {
	Draws       int
	Skips       int
	MeanAbsErr  float64
	MaxAbsErr   float64
	MaxVarRatio float64 // max |empirical/exact - 1| over locations
}

// checkField is a testing mode command: it iterates the field sampler with
// fixed inputs and reports how far the draws are from the known answer.
func checkField(ctx context.Context, sp *startupParams, draws int) (*checkReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if draws < 2 {
		return nil, errors.Errorf("Need at least 2 draws, got %d", draws)
	}

	prob, err := buildProblem(ctx, sp.cfg)
	if err != nil {
		return nil, err
	}

	cov := mat.NewSymDense(prob.mesh.Len(), nil)
	cov.CopySym(prob.cov)
	if err := model.CovariateNugget(cov, prob.covariates); err != nil {
		return nil, err
	}

	gen, err := newGenerator(sp.seed, fieldStream)
	if err != nil {
		return nil, err
	}
	field, err := prob.newFieldSampler(sp, gen, false)
	if err != nil {
		return nil, err
	}
	if err := field.SetInputs(sampler.FieldInputs{Covariance: cov, Mean: model.ZeroMean(prob.mesh), Raw: prob.raw}); err != nil {
		return nil, err
	}

	n := prob.mesh.Len()
	sum := make([]float64, n)
	sumSq := make([]float64, n)
	rep := &checkReport{}

	for i := 0; i < draws; i++ {
		res := field.Step()
		switch res.Status {
		case sampler.Fatal:
			return nil, errors.Wrapf(res.Err, "Field check failed on draw %d", i)
		case sampler.Skipped:
			rep.Skips++
			continue
		}
		rep.Draws++
		for j, f := range field.Field() {
			sum[j] += f
			sumSq[j] += f * f
		}
	}
	if rep.Draws < 2 {
		return nil, errors.Errorf("Only %d of %d draws succeeded", rep.Draws, draws)
	}

	exactMean := field.ConditionalMean()
	exactCov := field.ConditionalCovariance()
	cnt := float64(rep.Draws)
	for j := 0; j < n; j++ {
		mean := sum[j] / cnt
		variance := (sumSq[j] - cnt*mean*mean) / (cnt - 1)

		ae := math.Abs(mean - exactMean[j])
		rep.MeanAbsErr += ae / float64(n)
		rep.MaxAbsErr = math.Max(rep.MaxAbsErr, ae)

		if v := exactCov.At(j, j); v > 0 {
			rep.MaxVarRatio = math.Max(rep.MaxVarRatio, math.Abs(variance/v-1))
		}
	}

	fmt.Fprintf(sp.out, "Draws: %d (skipped %d)\n", rep.Draws, rep.Skips)
	fmt.Fprintf(sp.out, "Mean  | MeanAE:%9.5f MaxAE:%9.5f\n", rep.MeanAbsErr, rep.MaxAbsErr)
	fmt.Fprintf(sp.out, "Var   | MaxRelErr:%9.5f\n", rep.MaxVarRatio)
	return rep, nil
}
