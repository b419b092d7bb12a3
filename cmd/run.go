package cmd

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/CraigKelly/stgibbs/sampler"
)

type runOptions struct {
	traceFile   string
	monitorAddr string
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the Gibbs chain described by the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			sp, err := newStartupParams(cmd)
			if err != nil {
				return err
			}
			return runChain(cmd.Context(), sp, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.traceFile, "trace", "t", "", "Write kept draws to this CSV file")
	cmd.Flags().StringVarP(&opts.monitorAddr, "monitor", "m", "", "Serve prometheus metrics on this address (e.g. :8000)")
	return cmd
}

func runChain(ctx context.Context, sp *startupParams, opts *runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := sp.cfg
	log := sp.log

	prob, err := buildProblem(ctx, cfg)
	if err != nil {
		return err
	}
	log.Info("Problem ready",
		"locations", prob.mesh.Len(),
		"observations", len(prob.raw),
		"observed", len(prob.groups.Observed()),
		"coefficients", prob.design.Coefficients(),
		"temporal", prob.mesh.Temporal(),
	)

	fieldGen, err := newGenerator(sp.seed, fieldStream)
	if err != nil {
		return err
	}
	coefGen, err := newGenerator(sp.seed, coefficientStream)
	if err != nil {
		return err
	}
	field, err := prob.newFieldSampler(sp, fieldGen, cfg.JumpPrecision)
	if err != nil {
		return err
	}
	coef, err := sampler.NewCoefficientSampler(coefGen, prob.design, make([]float64, prob.design.Coefficients()), log)
	if err != nil {
		return err
	}

	names := append(append([]string(nil), prob.design.Names...), sampler.PrecisionName)
	mon := newMonitor(opts.monitorAddr, names)
	mon.BurnIn.Set(float64(cfg.Chain.BurnIn))
	mon.ConvergeWindow.Set(float64(cfg.Chain.Window))
	mon.MaxIters.Set(float64(cfg.Chain.Iterations))
	if opts.monitorAddr != "" {
		if err := mon.Start(log); err != nil {
			return err
		}
		defer mon.Stop(log)
	}

	var trace *traceWriter
	if opts.traceFile != "" {
		f, err := os.Create(opts.traceFile)
		if err != nil {
			return errors.Wrapf(err, "Could not create trace file %s", opts.traceFile)
		}
		defer f.Close()

		trace, err = newTraceWriter(f, names, prob.mesh.Len())
		if err != nil {
			return err
		}
		defer trace.Flush()
	}

	startTime := time.Now()
	log.Info("Burn in", "iterations", cfg.Chain.BurnIn)
	ch, err := sampler.NewChain(field, coef, prob.cov, prob.raw, sampler.ChainConfig{
		BurnIn:            cfg.Chain.BurnIn,
		Thin:              cfg.Chain.Thin,
		ConvergenceWindow: cfg.Chain.Window,
		Observer:          mon,
	})
	if err != nil {
		return err
	}

	sum := newSummary(names)
	err = ch.Run(ctx, cfg.Chain.Iterations, func(rec *sampler.Record) error {
		sum.Add(rec)
		mon.RunTime.Set(time.Since(startTime).Seconds())
		if rec.Iteration%int64(cfg.Chain.Window) == 0 {
			mon.SetConvergence(ch.Convergence())
			log.Debug("Progress", "iteration", rec.Iteration, "precision", rec.Precision)
		}
		if trace != nil {
			return trace.Write(rec)
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "Chain failed after %d iterations", ch.Iterations)
	}
	if trace != nil {
		if err := trace.Flush(); err != nil {
			return errors.Wrap(err, "Could not write trace")
		}
	}

	fieldSteps, fieldSkips, fieldTime := field.Stats()
	coefSteps, coefTime := coef.Stats()
	log.Info("Chain complete",
		"iterations", ch.Iterations,
		"skips", fieldSkips,
		"elapsed", time.Since(startTime),
		"field_steps", fieldSteps,
		"field_time", fieldTime,
		"coefficient_steps", coefSteps,
		"coefficient_time", coefTime,
	)

	conv := ch.Convergence()
	mon.SetConvergence(conv)
	sum.Render(sp.out, conv)
	return nil
}
