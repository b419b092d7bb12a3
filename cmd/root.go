package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var cfgFile string
var verbose bool
var randomSeed int64

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stgibbs",
	Short: "Gibbs sampling for latent spatiotemporal Gaussian fields",
	Long: `stgibbs runs a conjugate Gibbs sampler for a latent Gaussian field
observed with replicated noisy measurements.
Among other features:

  - Exponential (great circle) covariance, optionally separable in time
  - Joint draws of the field and the noise precision
  - GLS updates of the linear mean coefficients
  - Trace output and split-half convergence scores
`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(os.Stderr, verbose)
		if cfgFile == "" {
			return errors.New("A run config file is required (--config)")
		}
		return nil
	},
}

func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// startupParams is everything a sub-command needs from the command line and
// the config file.
type startupParams struct {
	cfg  *RunConfig
	seed int64
	out  io.Writer
	log  *slog.Logger
}

// newStartupParams loads the config. An explicit --seed wins over the seed in
// the config, which wins over the flag default.
func newStartupParams(cmd *cobra.Command) (*startupParams, error) {
	cfg, err := LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}

	seed := randomSeed
	if !cmd.Flags().Changed("seed") && cfg.Seed != 0 {
		seed = cfg.Seed
	}

	return &startupParams{
		cfg:  cfg,
		seed: seed,
		out:  cmd.OutOrStdout(),
		log:  slog.Default().With("seed", seed),
	}, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML run config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging (default is much more parsimonious)")
	rootCmd.PersistentFlags().Int64VarP(&randomSeed, "seed", "r", 1, "Random seed to use")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newCheckCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
