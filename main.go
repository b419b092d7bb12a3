package main

import "github.com/CraigKelly/stgibbs/cmd"

// TODO: hyperparameter (amp/scale) Metropolis steps so the covariance can
//       change between iterations instead of being fixed for the run

// TODO: checkpointing for chains (so we can freeze and continue) - field,
//       precision and coefficients all need to be saved

func main() {
	cmd.Execute()
}
