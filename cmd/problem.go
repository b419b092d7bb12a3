package cmd

import (
	"context"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/CraigKelly/stgibbs/model"
	"github.com/CraigKelly/stgibbs/rand"
	"github.com/CraigKelly/stgibbs/sampler"
)

// problem is the fixed part of a run: everything that is built once from the
// config before any sampling happens.
type problem struct {
	mesh       *model.Mesh
	cov        *mat.SymDense
	groups     *model.Groups
	covariates *model.CovariateSet
	design     *model.Design
	raw        []float64
}

func buildProblem(ctx context.Context, cfg *RunConfig) (*problem, error) {
	var mesh *model.Mesh
	var err error
	if len(cfg.Mesh.Time) > 0 {
		mesh, err = model.NewSpatioTemporalMesh(cfg.Mesh.Lon, cfg.Mesh.Lat, cfg.Mesh.Time, cfg.Mesh.ReferenceYear)
	} else {
		mesh, err = model.NewSpatialMesh(cfg.Mesh.Lon, cfg.Mesh.Lat)
	}
	if err != nil {
		return nil, errors.Wrap(err, "Could not build mesh")
	}

	cov, err := model.ExponentialCovariance(ctx, mesh, model.CovarianceParams{
		Amp:    cfg.Covariance.Amp,
		Scale:  cfg.Covariance.Scale,
		ScaleT: cfg.Covariance.ScaleT,
	}, cfg.Workers)
	if err != nil {
		return nil, err
	}

	groups, err := model.GroupsFromLabels(cfg.Observations.Location, mesh.Len())
	if err != nil {
		return nil, err
	}

	covariates, err := model.NewCovariateSet(mesh, cfg.Covariates, cfg.PriorScale)
	if err != nil {
		return nil, err
	}
	design, err := model.NewDesign(covariates)
	if err != nil {
		return nil, err
	}

	return &problem{
		mesh:       mesh,
		cov:        cov,
		groups:     groups,
		covariates: covariates,
		design:     design,
		raw:        append([]float64(nil), cfg.Observations.Value...),
	}, nil
}

// Stream numbers for newGenerator, so each sampler draws from its own
// sequence derived from the run seed.
const (
	fieldStream uint64 = iota + 1
	coefficientStream
)

func newGenerator(seed int64, stream uint64) (*rand.Generator, error) {
	return rand.NewGeneratorSlice([]uint64{uint64(seed), stream})
}

// newFieldSampler starts the field at the grand mean of the observations.
func (p *problem) newFieldSampler(sp *startupParams, gen *rand.Generator, jump bool) (*sampler.FieldSampler, error) {
	cfg := sp.cfg
	start := model.ConstantMean(p.mesh, stat.Mean(p.raw, nil))

	return sampler.NewFieldSampler(gen, sampler.FieldConfig{
		Groups:        p.groups,
		NoisePrior:    sampler.GammaPrior{Shape: cfg.NoisePrior.Shape, Rate: cfg.NoisePrior.Rate},
		JumpPrecision: jump,
		Logger:        sp.log,
	}, start, cfg.InitialPrecision)
}
