package cmd

import (
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/CraigKelly/stgibbs/model"
)

var configValidate = validator.New()

// MeshConfig is the location list. Lon/Lat are degrees; Time is optional
// and makes the mesh spatiotemporal.
type MeshConfig struct {
	Lon           []float64 `yaml:"lon" validate:"required,min=1"`
	Lat           []float64 `yaml:"lat" validate:"required,eqfield=Lon"`
	Time          []float64 `yaml:"time" validate:"omitempty,eqfield=Lon"`
	ReferenceYear float64   `yaml:"reference_year"`
}

// ObservationConfig is one entry per raw observation: the mesh location it
// was measured at and its value.
type ObservationConfig struct {
	Location []int     `yaml:"location" validate:"required,min=1,dive,gte=0"`
	Value    []float64 `yaml:"value" validate:"required,eqfield=Location"`
}

// CovarianceConfig holds the exponential covariance hyperparameters.
type CovarianceConfig struct {
	Amp    float64 `yaml:"amp" validate:"gt=0"`
	Scale  float64 `yaml:"scale" validate:"gt=0"`
	ScaleT float64 `yaml:"scale_t" validate:"gte=0"`
}

// NoisePriorConfig is the Gamma prior on the noise precision.
type NoisePriorConfig struct {
	Shape float64 `yaml:"shape" validate:"gt=0"`
	Rate  float64 `yaml:"rate" validate:"gt=0"`
}

// ChainSettings control the length of the run.
type ChainSettings struct {
	Iterations int64 `yaml:"iterations" validate:"gte=1"`
	BurnIn     int64 `yaml:"burn_in" validate:"gte=0"`
	Thin       int64 `yaml:"thin" validate:"gte=1"`
	Window     int   `yaml:"window" validate:"gte=4"`
}

// RunConfig is everything needed to set up and run one chain.
type RunConfig struct {
	Seed             int64                `yaml:"seed"`
	Workers          int                  `yaml:"workers" validate:"gte=1,lte=256"`
	PriorScale       float64              `yaml:"prior_scale" validate:"gt=0"`
	InitialPrecision float64              `yaml:"initial_precision" validate:"gt=0"`
	JumpPrecision    bool                 `yaml:"jump_precision"`
	Mesh             MeshConfig           `yaml:"mesh"`
	Observations     ObservationConfig    `yaml:"observations"`
	Covariates       map[string][]float64 `yaml:"covariates"`
	Covariance       CovarianceConfig     `yaml:"covariance"`
	NoisePrior       NoisePriorConfig     `yaml:"noise_prior"`
	Chain            ChainSettings        `yaml:"chain"`
}

func defaultRunConfig() *RunConfig {
	return &RunConfig{
		Workers:          4,
		PriorScale:       model.DefaultPriorScale,
		InitialPrecision: 1.0,
		JumpPrecision:    true,
		Mesh: MeshConfig{
			ReferenceYear: model.DefaultReferenceYear,
		},
		NoisePrior: NoisePriorConfig{Shape: 1.0, Rate: 1.0},
		Chain: ChainSettings{
			Iterations: 1000,
			BurnIn:     100,
			Thin:       1,
			Window:     100,
		},
	}
}

// ParseConfig reads a YAML run config over the defaults and validates it.
func ParseConfig(data []byte) (*RunConfig, error) {
	cfg := defaultRunConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "Could not parse run config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig reads and validates the run config in filename.
func LoadConfig(filename string) (*RunConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "Could not read config file %s", filename)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, errors.Wrapf(err, "Invalid config file %s", filename)
	}
	return cfg, nil
}

// Validate checks the struct tags and the constraints that span fields.
func (c *RunConfig) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return errors.Wrap(err, "Run config failed validation")
	}

	n := len(c.Mesh.Lon)
	for i, loc := range c.Observations.Location {
		if loc >= n {
			return errors.Errorf("Observation %d is at location %d but the mesh has %d locations", i, loc, n)
		}
	}
	for name, vals := range c.Covariates {
		if len(vals) != n {
			return errors.Errorf("Covariate %s has %d values for %d locations", name, len(vals), n)
		}
	}
	if len(c.Mesh.Time) > 0 && !(c.Covariance.ScaleT > 0) {
		return errors.New("A spatiotemporal mesh needs covariance scale_t > 0")
	}
	return nil
}
