package config

import "time"

// Node names the analysis builder gives to the model's parameters. Moves
// refer to parameters by these names.
const (
	NodeTree             = "tree"
	NodeBranchLengthRate = "branch_length_rate"
	NodeKappa            = "kappa"
	NodeAlpha            = "alpha"
	NodePInv             = "p_inv"
	NodeSequences        = "sequences"
)

// Analysis is the top-level YAML structure.
type Analysis struct {
	Version string     `yaml:"version" validate:"required"`
	Seed    uint64     `yaml:"seed"`
	Run     RunConf    `yaml:"run"`
	Data    DataConf   `yaml:"data"`
	Tree    TreeConf   `yaml:"tree"`
	Model   ModelConf  `yaml:"model"`
	Moves   []MoveConf `yaml:"moves" validate:"required,min=1,dive"`
	Output  OutputConf `yaml:"output"`
	Server  ServerConf `yaml:"server"`
}

// RunConf holds the chain settings. Everything except replicates and workers
// is hot-reloadable.
type RunConf struct {
	Generations    int           `yaml:"generations" json:"generations" validate:"gt=0"`
	BurnIn         int           `yaml:"burn_in" json:"burn_in" validate:"gte=0"`
	TuneInterval   int           `yaml:"tune_interval" json:"tune_interval" validate:"gte=0"`
	PrintEvery     int           `yaml:"print_every" json:"print_every" validate:"gte=0"`
	SampleEvery    int           `yaml:"sample_every" json:"sample_every" validate:"gte=0"`
	MaxTime        time.Duration `yaml:"max_time" json:"max_time" validate:"gte=0"`
	LikelihoodHeat *float64      `yaml:"likelihood_heat" json:"likelihood_heat" validate:"omitempty,gte=0,lte=1"`
	PosteriorHeat  *float64      `yaml:"posterior_heat" json:"posterior_heat" validate:"omitempty,gt=0,lte=1"`
	HillClimbing   bool          `yaml:"hill_climbing" json:"hill_climbing"`
	Replicates     int           `yaml:"replicates" json:"replicates" validate:"gte=1,lte=1024"`
	Workers        int           `yaml:"workers" json:"workers" validate:"gte=1,lte=1024"`
}

// DataConf points at the alignment to condition on.
type DataConf struct {
	Alignment      string `yaml:"alignment" validate:"required"`
	Alphabet       string `yaml:"alphabet" validate:"required,oneof=DNA RNA Standard dna rna standard"`
	States         int    `yaml:"states" validate:"gte=0,lte=62"`
	AmbiguousAsGap bool   `yaml:"ambiguous_as_gap"`
	UnknownAsGap   bool   `yaml:"unknown_as_gap"`
}

// TreeConf describes the tree parameter.
type TreeConf struct {
	// Start is a Newick string. Empty draws the starting tree from the prior.
	Start            string  `yaml:"start"`
	BranchLengthRate float64 `yaml:"branch_length_rate" validate:"gte=0"`
	FixedTopology    bool    `yaml:"fixed_topology"`
}

// ModelConf selects the substitution model and its parameters.
type ModelConf struct {
	Substitution      string         `yaml:"substitution" validate:"required,oneof=jc hky gtr"`
	Frequencies       []float64      `yaml:"frequencies" validate:"omitempty,dive,gt=0"`
	Exchangeabilities []float64      `yaml:"exchangeabilities" validate:"omitempty,dive,gt=0"`
	Kappa             *ParameterConf `yaml:"kappa"`
	GammaCategories   int            `yaml:"gamma_categories" validate:"gte=0,lte=32"`
	Alpha             *ParameterConf `yaml:"alpha"`
	PInv              *ParameterConf `yaml:"p_inv"`
	Scaling           *bool          `yaml:"scaling"`
	ScalingDensity    int            `yaml:"scaling_density" validate:"gte=0"`
}

// ParameterConf is a scalar model parameter: fixed at Value, or free with a
// prior and Value as its starting point.
type ParameterConf struct {
	Value float64    `yaml:"value"`
	Fixed bool       `yaml:"fixed"`
	Prior *PriorConf `yaml:"prior" validate:"omitempty"`
}

// PriorConf is a prior on a scalar parameter.
type PriorConf struct {
	Type  string  `yaml:"type" validate:"required,oneof=exponential uniform gamma"`
	Rate  float64 `yaml:"rate" validate:"gte=0"`
	Shape float64 `yaml:"shape" validate:"gte=0"`
	Lower float64 `yaml:"lower"`
	Upper float64 `yaml:"upper"`
}

// MoveConf schedules one proposal on a named parameter.
type MoveConf struct {
	Type             string             `yaml:"type" validate:"required"`
	Node             string             `yaml:"node" validate:"required"`
	Weight           float64            `yaml:"weight" validate:"gt=0"`
	AutoTune         bool               `yaml:"auto_tune"`
	TargetAcceptance float64            `yaml:"target_acceptance" validate:"gte=0,lt=1"`
	Params           map[string]float64 `yaml:"params"`
}

// OutputConf names the sample files. Empty paths disable the output.
type OutputConf struct {
	Trace string `yaml:"trace"`
	Trees string `yaml:"trees"`
}

// ServerConf configures the status server. An empty address disables it.
type ServerConf struct {
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`
}
