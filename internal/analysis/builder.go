// Package analysis turns a validated analysis config into a model DAG and the
// moves that sample it.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gyaneshwarpardhi/phylomc/internal/character"
	"github.com/gyaneshwarpardhi/phylomc/internal/config"
	"github.com/gyaneshwarpardhi/phylomc/internal/dag"
	"github.com/gyaneshwarpardhi/phylomc/internal/dist"
	"github.com/gyaneshwarpardhi/phylomc/internal/mcmc"
	"github.com/gyaneshwarpardhi/phylomc/internal/move"
	"github.com/gyaneshwarpardhi/phylomc/internal/phyloctmc"
	"github.com/gyaneshwarpardhi/phylomc/internal/runctx"
	"github.com/gyaneshwarpardhi/phylomc/internal/substitution"
	"github.com/gyaneshwarpardhi/phylomc/internal/tree"
)

// Analysis is a built model ready to be handed to a chain.
type Analysis struct {
	Model     *dag.Model
	Moves     []*move.Move
	Alignment *character.Alignment
	Tree      *dag.StochasticNode[*tree.Tree]
	Sequences *dag.StochasticNode[*character.Alignment]
	Engine    *phyloctmc.Engine
}

// Option configures Build.
type Option func(*builder)

// WithBaseDir resolves relative data paths against dir, usually the directory
// of the config file.
func WithBaseDir(dir string) Option { return func(b *builder) { b.baseDir = dir } }

// WithLogger sets the logger handed to the engine and the moves.
func WithLogger(l *slog.Logger) Option { return func(b *builder) { b.logger = l } }

// WithRegistry replaces the default proposal registry.
func WithRegistry(r *move.Registry) Option { return func(b *builder) { b.registry = r } }

// WithAlignment uses aln instead of reading the configured alignment file.
func WithAlignment(aln *character.Alignment) Option { return func(b *builder) { b.alignment = aln } }

// WithContext bounds likelihood evaluation.
func WithContext(ctx context.Context) Option { return func(b *builder) { b.ctx = ctx } }

type builder struct {
	cfg       *config.Analysis
	rc        *runctx.RunContext
	baseDir   string
	logger    *slog.Logger
	registry  *move.Registry
	alignment *character.Alignment
	ctx       context.Context
}

// Build creates the model described by cfg. cfg must have passed
// config.Validate. Random starting values are drawn from rc.
func Build(cfg *config.Analysis, rc *runctx.RunContext, opts ...Option) (*Analysis, error) {
	b := &builder{cfg: cfg, rc: rc, ctx: context.Background()}
	for _, o := range opts {
		o(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.registry == nil {
		b.registry = move.DefaultRegistry()
	}
	return b.build()
}

func (b *builder) build() (*Analysis, error) {
	alphabet, err := character.ByName(b.cfg.Data.Alphabet, b.cfg.Data.States)
	if err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}
	aln, err := b.readAlignment(alphabet)
	if err != nil {
		return nil, err
	}
	for _, name := range aln.TaxonNames() {
		if _, err := b.rc.Taxa.Ensure(name); err != nil {
			return nil, fmt.Errorf("analysis: %w", err)
		}
	}

	treeNode, err := b.treeNode(aln)
	if err != nil {
		return nil, err
	}
	gen, err := b.rateGenerator(alphabet.NumStates())
	if err != nil {
		return nil, err
	}

	m := b.cfg.Model
	engineOpts := []phyloctmc.Option{
		phyloctmc.WithLogger(b.logger),
		phyloctmc.WithContext(b.ctx),
		phyloctmc.WithGapPolicy(b.cfg.Data.AmbiguousAsGap, b.cfg.Data.UnknownAsGap),
		phyloctmc.WithScaling(m.Scaling == nil || *m.Scaling, m.ScalingDensity),
	}
	if m.GammaCategories > 1 {
		alpha, err := parameter(config.NodeAlpha, m.Alpha)
		if err != nil {
			return nil, err
		}
		rates := dag.NewDeterministicNode[[]float64]("site_rates", dist.NewGammaRates(alpha, m.GammaCategories))
		engineOpts = append(engineOpts, phyloctmc.WithSiteRates(rates))
	}
	if m.PInv != nil {
		pInv, err := parameter(config.NodePInv, m.PInv)
		if err != nil {
			return nil, err
		}
		engineOpts = append(engineOpts, phyloctmc.WithPInv(pInv))
	}

	engine := phyloctmc.NewEngine(treeNode, gen, alphabet, engineOpts...)
	seqs := dag.NewStochasticNode[*character.Alignment](config.NodeSequences, engine, aln)
	if err := seqs.Clamp(aln); err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}
	model, err := dag.NewModel(seqs)
	if err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}

	moves, err := b.moves(model)
	if err != nil {
		return nil, err
	}
	b.logger.Info("model built",
		"taxa", aln.NumTaxa(), "sites", aln.NumSites(), "patterns", engine.NumPatterns(),
		"nodes", len(model.DagNodes()), "moves", len(moves), "substitution", m.Substitution)
	return &Analysis{
		Model:     model,
		Moves:     moves,
		Alignment: aln,
		Tree:      treeNode,
		Sequences: seqs,
		Engine:    engine,
	}, nil
}

func (b *builder) readAlignment(alphabet *character.Alphabet) (*character.Alignment, error) {
	if b.alignment != nil {
		return b.alignment, nil
	}
	path := b.cfg.Data.Alignment
	if !filepath.IsAbs(path) && b.baseDir != "" {
		path = filepath.Join(b.baseDir, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("analysis: open alignment: %w", err)
	}
	defer f.Close()
	aln, err := character.ReadFASTA(f, alphabet)
	if err != nil {
		return nil, fmt.Errorf("analysis: read alignment %s: %w", path, err)
	}
	return aln, nil
}

// treeNode creates the tree parameter under an unrooted uniform-topology
// prior with exponential branch lengths.
func (b *builder) treeNode(aln *character.Alignment) (*dag.StochasticNode[*tree.Tree], error) {
	rate := dag.NewConstantNode(config.NodeBranchLengthRate, b.cfg.Tree.BranchLengthRate)
	prior, err := dist.NewUnrootedTreePrior(aln.TaxonNames(), rate, b.rc.Taxa)
	if err != nil {
		return nil, fmt.Errorf("analysis: tree prior: %w", err)
	}

	var start *tree.Tree
	if s := strings.TrimSpace(b.cfg.Tree.Start); s != "" {
		start, err = tree.Parse(s, b.rc.Taxa)
		if err != nil {
			return nil, fmt.Errorf("analysis: starting tree: %w", err)
		}
		if start.IsRooted() {
			if err := start.Unroot(); err != nil {
				return nil, fmt.Errorf("analysis: starting tree: %w", err)
			}
		}
	} else {
		start = prior.Redraw(b.rc.RNG)
	}
	return dag.NewStochasticNode[*tree.Tree](config.NodeTree, prior, start).WithCloner((*tree.Tree).Clone), nil
}

func (b *builder) rateGenerator(states int) (dag.TypedNode[substitution.RateGenerator], error) {
	m := b.cfg.Model
	freqs := m.Frequencies
	if len(freqs) == 0 {
		freqs = make([]float64, states)
		for i := range freqs {
			freqs[i] = 1 / float64(states)
		}
	}
	freqNode := dag.NewConstantNode("frequencies", freqs)

	switch m.Substitution {
	case "jc":
		return dag.NewConstantNode[substitution.RateGenerator]("q", substitution.NewJukesCantor(states)), nil
	case "hky":
		kappa, err := parameter(config.NodeKappa, m.Kappa)
		if err != nil {
			return nil, err
		}
		return dag.NewDeterministicNode[substitution.RateGenerator]("q", dist.NewHKY(kappa, freqNode)), nil
	case "gtr":
		exch := dag.NewConstantNode("exchangeabilities", m.Exchangeabilities)
		return dag.NewDeterministicNode[substitution.RateGenerator]("q", dist.NewGTR(exch, freqNode)), nil
	}
	return nil, fmt.Errorf("%w: substitution model %q", ErrUnsupported, m.Substitution)
}

// parameter creates a scalar node: constant when fixed, otherwise stochastic
// under its prior with hyperparameters named after it.
func parameter(name string, pc *config.ParameterConf) (dag.TypedNode[float64], error) {
	if pc == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingParameter, name)
	}
	if pc.Fixed {
		return dag.NewConstantNode(name, pc.Value), nil
	}
	if pc.Prior == nil {
		return nil, fmt.Errorf("%w: %s has no prior", ErrMissingParameter, name)
	}
	pr := pc.Prior
	var d dag.Distribution[float64]
	switch pr.Type {
	case "exponential":
		d = dist.NewExponential(dag.NewConstantNode(name+".rate", pr.Rate))
	case "gamma":
		d = dist.NewGamma(dag.NewConstantNode(name+".shape", pr.Shape), dag.NewConstantNode(name+".rate", pr.Rate))
	case "uniform":
		d = dist.NewUniform(dag.NewConstantNode(name+".lower", pr.Lower), dag.NewConstantNode(name+".upper", pr.Upper))
	default:
		return nil, fmt.Errorf("%w: prior %q on %s", ErrUnsupported, pr.Type, name)
	}
	return dag.NewStochasticNode[float64](name, d, pc.Value), nil
}

func (b *builder) moves(model *dag.Model) ([]*move.Move, error) {
	out := make([]*move.Move, 0, len(b.cfg.Moves))
	for i, mc := range b.cfg.Moves {
		node := model.Node(mc.Node)
		if node == nil {
			return nil, fmt.Errorf("%w: moves[%d] node %q", ErrUnknownNode, i, mc.Node)
		}
		p, err := b.registry.Build(mc.Type, node, move.Params(mc.Params))
		if err != nil {
			return nil, fmt.Errorf("analysis: moves[%d]: %w", i, err)
		}
		opts := []move.Option{move.WithLogger(b.logger)}
		if mc.AutoTune {
			opts = append(opts, move.WithAutoTune(mc.TargetAcceptance))
		}
		m, err := move.New(p, mc.Weight, opts...)
		if err != nil {
			return nil, fmt.Errorf("analysis: moves[%d]: %w", i, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// Settings converts the run section into chain settings.
func Settings(r config.RunConf) mcmc.Settings {
	s := mcmc.Settings{
		Generations:    r.Generations,
		BurnIn:         r.BurnIn,
		TuneInterval:   r.TuneInterval,
		PrintEvery:     r.PrintEvery,
		SampleEvery:    r.SampleEvery,
		MaxTime:        r.MaxTime,
		LikelihoodHeat: 1,
		PosteriorHeat:  1,
		HillClimbing:   r.HillClimbing,
	}
	if r.LikelihoodHeat != nil {
		s.LikelihoodHeat = *r.LikelihoodHeat
	}
	if r.PosteriorHeat != nil {
		s.PosteriorHeat = *r.PosteriorHeat
	}
	return s
}
