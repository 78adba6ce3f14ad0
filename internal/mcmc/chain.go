// Package mcmc drives Metropolis-Hastings chains over a model DAG: it
// initialises a computable state, cycles the move schedule, tunes moves during
// burn-in and reports samples and progress.
package mcmc

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gyaneshwarpardhi/phylomc/internal/dag"
	"github.com/gyaneshwarpardhi/phylomc/internal/metrics"
	"github.com/gyaneshwarpardhi/phylomc/internal/move"
	"github.com/gyaneshwarpardhi/phylomc/internal/tree"
)

var tracer = otel.Tracer("phylomc.mcmc")

// maxInitAttempts bounds the redraws made while looking for a computable
// starting state.
const maxInitAttempts = 100

// State is the lifecycle state of a chain.
type State string

const (
	StateNew         State = "new"
	StateInitialized State = "initialized"
	StateRunning     State = "running"
	StateDone        State = "done"
	StateStopped     State = "stopped"
	StateFailed      State = "failed"
)

// Sample is one recorded state of the chain.
type Sample struct {
	Generation   int                `json:"generation"`
	LnPosterior  float64            `json:"ln_posterior"`
	LnLikelihood float64            `json:"ln_likelihood"`
	LnPrior      float64            `json:"ln_prior"`
	Parameters   map[string]float64 `json:"parameters,omitempty"`
	Trees        map[string]string  `json:"trees,omitempty"`
}

// MoveStatus summarises one move.
type MoveStatus struct {
	Name           string  `json:"name"`
	Tried          uint64  `json:"tried"`
	Accepted       uint64  `json:"accepted"`
	AcceptanceRate float64 `json:"acceptance_rate"`
	Tuning         float64 `json:"tuning,omitempty"`
}

// Status is a point-in-time snapshot of a chain, safe to read from any
// goroutine.
type Status struct {
	ID           string       `json:"id"`
	State        State        `json:"state"`
	Generation   int          `json:"generation"`
	Generations  int          `json:"generations"`
	LnPosterior  float64      `json:"ln_posterior"`
	LnLikelihood float64      `json:"ln_likelihood"`
	Started      time.Time    `json:"started,omitempty"`
	Updated      time.Time    `json:"updated"`
	Moves        []MoveStatus `json:"moves"`
	Error        string       `json:"error,omitempty"`
}

// Option configures a Chain.
type Option func(*Chain)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option { return func(c *Chain) { c.logger = l } }

// WithSampleHandler registers fn to receive every post-burn-in sample. fn runs
// on the chain's goroutine.
func WithSampleHandler(fn func(Sample)) Option { return func(c *Chain) { c.onSample = fn } }

// Chain is a single Markov chain. Run and Initialize must be called from one
// goroutine; SetSettings and Status may be called from any.
type Chain struct {
	id       string
	model    *dag.Model
	moves    []*move.Move
	schedule *move.Schedule
	rng      *rand.Rand
	logger   *slog.Logger
	onSample func(Sample)

	settings atomic.Pointer[Settings]
	status   atomic.Pointer[Status]

	generation int
	started    time.Time
}

// NewChain creates a chain over model. Every move must reference nodes of
// model.
func NewChain(id string, model *dag.Model, moves []*move.Move, rng *rand.Rand, s Settings, opts ...Option) (*Chain, error) {
	schedule, err := move.NewSchedule(moves)
	if err != nil {
		return nil, err
	}
	c := &Chain{
		id:       id,
		model:    model,
		moves:    moves,
		schedule: schedule,
		rng:      rng,
	}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("chain", id)
	c.settings.Store(&s)
	c.publish(StateNew, nil)
	return c, nil
}

func (c *Chain) ID() string          { return c.id }
func (c *Chain) Model() *dag.Model   { return c.model }
func (c *Chain) Moves() []*move.Move { return c.moves }
func (c *Chain) Generation() int     { return c.generation }

// Settings returns the current settings.
func (c *Chain) Settings() Settings { return *c.settings.Load() }

// SetSettings replaces the settings. The running loop picks them up at the
// next generation.
func (c *Chain) SetSettings(s Settings) {
	c.settings.Store(&s)
	c.logger.Info("chain settings updated", "generations", s.Generations, "burn_in", s.BurnIn)
}

// Status returns the latest published snapshot.
func (c *Chain) Status() Status { return *c.status.Load() }

// Initialize makes sure the model starts from a state with a finite
// posterior. If the current state is not computable, unclamped stochastic
// nodes are redrawn from their priors in topological order.
func (c *Chain) Initialize() error {
	for attempt := 0; attempt < maxInitAttempts; attempt++ {
		if attempt > 0 {
			for _, n := range c.model.DagNodes() {
				if n.Kind() == dag.KindStochastic && !n.IsClamped() {
					n.Redraw(c.rng)
				}
			}
		}
		lp := c.commit()
		if isComputable(lp) {
			c.logger.Info("chain initialized", "ln_posterior", lp, "attempts", attempt+1)
			c.publish(StateInitialized, nil)
			return nil
		}
		c.logger.Debug("initial state not computable", "attempt", attempt+1, "ln_posterior", lp)
	}
	c.publish(StateFailed, ErrNotComputable)
	return ErrNotComputable
}

// commit evaluates every node and accepts the current state as the reference
// for the next proposal.
func (c *Chain) commit() float64 {
	lp := c.model.LnProbability()
	for _, n := range c.model.DagNodes() {
		n.Keep(n)
	}
	return lp
}

// Run advances the chain until the configured number of generations has been
// reached, MaxTime has elapsed or ctx is cancelled. A later call resumes from
// the current generation, so raising Generations and calling Run again
// extends the chain.
func (c *Chain) Run(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "mcmc.chain.run", trace.WithAttributes(
		attribute.String("chain.id", c.id),
		attribute.Int("chain.moves", len(c.moves)),
		attribute.Int("chain.start_generation", c.generation),
	))
	defer span.End()

	metrics.ChainsRunning.Inc()
	defer metrics.ChainsRunning.Dec()

	if c.started.IsZero() {
		c.started = time.Now()
	}
	start := time.Now()
	s := c.settings.Load()
	c.logger.Info("chain started",
		"generations", s.Generations, "burn_in", s.BurnIn, "moves", len(c.moves),
		"moves_per_generation", c.schedule.MovesPerGeneration())
	c.publish(StateRunning, nil)

	reason := "generations"
	for c.generation < c.settings.Load().Generations {
		if err := ctx.Err(); err != nil {
			c.logger.Warn("chain stopped", "generation", c.generation, "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "cancelled")
			c.publish(StateStopped, err)
			return err
		}
		s := c.settings.Load()
		if s.MaxTime > 0 && time.Since(start) >= s.MaxTime {
			reason = "max_time"
			break
		}
		c.step(s)
	}

	lp := c.model.LnProbability()
	span.SetAttributes(
		attribute.Int("chain.generation", c.generation),
		attribute.Float64("chain.ln_posterior", lp),
	)
	c.logger.Info("chain finished",
		"reason", reason, "generation", c.generation, "ln_posterior", lp,
		"duration", time.Since(start).String())
	for _, m := range c.moves {
		c.logger.Debug("move summary", "move", m.Name(), "tried", m.Tried(), "acceptance", m.AcceptanceRate())
	}
	c.publish(StateDone, nil)
	span.SetStatus(codes.Ok, "")
	return nil
}

// step runs one generation: MovesPerGeneration scheduled moves followed by
// tuning, sampling and progress reporting.
func (c *Chain) step(s *Settings) {
	for i, n := 0, c.schedule.MovesPerGeneration(); i < n; i++ {
		m := c.schedule.Next(c.rng)
		if s.HillClimbing {
			m.PerformHillClimbing(c.rng, s.LikelihoodHeat, s.PosteriorHeat)
		} else {
			m.Perform(c.rng, s.LikelihoodHeat, s.PosteriorHeat)
		}
	}
	c.generation++
	g := c.generation
	metrics.GenerationsTotal.WithLabelValues(c.id).Inc()

	if g <= s.BurnIn && s.TuneInterval > 0 && g%s.TuneInterval == 0 {
		for _, m := range c.moves {
			m.Tune()
		}
	}
	if g == s.BurnIn {
		for _, m := range c.moves {
			m.ResetCounters()
		}
		c.logger.Info("burn-in complete", "generation", g)
	}
	if g > s.BurnIn && s.SampleEvery > 0 && g%s.SampleEvery == 0 && c.onSample != nil {
		c.onSample(c.sample())
	}
	if s.PrintEvery > 0 && g%s.PrintEvery == 0 {
		lnL, lnPrior := c.lnParts()
		metrics.LnPosterior.WithLabelValues(c.id).Set(lnL + lnPrior)
		c.logger.Info("chain progress", "generation", g, "ln_posterior", lnL+lnPrior, "ln_likelihood", lnL)
		c.publish(StateRunning, nil)
	}
}

// lnParts splits the posterior into the clamped (likelihood) and unclamped
// (prior) contributions.
func (c *Chain) lnParts() (lnLikelihood, lnPrior float64) {
	for _, n := range c.model.StochasticNodes() {
		if n.IsClamped() {
			lnLikelihood += n.LnProbability()
		} else {
			lnPrior += n.LnProbability()
		}
	}
	return lnLikelihood, lnPrior
}

// sample records the current values of the unclamped real-valued and
// tree-valued stochastic nodes.
func (c *Chain) sample() Sample {
	lnL, lnPrior := c.lnParts()
	out := Sample{
		Generation:   c.generation,
		LnPosterior:  lnL + lnPrior,
		LnLikelihood: lnL,
		LnPrior:      lnPrior,
		Parameters:   make(map[string]float64),
		Trees:        make(map[string]string),
	}
	for _, n := range c.model.StochasticNodes() {
		if n.IsClamped() {
			continue
		}
		switch v := n.(type) {
		case dag.TypedNode[float64]:
			out.Parameters[n.Name()] = v.Value()
		case dag.TypedNode[*tree.Tree]:
			out.Trees[n.Name()] = v.Value().Newick()
		}
	}
	return out
}

func (c *Chain) publish(state State, err error) {
	st := &Status{
		ID:          c.id,
		State:       state,
		Generation:  c.generation,
		Generations: c.settings.Load().Generations,
		Started:     c.started,
		Updated:     time.Now(),
		Moves:       make([]MoveStatus, 0, len(c.moves)),
	}
	if state != StateNew {
		lnL, lnPrior := c.lnParts()
		st.LnLikelihood, st.LnPosterior = lnL, lnL+lnPrior
	}
	if err != nil {
		st.Error = err.Error()
	}
	for _, m := range c.moves {
		ms := MoveStatus{
			Name:           m.Name(),
			Tried:          m.Tried(),
			Accepted:       m.Accepted(),
			AcceptanceRate: m.AcceptanceRate(),
		}
		if m.Proposal().Tunable() {
			ms.Tuning = m.Proposal().TuningParameter()
		}
		st.Moves = append(st.Moves, ms)
	}
	c.status.Store(st)
}

// Clone deep-copies the chain onto a copy of its model, with its own id and
// random stream. Move counters and tuning state start fresh except for the
// tuning parameters, which are carried over.
func (c *Chain) Clone(id string, rng *rand.Rand, opts ...Option) (*Chain, error) {
	model, mapping, err := c.model.Clone()
	if err != nil {
		return nil, fmt.Errorf("clone chain %s: %w", c.id, err)
	}
	moves := make([]*move.Move, 0, len(c.moves))
	for _, m := range c.moves {
		cm, err := m.Clone(mapping)
		if err != nil {
			return nil, fmt.Errorf("clone chain %s: %w", c.id, err)
		}
		moves = append(moves, cm)
	}
	return NewChain(id, model, moves, rng, *c.settings.Load(), opts...)
}

func isComputable(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
