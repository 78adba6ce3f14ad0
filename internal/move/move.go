package move

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	"github.com/gyaneshwarpardhi/phylomc/internal/dag"
	"github.com/gyaneshwarpardhi/phylomc/internal/metrics"
)

const (
	// DefaultTargetAcceptance is the acceptance rate tuning aims for.
	DefaultTargetAcceptance = 0.44

	// rejectBelow short-circuits hopeless proposals without drawing.
	rejectBelow = -300.0
)

// Option configures a Move.
type Option func(*Move)

// WithAutoTune enables tuning toward target acceptance.
func WithAutoTune(target float64) Option {
	return func(m *Move) {
		m.autoTune = true
		if target > 0 && target < 1 {
			m.target = target
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option { return func(m *Move) { m.logger = l } }

// Move wraps a Proposal with the Metropolis-Hastings accept/reject step.
type Move struct {
	proposal Proposal
	weight   float64
	autoTune bool
	target   float64
	logger   *slog.Logger

	// affected holds the stochastic nodes below the proposal's nodes whose
	// probability changes with them.
	affected []dag.Node

	tried             uint64
	accepted          uint64
	triedSinceTune    uint64
	acceptedSinceTune uint64
}

// New creates a move. It fails when a proposal node reaches a constant
// while collecting affected nodes, which indicates a wiring error.
func New(p Proposal, weight float64, opts ...Option) (*Move, error) {
	if !(weight > 0) {
		return nil, fmt.Errorf("%w: %g for %s", ErrBadWeight, weight, p.Name())
	}
	m := &Move{proposal: p, weight: weight, target: DefaultTargetAcceptance}
	for _, o := range opts {
		o(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if err := m.collectAffected(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Move) collectAffected() error {
	own := dag.NewNodeSet()
	for _, n := range m.proposal.Nodes() {
		own.Add(n)
	}
	set := dag.NewNodeSet()
	for _, n := range m.proposal.Nodes() {
		affected, err := dag.AffectedNodes(n)
		if err != nil {
			return fmt.Errorf("move %s: %w", m.proposal.Name(), err)
		}
		for _, a := range affected.Nodes() {
			if !own.Has(a) {
				set.Add(a)
			}
		}
	}
	m.affected = set.Nodes()
	return nil
}

func (m *Move) Name() string         { return m.proposal.Name() }
func (m *Move) Weight() float64      { return m.weight }
func (m *Move) Proposal() Proposal   { return m.proposal }
func (m *Move) AutoTuning() bool     { return m.autoTune }
func (m *Move) Affected() []dag.Node { return m.affected }

// Tried returns the number of proposals since the move was created.
func (m *Move) Tried() uint64 { return m.tried }

// Accepted returns the number of accepted proposals.
func (m *Move) Accepted() uint64 { return m.accepted }

// AcceptanceRate returns accepted/tried over the move's lifetime.
func (m *Move) AcceptanceRate() float64 {
	if m.tried == 0 {
		return 0
	}
	return float64(m.accepted) / float64(m.tried)
}

// Perform proposes a new state and accepts it with the Metropolis-Hastings
// probability under likelihood heat lHeat and posterior heat pHeat.
func (m *Move) Perform(rng *rand.Rand, lHeat, pHeat float64) bool {
	return m.perform(rng, lHeat, pHeat, false)
}

// PerformHillClimbing proposes a new state and keeps it only if the
// posterior does not decrease. The Hastings ratio is ignored.
func (m *Move) PerformHillClimbing(rng *rand.Rand, lHeat, pHeat float64) bool {
	return m.perform(rng, lHeat, pHeat, true)
}

func (m *Move) perform(rng *rand.Rand, lHeat, pHeat float64, climb bool) bool {
	name := m.proposal.Name()
	m.tried++
	m.triedSinceTune++
	metrics.ProposalsTotal.WithLabelValues(name).Inc()

	lnHastings := m.proposal.DoProposal(rng)
	nodes := m.proposal.Nodes()
	for _, n := range nodes {
		n.Touch(n, false)
	}

	lnLikelihood, lnPrior := 0.0, 0.0
	for _, group := range [][]dag.Node{nodes, m.affected} {
		for _, n := range group {
			if n.IsClamped() {
				lnLikelihood += n.LnProbabilityRatio()
			} else {
				lnPrior += n.LnProbabilityRatio()
			}
		}
	}
	posterior := pHeat * (lHeat*lnLikelihood + lnPrior)

	if !isComputable(posterior) || !isComputable(lnHastings) {
		metrics.NonComputableTotal.WithLabelValues(name).Inc()
		m.reject(nodes)
		return false
	}

	var accept bool
	switch ratio := posterior + lnHastings; {
	case climb:
		accept = posterior >= 0
	case ratio >= 0:
		accept = true
	case ratio < rejectBelow:
		accept = false
	default:
		accept = rng.Float64() < math.Exp(ratio)
	}

	if !accept {
		m.reject(nodes)
		return false
	}
	m.proposal.Clean()
	for _, n := range nodes {
		n.Keep(n)
	}
	m.accepted++
	m.acceptedSinceTune++
	metrics.AcceptedTotal.WithLabelValues(name).Inc()
	return true
}

func (m *Move) reject(nodes []dag.Node) {
	m.proposal.Undo()
	for _, n := range nodes {
		n.Restore(n)
	}
}

// Tune adjusts the proposal width toward the target acceptance rate using
// the rate observed since the previous call.
func (m *Move) Tune() {
	if !m.autoTune || !m.proposal.Tunable() || m.triedSinceTune == 0 {
		return
	}
	rate := float64(m.acceptedSinceTune) / float64(m.triedSinceTune)
	before := m.proposal.TuningParameter()
	m.proposal.SetTuningParameter(tunedWidth(before, rate, m.target))
	m.triedSinceTune, m.acceptedSinceTune = 0, 0
	m.logger.Debug("move tuned",
		"move", m.proposal.Name(), "rate", rate, "from", before, "to", m.proposal.TuningParameter())
}

// ResetCounters clears the acceptance statistics, typically after burn-in.
func (m *Move) ResetCounters() {
	m.tried, m.accepted = 0, 0
	m.triedSinceTune, m.acceptedSinceTune = 0, 0
}

// Clone copies the move for a cloned model. mapping takes every node of the
// original model to its copy.
func (m *Move) Clone(mapping map[dag.Node]dag.Node) (*Move, error) {
	p := m.proposal.Clone()
	for _, n := range m.proposal.Nodes() {
		c, ok := mapping[n]
		if !ok {
			return nil, fmt.Errorf("move %s: node %q missing from clone", m.proposal.Name(), n.Name())
		}
		if err := p.SwapNode(n, c); err != nil {
			return nil, err
		}
	}
	c := &Move{
		proposal: p,
		weight:   m.weight,
		autoTune: m.autoTune,
		target:   m.target,
		logger:   m.logger,
	}
	if err := c.collectAffected(); err != nil {
		return nil, err
	}
	return c, nil
}

func isComputable(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
