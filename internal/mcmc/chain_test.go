package mcmc_test

import (
	"context"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/gyaneshwarpardhi/phylomc/internal/dag"
	"github.com/gyaneshwarpardhi/phylomc/internal/dist"
	"github.com/gyaneshwarpardhi/phylomc/internal/mcmc"
	"github.com/gyaneshwarpardhi/phylomc/internal/move"
	"github.com/gyaneshwarpardhi/phylomc/internal/runctx"
)

func TestMain(m *testing.M) {
	otel.SetTracerProvider(noop.NewTracerProvider())
	os.Exit(m.Run())
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// rateModel is x ~ Exp(1) with one observation y = 1 from Exp(x). The
// posterior of x is Gamma(2, 2): mean 1, variance 0.5.
func rateModel(t *testing.T) (*dag.Model, []*move.Move) {
	t.Helper()
	x := dag.NewStochasticNode[float64]("x", dist.NewExponential(dag.NewConstantNode("one", 1.0)), 2)
	y := dag.NewStochasticNode[float64]("y", dist.NewExponential(x), 1)
	require.NoError(t, y.Clamp(1))
	model, err := dag.NewModel(y)
	require.NoError(t, err)

	p, err := move.NewScale(x, 1)
	require.NoError(t, err)
	m, err := move.New(p, 1, move.WithAutoTune(move.DefaultTargetAcceptance), move.WithLogger(quiet))
	require.NoError(t, err)
	return model, []*move.Move{m}
}

func newChain(t *testing.T, s mcmc.Settings, opts ...mcmc.Option) *mcmc.Chain {
	t.Helper()
	model, moves := rateModel(t)
	opts = append([]mcmc.Option{mcmc.WithLogger(quiet)}, opts...)
	c, err := mcmc.NewChain("test", model, moves, rand.New(rand.NewPCG(7, 9)), s, opts...)
	require.NoError(t, err)
	return c
}

func TestChain_SamplesPosterior(t *testing.T) {
	s := mcmc.DefaultSettings()
	s.Generations, s.BurnIn, s.SampleEvery, s.PrintEvery = 40000, 2000, 5, 0

	var samples []mcmc.Sample
	c := newChain(t, s, mcmc.WithSampleHandler(func(x mcmc.Sample) { samples = append(samples, x) }))
	require.NoError(t, c.Initialize())
	require.NoError(t, c.Run(context.Background()))

	require.Len(t, samples, (40000-2000)/5)
	var sum, sq float64
	for _, x := range samples {
		v := x.Parameters["x"]
		sum += v
		sq += v * v
		assert.InDelta(t, x.LnLikelihood+x.LnPrior, x.LnPosterior, 1e-12)
	}
	n := float64(len(samples))
	mean := sum / n
	assert.InDelta(t, 1.0, mean, 0.06)
	assert.InDelta(t, 0.5, sq/n-mean*mean, 0.08)

	st := c.Status()
	assert.Equal(t, mcmc.StateDone, st.State)
	assert.Equal(t, 40000, st.Generation)
	require.Len(t, st.Moves, 1)
	// counters restart after burn-in
	assert.Equal(t, uint64(40000-2000), st.Moves[0].Tried)
	assert.InDelta(t, move.DefaultTargetAcceptance, st.Moves[0].AcceptanceRate, 0.1)
}

func TestChain_HillClimbingFindsMode(t *testing.T) {
	s := mcmc.DefaultSettings()
	s.Generations, s.BurnIn, s.PrintEvery, s.SampleEvery = 3000, 0, 0, 0
	s.HillClimbing = true
	c := newChain(t, s)
	require.NoError(t, c.Initialize())
	require.NoError(t, c.Run(context.Background()))

	// mode of Gamma(2, 2) is 0.5
	x := c.Model().Node("x").(dag.TypedNode[float64]).Value()
	assert.InDelta(t, 0.5, x, 0.02)
}

func TestInitialize_RedrawsUntilComputable(t *testing.T) {
	lo := dag.NewConstantNode("lo", 0.0)
	hi := dag.NewConstantNode("hi", 1.0)
	x := dag.NewStochasticNode[float64]("x", dist.NewUniform(lo, hi), 5)
	model, err := dag.NewModel(x)
	require.NoError(t, err)
	require.True(t, math.IsInf(model.LnProbability(), -1))

	p, err := move.NewSlide(x, 0.2, 0, 1)
	require.NoError(t, err)
	m, err := move.New(p, 1, move.WithLogger(quiet))
	require.NoError(t, err)
	c, err := mcmc.NewChain("u", model, []*move.Move{m}, rand.New(rand.NewPCG(1, 2)), mcmc.DefaultSettings(), mcmc.WithLogger(quiet))
	require.NoError(t, err)

	require.NoError(t, c.Initialize())
	assert.True(t, x.Value() >= 0 && x.Value() <= 1)
	assert.InDelta(t, 0, model.LnProbability(), 1e-12)
	assert.Equal(t, mcmc.StateInitialized, c.Status().State)
}

func TestInitialize_FailsWhenDataImpossible(t *testing.T) {
	upper := dag.NewStochasticNode[float64]("upper",
		dist.NewUniform(dag.NewConstantNode("a", 0.0), dag.NewConstantNode("b", 1.0)), 0.5)
	y := dag.NewStochasticNode[float64]("y", dist.NewUniform(dag.NewConstantNode("lo", 0.0), upper), 5)
	require.NoError(t, y.Clamp(5))
	model, err := dag.NewModel(y)
	require.NoError(t, err)

	p, err := move.NewSlide(upper, 0.2, 0, 1)
	require.NoError(t, err)
	m, err := move.New(p, 1, move.WithLogger(quiet))
	require.NoError(t, err)
	c, err := mcmc.NewChain("bad", model, []*move.Move{m}, rand.New(rand.NewPCG(1, 2)), mcmc.DefaultSettings(), mcmc.WithLogger(quiet))
	require.NoError(t, err)

	assert.ErrorIs(t, c.Initialize(), mcmc.ErrNotComputable)
	st := c.Status()
	assert.Equal(t, mcmc.StateFailed, st.State)
	assert.NotEmpty(t, st.Error)
}

func TestNewChain_NoMoves(t *testing.T) {
	model, _ := rateModel(t)
	_, err := mcmc.NewChain("empty", model, nil, rand.New(rand.NewPCG(1, 2)), mcmc.DefaultSettings())
	assert.ErrorIs(t, err, move.ErrEmptySchedule)
}

func TestRun_CancelledContext(t *testing.T) {
	c := newChain(t, mcmc.DefaultSettings())
	require.NoError(t, c.Initialize())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, c.Run(ctx), context.Canceled)
	assert.Equal(t, 0, c.Generation())
	assert.Equal(t, mcmc.StateStopped, c.Status().State)
}

func TestRun_ResumesAfterSettingsChange(t *testing.T) {
	s := mcmc.DefaultSettings()
	s.Generations, s.BurnIn, s.PrintEvery = 100, 10, 50
	c := newChain(t, s)
	require.NoError(t, c.Initialize())
	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, 100, c.Generation())

	s.Generations = 150
	c.SetSettings(s)
	assert.Equal(t, 150, c.Settings().Generations)
	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, 150, c.Generation())
	assert.Equal(t, 150, c.Status().Generations)
}

func TestRun_MaxTime(t *testing.T) {
	s := mcmc.DefaultSettings()
	s.Generations = math.MaxInt32
	s.MaxTime = 20 * time.Millisecond
	c := newChain(t, s)
	require.NoError(t, c.Initialize())

	start := time.Now()
	require.NoError(t, c.Run(context.Background()))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Less(t, c.Generation(), math.MaxInt32)
	assert.Equal(t, mcmc.StateDone, c.Status().State)
}

func TestStatus_ConcurrentReads(t *testing.T) {
	s := mcmc.DefaultSettings()
	s.Generations, s.PrintEvery = 5000, 10
	c := newChain(t, s)
	require.NoError(t, c.Initialize())

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				st := c.Status()
				assert.Equal(t, "test", st.ID)
			}
		}
	}()
	require.NoError(t, c.Run(context.Background()))
	close(stop)
	wg.Wait()
}

func TestReplicates(t *testing.T) {
	s := mcmc.DefaultSettings()
	s.Generations, s.BurnIn, s.SampleEvery, s.PrintEvery = 500, 100, 50, 0
	template := newChain(t, s)

	run := func() []*mcmc.Result {
		tracker := mcmc.NewTracker()
		r, err := mcmc.NewReplicates(template, runctx.New(42, nil), 2,
			mcmc.WithTracker(tracker), mcmc.WithReplicateLogger(quiet))
		require.NoError(t, err)
		results, err := r.Run(context.Background(), 3)
		require.NoError(t, err)
		assert.Equal(t, 3, tracker.Len())
		for _, st := range tracker.Statuses() {
			assert.Equal(t, mcmc.StateDone, st.State)
		}
		return results
	}

	first := run()
	require.Len(t, first, 3)
	ids := make(map[string]bool)
	for i, res := range first {
		require.NoError(t, res.Err)
		assert.Equal(t, uint64(i+1), res.Stream)
		assert.Equal(t, 500, res.Status.Generation)
		assert.Equal(t, res.ChainID, res.Status.ID)
		assert.Positive(t, res.Duration)
		assert.Len(t, res.Samples, (500-100)/50)
		ids[res.ChainID] = true
	}
	assert.Len(t, ids, 3)
	assert.NotEqual(t, first[0].Samples, first[1].Samples)

	// streams are derived from the seed, so a second run reproduces the first
	second := run()
	for i := range first {
		assert.Equal(t, first[i].Samples, second[i].Samples)
	}

	// the template itself never ran
	assert.Equal(t, 0, template.Generation())
}

func TestReplicates_BadArguments(t *testing.T) {
	template := newChain(t, mcmc.DefaultSettings())
	_, err := mcmc.NewReplicates(template, runctx.New(1, nil), 0)
	assert.ErrorIs(t, err, mcmc.ErrBadReplicates)

	r, err := mcmc.NewReplicates(template, runctx.New(1, nil), 1)
	require.NoError(t, err)
	_, err = r.Run(context.Background(), 0)
	assert.ErrorIs(t, err, mcmc.ErrBadReplicates)
}

func TestTracker(t *testing.T) {
	tracker := mcmc.NewTracker()
	c := newChain(t, mcmc.DefaultSettings())
	tracker.Add(c)
	tracker.Add(c)
	assert.Equal(t, 1, tracker.Len())

	st, err := tracker.Status("test")
	require.NoError(t, err)
	assert.Equal(t, mcmc.StateNew, st.State)

	_, err = tracker.Status("missing")
	assert.ErrorIs(t, err, mcmc.ErrUnknownChain)

	s := mcmc.DefaultSettings()
	s.Generations = 77
	tracker.ApplySettings(s)
	assert.Equal(t, 77, c.Settings().Generations)
}
