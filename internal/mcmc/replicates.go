package mcmc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gyaneshwarpardhi/phylomc/internal/runctx"
)

// Result is the outcome of one replicate chain.
type Result struct {
	ChainID  string        `json:"chain_id"`
	Stream   uint64        `json:"stream"`
	Status   Status        `json:"status"`
	Samples  []Sample      `json:"-"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// Replicates runs independent copies of a template chain.
type Replicates struct {
	template *Chain
	rc       *runctx.RunContext
	workers  int
	tracker  *Tracker
	logger   *slog.Logger
	onSample func(chainID string, s Sample)
}

// ReplicateOption configures Replicates.
type ReplicateOption func(*Replicates)

// WithTracker registers every replicate chain with t before it starts.
func WithTracker(t *Tracker) ReplicateOption { return func(r *Replicates) { r.tracker = t } }

// WithReplicateLogger sets the logger handed to each replicate chain.
func WithReplicateLogger(l *slog.Logger) ReplicateOption {
	return func(r *Replicates) { r.logger = l }
}

// WithReplicateSamples streams samples as they are drawn instead of
// collecting them in the Result. fn may be called from several goroutines.
func WithReplicateSamples(fn func(chainID string, s Sample)) ReplicateOption {
	return func(r *Replicates) { r.onSample = fn }
}

// NewReplicates prepares replicates of template. Each replicate gets the
// random stream rc.Derive(i) and runs on one of workers goroutines.
func NewReplicates(template *Chain, rc *runctx.RunContext, workers int, opts ...ReplicateOption) (*Replicates, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("%w: workers %d", ErrBadReplicates, workers)
	}
	r := &Replicates{template: template, rc: rc, workers: workers}
	for _, o := range opts {
		o(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r, nil
}

// Run clones the template n times and runs the clones to completion. Results
// are returned in stream order; the error joins every replicate failure.
func (r *Replicates) Run(ctx context.Context, n int) ([]*Result, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: replicates %d", ErrBadReplicates, n)
	}
	ctx, span := tracer.Start(ctx, "mcmc.replicates.run", trace.WithAttributes(
		attribute.String("run.id", r.rc.ID),
		attribute.Int("replicates", n),
		attribute.Int("workers", r.workers),
	))
	defer span.End()

	// Cloning reads the template model, so it happens before any chain runs.
	results := make([]*Result, n)
	chains := make([]*Chain, n)
	for i := 0; i < n; i++ {
		child := r.rc.Derive(uint64(i))
		res := &Result{ChainID: ulid.Make().String(), Stream: child.Stream}
		opts := []Option{WithLogger(r.logger.With("stream", child.Stream))}
		if r.onSample != nil {
			id := res.ChainID
			opts = append(opts, WithSampleHandler(func(s Sample) { r.onSample(id, s) }))
		} else {
			opts = append(opts, WithSampleHandler(func(s Sample) { res.Samples = append(res.Samples, s) }))
		}
		ch, err := r.template.Clone(res.ChainID, child.RNG, opts...)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "clone failed")
			return nil, err
		}
		if r.tracker != nil {
			r.tracker.Add(ch)
		}
		results[i], chains[i] = res, ch
	}

	out := make(chan jobResult[int, *Result], n)
	pool := newWorkerPool[int, *Result](ctx, r.workers, n, func(ctx context.Context, i int) (*Result, error) {
		return r.runOne(ctx, chains[i], results[i])
	})
	for i := 0; i < n; i++ {
		// queue capacity is n, so Submit cannot fail
		pool.Submit(i, out)
	}

	var errs []error
	for done := 0; done < n; done++ {
		select {
		case jr := <-out:
			results[jr.payload] = jr.value
			if jr.err != nil {
				errs = append(errs, fmt.Errorf("replicate %d: %w", jr.payload, jr.err))
			}
		case <-ctx.Done():
			pool.Drain()
			span.RecordError(ctx.Err())
			span.SetStatus(codes.Error, "cancelled")
			return results, ctx.Err()
		}
	}
	pool.Drain()

	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "replicate failed")
		return results, err
	}
	span.SetStatus(codes.Ok, "")
	return results, nil
}

func (r *Replicates) runOne(ctx context.Context, ch *Chain, res *Result) (*Result, error) {
	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		res.Status = ch.Status()
	}()
	if err := ch.Initialize(); err != nil {
		res.Err = err
		return res, err
	}
	if err := ch.Run(ctx); err != nil {
		res.Err = err
		return res, err
	}
	return res, nil
}
