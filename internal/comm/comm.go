// Package comm is the message-passing surface used to split work across a
// group of cooperating processes: collective sums, broadcasts and barriers
// over ranks 0..Size-1.
package comm

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

var (
	ErrBadRank = errors.New("comm: rank out of range")
	ErrBadSize = errors.New("comm: group size must be positive")
)

// Group is a process group. Every member must call the same collectives in
// the same order; calls block until all members have arrived.
type Group interface {
	Rank() int
	Size() int
	AllReduceSum(ctx context.Context, v float64) (float64, error)
	Broadcast(ctx context.Context, v float64, root int) (float64, error)
	Barrier(ctx context.Context) error
}

// BlockRange returns the half-open range [start, end) of n items owned by
// rank in a group of size members. Blocks differ in length by at most one.
func BlockRange(n, rank, size int) (start, end int) {
	return rank * n / size, (rank + 1) * n / size
}

// ----------------------------------------------------------------------------
// Single
// ----------------------------------------------------------------------------

// Single is the one-member group; every collective returns immediately.
type Single struct{}

func (Single) Rank() int { return 0 }
func (Single) Size() int { return 1 }

func (Single) AllReduceSum(_ context.Context, v float64) (float64, error) { return v, nil }

func (Single) Broadcast(_ context.Context, v float64, root int) (float64, error) {
	if root != 0 {
		return 0, fmt.Errorf("%w: %d", ErrBadRank, root)
	}
	return v, nil
}

func (Single) Barrier(context.Context) error { return nil }

// ----------------------------------------------------------------------------
// Local: in-process group over channels
// ----------------------------------------------------------------------------

type contribution struct {
	rank  int
	value float64
}

type hub struct {
	size   int
	gather chan contribution
	out    []chan float64
}

// Local is one member of an in-process group. Rank 0 coordinates: it gathers
// every contribution, combines them in rank order and sends the result back.
type Local struct {
	rank int
	hub  *hub
}

// NewLocal creates the members of a size-member in-process group.
func NewLocal(size int) ([]*Local, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: %d", ErrBadSize, size)
	}
	h := &hub{size: size, gather: make(chan contribution, size), out: make([]chan float64, size)}
	members := make([]*Local, size)
	for i := range members {
		h.out[i] = make(chan float64, 1)
		members[i] = &Local{rank: i, hub: h}
	}
	return members, nil
}

func (l *Local) Rank() int { return l.rank }
func (l *Local) Size() int { return l.hub.size }

func (l *Local) AllReduceSum(ctx context.Context, v float64) (float64, error) {
	return l.exchange(ctx, v, func(vals []float64) float64 {
		sum := 0.0
		for _, x := range vals {
			sum += x
		}
		return sum
	})
}

func (l *Local) Broadcast(ctx context.Context, v float64, root int) (float64, error) {
	if root < 0 || root >= l.hub.size {
		return 0, fmt.Errorf("%w: %d", ErrBadRank, root)
	}
	return l.exchange(ctx, v, func(vals []float64) float64 { return vals[root] })
}

func (l *Local) Barrier(ctx context.Context) error {
	_, err := l.exchange(ctx, 0, func([]float64) float64 { return 0 })
	return err
}

func (l *Local) exchange(ctx context.Context, v float64, combine func([]float64) float64) (float64, error) {
	h := l.hub
	if l.rank != 0 {
		select {
		case h.gather <- contribution{rank: l.rank, value: v}:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
		select {
		case r := <-h.out[l.rank]:
			return r, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	vals := make([]float64, h.size)
	vals[0] = v
	for i := 1; i < h.size; i++ {
		select {
		case c := <-h.gather:
			vals[c.rank] = c.value
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	r := combine(vals)
	for i := 1; i < h.size; i++ {
		select {
		case h.out[i] <- r:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return r, nil
}

// RunLocal starts fn once per member of a size-member in-process group and
// waits for all of them. The first error cancels the shared context.
func RunLocal(ctx context.Context, size int, fn func(ctx context.Context, g Group) error) error {
	members, err := NewLocal(size)
	if err != nil {
		return err
	}
	eg, ctx := errgroup.WithContext(ctx)
	for _, m := range members {
		eg.Go(func() error { return fn(ctx, m) })
	}
	return eg.Wait()
}
