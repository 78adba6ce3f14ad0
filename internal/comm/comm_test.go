package comm_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/phylomc/internal/comm"
)

func TestBlockRange_CoversAllItems(t *testing.T) {
	for _, tc := range []struct{ n, size int }{{10, 3}, {3, 5}, {0, 2}, {7, 1}} {
		next := 0
		for r := 0; r < tc.size; r++ {
			start, end := comm.BlockRange(tc.n, r, tc.size)
			assert.Equal(t, next, start)
			assert.LessOrEqual(t, start, end)
			next = end
		}
		assert.Equal(t, tc.n, next)
	}
}

func TestSingle(t *testing.T) {
	ctx := context.Background()
	var g comm.Group = comm.Single{}
	sum, err := g.AllReduceSum(ctx, 2.5)
	require.NoError(t, err)
	assert.Equal(t, 2.5, sum)
	_, err = g.Broadcast(ctx, 1, 1)
	assert.ErrorIs(t, err, comm.ErrBadRank)
	assert.NoError(t, g.Barrier(ctx))
}

func TestLocal_Collectives(t *testing.T) {
	const size = 4
	var mu sync.Mutex
	sums := make(map[int][]float64)

	err := comm.RunLocal(context.Background(), size, func(ctx context.Context, g comm.Group) error {
		for round := 0; round < 3; round++ {
			s, err := g.AllReduceSum(ctx, float64(g.Rank()+round))
			if err != nil {
				return err
			}
			b, err := g.Broadcast(ctx, float64(10*g.Rank()), 2)
			if err != nil {
				return err
			}
			if err := g.Barrier(ctx); err != nil {
				return err
			}
			mu.Lock()
			sums[g.Rank()] = append(sums[g.Rank()], s, b)
			mu.Unlock()
		}
		return nil
	})
	require.NoError(t, err)
	want := []float64{6, 20, 10, 20, 14, 20}
	for r := 0; r < size; r++ {
		assert.Equal(t, want, sums[r], "rank %d", r)
	}
}

func TestLocal_ErrorCancelsGroup(t *testing.T) {
	boom := errors.New("boom")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := comm.RunLocal(ctx, 3, func(ctx context.Context, g comm.Group) error {
		if g.Rank() == 1 {
			return boom
		}
		_, err := g.AllReduceSum(ctx, 1)
		return err
	})
	assert.ErrorIs(t, err, boom)
}

func TestNewLocal_BadSize(t *testing.T) {
	_, err := comm.NewLocal(0)
	assert.ErrorIs(t, err, comm.ErrBadSize)
}
