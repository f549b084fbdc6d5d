package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingExpirer struct {
	calls atomic.Int32
	err   error
}

func (c *countingExpirer) ExpireStale(context.Context) (int, error) {
	c.calls.Add(1)
	return 1, c.err
}

type countingRetrier struct {
	calls atomic.Int32
	limit atomic.Int32
}

func (c *countingRetrier) ReconcilePending(_ context.Context, limit int) (int, error) {
	c.calls.Add(1)
	c.limit.Store(int32(limit))
	return 0, nil
}

func TestRunOnce_ContinuesAfterExpireError(t *testing.T) {
	exp := &countingExpirer{err: errors.New("db down")}
	ret := &countingRetrier{}
	Sweeper{Calls: exp, Usage: ret, BatchSize: 25}.RunOnce(context.Background())

	assert.Equal(t, int32(1), exp.calls.Load())
	assert.Equal(t, int32(1), ret.calls.Load())
	assert.Equal(t, int32(25), ret.limit.Load())
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	exp := &countingExpirer{}
	ret := &countingRetrier{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Sweeper{Calls: exp, Usage: ret, Interval: 10 * time.Millisecond}.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return exp.calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
