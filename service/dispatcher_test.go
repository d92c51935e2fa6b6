package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harshraj78/legal-check-ai/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherRunsEverySubmission(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}
	d := NewDispatcher(func(ctx context.Context, id string) {
		mu.Lock()
		seen[id]++
		mu.Unlock()
	}, 3, 2)
	d.Start(context.Background())

	for i := 0; i < 20; i++ {
		require.NoError(t, d.Submit(fmt.Sprintf("c-%d", i)))
	}
	require.NoError(t, d.Stop(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 20)
	for id, n := range seen {
		assert.Equal(t, 1, n, "id %s ran %d times", id, n)
	}
}

func TestDispatcherSubmitDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	d := NewDispatcher(func(ctx context.Context, id string) {
		<-release
	}, 1, 1)
	d.Start(context.Background())

	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, d.Submit(fmt.Sprintf("c-%d", i)))
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	close(release)
	require.NoError(t, d.Stop(context.Background()))
}

func TestDispatcherRecoversPanic(t *testing.T) {
	var ran atomic.Int32
	d := NewDispatcher(func(ctx context.Context, id string) {
		if id == "bad" {
			panic("boom")
		}
		ran.Add(1)
	}, 1, 4)
	d.Start(context.Background())

	require.NoError(t, d.Submit("bad"))
	require.NoError(t, d.Submit("good"))
	require.NoError(t, d.Stop(context.Background()))

	assert.EqualValues(t, 1, ran.Load(), "worker must survive a panicking task")
}

func TestDispatcherRejectsAfterStop(t *testing.T) {
	d := NewDispatcher(func(context.Context, string) {}, 1, 1)
	d.Start(context.Background())
	require.NoError(t, d.Stop(context.Background()))

	assert.ErrorIs(t, d.Submit("late"), ErrDispatcherStopped)
	// Stop is idempotent.
	assert.NoError(t, d.Stop(context.Background()))
}

func TestDispatcherStopTimeoutCancelsTasks(t *testing.T) {
	canceled := make(chan struct{})
	d := NewDispatcher(func(ctx context.Context, id string) {
		<-ctx.Done()
		close(canceled)
	}, 1, 1)
	d.Start(context.Background())
	require.NoError(t, d.Submit("slow"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Stop(ctx), context.DeadlineExceeded)

	select {
	case <-canceled:
	case <-time.After(2 * time.Second):
		t.Fatal("running task was not canceled")
	}
	<-d.Done()
}

func TestDispatcherTaskContextCarriesContractID(t *testing.T) {
	got := make(chan string, 1)
	d := NewDispatcher(func(ctx context.Context, id string) {
		v, _ := ctx.Value(logger.ContractIDKey).(string)
		got <- v
	}, 1, 1)
	d.Start(context.Background())

	require.NoError(t, d.Submit("abc"))
	require.NoError(t, d.Stop(context.Background()))
	assert.Equal(t, "abc", <-got)
}
