package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gomantics/gitmcp/domains/toolerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestExecutor(t *testing.T, cfg Config) *Executor {
	t.Helper()
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}
	e := New(zap.NewNop(), cfg)
	t.Cleanup(e.Shutdown)
	return e
}

func TestDoReturnsResult(t *testing.T) {
	e := newTestExecutor(t, Config{Workers: 2})

	got, err := Do(context.Background(), e, "status", func(ctx context.Context) (string, error) {
		return "clean", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "clean", got)
}

func TestDoChecksCancellationFirst(t *testing.T) {
	e := newTestExecutor(t, Config{Workers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := Do(ctx, e, "commit", func(ctx context.Context) (int, error) {
		called = true
		return 1, nil
	})
	assert.False(t, called)
	assert.Equal(t, toolerr.KindCancelled, toolerr.KindOf(err))
	assert.Equal(t, "commit", toolerr.From(err).Op)
}

func TestDoRetriesRetryableKinds(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		err       error
		wantCalls int
		wantKind  toolerr.Kind
	}{
		{"locked then success", 2, toolerr.New(toolerr.KindLocked, "busy"), 3, ""},
		{"retryable conflict then success", 1, toolerr.New(toolerr.KindConflict, "ref moved").AsRetryable(true), 2, ""},
		{"locked until exhausted", 10, toolerr.New(toolerr.KindLocked, "busy"), 4, toolerr.KindLocked},
		{"merge conflict is not retried", 10, toolerr.New(toolerr.KindConflict, "merge conflict"), 1, toolerr.KindConflict},
		{"semantic error is not retried", 10, toolerr.New(toolerr.KindAlreadyExists, "exists"), 1, toolerr.KindAlreadyExists},
		{"plain error becomes engine error", 10, errors.New("boom"), 1, toolerr.KindEngine},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestExecutor(t, Config{Workers: 1, LockRetries: 3})

			calls := 0
			_, err := Do(context.Background(), e, "branch_create", func(ctx context.Context) (struct{}, error) {
				calls++
				if calls <= tt.failures {
					return struct{}{}, tt.err
				}
				return struct{}{}, nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantKind == "" {
				assert.NoError(t, err)
			} else {
				assert.Equal(t, tt.wantKind, toolerr.KindOf(err))
			}
		})
	}
}

func TestDoRecoversPanics(t *testing.T) {
	e := newTestExecutor(t, Config{Workers: 1})

	_, err := Do(context.Background(), e, "log", func(ctx context.Context) (int, error) {
		panic("corrupt packfile")
	})
	require.Error(t, err)
	assert.Equal(t, toolerr.KindEngine, toolerr.KindOf(err))
	assert.Contains(t, err.Error(), "corrupt packfile")
}

func TestDoBoundsConcurrency(t *testing.T) {
	e := newTestExecutor(t, Config{Workers: 2})

	var running, peak atomic.Int64
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Do(context.Background(), e, "status", func(ctx context.Context) (int, error) {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				running.Add(-1)
				return 0, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(2))
	assert.Positive(t, peak.Load())
}

func TestBeginAndCancel(t *testing.T) {
	e := newTestExecutor(t, Config{Workers: 1})

	ctx, done, err := e.Begin(context.Background(), "inv-1", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, e.Active())

	_, _, err = e.Begin(context.Background(), "inv-1", 0)
	assert.Equal(t, toolerr.KindInvalidArguments, toolerr.KindOf(err))

	assert.True(t, e.Cancel("inv-1"))
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.False(t, e.Cancel("unknown"))

	done()
	done()
	assert.Equal(t, 0, e.Active())

	_, done, err = e.Begin(context.Background(), "inv-1", 0)
	require.NoError(t, err)
	done()
}

func TestBeginTimeout(t *testing.T) {
	e := newTestExecutor(t, Config{Workers: 1, DefaultTimeout: time.Hour})

	ctx, done, err := e.Begin(context.Background(), "short", 10*time.Millisecond)
	require.NoError(t, err)
	defer done()

	_, err = Do(ctx, e, "log", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.Equal(t, toolerr.KindCancelled, toolerr.KindOf(err))

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), deadline, time.Second)
}

func TestShutdownRefusesNewInvocations(t *testing.T) {
	e := New(zap.NewNop(), Config{Workers: 1})

	ctx, _, err := e.Begin(context.Background(), "running", 0)
	require.NoError(t, err)

	e.Shutdown()
	assert.Error(t, ctx.Err())

	_, _, err = e.Begin(context.Background(), "late", 0)
	assert.Equal(t, toolerr.KindCancelled, toolerr.KindOf(err))
}

func TestShutdownRefusesWorkWithoutInvocation(t *testing.T) {
	e := New(zap.NewNop(), Config{Workers: 1})
	e.Shutdown()

	called := false
	_, err := Do(context.Background(), e, "commit", func(ctx context.Context) (int, error) {
		called = true
		return 1, nil
	})
	assert.Equal(t, toolerr.KindCancelled, toolerr.KindOf(err))
	assert.ErrorIs(t, err, ErrShutdown)
	assert.False(t, called)

	s := Start(context.Background(), e, "log", func(ctx context.Context, em *Emitter[int]) error {
		called = true
		return em.Item(1)
	})
	ev, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, Event[int]{Type: EventComplete, Cancelled: true}, ev)
	assert.False(t, called)
}

func TestShutdownConcurrentWithDo(t *testing.T) {
	e := New(zap.NewNop(), Config{Workers: 4})

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Do(context.Background(), e, "status", func(ctx context.Context) (int, error) {
				return 1, nil
			})
			if err != nil {
				assert.ErrorIs(t, err, ErrShutdown)
			}
		}()
	}
	e.Shutdown()
	wg.Wait()
}
