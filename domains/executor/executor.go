// Package executor runs blocking repository work on a bounded set of worker
// slots and streams results back through bounded queues.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gomantics/gitmcp/config"
	"github.com/gomantics/gitmcp/domains/toolerr"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrShutdown is the cause of work refused after Shutdown.
var ErrShutdown = errors.New("executor is shut down")

// Config holds the executor limits.
type Config struct {
	Workers        int
	QueueSize      int
	LockRetries    int
	RetryDelay     time.Duration
	DefaultTimeout time.Duration
}

// Executor bounds concurrent engine work and tracks running invocations.
type Executor struct {
	l   *zap.Logger
	cfg Config
	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu     sync.Mutex
	active map[string]*invocation
	closed bool
}

// New creates an executor.
func New(l *zap.Logger, cfg Config) *Executor {
	cfg.Workers = max(cfg.Workers, 1)
	cfg.QueueSize = max(cfg.QueueSize, 1)
	cfg.LockRetries = max(cfg.LockRetries, 0)
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Millisecond
	}

	return &Executor{
		l:      l,
		cfg:    cfg,
		sem:    semaphore.NewWeighted(int64(cfg.Workers)),
		active: make(map[string]*invocation),
	}
}

// NewFromConfig creates the executor and shuts it down when the application stops.
func NewFromConfig(lc fx.Lifecycle, l *zap.Logger) *Executor {
	e := New(l, Config{
		Workers:        int(config.Executor.Workers()),
		QueueSize:      int(config.Executor.QueueSize()),
		LockRetries:    int(config.Executor.LockRetries()),
		RetryDelay:     config.Executor.RetryDelay(),
		DefaultTimeout: config.Executor.DefaultTimeout(),
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			l.Info("starting executor",
				zap.Int("workers", e.cfg.Workers),
				zap.Int("queue_size", e.cfg.QueueSize),
			)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			e.Shutdown()
			return nil
		},
	})
	return e
}

type invocationKey struct{}

type invocation struct {
	id     string
	e      *Executor
	cancel context.CancelFunc
	once   sync.Once

	mu     sync.Mutex
	stream interface{ Cancel() }
}

func (inv *invocation) attach(s interface{ Cancel() }) {
	inv.mu.Lock()
	inv.stream = s
	inv.mu.Unlock()
}

func (inv *invocation) abort() {
	inv.cancel()
	inv.mu.Lock()
	s := inv.stream
	inv.mu.Unlock()
	if s != nil {
		s.Cancel()
	}
}

func (inv *invocation) finish() {
	inv.once.Do(func() {
		inv.e.mu.Lock()
		if inv.e.active[inv.id] == inv {
			delete(inv.e.active, inv.id)
		}
		inv.e.mu.Unlock()
		inv.cancel()
	})
}

// Begin registers a cancellable invocation. The returned context carries the
// timeout (the configured default when timeout is zero) and done must be
// called once the invocation finished; Start calls it itself for streams.
func (e *Executor) Begin(ctx context.Context, id string, timeout time.Duration) (context.Context, func(), error) {
	if timeout <= 0 {
		timeout = e.cfg.DefaultTimeout
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, nil, toolerr.Cancelled("begin")
	}
	if _, ok := e.active[id]; ok {
		return nil, nil, toolerr.InvalidArguments("invocation %q is already running", id)
	}

	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	inv := &invocation{id: id, e: e, cancel: cancel}
	e.active[id] = inv
	return context.WithValue(ctx, invocationKey{}, inv), inv.finish, nil
}

func invocationFrom(ctx context.Context) *invocation {
	inv, _ := ctx.Value(invocationKey{}).(*invocation)
	return inv
}

// Cancel cancels a running invocation. It reports whether id was running.
func (e *Executor) Cancel(id string) bool {
	e.mu.Lock()
	inv, ok := e.active[id]
	e.mu.Unlock()

	if !ok {
		return false
	}
	e.l.Debug("cancelling invocation", zap.String("invocation_id", id))
	inv.abort()
	return true
}

// Active returns the number of running invocations.
func (e *Executor) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// Shutdown cancels every running invocation and waits for the workers to
// return. New invocations are refused afterwards.
func (e *Executor) Shutdown() {
	e.mu.Lock()
	e.closed = true
	running := make([]*invocation, 0, len(e.active))
	for _, inv := range e.active {
		running = append(running, inv)
	}
	e.mu.Unlock()

	e.l.Info("stopping executor", zap.Int("running", len(running)))
	for _, inv := range running {
		inv.abort()
	}
	e.wg.Wait()
	e.l.Info("executor stopped")
}

// track registers one worker goroutine with the wait group. It refuses once
// Shutdown has started so that Add never races with Wait.
func (e *Executor) track() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.wg.Add(1)
	return true
}

// Do runs fn on a worker slot and returns its result. Errors of a retryable
// kind are retried with exponential backoff; everything else is returned
// as a *toolerr.Error on the first failure.
func Do[T any](ctx context.Context, e *Executor, op string, fn func(context.Context) (T, error)) (T, error) {
	var (
		zero    T
		lastErr *toolerr.Error
	)

	for attempt := range e.cfg.LockRetries + 1 {
		if attempt > 0 {
			delay := e.cfg.RetryDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return zero, toolerr.Wrap(toolerr.KindCancelled, ctx.Err(), "operation cancelled").WithOp(op, "")
			case <-time.After(delay):
			}
		}

		result, err := runOnWorker(ctx, e, op, fn)
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !err.Retryable {
			return zero, err
		}
		e.l.Debug("retrying operation",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.String("kind", err.Kind.String()),
		)
	}

	e.l.Warn("operation failed after retries", zap.String("op", op), zap.Error(lastErr))
	return zero, lastErr
}

func runOnWorker[T any](ctx context.Context, e *Executor, op string, fn func(context.Context) (T, error)) (T, *toolerr.Error) {
	var zero T

	if err := ctx.Err(); err != nil {
		return zero, toolerr.Wrap(toolerr.KindCancelled, err, "operation cancelled").WithOp(op, "")
	}
	if !e.track() {
		return zero, toolerr.Wrap(toolerr.KindCancelled, ErrShutdown, "executor is shut down").WithOp(op, "")
	}
	if err := e.sem.Acquire(ctx, 1); err != nil {
		e.wg.Done()
		return zero, toolerr.Wrap(toolerr.KindCancelled, err, "operation cancelled").WithOp(op, "")
	}
	defer e.sem.Release(1)

	type outcome struct {
		result T
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer e.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				e.l.Error("operation panicked", zap.String("op", op), zap.Any("panic", p))
				done <- outcome{err: toolerr.Wrap(toolerr.KindEngine, fmt.Errorf("panic: %v", p), "internal engine failure")}
			}
		}()

		result, err := fn(ctx)
		done <- outcome{result: result, err: err}
	}()

	// the engine call is never pre-empted; cancellation is cooperative
	out := <-done
	if out.err != nil {
		return zero, toolerr.From(out.err).WithOp(op, "")
	}
	return out.result, nil
}
