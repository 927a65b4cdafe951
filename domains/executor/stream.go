package executor

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/gomantics/gitmcp/domains/toolerr"
	"go.uber.org/zap"
)

// EventType tags a stream event.
type EventType string

const (
	EventPartial  EventType = "partial"
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Progress reports how far a long-running phase has come. Total is nil
// until it is known.
type Progress struct {
	Phase string `json:"phase"`
	Done  int64  `json:"done"`
	Total *int64 `json:"total,omitempty"`
}

// Event is one element of a stream. Exactly one of Item, Progress or Err is
// meaningful, depending on Type.
type Event[T any] struct {
	Type      EventType      `json:"type"`
	Item      T              `json:"item,omitempty"`
	Progress  *Progress      `json:"progress,omitempty"`
	Err       *toolerr.Error `json:"error,omitempty"`
	Cancelled bool           `json:"cancelled,omitempty"`
}

// Terminal reports whether ev ends its stream.
func (ev Event[T]) Terminal() bool {
	return ev.Type == EventComplete || ev.Type == EventError
}

// Producer generates the items of a stream.
type Producer[T any] func(ctx context.Context, em *Emitter[T]) error

// Stream is a lazy, finite, non-restartable sequence of events. It is
// consumed by a single goroutine through Next; Cancel may be called from any
// goroutine.
type Stream[T any] struct {
	op        string
	events    chan Event[T]
	cancel    context.CancelFunc
	cancelled atomic.Bool

	// err is written by the producer before events is closed
	err  error
	done bool
}

// Start runs produce on a worker slot and returns its stream. The queue
// holds at most the configured number of events; the producer blocks while
// it is full. If ctx belongs to an invocation registered with Begin, the
// stream takes over finishing it.
func Start[T any](ctx context.Context, e *Executor, op string, produce Producer[T]) *Stream[T] {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream[T]{
		op:     op,
		events: make(chan Event[T], e.cfg.QueueSize),
		cancel: cancel,
	}

	inv := invocationFrom(ctx)
	if inv != nil {
		inv.attach(s)
	}

	if !e.track() {
		s.err = toolerr.Wrap(toolerr.KindCancelled, ErrShutdown, "executor is shut down").WithOp(op, "")
		close(s.events)
		if inv != nil {
			inv.finish()
		}
		return s
	}

	go func() {
		defer e.wg.Done()
		defer close(s.events)
		if inv != nil {
			defer inv.finish()
		}

		if err := e.sem.Acquire(ctx, 1); err != nil {
			s.err = toolerr.Wrap(toolerr.KindCancelled, err, "operation cancelled").WithOp(op, "")
			return
		}
		defer e.sem.Release(1)

		e.l.Debug("stream started", zap.String("op", op))
		s.err = runProducer(ctx, e, s, produce)
		if s.err != nil && !toolerr.IsKind(s.err, toolerr.KindCancelled) {
			e.l.Warn("stream failed", zap.String("op", op), zap.Error(s.err))
		} else {
			e.l.Debug("stream finished", zap.String("op", op))
		}
	}()

	return s
}

func runProducer[T any](ctx context.Context, e *Executor, s *Stream[T], produce Producer[T]) (err error) {
	defer func() {
		if p := recover(); p != nil {
			e.l.Error("stream producer panicked", zap.String("op", s.op), zap.Any("panic", p))
			err = toolerr.Wrap(toolerr.KindEngine, fmt.Errorf("panic: %v", p), "internal engine failure").WithOp(s.op, "")
		}
	}()

	em := &Emitter[T]{ctx: ctx, s: s, last: make(map[string]int64)}
	return produce(ctx, em)
}

// Next returns the next event. After the terminal event it returns false.
// Once Cancel was called no partial or progress events are returned and the
// stream ends with a cancelled completion.
func (s *Stream[T]) Next() (Event[T], bool) {
	if s.done {
		return Event[T]{}, false
	}

	for ev := range s.events {
		if s.cancelled.Load() {
			continue
		}
		return ev, true
	}

	s.done = true
	s.cancel()
	return s.terminal(), true
}

func (s *Stream[T]) terminal() Event[T] {
	if s.cancelled.Load() {
		return Event[T]{Type: EventComplete, Cancelled: true}
	}
	if s.err == nil {
		return Event[T]{Type: EventComplete}
	}

	te := toolerr.From(s.err).WithOp(s.op, "")
	if te.Kind == toolerr.KindCancelled {
		return Event[T]{Type: EventComplete, Cancelled: true}
	}
	return Event[T]{Type: EventError, Err: te}
}

// Cancel asks the producer to stop at its next item boundary.
func (s *Stream[T]) Cancel() {
	s.cancelled.Store(true)
	s.cancel()
}

// Collect drains the stream and returns its items. A cancelled stream
// returns the items received so far with a cancelled error.
func (s *Stream[T]) Collect() ([]T, error) {
	var items []T
	for {
		ev, ok := s.Next()
		if !ok {
			return items, nil
		}
		switch ev.Type {
		case EventPartial:
			items = append(items, ev.Item)
		case EventError:
			return items, ev.Err
		case EventComplete:
			if ev.Cancelled {
				return items, toolerr.Cancelled(s.op)
			}
			return items, nil
		}
	}
}

// Emitter is the producer side of a stream.
type Emitter[T any] struct {
	ctx   context.Context
	s     *Stream[T]
	last  map[string]int64
	items int
}

// Context returns the stream context; it is cancelled by Stream.Cancel.
func (em *Emitter[T]) Context() context.Context {
	return em.ctx
}

// Items returns the number of items emitted so far.
func (em *Emitter[T]) Items() int {
	return em.items
}

// Item emits one partial result, blocking while the queue is full.
func (em *Emitter[T]) Item(item T) error {
	if err := em.send(Event[T]{Type: EventPartial, Item: item}); err != nil {
		return err
	}
	em.items++
	return nil
}

// Progress emits a progress report. Reports whose counter went backwards
// within a phase are dropped.
func (em *Emitter[T]) Progress(p Progress) error {
	if prev, ok := em.last[p.Phase]; ok && p.Done < prev {
		return nil
	}
	em.last[p.Phase] = p.Done
	return em.send(Event[T]{Type: EventProgress, Progress: &p})
}

func (em *Emitter[T]) send(ev Event[T]) error {
	if em.s.cancelled.Load() {
		return toolerr.Cancelled(em.s.op)
	}
	if err := em.ctx.Err(); err != nil {
		return toolerr.Wrap(toolerr.KindCancelled, err, "operation cancelled").WithOp(em.s.op, "")
	}

	select {
	case em.s.events <- ev:
		return nil
	case <-em.ctx.Done():
		return toolerr.Wrap(toolerr.KindCancelled, em.ctx.Err(), "operation cancelled").WithOp(em.s.op, "")
	}
}
