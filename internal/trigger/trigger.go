// Package trigger schedules continuation runs of the ingestion orchestrator.
package trigger

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/esg-pipeline/internal/model"
)

// Trigger schedules another ingestion run for ref without waiting for it.
type Trigger interface {
	InvokeAsync(ctx context.Context, ref model.SourceRef) error
}

// Handler runs one ingestion invocation for ref.
type Handler func(ctx context.Context, ref model.SourceRef) error

// Func adapts a function to Trigger.
type Func func(ctx context.Context, ref model.SourceRef) error

func (f Func) InvokeAsync(ctx context.Context, ref model.SourceRef) error {
	return f(ctx, ref)
}

// ErrQueueFull is returned when a Queue cannot accept another continuation.
var ErrQueueFull = eris.New("trigger: queue full")

// Queue is an in-process Trigger backed by a buffered channel.
type Queue struct {
	ch chan model.SourceRef
}

// NewQueue returns a Queue holding at most size pending continuations.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 16
	}
	return &Queue{ch: make(chan model.SourceRef, size)}
}

// InvokeAsync enqueues ref. It never blocks.
func (q *Queue) InvokeAsync(ctx context.Context, ref model.SourceRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.ch <- ref:
		return nil
	default:
		return eris.Wrapf(ErrQueueFull, "trigger: enqueue %s", ref)
	}
}

// Len returns the number of pending continuations.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Drain runs handler for each pending continuation, including any enqueued
// by the handler itself, until the queue is empty.
func (q *Queue) Drain(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ref := <-q.ch:
			if err := handler(ctx, ref); err != nil {
				return eris.Wrapf(err, "trigger: run %s", ref)
			}
		default:
			return nil
		}
	}
}

// Run runs handler for each continuation as it arrives until ctx is
// cancelled. Handler errors are logged and do not stop the loop.
func (q *Queue) Run(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ref := <-q.ch:
			if err := handler(ctx, ref); err != nil {
				zap.L().Error("continuation failed",
					zap.String("component", "trigger.queue"),
					zap.String("source", ref.String()),
					zap.Error(err),
				)
			}
		}
	}
}
