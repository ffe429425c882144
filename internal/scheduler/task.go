package scheduler

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/seventv/deepzoom/task"
)

// Result is the settled outcome of a Task.
type Result struct {
	Message task.Message
	Err     error
}

// Task is one unit of work handed to a worker. Its result is settled exactly once.
type Task struct {
	ID      string
	Op      task.Op
	Request task.Request

	ctx    context.Context
	once   sync.Once
	result chan Result
	pool   *Pool
}

func NewTask(ctx context.Context, req task.Request) *Task {
	if ctx == nil {
		ctx = context.Background()
	}

	id := uuid.New().String()
	req.RequestID = id

	return &Task{
		ID:      id,
		Op:      req.Op,
		Request: req,
		ctx:     ctx,
		result:  make(chan Result, 1),
	}
}

// settle reports whether this call was the one that settled the task.
func (t *Task) settle(r Result) (settled bool) {
	t.once.Do(func() {
		t.result <- r
		settled = true
	})

	return settled
}

// Wait blocks until the task settles or either context is done. A task given
// up on is dropped from the pool; if a worker already runs it, its result is
// discarded when it arrives.
func (t *Task) Wait(ctx context.Context) (task.Message, error) {
	if ctx == nil {
		ctx = t.ctx
	}

	var r Result
	select {
	case r = <-t.result:
	case <-ctx.Done():
		t.abandon(ctx.Err())
		return task.Message{}, ctx.Err()
	case <-t.ctx.Done():
		t.abandon(t.ctx.Err())
		return task.Message{}, t.ctx.Err()
	}

	if r.Err != nil {
		return r.Message, r.Err
	}

	if r.Message.Kind == task.MessageKindError {
		return r.Message, errors.New(r.Message.Error)
	}

	return r.Message, nil
}

func (t *Task) abandon(err error) {
	if t.pool != nil {
		t.pool.discard(t)
	}

	t.settle(Result{Err: err})
}
