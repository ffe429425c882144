package scheduler

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/seventv/deepzoom/internal/engine"
	"github.com/seventv/deepzoom/internal/instance"
	"github.com/seventv/deepzoom/task"
	"go.uber.org/zap"
)

var _ instance.Scheduler = (*Pool)(nil)

type Options struct {
	MaxConcurrency  int
	MaxInitAttempts int
	Quality         int
	Factory         engine.Factory
	Prometheus      instance.Prometheus
}

type inflight struct {
	task     *Task
	workerID string
	finish   func(success bool)
}

// Pool is a bounded set of workers fed from a FIFO queue. Workers are created
// lazily, one per dispatch attempt that finds no available worker, until
// MaxConcurrency is reached. All bookkeeping happens under mu.
type Pool struct {
	mu sync.Mutex

	maxConcurrency  int
	maxInitAttempts int
	quality         int
	factory         engine.Factory
	prom            instance.Prometheus

	pending   map[string]*Worker
	available map[string]*Worker
	busy      map[string]*Worker

	queue        Queue
	inflight     map[string]*inflight
	initFailures int
	closed       bool

	messages chan task.Message
	done     chan struct{}
}

func New(opts Options) *Pool {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = runtime.GOMAXPROCS(0)
	}
	if opts.MaxInitAttempts <= 0 {
		opts.MaxInitAttempts = 3
	}
	if opts.Quality <= 0 {
		opts.Quality = task.DefaultQuality
	}
	if opts.Factory == nil {
		opts.Factory = engine.NewImaging
	}

	p := &Pool{
		maxConcurrency:  opts.MaxConcurrency,
		maxInitAttempts: opts.MaxInitAttempts,
		quality:         opts.Quality,
		factory:         opts.Factory,
		prom:            opts.Prometheus,
		pending:         map[string]*Worker{},
		available:       map[string]*Worker{},
		busy:            map[string]*Worker{},
		inflight:        map[string]*inflight{},
		messages:        make(chan task.Message),
		done:            make(chan struct{}),
	}

	go p.route()

	return p
}

// Submit queues the task and tries to dispatch it. It never blocks.
func (p *Pool) Submit(t *Task) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t.pool = p

	if p.closed {
		t.settle(Result{Err: ErrClosed})
		return
	}

	p.queue.Push(t)
	p.dispatch()
}

// Do submits a request and waits for its result.
func (p *Pool) Do(ctx context.Context, req task.Request) (task.Message, error) {
	t := NewTask(ctx, req)
	p.Submit(t)

	return t.Wait(ctx)
}

func (p *Pool) Resize(ctx context.Context, req task.ResizeRequest) (task.ResizeResult, error) {
	msg, err := p.Do(ctx, task.Request{
		Op:     task.OpResize,
		Resize: &req,
	})
	if err != nil {
		return task.ResizeResult{}, err
	}

	if msg.Resize == nil {
		return task.ResizeResult{}, fmt.Errorf("worker %s returned no resize result", msg.WorkerID)
	}

	return *msg.Resize, nil
}

func (p *Pool) Crop(ctx context.Context, req task.CropRequest) (task.CropResult, error) {
	msg, err := p.Do(ctx, task.Request{
		Op:   task.OpCrop,
		Crop: &req,
	})
	if err != nil {
		return task.CropResult{}, err
	}

	if msg.Crop == nil {
		return task.CropResult{}, fmt.Errorf("worker %s returned no crop result", msg.WorkerID)
	}

	return *msg.Crop, nil
}

func (p *Pool) Stats() instance.SchedulerStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return instance.SchedulerStats{
		Pending:   len(p.pending),
		Available: len(p.available),
		Busy:      len(p.busy),
		Queued:    p.queue.Len(),
		InFlight:  len(p.inflight),
		Closed:    p.closed,
	}
}

// Close fails every queued and in-flight task with ErrClosed and stops the workers.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	for _, t := range p.queue.Drain() {
		t.settle(Result{Err: ErrClosed})
	}

	for id, f := range p.inflight {
		delete(p.inflight, id)
		f.finish(false)
		f.task.settle(Result{Err: ErrClosed})
	}

	for _, m := range []map[string]*Worker{p.pending, p.available, p.busy} {
		for id, w := range m {
			close(w.inbox)
			delete(m, id)
		}
	}

	close(p.done)
	p.observe()

	return nil
}

func (p *Pool) workers() int {
	return len(p.pending) + len(p.available) + len(p.busy)
}

// dispatch hands queued tasks to available workers, oldest first. When none
// is available it grows the pool by at most one worker.
func (p *Pool) dispatch() {
	defer p.observe()

	for p.queue.Len() > 0 {
		var w *Worker
		for _, v := range p.available {
			w = v
			break
		}

		if w == nil {
			p.grow()
			return
		}

		t := p.queue.Pop()
		if err := t.ctx.Err(); err != nil {
			t.settle(Result{Err: err})
			continue
		}

		delete(p.available, w.ID)
		w.State = WorkerStateBusy
		w.taskID = t.ID
		p.busy[w.ID] = w

		p.inflight[t.ID] = &inflight{
			task:     t,
			workerID: w.ID,
			finish:   p.startTask(t.Op),
		}

		zap.S().Debugw("dispatched task",
			"task_id", t.ID,
			"op", t.Op.String(),
			"worker_id", w.ID,
		)

		w.inbox <- t.Request
	}
}

func (p *Pool) grow() {
	if p.initFailures >= p.maxInitAttempts {
		if p.workers() == 0 {
			for _, t := range p.queue.Drain() {
				t.settle(Result{Err: ErrInitialization})
			}
		}
		return
	}

	if p.workers() >= p.maxConcurrency {
		return
	}

	w := &Worker{
		ID:      uuid.New().String(),
		State:   WorkerStatePending,
		inbox:   make(chan task.Request, 1),
		out:     p.messages,
		done:    p.done,
		factory: p.factory,
		quality: p.quality,
	}
	p.pending[w.ID] = w

	zap.S().Debugw("starting worker",
		"worker_id", w.ID,
		"workers", p.workers(),
	)

	go w.run()

	w.inbox <- task.Request{
		Op:        task.OpLoad,
		RequestID: w.ID,
	}
}

func (p *Pool) route() {
	for {
		select {
		case <-p.done:
			return
		case msg := <-p.messages:
			p.handle(msg)
		}
	}
}

func (p *Pool) handle(msg task.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	if _, ok := p.pending[msg.WorkerID]; ok {
		if msg.IsReady() {
			p.onWorkerReady(msg.WorkerID)
		} else {
			p.onWorkerInitFailed(msg.WorkerID, msg.Error)
		}
		return
	}

	p.onTaskComplete(msg.WorkerID, msg.RequestID, msg)
}

func (p *Pool) onWorkerReady(workerID string) {
	w := p.pending[workerID]
	delete(p.pending, workerID)
	w.State = WorkerStateAvailable
	p.available[workerID] = w

	zap.S().Debugw("worker ready",
		"worker_id", workerID,
	)

	p.dispatch()
}

func (p *Pool) onWorkerInitFailed(workerID string, reason string) {
	w := p.pending[workerID]
	delete(p.pending, workerID)
	close(w.inbox)

	p.initFailures++
	if p.prom != nil {
		p.prom.WorkerInitFailed()
	}

	zap.S().Warnw("worker failed to initialize",
		"worker_id", workerID,
		"attempt", p.initFailures,
		"error", reason,
	)

	p.dispatch()
}

func (p *Pool) onTaskComplete(workerID string, taskID string, msg task.Message) {
	// only the reply to the task a worker was handed frees it
	if w, ok := p.busy[workerID]; ok && w.taskID == taskID {
		delete(p.busy, workerID)
		w.State = WorkerStateAvailable
		w.taskID = ""
		p.available[workerID] = w
	}

	f, ok := p.inflight[taskID]
	if ok && f.workerID == workerID {
		delete(p.inflight, taskID)
	} else {
		ok = false
	}

	if !ok {
		if p.prom != nil {
			p.prom.CorrelationMiss()
		}
		zap.S().Warnw("dropping message for unknown task",
			"task_id", taskID,
			"worker_id", workerID,
			"kind", msg.Kind.String(),
		)
	} else {
		success := msg.Kind == task.MessageKindSuccess
		f.finish(success)
		f.task.settle(Result{Message: msg})
	}

	p.dispatch()
}

// discard forgets a task given up on by its caller.
func (p *Pool) discard(t *Task) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.queue.Remove(t.ID) {
		p.observe()
		return
	}

	if f, ok := p.inflight[t.ID]; ok {
		delete(p.inflight, t.ID)
		f.finish(false)
	}
}

func (p *Pool) startTask(op task.Op) func(bool) {
	if p.prom == nil {
		start := time.Now()
		return func(success bool) {
			zap.S().Debugw("task settled",
				"op", op.String(),
				"success", success,
				"duration", time.Since(start),
			)
		}
	}

	return p.prom.StartTask(op.String())
}

func (p *Pool) observe() {
	if p.prom == nil {
		return
	}

	p.prom.WorkerStates(len(p.pending), len(p.available), len(p.busy))
	p.prom.QueueLength(p.queue.Len())
}
