package scheduler

import (
	"fmt"

	"github.com/seventv/deepzoom/container"
	"github.com/seventv/deepzoom/internal/engine"
	"github.com/seventv/deepzoom/task"
	"go.uber.org/zap"
)

type WorkerState int32

const (
	WorkerStatePending WorkerState = iota
	WorkerStateAvailable
	WorkerStateBusy
)

func (s WorkerState) String() string {
	switch s {
	case WorkerStatePending:
		return "pending"
	case WorkerStateAvailable:
		return "available"
	case WorkerStateBusy:
		return "busy"
	default:
		return fmt.Sprintf("unknown state %d", s)
	}
}

// Worker owns one engine and runs one request at a time on its own goroutine.
// Its State is only touched under the pool mutex.
type Worker struct {
	ID    string
	State WorkerState

	// taskID is the request the worker is busy with.
	taskID string

	inbox   chan task.Request
	out     chan<- task.Message
	done    <-chan struct{}
	factory engine.Factory
	quality int
}

func (w *Worker) run() {
	var eng engine.Engine
	defer func() {
		if eng != nil {
			if err := eng.Close(); err != nil {
				zap.S().Warnw("failed to close engine",
					"worker_id", w.ID,
					"error", err,
				)
			}
		}
	}()

	for req := range w.inbox {
		msg := w.handle(&eng, req)

		select {
		case w.out <- msg:
		case <-w.done:
			return
		}

		// a worker that could not load its engine is never handed work
		if req.Op == task.OpLoad && eng == nil {
			return
		}
	}
}

func (w *Worker) handle(eng *engine.Engine, req task.Request) (msg task.Message) {
	msg = task.Message{
		WorkerID:  w.ID,
		RequestID: req.RequestID,
	}

	defer func() {
		if pnk := recover(); pnk != nil {
			msg.Kind = task.MessageKindError
			msg.Error = fmt.Sprintf("panic at runtime: %v", pnk)
			msg.Resize = nil
			msg.Crop = nil
		}
	}()

	if req.Op == task.OpLoad {
		if *eng == nil {
			e, err := w.factory()
			if err != nil {
				msg.Kind = task.MessageKindError
				msg.Error = err.Error()
				return msg
			}
			*eng = e
		}

		msg.Kind = task.MessageKindStatus
		msg.Message = task.MessageReady
		return msg
	}

	var err error
	if *eng == nil {
		err = fmt.Errorf("engine is not loaded")
	} else if err = req.Validate(); err == nil {
		switch req.Op {
		case task.OpResize:
			var res task.ResizeResult
			if res, err = w.resize(*eng, *req.Resize); err == nil {
				msg.Resize = &res
			}
		case task.OpCrop:
			var res task.CropResult
			if res, err = w.crop(*eng, *req.Crop); err == nil {
				msg.Crop = &res
			}
		}
	}

	if err != nil {
		msg.Kind = task.MessageKindError
		msg.Error = err.Error()
		return msg
	}

	msg.Kind = task.MessageKindSuccess
	return msg
}

func (w *Worker) qualityOf(q int) int {
	if q > 0 {
		return q
	}

	return w.quality
}

func (w *Worker) resize(eng engine.Engine, req task.ResizeRequest) (task.ResizeResult, error) {
	img, err := eng.Load(req.Source)
	if err != nil {
		return task.ResizeResult{}, err
	}

	scale := req.Scale
	if req.LongEdge > 0 {
		scale = task.ScaleFactor(img.Width(), img.Height(), req.LongEdge)
	}

	out, err := eng.Resize(img, scale)
	if err != nil {
		return task.ResizeResult{}, err
	}

	data, err := eng.EncodeJPEG(out, w.qualityOf(req.Quality))
	if err != nil {
		return task.ResizeResult{}, err
	}

	return task.ResizeResult{
		Data:  data,
		Scale: scale,
		Meta: task.AssetMeta{
			Mime:   container.MimeJPEG,
			Size:   len(data),
			Width:  out.Width(),
			Height: out.Height(),
		},
	}, nil
}

func (w *Worker) crop(eng engine.Engine, req task.CropRequest) (task.CropResult, error) {
	img, err := eng.Load(req.Source)
	if err != nil {
		return task.CropResult{}, err
	}

	out, err := eng.Crop(img, req.StartX, req.StartY, req.TileWidth, req.TileHeight)
	if err != nil {
		return task.CropResult{}, err
	}

	data, err := eng.EncodeJPEG(out, w.qualityOf(req.Quality))
	if err != nil {
		return task.CropResult{}, err
	}

	return task.CropResult{Data: data}, nil
}
