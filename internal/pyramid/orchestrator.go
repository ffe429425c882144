package pyramid

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/seventv/deepzoom/container"
	"github.com/seventv/deepzoom/internal/instance"
	"github.com/seventv/deepzoom/task"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported source format")
	ErrTileNotFound      = errors.New("tile not found")
)

// RetryPolicy decides whether a failed transform is attempted again. attempt
// counts the attempts made so far, starting at 1.
type RetryPolicy func(op task.Op, attempt int, err error) bool

// NoRetry gives every transform a single attempt.
func NoRetry(task.Op, int, error) bool {
	return false
}

// MaxAttempts allows up to n attempts per transform, context errors are never retried.
func MaxAttempts(n int) RetryPolicy {
	return func(_ task.Op, attempt int, err error) bool {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}

		return attempt < n
	}
}

type Options struct {
	TileSize   int
	Quality    int
	Retry      RetryPolicy
	Prometheus instance.Prometheus
}

// Orchestrator builds pyramids on a scheduler. It runs one build at a time.
type Orchestrator struct {
	run sync.Mutex

	scheduler instance.Scheduler
	state     *State
	opts      Options
}

func NewOrchestrator(scheduler instance.Scheduler, opts Options) *Orchestrator {
	if opts.TileSize <= 0 {
		opts.TileSize = 512
	}
	if opts.Quality <= 0 {
		opts.Quality = task.DefaultQuality
	}
	if opts.Retry == nil {
		opts.Retry = NoRetry
	}

	return &Orchestrator{
		scheduler: scheduler,
		state:     NewState(),
		opts:      opts,
	}
}

func (o *Orchestrator) State() *State {
	return o.state
}

func (o *Orchestrator) TileSize() int {
	return o.opts.TileSize
}

// Generate builds the pyramid of source into the orchestrator state. Failed
// levels and tiles are recorded in the state and do not fail the build; only
// invalid input and cancellation are returned.
func (o *Orchestrator) Generate(ctx context.Context, source []byte) error {
	o.run.Lock()
	defer o.run.Unlock()

	o.state.Reset(o.opts.TileSize, 0, 0, nil)
	defer o.state.Finish()

	mime := container.Match(source)
	if !container.Decodable(mime) {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, mime.MIME.Value)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(source))
	if err != nil {
		return multierr.Append(fmt.Errorf("failed at read dimensions"), err)
	}

	levels, err := Plan(cfg.Width, cfg.Height, o.opts.TileSize)
	if err != nil {
		return err
	}

	o.state.Reset(o.opts.TileSize, cfg.Width, cfg.Height, levels)

	zap.S().Infow("planned pyramid",
		"width", cfg.Width,
		"height", cfg.Height,
		"tile_size", o.opts.TileSize,
		"max_level", levels[0].Level,
	)

	built, err := o.resizeLevels(ctx, source, levels)
	if err != nil {
		return err
	}

	if transposed(levels, built) {
		o.state.Transpose()

		zap.S().Infow("source is rotated",
			"width", cfg.Height,
			"height", cfg.Width,
		)
	}

	return o.cropLevels(ctx, built)
}

func (o *Orchestrator) resizeLevels(ctx context.Context, source []byte, levels []Level) ([]Level, error) {
	if o.opts.Prometheus != nil {
		defer o.opts.Prometheus.ResizeLevels()()
	}

	built := make([]*Level, len(levels))

	g := errgroup.Group{}
	for i, lvl := range levels {
		i, lvl := i, lvl
		g.Go(func() error {
			var res task.ResizeResult
			err := o.attempt(ctx, task.OpResize, func() (err error) {
				res, err = o.scheduler.Resize(ctx, task.ResizeRequest{
					Source:  source,
					Scale:   lvl.Scale,
					Quality: o.opts.Quality,
				})
				return err
			})
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}

				zap.S().Warnw("failed to resize level",
					"level", lvl.Level,
					"scale", lvl.Scale,
					"error", err,
				)
				o.state.SetLevelError(lvl.Level, err.Error())
				return nil
			}

			lvl.Width = res.Meta.Width
			lvl.Height = res.Meta.Height
			lvl.TilesWide = ceilDiv(lvl.Width, o.opts.TileSize)
			lvl.TilesHigh = ceilDiv(lvl.Height, o.opts.TileSize)
			lvl.Image = res.Data
			built[i] = &lvl

			o.state.SetLevel(lvl)

			zap.S().Debugw("resized level",
				"level", lvl.Level,
				"width", lvl.Width,
				"height", lvl.Height,
			)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Level, 0, len(built))
	for _, lvl := range built {
		if lvl != nil {
			out = append(out, *lvl)
		}
	}

	return out, nil
}

func (o *Orchestrator) cropLevels(ctx context.Context, levels []Level) error {
	if o.opts.Prometheus != nil {
		defer o.opts.Prometheus.CropTiles()()
	}

	g := errgroup.Group{}
	for _, lvl := range levels {
		lvl := lvl
		g.Go(func() error {
			return o.cropLevel(ctx, lvl)
		})
	}

	return g.Wait()
}

// transposed reports whether the levels were built with their edges swapped,
// as decoders applying an EXIF rotation do.
func transposed(planned, built []Level) bool {
	for _, b := range built {
		for _, p := range planned {
			if p.Level == b.Level && p.Width != p.Height {
				return b.Width == p.Height && b.Height == p.Width
			}
		}
	}

	return false
}

// cropLevel crops the tiles of one level one after another. The grid follows
// the size the level was built at.
func (o *Orchestrator) cropLevel(ctx context.Context, lvl Level) error {
	rects := TileGrid(lvl.Width, lvl.Height, o.opts.TileSize)
	keys := o.state.AddTiles(lvl.Level, rects)

	failed := 0
	for i, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := o.cropTile(ctx, lvl, key, rects[i]); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
		}
	}

	zap.S().Infow("cropped level",
		"level", lvl.Level,
		"tiles", len(keys),
		"failed", failed,
	)

	return nil
}

func (o *Orchestrator) cropTile(ctx context.Context, lvl Level, key Key, rect Rect) error {
	_ = o.state.SetStatus(key, TileStatusProcessing, nil, "")

	var res task.CropResult
	err := o.attempt(ctx, task.OpCrop, func() (err error) {
		res, err = o.scheduler.Crop(ctx, task.CropRequest{
			Source:     lvl.Image,
			StartX:     rect.X,
			StartY:     rect.Y,
			TileWidth:  rect.Width,
			TileHeight: rect.Height,
			Quality:    o.opts.Quality,
		})
		return err
	})

	status := TileStatusCropped
	reason := ""
	if err != nil {
		status = TileStatusError
		reason = err.Error()

		zap.S().Warnw("failed to crop tile",
			"tile", key.String(),
			"error", err,
		)
	}

	_ = o.state.SetStatus(key, status, res.Data, reason)
	if o.opts.Prometheus != nil {
		o.opts.Prometheus.TileSettled(status.String())
	}

	return err
}

func (o *Orchestrator) attempt(ctx context.Context, op task.Op, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || ctx.Err() != nil || !o.opts.Retry(op, attempt, err) {
			return err
		}

		zap.S().Debugw("retrying transform",
			"op", op.String(),
			"attempt", attempt,
			"error", err,
		)
	}
}

// RetryTile crops a single tile again from its built level.
func (o *Orchestrator) RetryTile(ctx context.Context, key Key) error {
	o.run.Lock()
	defer o.run.Unlock()

	tile, ok := o.state.Tile(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTileNotFound, key)
	}

	lvl, ok := o.state.Level(key.Level)
	if !ok || lvl.Image == nil {
		return fmt.Errorf("%w: level %d was not built", ErrTileNotFound, key.Level)
	}

	return o.cropTile(ctx, lvl, key, tile.Rect)
}
