package deepzoom

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/samber/lo"
	"github.com/seventv/deepzoom/container"
	"github.com/seventv/deepzoom/internal/archive"
	"github.com/seventv/deepzoom/internal/global"
	"github.com/seventv/deepzoom/internal/publish"
	"github.com/seventv/deepzoom/internal/pyramid"
	"github.com/seventv/deepzoom/task"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"
)

const ArchiveName = "tiles.zip"

type Worker struct{}

func (w Worker) Work(ctx global.Context, job task.Job, result *task.Result) (err error) {
	if result == nil {
		return fmt.Errorf("nil for result")
	}

	zap.S().Debugw("starting new job",
		"job_id", job.ID,
	)

	finish := ctx.Inst().Prometheus.StartBuild()
	result.StartedAt = time.Now()

	defer func() {
		if pnk := recover(); pnk != nil {
			err = multierr.Append(fmt.Errorf("panic at runtime: %v", pnk), err)
		}

		result.FinishedAt = time.Now()

		finish(err == nil)
	}()

	if err := job.Validate(); err != nil {
		return multierr.Append(fmt.Errorf("failed at validate job"), err)
	}

	raw, err := w.downloadFile(ctx, job)
	if err != nil {
		return multierr.Append(fmt.Errorf("failed at download file"), err)
	}

	ctx.Inst().Prometheus.TotalBytesDownloaded(len(raw))

	zap.S().Debugw("downloaded file",
		"size", len(raw),
		"job_id", job.ID,
	)

	result.ImageInput = task.ResultFile{
		Name:        "original",
		SHA3:        hash(raw),
		ContentType: container.Match(raw).MIME.Value,
		Size:        len(raw),
		Key:         job.Input.Key,
		Bucket:      job.Input.Bucket,
	}

	retry := pyramid.NoRetry
	if n := ctx.Config().Pyramid.RetryAttempts; n > 1 {
		retry = pyramid.MaxAttempts(n)
	}

	orchestrator := pyramid.NewOrchestrator(ctx.Inst().Scheduler, pyramid.Options{
		TileSize:   job.TileSize,
		Quality:    job.Quality,
		Retry:      retry,
		Prometheus: ctx.Inst().Prometheus,
	})

	if err := orchestrator.Generate(ctx, raw); err != nil {
		return multierr.Append(fmt.Errorf("failed at generate pyramid"), err)
	}

	snap := orchestrator.State().Snapshot()
	w.describe(snap, result)

	zap.S().Infow("generated pyramid",
		"levels", len(result.Levels),
		"tiles", result.TileCount,
		"failed", len(result.FailedTiles),
		"job_id", job.ID,
	)

	data, manifest, err := archive.Build(snap)
	if err != nil {
		return multierr.Append(fmt.Errorf("failed at build archive"), err)
	}

	result.ArchiveOutput = task.ResultFile{
		Name:        ArchiveName,
		SHA3:        hash(data),
		ContentType: container.MimeZIP,
		Size:        len(data),
	}

	zap.S().Debugw("built archive",
		"files", len(manifest.Files),
		"skipped", len(manifest.Skipped),
		"job_id", job.ID,
	)

	if job.Output.File != "" {
		if err := os.WriteFile(job.Output.File, data, 0644); err != nil {
			return multierr.Append(fmt.Errorf("failed at write archive"), err)
		}

		result.ArchiveOutput.Key = job.Output.File
	}

	if job.Output.Bucket != "" {
		if err := w.publish(ctx, job, orchestrator.State(), data, result); err != nil {
			return multierr.Append(fmt.Errorf("failed at publish tiles"), err)
		}
	}

	return nil
}

func (Worker) downloadFile(ctx global.Context, job task.Job) (raw []byte, err error) {
	defer func() {
		if pnk := recover(); pnk != nil {
			err = multierr.Append(fmt.Errorf("panic at runtime: %v", pnk), err)
		}
	}()

	if job.Input.Bucket == "" {
		raw, err = os.ReadFile(job.Input.File)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("failed at read file"), err)
		}
	} else {
		buf := aws.NewWriteAtBuffer([]byte{})

		err = ctx.Inst().S3.DownloadFile(ctx, buf, &s3.GetObjectInput{
			Bucket: aws.String(job.Input.Bucket),
			Key:    aws.String(job.Input.Key),
		})
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("failed at s3 download"), err)
		}

		raw = buf.Bytes()
	}

	match := container.Match(raw)
	if !container.Decodable(match) {
		return nil, fmt.Errorf("failed at match: unsupported image format: %v", match.Extension)
	}

	return raw, nil
}

func (Worker) describe(snap pyramid.Snapshot, result *task.Result) {
	result.ImageInput.Width = snap.SourceWidth
	result.ImageInput.Height = snap.SourceHeight

	built := lo.Filter(snap.Levels, func(l pyramid.Level, _ int) bool {
		return l.Image != nil
	})

	result.Levels = lo.Map(built, func(l pyramid.Level, _ int) task.ResultLevel {
		return task.ResultLevel{
			Level:     l.Level,
			Scale:     l.Scale,
			Width:     l.Width,
			Height:    l.Height,
			TilesWide: l.TilesWide,
			TilesHigh: l.TilesHigh,
		}
	})

	result.TileCount = len(snap.Tiles)
	result.FailedTiles = lo.Map(snap.Failed(), func(t pyramid.Tile, _ int) string {
		return t.Key.String()
	})
	result.FailedLevels = lo.Map(snap.FailedLevels(), func(l pyramid.Level, _ int) int {
		return l.Level
	})

	result.State = task.ResultStateSuccess
	if !snap.Complete() {
		result.State = task.ResultStatePartial
	}
}

func (Worker) publish(ctx global.Context, job task.Job, state *pyramid.State, archiveData []byte, result *task.Result) error {
	p := publish.New(ctx.Inst().S3, ctx.Inst().Prometheus, publish.Options{
		Bucket:       job.Output.Bucket,
		Prefix:       job.Output.Prefix,
		ACL:          job.Output.ACL,
		CacheControl: job.Output.CacheControl,
	})

	report, err := p.Tiles(ctx, state)
	if err != nil {
		return err
	}

	for _, name := range report.Failed {
		result.FailedTiles = append(result.FailedTiles, name)
		result.State = task.ResultStatePartial
	}

	file, err := p.File(ctx, ArchiveName, container.MimeZIP, archiveData)
	if err != nil {
		return multierr.Append(fmt.Errorf("failed at upload archive"), err)
	}

	result.ArchiveOutput = file

	return nil
}

func hash(data []byte) string {
	h := sha3.New512()
	_, _ = h.Write(data)

	return hex.EncodeToString(h.Sum(nil))
}
