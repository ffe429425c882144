package publish

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"path"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/samber/lo"
	"github.com/seventv/deepzoom/container"
	"github.com/seventv/deepzoom/internal/archive"
	"github.com/seventv/deepzoom/internal/instance"
	"github.com/seventv/deepzoom/internal/pyramid"
	"github.com/seventv/deepzoom/task"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	Bucket       string
	Prefix       string
	ACL          string
	CacheControl string
	// Concurrency bounds the uploads in flight, 8 when unset.
	Concurrency int
}

// Report describes what a publish run uploaded.
type Report struct {
	Uploaded   int             `json:"uploaded"`
	Failed     []string        `json:"failed"`
	Descriptor task.ResultFile `json:"descriptor"`
}

type Publisher struct {
	s3   instance.S3
	prom instance.Prometheus
	opts Options
}

func New(s3 instance.S3, prom instance.Prometheus, opts Options) *Publisher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}

	return &Publisher{
		s3:   s3,
		prom: prom,
		opts: opts,
	}
}

func (p *Publisher) key(name string) string {
	return path.Join(p.opts.Prefix, name)
}

func (p *Publisher) upload(ctx context.Context, name string, contentType string, data []byte) (task.ResultFile, error) {
	h := sha3.New512()
	if _, err := h.Write(data); err != nil {
		return task.ResultFile{}, multierr.Append(fmt.Errorf("failed at hash data"), err)
	}

	file := task.ResultFile{
		Name:         name,
		SHA3:         hex.EncodeToString(h.Sum(nil)),
		ContentType:  contentType,
		Size:         len(data),
		Key:          p.key(name),
		Bucket:       p.opts.Bucket,
		ACL:          p.opts.ACL,
		CacheControl: p.opts.CacheControl,
	}

	if err := p.s3.UploadFile(ctx, &s3manager.UploadInput{
		Body:         bytes.NewReader(data),
		ACL:          aws.String(p.opts.ACL),
		Bucket:       aws.String(p.opts.Bucket),
		CacheControl: aws.String(p.opts.CacheControl),
		ContentType:  aws.String(contentType),
		Key:          aws.String(file.Key),
	}); err != nil {
		return file, err
	}

	if p.prom != nil {
		p.prom.TotalBytesUploaded(len(data))
	}

	return file, nil
}

// File uploads a single named blob next to the tiles.
func (p *Publisher) File(ctx context.Context, name string, contentType string, data []byte) (task.ResultFile, error) {
	return p.upload(ctx, name, contentType, data)
}

// Tiles uploads every cropped tile of state in the Deep Zoom layout next to
// the descriptor. Tiles move to Uploading while their upload runs and end as
// Done or Error.
func (p *Publisher) Tiles(ctx context.Context, state *pyramid.State) (Report, error) {
	if p.prom != nil {
		defer p.prom.PublishTiles()()
	}

	report := Report{}

	snap := state.Snapshot()
	if snap.Processing {
		return report, archive.ErrBuildInProgress
	}

	tiles := lo.Filter(snap.SortedTiles(), func(t pyramid.Tile, _ int) bool {
		return t.Status == pyramid.TileStatusCropped
	})

	var (
		mtx    sync.Mutex
		failed []string
	)

	g := errgroup.Group{}
	g.SetLimit(p.opts.Concurrency)

	for _, tile := range tiles {
		tile := tile
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			_ = state.SetStatus(tile.Key, pyramid.TileStatusUploading, nil, "")

			name := archive.DeepZoomName(snap, tile.Key)
			status, reason := pyramid.TileStatusDone, ""
			if _, err := p.upload(ctx, name, container.MimeJPEG, tile.Data); err != nil {
				status, reason = pyramid.TileStatusError, err.Error()

				zap.S().Warnw("failed to upload tile",
					"tile", name,
					"error", err,
				)

				mtx.Lock()
				failed = append(failed, tile.Key.String())
				mtx.Unlock()
			}

			_ = state.SetStatus(tile.Key, status, nil, reason)
			if p.prom != nil {
				p.prom.TileSettled(status.String())
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}

	sort.Strings(failed)
	report.Failed = failed
	report.Uploaded = len(tiles) - len(failed)

	dzi, err := archive.NewDescriptor(snap).Marshal()
	if err != nil {
		return report, multierr.Append(fmt.Errorf("failed at marshal descriptor"), err)
	}

	report.Descriptor, err = p.upload(ctx, archive.DescriptorName, container.MimeXML, dzi)
	if err != nil {
		return report, multierr.Append(fmt.Errorf("failed at upload descriptor"), err)
	}

	zap.S().Infow("published tiles",
		"uploaded", report.Uploaded,
		"failed", len(report.Failed),
		"bucket", p.opts.Bucket,
		"prefix", p.opts.Prefix,
	)

	return report, nil
}
