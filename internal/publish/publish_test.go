package publish

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/seventv/deepzoom/internal/archive"
	"github.com/seventv/deepzoom/internal/instance"
	"github.com/seventv/deepzoom/internal/pyramid"
	"github.com/seventv/deepzoom/internal/svc/prometheus"
	s3svc "github.com/seventv/deepzoom/internal/svc/s3"
	"github.com/seventv/deepzoom/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func builtState(t *testing.T) *pyramid.State {
	t.Helper()

	levels, err := pyramid.Plan(1000, 500, 512)
	testutil.IsNil(t, err, "plan succeeds")

	s := pyramid.NewState()
	s.Reset(512, 1000, 500, levels)
	for _, lvl := range levels {
		for _, key := range s.AddTiles(lvl.Level, pyramid.TileGrid(lvl.Width, lvl.Height, 512)) {
			testutil.IsNil(t, s.SetStatus(key, pyramid.TileStatusCropped, []byte(key.String()), ""), "tile is cropped")
		}
	}
	testutil.IsNil(t, s.SetStatus(pyramid.Key{Level: 0}, pyramid.TileStatusError, nil, "crop failed"), "tile failed")
	s.Finish()

	return s
}

func download(t *testing.T, inst instance.S3, key string) string {
	t.Helper()

	buf := aws.NewWriteAtBuffer(nil)
	testutil.IsNil(t, inst.DownloadFile(context.Background(), buf, &s3.GetObjectInput{
		Bucket: aws.String("output"),
		Key:    aws.String(key),
	}), "download "+key)

	return string(buf.Bytes())
}

func TestPublishTiles(t *testing.T) {
	ctx := context.Background()

	inst, err := s3svc.NewMock(ctx, map[string]map[string][]byte{"output": {}})
	testutil.IsNil(t, err, "s3 init successful")

	state := builtState(t)
	p := New(inst, prometheus.New(prometheus.Options{}), Options{
		Bucket: "output",
		Prefix: "images/abc",
	})

	report, err := p.Tiles(ctx, state)
	testutil.IsNil(t, err, "publish succeeds")
	testutil.Assert(t, 2, report.Uploaded, "cropped tiles are uploaded")
	testutil.Assert(t, 0, len(report.Failed), "no upload failed")
	testutil.Assert(t, "images/abc/image.dzi", report.Descriptor.Key, "descriptor key")
	testutil.Assert(t, 128, len(report.Descriptor.SHA3), "descriptor is hashed")

	// level 1 is the full resolution of a 1000 px wide source, deep zoom level 10
	testutil.Assert(t, "1_1_0", download(t, inst, "images/abc/image_files/10/1_0.jpg"), "tile data")
	assert.Contains(t, download(t, inst, "images/abc/"+archive.DescriptorName), `TileSize="512"`)

	snap := state.Snapshot()
	testutil.Assert(t, pyramid.TileStatusDone, snap.Tiles[pyramid.Key{Level: 1, Col: 1}].Status, "uploaded tiles are done")
	testutil.Assert(t, pyramid.TileStatusError, snap.Tiles[pyramid.Key{Level: 0}].Status, "failed tiles are left alone")
	testutil.Assert(t, "1_1_0", string(snap.Tiles[pyramid.Key{Level: 1, Col: 1}].Data), "tile data is kept")
}

func TestPublishFailure(t *testing.T) {
	ctx := context.Background()

	inst, err := s3svc.NewMock(ctx, map[string]map[string][]byte{})
	testutil.IsNil(t, err, "s3 init successful")

	state := builtState(t)
	p := New(inst, nil, Options{Bucket: "output", Concurrency: 1})

	report, err := p.Tiles(ctx, state)
	assert.Error(t, err, "descriptor upload fails")
	testutil.Assert(t, []string{"1_0_0", "1_1_0"}, report.Failed, "tile uploads fail")

	for _, tile := range state.Snapshot().Tiles {
		testutil.Assert(t, pyramid.TileStatusError, tile.Status, "every tile ends in error")
	}
}

func TestPublishInProgress(t *testing.T) {
	s := pyramid.NewState()
	s.Reset(512, 1, 1, nil)

	_, err := New(nil, nil, Options{}).Tiles(context.Background(), s)
	testutil.Assert(t, archive.ErrBuildInProgress, err, "running builds are not published")
}
