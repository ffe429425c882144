package archive

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"testing"

	"github.com/seventv/deepzoom/container"
	"github.com/seventv/deepzoom/internal/pyramid"
	"github.com/seventv/deepzoom/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func snapshot(t *testing.T) pyramid.Snapshot {
	t.Helper()

	levels, err := pyramid.Plan(600, 300, 512)
	testutil.IsNil(t, err, "plan succeeds")

	s := pyramid.NewState()
	s.Reset(512, 600, 300, levels)

	for _, lvl := range levels {
		for _, key := range s.AddTiles(lvl.Level, pyramid.TileGrid(lvl.Width, lvl.Height, 512)) {
			testutil.IsNil(t, s.SetStatus(key, pyramid.TileStatusCropped, []byte(key.String()), ""), "tile is cropped")
		}
	}

	testutil.IsNil(t, s.SetStatus(pyramid.Key{Level: 1, Col: 1}, pyramid.TileStatusError, nil, "boom"), "tile failed")
	s.Finish()

	return s.Snapshot()
}

func TestBuild(t *testing.T) {
	t.Parallel()

	data, manifest, err := Build(snapshot(t))
	testutil.IsNil(t, err, "archive builds")

	testutil.Assert(t, []string{"0_0_0.jpg", "1_0_0.jpg"}, manifest.Files, "tiles are archived by level, column and row")
	testutil.Assert(t, []string{"1_1_0.jpg"}, manifest.Skipped, "failed tiles are skipped")
	testutil.Assert(t, container.MimeZIP, container.Match(data).MIME.Value, "output is a zip")

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	testutil.IsNil(t, err, "zip opens")

	files := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		testutil.IsNil(t, err, "entry opens")
		b, err := io.ReadAll(rc)
		testutil.IsNil(t, err, "entry reads")
		_ = rc.Close()
		files[f.Name] = b
	}

	testutil.Assert(t, "1_0_0", string(files["1_0_0.jpg"]), "tile data")
	_, ok := files[DescriptorName]
	testutil.Assert(t, false, ok, "descriptor is not archived")

	out, err := NewDescriptor(snapshot(t)).Marshal()
	testutil.IsNil(t, err, "descriptor marshals")

	dzi := Descriptor{}
	testutil.IsNil(t, xml.Unmarshal(out, &dzi), "descriptor parses")
	testutil.Assert(t, 512, dzi.TileSize, "descriptor tile size")
	testutil.Assert(t, 0, dzi.Overlap, "descriptor overlap")
	testutil.Assert(t, "jpg", dzi.Format, "descriptor format")
	testutil.Assert(t, Size{Width: 600, Height: 300}, dzi.Size, "descriptor size")
}

func TestDeepZoomLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		width, height, tileSize int
		top                     int
	}{
		{2000, 1000, 512, 11},
		{600, 300, 512, 10},
		{300, 200, 512, 9},
		{1024, 1024, 256, 10},
		{1025, 7, 256, 11},
	}

	for _, tc := range tests {
		levels, err := pyramid.Plan(tc.width, tc.height, tc.tileSize)
		testutil.IsNil(t, err, "plan succeeds")

		snap := pyramid.Snapshot{
			TileSize:     tc.tileSize,
			SourceWidth:  tc.width,
			SourceHeight: tc.height,
			MaxLevel:     levels[0].Level,
		}

		testutil.Assert(t, tc.top, DeepZoomLevel(snap, snap.MaxLevel), "full resolution maps to the top deep zoom level")

		for _, lvl := range levels {
			dz := DeepZoomLevel(snap, lvl.Level)
			div := 1 << uint(tc.top-dz)
			testutil.Assert(t, (tc.width+div-1)/div, lvl.Width, "deep zoom level width")
			testutil.Assert(t, (tc.height+div-1)/div, lvl.Height, "deep zoom level height")
		}
	}

	snap := pyramid.Snapshot{TileSize: 512, SourceWidth: 2000, SourceHeight: 1000, MaxLevel: 2}
	testutil.Assert(t, "image_files/11/3_1.jpg", DeepZoomName(snap, pyramid.Key{Level: 2, Col: 3, Row: 1}), "top level path")
	testutil.Assert(t, "image_files/9/0_0.jpg", DeepZoomName(snap, pyramid.Key{Level: 0}), "bottom level path")
}

func TestBuildInProgress(t *testing.T) {
	t.Parallel()

	s := pyramid.NewState()
	s.Reset(512, 10, 10, nil)

	_, _, err := Build(s.Snapshot())
	testutil.Assert(t, ErrBuildInProgress, err, "running builds are not archived")
}

func TestDescriptorString(t *testing.T) {
	t.Parallel()

	d := NewDescriptor(pyramid.Snapshot{TileSize: 256, SourceWidth: 1000, SourceHeight: 800})

	assert.Contains(t, d.String(), `<Image xmlns="http://schemas.microsoft.com/deepzoom/2008" TileSize="256" Overlap="0" Format="jpg">`)
	assert.Contains(t, d.String(), `<Size Width="1000" Height="800"></Size>`)
	testutil.Assert(t, "2_0_5.jpg", TileName(pyramid.Key{Level: 2, Row: 5}), "tile name")
}
