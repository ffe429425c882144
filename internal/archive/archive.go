package archive

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"github.com/seventv/common/utils"
	"github.com/seventv/deepzoom/internal/pyramid"
	"go.uber.org/multierr"
)

const (
	DescriptorName = "image.dzi"
	// FilesDir holds the tiles next to DescriptorName, one directory per level.
	FilesDir   = "image_files"
	TileFormat = "jpg"

	deepZoomNamespace = "http://schemas.microsoft.com/deepzoom/2008"
)

var ErrBuildInProgress = errors.New("pyramid is still being built")

type Size struct {
	Width  int `xml:"Width,attr"`
	Height int `xml:"Height,attr"`
}

// Descriptor is the .dzi document viewers read before fetching tiles.
type Descriptor struct {
	XMLName  xml.Name `xml:"Image"`
	Xmlns    string   `xml:"xmlns,attr"`
	TileSize int      `xml:"TileSize,attr"`
	Overlap  int      `xml:"Overlap,attr"`
	Format   string   `xml:"Format,attr"`
	Size     Size     `xml:"Size"`
}

func NewDescriptor(snap pyramid.Snapshot) Descriptor {
	return Descriptor{
		Xmlns:    deepZoomNamespace,
		TileSize: snap.TileSize,
		Format:   TileFormat,
		Size: Size{
			Width:  snap.SourceWidth,
			Height: snap.SourceHeight,
		},
	}
}

func (d Descriptor) Marshal() ([]byte, error) {
	out, err := xml.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, err
	}

	return append([]byte(xml.Header), out...), nil
}

func (d Descriptor) String() string {
	out, err := d.Marshal()
	if err != nil {
		return ""
	}

	return utils.B2S(out)
}

// TileName is the archive entry of a tile.
func TileName(key pyramid.Key) string {
	return fmt.Sprintf("%s.%s", key, TileFormat)
}

// DeepZoomLevel maps a pyramid level to the Deep Zoom level of the same scale.
// Deep Zoom counts from a 1x1 image, so its full resolution level is
// ceil(log2(max(width, height))).
func DeepZoomLevel(snap pyramid.Snapshot, level int) int {
	return pyramid.MaxLevel(snap.SourceWidth, snap.SourceHeight, 1) - (snap.MaxLevel - level)
}

// DeepZoomName is the path a viewer reading the descriptor fetches a tile from.
func DeepZoomName(snap pyramid.Snapshot, key pyramid.Key) string {
	return fmt.Sprintf("%s/%d/%d_%d.%s", FilesDir, DeepZoomLevel(snap, key.Level), key.Col, key.Row, TileFormat)
}

// Manifest lists what went into an archive.
type Manifest struct {
	Files   []string `json:"files"`
	Skipped []string `json:"skipped"`
}

// Write zips every tile holding data into w, named by TileName. Tiles
// without data are listed as skipped. The descriptor is published with the
// tiles under FilesDir instead.
func Write(w io.Writer, snap pyramid.Snapshot) (Manifest, error) {
	manifest := Manifest{}
	if snap.Processing {
		return manifest, ErrBuildInProgress
	}

	zw := zip.NewWriter(w)

	for _, tile := range snap.SortedTiles() {
		name := TileName(tile.Key)
		if !tile.Status.Finished() || tile.Data == nil {
			manifest.Skipped = append(manifest.Skipped, name)
			continue
		}

		// jpeg data does not compress any further
		f, err := zw.CreateHeader(&zip.FileHeader{
			Name:   name,
			Method: zip.Store,
		})
		if err != nil {
			return manifest, multierr.Append(fmt.Errorf("failed at create zip entry %s", name), multierr.Append(err, zw.Close()))
		}

		if _, err = f.Write(tile.Data); err != nil {
			return manifest, multierr.Append(fmt.Errorf("failed at write zip entry %s", name), multierr.Append(err, zw.Close()))
		}

		manifest.Files = append(manifest.Files, name)
	}

	if err := zw.Close(); err != nil {
		return manifest, multierr.Append(fmt.Errorf("failed at close zip"), err)
	}

	return manifest, nil
}

// Build is Write into memory.
func Build(snap pyramid.Snapshot) ([]byte, Manifest, error) {
	buf := bytes.NewBuffer(nil)

	manifest, err := Write(buf, snap)
	if err != nil {
		return nil, manifest, err
	}

	return buf.Bytes(), manifest, nil
}
