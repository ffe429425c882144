package engine

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

type raster struct {
	img image.Image
}

func (r raster) Width() int {
	return r.img.Bounds().Dx()
}

func (r raster) Height() int {
	return r.img.Bounds().Dy()
}

// Imaging is the in-process engine backed by disintegration/imaging.
type Imaging struct {
	closed bool
}

// NewImaging is a Factory for the imaging engine.
func NewImaging() (Engine, error) {
	return &Imaging{}, nil
}

func (e *Imaging) unwrap(img Image) (image.Image, error) {
	if e.closed {
		return nil, fmt.Errorf("engine is closed")
	}

	r, ok := img.(raster)
	if !ok || r.img == nil {
		return nil, ErrInvalidImage
	}

	return r.img, nil
}

func (e *Imaging) Load(data []byte) (Image, error) {
	if e.closed {
		return nil, fmt.Errorf("engine is closed")
	}
	if len(data) == 0 {
		return nil, ErrInvalidImage
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidImage, err.Error())
	}

	return raster{img}, nil
}

func (e *Imaging) Resize(img Image, scale float64) (Image, error) {
	src, err := e.unwrap(img)
	if err != nil {
		return nil, err
	}

	if scale <= 0 || scale > 1 {
		return nil, ErrInvalidScale
	}

	b := src.Bounds()
	if scale == 1 {
		return raster{imaging.Clone(src)}, nil
	}

	w, h := ScaledSize(b.Dx(), b.Dy(), scale)

	return raster{imaging.Resize(src, w, h, mks2013Filter)}, nil
}

// Crop cuts the rectangle at (x, y). A rectangle reaching past the right or
// bottom edge is shortened, one starting outside the image is an error.
func (e *Imaging) Crop(img Image, x, y, width, height int) (Image, error) {
	src, err := e.unwrap(img)
	if err != nil {
		return nil, err
	}

	b := src.Bounds()
	if x < 0 || y < 0 || width <= 0 || height <= 0 || x >= b.Dx() || y >= b.Dy() {
		return nil, fmt.Errorf("%w: %d,%d %dx%d in %dx%d", ErrOutOfBounds, x, y, width, height, b.Dx(), b.Dy())
	}

	rect := image.Rect(x, y, x+width, y+height).Add(b.Min).Intersect(b)

	return raster{imaging.Crop(src, rect)}, nil
}

func (e *Imaging) EncodeJPEG(img Image, quality int) ([]byte, error) {
	src, err := e.unwrap(img)
	if err != nil {
		return nil, err
	}

	if quality <= 0 || quality > 100 {
		quality = 95
	}

	buf := bytes.NewBuffer(nil)
	if err := imaging.Encode(buf, src, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func (e *Imaging) Close() error {
	e.closed = true

	return nil
}
