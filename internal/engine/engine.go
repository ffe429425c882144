package engine

import (
	"errors"
	"math"
)

var (
	ErrInvalidImage = errors.New("invalid image source")
	ErrOutOfBounds  = errors.New("crop rectangle is outside the image")
	ErrInvalidScale = errors.New("scale must be within (0, 1]")
)

// Image is a decoded raster owned by the engine that produced it.
type Image interface {
	Width() int
	Height() int
}

// Engine is the pixel level capability a worker drives. An Engine is used by
// one worker goroutine at a time and is never shared.
type Engine interface {
	Load(data []byte) (Image, error)
	Resize(img Image, scale float64) (Image, error)
	Crop(img Image, x, y, width, height int) (Image, error)
	EncodeJPEG(img Image, quality int) ([]byte, error)
	Close() error
}

// Factory builds the engine of a new worker. It runs on the worker goroutine
// as part of the initialization handshake.
type Factory func() (Engine, error)

// ScaledSize is the raster size of a width x height image resized by scale.
func ScaledSize(width, height int, scale float64) (int, int) {
	return scaledEdge(width, scale), scaledEdge(height, scale)
}

func scaledEdge(edge int, scale float64) int {
	v := int(math.Ceil(float64(edge)*scale - 1e-9))
	if v < 1 {
		v = 1
	}

	return v
}
