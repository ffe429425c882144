package pyramid

import (
	"errors"

	"github.com/seventv/deepzoom/internal/engine"
)

var ErrInvalidDimensions = errors.New("width, height and tile size must be positive")

// Level is one entry of a pyramid. Level 0 is the most downscaled copy and
// the highest level is the source at full resolution.
type Level struct {
	Level     int     `json:"level"`
	Scale     float64 `json:"scale"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	TilesWide int     `json:"tiles_wide"`
	TilesHigh int     `json:"tiles_high"`

	// Error is why the level could not be built.
	Error string `json:"error,omitempty"`

	// Image is the resized raster, set once the level is built.
	Image []byte `json:"-"`
}

// Failed reports whether building the level failed.
func (l Level) Failed() bool {
	return l.Error != ""
}

// Rect is a tile rectangle in level pixel space.
type Rect struct {
	Col    int `json:"col"`
	Row    int `json:"row"`
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// MaxLevel is ceil(log2(max(width, height) / tileSize)), never below zero.
// It is the smallest k for which tileSize * 2^k covers the long edge.
func MaxLevel(width, height, tileSize int) int {
	long := width
	if height > long {
		long = height
	}

	level := 0
	for span := tileSize; span < long; span *= 2 {
		level++
	}

	return level
}

// Plan returns the levels of a width x height source from MaxLevel down to 0.
func Plan(width, height, tileSize int) ([]Level, error) {
	if width <= 0 || height <= 0 || tileSize <= 0 {
		return nil, ErrInvalidDimensions
	}

	max := MaxLevel(width, height, tileSize)
	levels := make([]Level, 0, max+1)

	for l := max; l >= 0; l-- {
		scale := 1 / float64(uint64(1)<<uint(max-l))
		w, h := engine.ScaledSize(width, height, scale)

		levels = append(levels, Level{
			Level:     l,
			Scale:     scale,
			Width:     w,
			Height:    h,
			TilesWide: ceilDiv(w, tileSize),
			TilesHigh: ceilDiv(h, tileSize),
		})
	}

	return levels, nil
}

// TileGrid partitions a width x height raster into tiles of at most tileSize.
func TileGrid(width, height, tileSize int) []Rect {
	if width <= 0 || height <= 0 || tileSize <= 0 {
		return nil
	}

	return ClipGrid(ceilDiv(width, tileSize), ceilDiv(height, tileSize), width, height, tileSize)
}

// ClipGrid lays a cols x rows grid over a width x height raster. Cells whose
// origin lies on or past the raster edge are left out, the others are clipped
// to the raster. Cells are ordered by column, then row.
func ClipGrid(cols, rows, width, height, tileSize int) []Rect {
	if cols <= 0 || rows <= 0 || tileSize <= 0 {
		return nil
	}

	rects := make([]Rect, 0, cols*rows)
	for col := 0; col < cols; col++ {
		x := col * tileSize
		if x >= width {
			continue
		}

		for row := 0; row < rows; row++ {
			y := row * tileSize
			if y >= height {
				continue
			}

			rects = append(rects, Rect{
				Col:    col,
				Row:    row,
				X:      x,
				Y:      y,
				Width:  min(tileSize, width-x),
				Height: min(tileSize, height-y),
			})
		}
	}

	return rects
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func min(a, b int) int {
	if a < b {
		return a
	}

	return b
}
