package pyramid

import (
	"math"
	"testing"

	"github.com/seventv/deepzoom/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPlanExample(t *testing.T) {
	t.Parallel()

	levels, err := Plan(2000, 1000, 512)
	testutil.IsNil(t, err, "plan succeeds")

	testutil.Assert(t, []Level{
		{Level: 2, Scale: 1, Width: 2000, Height: 1000, TilesWide: 4, TilesHigh: 2},
		{Level: 1, Scale: 0.5, Width: 1000, Height: 500, TilesWide: 2, TilesHigh: 1},
		{Level: 0, Scale: 0.25, Width: 500, Height: 250, TilesWide: 1, TilesHigh: 1},
	}, levels, "2000x1000 at 512 has three levels")

	grid := TileGrid(2000, 1000, 512)
	testutil.Assert(t, 8, len(grid), "every candidate cell is inside")
	testutil.Assert(t, Rect{Col: 3, Row: 1, X: 1536, Y: 512, Width: 464, Height: 488}, grid[len(grid)-1], "last cell is clipped")
	testutil.Assert(t, Rect{Col: 0, Row: 1, X: 0, Y: 512, Width: 512, Height: 488}, grid[1], "cells run down a column first")
}

func TestMaxLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		width, height, tileSize, expected int
	}{
		{100, 50, 512, 0},
		{512, 512, 512, 0},
		{513, 10, 512, 1},
		{10, 1024, 512, 1},
		{1025, 1025, 512, 2},
		{2000, 1000, 512, 2},
		{1, 1, 1, 0},
		{3, 1, 1, 2},
		{65536, 100, 256, 8},
	}

	for _, test := range tests {
		testutil.Assert(t, test.expected, MaxLevel(test.width, test.height, test.tileSize), "max level")
	}
}

func TestPlanProperties(t *testing.T) {
	t.Parallel()

	sizes := []int{1, 7, 255, 256, 257, 511, 512, 513, 1000, 1023, 1024, 1999, 3000, 4097}
	tileSizes := []int{1, 64, 254, 256, 512}

	for _, w := range sizes {
		for _, h := range sizes {
			for _, ts := range tileSizes {
				levels, err := Plan(w, h, ts)
				testutil.IsNil(t, err, "plan succeeds")

				long := math.Max(float64(w), float64(h))
				expected := int(math.Max(0, math.Ceil(math.Log2(long/float64(ts)))))

				if !assert.Equal(t, expected+1, len(levels), "level count for %dx%d/%d", w, h, ts) {
					continue
				}

				for i, lvl := range levels {
					testutil.Assert(t, expected-i, lvl.Level, "levels run from max down to zero")
					testutil.Assert(t, 1/math.Pow(2, float64(expected-lvl.Level)), lvl.Scale, "scale halves per level")
					testutil.Assert(t, (lvl.Width+ts-1)/ts, lvl.TilesWide, "tiles wide")
					testutil.Assert(t, (lvl.Height+ts-1)/ts, lvl.TilesHigh, "tiles high")
					assert.GreaterOrEqual(t, lvl.Width, 1)
					assert.GreaterOrEqual(t, lvl.Height, 1)
				}

				testutil.Assert(t, 1.0, levels[0].Scale, "top level is full size")
				testutil.Assert(t, w, levels[0].Width, "top level width")
				testutil.Assert(t, h, levels[0].Height, "top level height")
			}
		}
	}
}

func TestTileGridProperties(t *testing.T) {
	t.Parallel()

	for _, w := range []int{1, 100, 511, 512, 513, 1500} {
		for _, h := range []int{1, 99, 512, 1025} {
			for _, ts := range []int{1, 100, 512} {
				if w*h/(ts*ts) > 10000 {
					continue
				}

				grid := TileGrid(w, h, ts)
				cols, rows := (w+ts-1)/ts, (h+ts-1)/ts
				testutil.Assert(t, cols*rows, len(grid), "one rect per cell")

				area := 0
				for _, r := range grid {
					assert.True(t, r.Width > 0 && r.Width <= ts, "width within (0, tile size]")
					assert.True(t, r.Height > 0 && r.Height <= ts, "height within (0, tile size]")
					assert.True(t, r.X+r.Width <= w && r.Y+r.Height <= h, "rect inside the raster")
					area += r.Width * r.Height
				}
				testutil.Assert(t, w*h, area, "the grid covers the raster exactly")
			}
		}
	}
}

func TestClipGridOutOfBounds(t *testing.T) {
	t.Parallel()

	// a 3x2 grid planned for a raster that came out at 1000x500
	grid := ClipGrid(3, 2, 1000, 500, 512)

	testutil.Assert(t, []Rect{
		{Col: 0, Row: 0, X: 0, Y: 0, Width: 512, Height: 500},
		{Col: 1, Row: 0, X: 512, Y: 0, Width: 488, Height: 500},
	}, grid, "cells starting past the edge are left out")
}

func TestPlanInvalid(t *testing.T) {
	t.Parallel()

	for _, dims := range [][3]int{{0, 10, 10}, {10, 0, 10}, {10, 10, 0}, {-1, 10, 10}} {
		_, err := Plan(dims[0], dims[1], dims[2])
		testutil.Assert(t, ErrInvalidDimensions, err, "invalid dimensions")
	}

	testutil.Assert(t, 0, len(TileGrid(0, 10, 10)), "no grid for an empty raster")
}

func TestKeyString(t *testing.T) {
	t.Parallel()

	testutil.Assert(t, "2_3_1", Key{Level: 2, Col: 3, Row: 1}.String(), "level_col_row")
}
