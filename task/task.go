package task

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type Op int32

const (
	_ Op = iota
	OpLoad
	OpResize
	OpCrop
)

func (o Op) String() string {
	switch o {
	case OpLoad:
		return "LOAD"
	case OpResize:
		return "RESIZE"
	case OpCrop:
		return "CROP"
	default:
		return fmt.Sprintf("UNKNOWN OP %d", o)
	}
}

// DefaultQuality is the JPEG quality used when a request leaves it unset.
const DefaultQuality = 95

// Request is the envelope handed to a worker. Exactly one payload matches Op,
// a LOAD request carries none.
type Request struct {
	Op        Op             `json:"op"`
	RequestID string         `json:"request_id"`
	Resize    *ResizeRequest `json:"resize,omitempty"`
	Crop      *CropRequest   `json:"crop,omitempty"`
}

type ResizeRequest struct {
	Source   []byte  `json:"source"`
	LongEdge float64 `json:"long_edge,omitempty"`
	Scale    float64 `json:"scale,omitempty"`
	Quality  int     `json:"quality,omitempty"`
}

func (r ResizeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Source, validation.Required),
		validation.Field(&r.Scale,
			validation.When(r.LongEdge == 0, validation.Required, validation.Max(1.0)),
			validation.When(r.LongEdge != 0, validation.Empty),
			validation.Min(0.0),
		),
		validation.Field(&r.LongEdge, validation.Min(0.0)),
		validation.Field(&r.Quality, validation.Min(0), validation.Max(100)),
	)
}

type CropRequest struct {
	Source     []byte `json:"source"`
	StartX     int    `json:"start_x"`
	StartY     int    `json:"start_y"`
	TileWidth  int    `json:"tile_width"`
	TileHeight int    `json:"tile_height"`
	Quality    int    `json:"quality,omitempty"`
}

func (r CropRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Source, validation.Required),
		validation.Field(&r.StartX, validation.Min(0)),
		validation.Field(&r.StartY, validation.Min(0)),
		validation.Field(&r.TileWidth, validation.Required, validation.Min(1)),
		validation.Field(&r.TileHeight, validation.Required, validation.Min(1)),
		validation.Field(&r.Quality, validation.Min(0), validation.Max(100)),
	)
}

func (r Request) Validate() error {
	switch r.Op {
	case OpLoad:
		return nil
	case OpResize:
		if r.Resize == nil {
			return fmt.Errorf("resize request without payload")
		}
		return r.Resize.Validate()
	case OpCrop:
		if r.Crop == nil {
			return fmt.Errorf("crop request without payload")
		}
		return r.Crop.Validate()
	default:
		return fmt.Errorf("unknown operation: %v", r.Op)
	}
}

// ScaleFactor returns the factor that fits the long edge of a width x height
// image into longEdge, never upscaling.
func ScaleFactor(width, height int, longEdge float64) float64 {
	max := width
	if height > max {
		max = height
	}

	if float64(max) <= longEdge {
		return 1
	}

	return longEdge / float64(max)
}
