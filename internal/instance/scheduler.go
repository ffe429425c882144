package instance

import (
	"context"

	"github.com/seventv/deepzoom/task"
)

// Scheduler runs image transforms on a bounded set of workers.
type Scheduler interface {
	Resize(ctx context.Context, req task.ResizeRequest) (task.ResizeResult, error)
	Crop(ctx context.Context, req task.CropRequest) (task.CropResult, error)
	Stats() SchedulerStats
	Close() error
}

type SchedulerStats struct {
	Pending   int  `json:"pending"`
	Available int  `json:"available"`
	Busy      int  `json:"busy"`
	Queued    int  `json:"queued"`
	InFlight  int  `json:"in_flight"`
	Closed    bool `json:"closed"`
}

func (s SchedulerStats) Workers() int {
	return s.Pending + s.Available + s.Busy
}
