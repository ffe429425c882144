package instance

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Prometheus interface {
	Register(r prometheus.Registerer)

	StartTask(op string) func(success bool)
	StartBuild() func(success bool)

	ResizeLevels() func()
	CropTiles() func()
	PublishTiles() func()

	WorkerStates(pending, available, busy int)
	QueueLength(n int)
	WorkerInitFailed()
	CorrelationMiss()

	TileSettled(status string)
	TotalBytesDownloaded(int)
	TotalBytesUploaded(int)
}
