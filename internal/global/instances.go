package global

import "github.com/seventv/deepzoom/internal/instance"

type Instances struct {
	S3         instance.S3
	Prometheus instance.Prometheus
	Scheduler  instance.Scheduler
}
