package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/seventv/deepzoom/internal/instance"
)

type Options struct {
	Labels prometheus.Labels
}

func copyLabels(p prometheus.Labels) prometheus.Labels {
	x := prometheus.Labels{}
	for k, v := range p {
		x[k] = v
	}

	return x
}

func New(o Options) instance.Prometheus {
	totalSuccessfulBuilds := copyLabels(o.Labels)
	totalFailedBuilds := copyLabels(o.Labels)
	totalBytesDownloaded := copyLabels(o.Labels)
	totalBytesUploaded := copyLabels(o.Labels)

	totalSuccessfulBuilds["state"] = "successful"
	totalFailedBuilds["state"] = "failed"

	totalBytesDownloaded["state"] = "downloaded"
	totalBytesUploaded["state"] = "uploaded"

	return &Instance{
		totalSuccessfulBuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "deepzoom",
			Name:        "total_builds",
			Help:        "The total number of pyramid builds",
			ConstLabels: totalSuccessfulBuilds,
		}),
		totalFailedBuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "deepzoom",
			Name:        "total_builds",
			Help:        "The total number of pyramid builds",
			ConstLabels: totalFailedBuilds,
		}),
		buildDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "deepzoom",
			Name:        "build_duration_seconds",
			Help:        "The seconds spent building pyramids",
			ConstLabels: copyLabels(o.Labels),
		}),
		totalTasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "deepzoom",
			Name:        "total_tasks",
			Help:        "The total number of settled worker tasks",
			ConstLabels: copyLabels(o.Labels),
		}, []string{"op", "state"}),
		currentTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "deepzoom",
			Name:        "current_tasks",
			Help:        "The current number of tasks running on workers",
			ConstLabels: copyLabels(o.Labels),
		}),
		taskDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "deepzoom",
			Name:        "task_duration_seconds",
			Help:        "The seconds spent running worker tasks",
			ConstLabels: copyLabels(o.Labels),
		}, []string{"op"}),
		resizeLevelsDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "deepzoom",
			Name:        "resize_levels_duration_seconds",
			Help:        "The seconds spent resizing all levels of a pyramid",
			ConstLabels: copyLabels(o.Labels),
		}),
		cropTilesDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "deepzoom",
			Name:        "crop_tiles_duration_seconds",
			Help:        "The seconds spent cropping all tiles of a pyramid",
			ConstLabels: copyLabels(o.Labels),
		}),
		publishTilesDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "deepzoom",
			Name:        "publish_tiles_duration_seconds",
			Help:        "The seconds spent uploading tiles",
			ConstLabels: copyLabels(o.Labels),
		}),
		workers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "deepzoom",
			Name:        "workers",
			Help:        "The number of workers per pool partition",
			ConstLabels: copyLabels(o.Labels),
		}, []string{"state"}),
		queueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "deepzoom",
			Name:        "queue_length",
			Help:        "The number of tasks waiting for a worker",
			ConstLabels: copyLabels(o.Labels),
		}),
		workerInitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "deepzoom",
			Name:        "worker_init_failures",
			Help:        "The total number of workers that failed to load the engine",
			ConstLabels: copyLabels(o.Labels),
		}),
		correlationMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "deepzoom",
			Name:        "correlation_misses",
			Help:        "The total number of worker messages for unknown requests",
			ConstLabels: copyLabels(o.Labels),
		}),
		totalTiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "deepzoom",
			Name:        "total_tiles",
			Help:        "The total number of tiles reaching a status",
			ConstLabels: copyLabels(o.Labels),
		}, []string{"status"}),
		totalBytesDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "deepzoom",
			Name:        "total_bytes",
			Help:        "The total number of bytes transferred",
			ConstLabels: totalBytesDownloaded,
		}),
		totalBytesUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "deepzoom",
			Name:        "total_bytes",
			Help:        "The total number of bytes transferred",
			ConstLabels: totalBytesUploaded,
		}),
	}
}

type Instance struct {
	totalSuccessfulBuilds prometheus.Counter
	totalFailedBuilds     prometheus.Counter
	buildDurationSeconds  prometheus.Histogram

	totalTasks          *prometheus.CounterVec
	currentTasks        prometheus.Gauge
	taskDurationSeconds *prometheus.HistogramVec

	resizeLevelsDurationSeconds prometheus.Histogram
	cropTilesDurationSeconds    prometheus.Histogram
	publishTilesDurationSeconds prometheus.Histogram

	workers            *prometheus.GaugeVec
	queueLength        prometheus.Gauge
	workerInitFailures prometheus.Counter
	correlationMisses  prometheus.Counter

	totalTiles           *prometheus.CounterVec
	totalBytesDownloaded prometheus.Counter
	totalBytesUploaded   prometheus.Counter
}

func (m *Instance) Register(r prometheus.Registerer) {
	r.MustRegister(
		m.totalSuccessfulBuilds,
		m.totalFailedBuilds,
		m.buildDurationSeconds,

		m.totalTasks,
		m.currentTasks,
		m.taskDurationSeconds,

		m.resizeLevelsDurationSeconds,
		m.cropTilesDurationSeconds,
		m.publishTilesDurationSeconds,

		m.workers,
		m.queueLength,
		m.workerInitFailures,
		m.correlationMisses,

		m.totalTiles,
		m.totalBytesDownloaded,
		m.totalBytesUploaded,
	)
}

func seconds(start time.Time) float64 {
	return float64(time.Since(start)/time.Millisecond) / 1000
}

func (m *Instance) StartTask(op string) func(success bool) {
	start := time.Now()
	m.currentTasks.Inc()

	return func(success bool) {
		state := "failed"
		if success {
			state = "successful"
		}

		m.totalTasks.WithLabelValues(op, state).Inc()
		m.currentTasks.Dec()
		m.taskDurationSeconds.WithLabelValues(op).Observe(seconds(start))
	}
}

func (m *Instance) StartBuild() func(success bool) {
	start := time.Now()

	return func(success bool) {
		if success {
			m.totalSuccessfulBuilds.Inc()
		} else {
			m.totalFailedBuilds.Inc()
		}
		m.buildDurationSeconds.Observe(seconds(start))
	}
}

func (m *Instance) ResizeLevels() func() {
	start := time.Now()

	return func() {
		m.resizeLevelsDurationSeconds.Observe(seconds(start))
	}
}

func (m *Instance) CropTiles() func() {
	start := time.Now()

	return func() {
		m.cropTilesDurationSeconds.Observe(seconds(start))
	}
}

func (m *Instance) PublishTiles() func() {
	start := time.Now()

	return func() {
		m.publishTilesDurationSeconds.Observe(seconds(start))
	}
}

func (m *Instance) WorkerStates(pending, available, busy int) {
	m.workers.WithLabelValues("pending").Set(float64(pending))
	m.workers.WithLabelValues("available").Set(float64(available))
	m.workers.WithLabelValues("busy").Set(float64(busy))
}

func (m *Instance) QueueLength(n int) {
	m.queueLength.Set(float64(n))
}

func (m *Instance) WorkerInitFailed() {
	m.workerInitFailures.Inc()
}

func (m *Instance) CorrelationMiss() {
	m.correlationMisses.Inc()
}

func (m *Instance) TileSettled(status string) {
	m.totalTiles.WithLabelValues(status).Inc()
}

func (m *Instance) TotalBytesDownloaded(bytes int) {
	m.totalBytesDownloaded.Add(float64(bytes))
}

func (m *Instance) TotalBytesUploaded(bytes int) {
	m.totalBytesUploaded.Add(float64(bytes))
}
