package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/seventv/deepzoom/internal/global"
)

func newRegistry(gCtx global.Context) *prometheus.Registry {
	registry := prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if gCtx.Inst().Prometheus != nil {
		gCtx.Inst().Prometheus.Register(registry)
	}

	return registry
}
