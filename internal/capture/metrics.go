package capture

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loykin/appctl/internal/registry"
)

// gauges exports the sidecar's latest sample for scraping. Labels identify
// the managed application by handle and pid.
type gauges struct {
	cpuPercent *prometheus.GaugeVec
	memoryMB   *prometheus.GaugeVec
	numThreads *prometheus.GaugeVec
}

func newGauges(reg prometheus.Registerer) *gauges {
	g := &gauges{
		cpuPercent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "appctl",
			Subsystem: "app",
			Name:      "cpu_percent",
			Help:      "CPU usage percentage for the managed application.",
		}, []string{"handle", "pid"}),
		memoryMB: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "appctl",
			Subsystem: "app",
			Name:      "memory_mb",
			Help:      "Resident memory in MB for the managed application.",
		}, []string{"handle", "pid"}),
		numThreads: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "appctl",
			Subsystem: "app",
			Name:      "num_threads",
			Help:      "Thread count for the managed application.",
		}, []string{"handle", "pid"}),
	}
	reg.MustRegister(g.cpuPercent, g.memoryMB, g.numThreads)
	return g
}

func (g *gauges) observe(handle, pid string, smp registry.ResourceSample) {
	g.cpuPercent.WithLabelValues(handle, pid).Set(smp.CPUPercent)
	g.memoryMB.WithLabelValues(handle, pid).Set(float64(smp.MemoryRSS) / 1024 / 1024)
	g.numThreads.WithLabelValues(handle, pid).Set(float64(smp.NumThreads))
}

// serveMetrics exposes reg on addr. Best-effort: the sidecar keeps capturing
// even when the listener cannot bind.
func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.ListenAndServe() }()
}
