package metricsmanager

import (
	"net/http"
	"sync"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fdscan/fdscan/pkg/metricsmanager"
)

const (
	classnameLabel = "classname"
)

var _ metricsmanager.MetricsManager = (*PrometheusMetric)(nil)

type PrometheusMetric struct {
	processCounter       prometheus.Counter
	failedScanCounter    prometheus.Counter
	mountinfoCounter     prometheus.Counter
	vmReadFailureCounter prometheus.Counter
	fileCounter          *prometheus.CounterVec

	// Cache to avoid allocating Labels maps on every call
	fileCounterCache map[string]prometheus.Counter
	counterCacheMu   sync.RWMutex
}

func NewPrometheusMetric() *PrometheusMetric {
	return &PrometheusMetric{
		processCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fdscan_process_counter",
			Help: "The total number of processes scanned",
		}),
		failedScanCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fdscan_failed_scan_counter",
			Help: "The total number of processes that vanished or were unreadable mid-scan",
		}),
		mountinfoCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fdscan_mountinfo_parse_counter",
			Help: "The total number of mount tables parsed",
		}),
		vmReadFailureCounter: promauto.NewCounter(prometheus.CounterOpts{
			Name: "fdscan_vm_read_failure_counter",
			Help: "The total number of failed cross-process memory reads",
		}),
		fileCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "fdscan_file_counter",
			Help: "The total number of files collected by class",
		}, []string{classnameLabel}),

		fileCounterCache: make(map[string]prometheus.Counter),
	}
}

func (p *PrometheusMetric) Start() {
	// Start prometheus metrics server
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		logger.L().Info("prometheus metrics server started", helpers.Int("port", 8080), helpers.String("path", "/metrics"))
		logger.L().Fatal(http.ListenAndServe(":8080", nil).Error())
	}()
}

func (p *PrometheusMetric) Destroy() {
	prometheus.Unregister(p.processCounter)
	prometheus.Unregister(p.failedScanCounter)
	prometheus.Unregister(p.mountinfoCounter)
	prometheus.Unregister(p.vmReadFailureCounter)
	prometheus.Unregister(p.fileCounter)
}

func (p *PrometheusMetric) ReportProcessScanned() {
	p.processCounter.Inc()
}

func (p *PrometheusMetric) ReportFileCollected(classname string) {
	p.counterCacheMu.RLock()
	counter, ok := p.fileCounterCache[classname]
	p.counterCacheMu.RUnlock()
	if !ok {
		p.counterCacheMu.Lock()
		if counter, ok = p.fileCounterCache[classname]; !ok {
			counter = p.fileCounter.WithLabelValues(classname)
			p.fileCounterCache[classname] = counter
		}
		p.counterCacheMu.Unlock()
	}
	counter.Inc()
}

func (p *PrometheusMetric) ReportFailedScan() {
	p.failedScanCounter.Inc()
}

func (p *PrometheusMetric) ReportMountinfoParsed() {
	p.mountinfoCounter.Inc()
}

func (p *PrometheusMetric) ReportVMReadFailure() {
	p.vmReadFailureCounter.Inc()
}
