package metricsmanager

import (
	"sync/atomic"

	"github.com/goradd/maps"
)

var _ MetricsManager = (*MetricsMock)(nil)

type MetricsMock struct {
	ProcessCounter       atomic.Int32
	FailedScanCounter    atomic.Int32
	MountinfoCounter     atomic.Int32
	VMReadFailureCounter atomic.Int32
	FileCounter          maps.SafeMap[string, int]
}

func NewMetricsMock() *MetricsMock {
	return &MetricsMock{}
}

func (m *MetricsMock) Start() {
}

func (m *MetricsMock) Destroy() {
	m.ProcessCounter.Store(0)
	m.FailedScanCounter.Store(0)
	m.MountinfoCounter.Store(0)
	m.VMReadFailureCounter.Store(0)
	m.FileCounter.Clear()
}

func (m *MetricsMock) ReportProcessScanned() {
	m.ProcessCounter.Add(1)
}

func (m *MetricsMock) ReportFileCollected(classname string) {
	m.FileCounter.Set(classname, m.FileCounter.Get(classname)+1)
}

func (m *MetricsMock) ReportFailedScan() {
	m.FailedScanCounter.Add(1)
}

func (m *MetricsMock) ReportMountinfoParsed() {
	m.MountinfoCounter.Add(1)
}

func (m *MetricsMock) ReportVMReadFailure() {
	m.VMReadFailureCounter.Add(1)
}
