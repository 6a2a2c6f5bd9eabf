package metricsmanager

// MetricsManager is an interface for reporting scan metrics
type MetricsManager interface {
	Start()
	Destroy()
	ReportProcessScanned()
	ReportFileCollected(classname string)
	ReportFailedScan()
	ReportMountinfoParsed()
	ReportVMReadFailure()
}
