package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/fdscan/fdscan/pkg/columns"
	"github.com/fdscan/fdscan/pkg/config"
	"github.com/fdscan/fdscan/pkg/fdclass"
	"github.com/fdscan/fdscan/pkg/kerncap"
	"github.com/fdscan/fdscan/pkg/metricsmanager"
	metricprometheus "github.com/fdscan/fdscan/pkg/metricsmanager/prometheus"
	"github.com/fdscan/fdscan/pkg/muxdetect"
	"github.com/fdscan/fdscan/pkg/nscache"
	"github.com/fdscan/fdscan/pkg/procpath"
	"github.com/fdscan/fdscan/pkg/scanner"
	scannerv1 "github.com/fdscan/fdscan/pkg/scanner/v1"
)

func main() {
	ctx := context.Background()

	configDir := "/etc/config"
	if envPath := os.Getenv("CONFIG_DIR"); envPath != "" {
		configDir = envPath
	}

	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		logger.L().Warning("no configuration found, using defaults", helpers.Error(err))
		cfg = config.Config{ProcRoot: "/proc", DetectMultiplexing: true, ScanWorkers: 4}
	}

	var metrics metricsmanager.MetricsManager
	if cfg.EnablePrometheusExporter {
		metrics = metricprometheus.NewPrometheusMetric()
	} else {
		metrics = metricsmanager.NewMetricsMock()
	}
	metrics.Start()
	defer metrics.Destroy()

	acc := procpath.New(cfg.ProcRoot, afero.NewOsFs())
	lister, err := scannerv1.NewProcfsLister(cfg.ProcRoot)
	if err != nil {
		logger.L().Ctx(ctx).Fatal("procfs not accessible", helpers.String("root", cfg.ProcRoot), helpers.Error(err))
	}

	var mux scanner.MuxDetector
	if cfg.DetectMultiplexing {
		mux = muxdetect.NewDetector(acc, kerncap.NewVMReader(), metrics)
	}

	s := scannerv1.CreateScanner(cfg, acc, lister,
		kerncap.NewResourceComparer(), mux, nscache.NewProber(), metrics)
	res, err := s.Scan(ctx)
	if err != nil {
		logger.L().Ctx(ctx).Fatal("scan failed", helpers.Error(err))
	}
	defer res.Release()

	cols := columns.DefaultColumns
	if cfg.ShowThreads {
		cols = columns.DefaultThreadColumns
	}

	sink := columns.NewTableSink(os.Stdout)
	summary := columns.NewSummary(columns.DefaultCounters())
	var renderErr error
	for _, p := range res.Processes {
		for _, f := range p.Files {
			get := rowGetter(res.Ctx, p, f)
			renderErr = multierr.Append(renderErr, sink.Row(cols, get))
			summary.Observe(get)
		}
	}
	renderErr = multierr.Append(renderErr, sink.Flush())
	if renderErr != nil {
		logger.L().Ctx(ctx).Fatal("write failed", helpers.Error(renderErr))
	}

	if cfg.ShowSummary {
		fmt.Println()
		for _, v := range summary.Values() {
			fmt.Printf("%s %s\n", humanize.Comma(int64(v.Count)), v.Name)
		}
	}
}

func rowGetter(fctx *fdclass.Ctx, p *fdclass.Process, f *fdclass.File) columns.Getter {
	return func(id columns.ColumnID) (string, bool) {
		return fdclass.Fill(fctx, p, f, id)
	}
}
