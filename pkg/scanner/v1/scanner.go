package scanner

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/panjf2000/ants/v2"

	"github.com/fdscan/fdscan/pkg/config"
	"github.com/fdscan/fdscan/pkg/fdclass"
	"github.com/fdscan/fdscan/pkg/ipctable"
	"github.com/fdscan/fdscan/pkg/kerncap"
	"github.com/fdscan/fdscan/pkg/metricsmanager"
	"github.com/fdscan/fdscan/pkg/nscache"
	"github.com/fdscan/fdscan/pkg/procpath"
	"github.com/fdscan/fdscan/pkg/scanner"
)

type Scanner struct {
	cfg     config.Config
	acc     procpath.Accessor
	lister  ProcessLister
	cmp     kerncap.ResourceComparer
	mux     scanner.MuxDetector
	prober  nscache.Prober
	metrics metricsmanager.MetricsManager
}

var _ scanner.Scanner = (*Scanner)(nil)

// CreateScanner wires a collection driver. mux may be nil when extended
// mode bits were not requested; prober may be nil in snapshot replays.
func CreateScanner(cfg config.Config, acc procpath.Accessor, lister ProcessLister,
	cmp kerncap.ResourceComparer, mux scanner.MuxDetector, prober nscache.Prober,
	metrics metricsmanager.MetricsManager) *Scanner {
	if cmp == nil {
		cmp = kerncap.StaticComparer(false)
	}
	return &Scanner{
		cfg:     cfg,
		acc:     acc,
		lister:  lister,
		cmp:     cmp,
		mux:     mux,
		prober:  prober,
		metrics: metrics,
	}
}

// scanState is the shared state of one Scan call. A fresh one per call
// keeps repeated scans independent.
type scanState struct {
	fctx    *fdclass.Ctx
	nodev   *nscache.NodevRegistry
	nsCache *nscache.Cache

	mu    sync.Mutex
	procs []*fdclass.Process
}

func (s *Scanner) newScanState() *scanState {
	st := &scanState{}
	var ipc fdclass.IPCRegistry
	if s.cfg.ParallelScan {
		st.nodev = nscache.NewConcurrentNodevRegistry()
		st.nsCache = nscache.NewConcurrentCache(st.nodev, s.acc)
		ipc = ipctable.NewConcurrent()
	} else {
		st.nodev = nscache.NewNodevRegistry()
		st.nsCache = nscache.NewCache(st.nodev, s.acc)
		ipc = ipctable.New()
	}
	if s.prober != nil {
		s.prober.Probe(st.nodev)
	}
	if selfNS, err := s.acc.StatAbs(filepath.Join(s.acc.Root(), "self", "ns", "mnt")); err == nil {
		st.nsCache.SetSelfNamespace(selfNS.Ino)
	}
	st.fctx = fdclass.NewCtx(st.nodev, ipc)
	return st
}

func (s *Scanner) Scan(ctx context.Context) (*scanner.Result, error) {
	pids := s.cfg.Pids
	if len(pids) == 0 {
		var err error
		pids, err = s.lister.Pids()
		if err != nil {
			return nil, err
		}
	}

	st := s.newScanState()
	fdclass.InitializeClasses(st.fctx)

	if s.cfg.ParallelScan {
		if err := s.scanParallel(ctx, st, pids); err != nil {
			return nil, err
		}
	} else {
		for _, pid := range pids {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			s.scanTarget(st, pid)
		}
	}

	return &scanner.Result{Processes: st.procs, Ctx: st.fctx}, nil
}

func (s *Scanner) scanParallel(ctx context.Context, st *scanState, pids []int) error {
	pool, err := ants.NewPool(s.cfg.ScanWorkers)
	if err != nil {
		return err
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for _, pid := range pids {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return err
		}
		wg.Add(1)
		pid := pid
		if err := pool.Submit(func() {
			defer wg.Done()
			s.scanTarget(st, pid)
		}); err != nil {
			wg.Done()
			wg.Wait()
			return err
		}
	}
	wg.Wait()
	return nil
}

// scanTarget collects one thread-group leader and, in thread mode, its
// tasks.
func (s *Scanner) scanTarget(st *scanState, pid int) {
	leader := s.scanProcess(st, pid, nil)
	if leader == nil {
		return
	}

	if !s.cfg.ShowThreads {
		return
	}
	tids, err := s.lister.Threads(pid)
	if err != nil {
		logger.L().Debug("thread enumeration failed",
			helpers.Int("pid", pid), helpers.Error(err))
		return
	}
	for _, tid := range tids {
		if tid == pid {
			continue
		}
		s.scanProcess(st, tid, leader)
	}
}

// scanProcess collects one process or task. Returns nil when the target
// vanished mid-scan or was filtered out.
func (s *Scanner) scanProcess(st *scanState, pid int, leader *fdclass.Process) *fdclass.Process {
	p := fdclass.NewProcess(pid, leader)
	if err := s.readIdentity(p); err != nil {
		logger.L().Debug("process vanished mid-scan",
			helpers.Int("pid", pid), helpers.Error(err))
		s.metrics.ReportFailedScan()
		return nil
	}
	if p.KThread && !s.cfg.ShowThreads {
		return nil
	}

	s.collectExeFile(st, p)

	if p.PID == p.Leader.PID || !s.cmp.Share(p.Leader.PID, p.PID, kerncap.ResourceFS) {
		s.collectFsFiles(st, p)
	}

	// The mount namespace must be resolved before anything that relies
	// on nodev naming: nsfs files collected below and the fd
	// classification both key off the namespace's mount table.
	s.collectNamespaceFilesTopHalf(st, p)
	if ns, ok := p.MntNS.(*nscache.MntNamespace); ok || p.MntNS == nil {
		if st.nsCache.ReadMountinfo(pid, ns) {
			s.metrics.ReportMountinfoParsed()
		}
	}
	s.collectNamespaceFilesBottomHalf(st, p)

	if !s.cfg.SocketsOnly &&
		(p.PID == p.Leader.PID || !s.cmp.Share(p.Leader.PID, p.PID, kerncap.ResourceVM)) {
		s.collectMemFiles(st, p)
	}

	if p.PID == p.Leader.PID || !s.cmp.Share(p.Leader.PID, p.PID, kerncap.ResourceFiles) {
		s.collectFdFiles(st, p)
	}

	if s.cfg.SocketsOnly {
		s.pruneNonSockets(st, p)
	}

	for _, f := range p.Files {
		fdclass.Attach(f)
	}

	if s.mux != nil && s.cfg.DetectMultiplexing {
		s.mux.Mark(p)
	}

	s.metrics.ReportProcessScanned()
	for _, f := range p.Files {
		if f.Class != nil {
			s.metrics.ReportFileCollected(f.Class.Name)
		}
	}

	st.mu.Lock()
	st.procs = append(st.procs, p)
	st.mu.Unlock()
	return p
}

// pruneNonSockets drops everything but socket descriptors, after the
// namespace plumbing has already run. Namespace references survive the
// prune; they are entry points for naming sockets in other namespaces.
func (s *Scanner) pruneNonSockets(st *scanState, p *fdclass.Process) {
	kept := p.Files[:0]
	for _, f := range p.Files {
		if f.Class == &fdclass.SockClass || f.Class == &fdclass.NsfsClass {
			kept = append(kept, f)
			continue
		}
		fdclass.Release(st.fctx, f)
	}
	p.Files = kept
}
