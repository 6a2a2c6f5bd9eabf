package scanner

import (
	"sort"

	"github.com/prometheus/procfs"
)

// ProcessLister enumerates scan targets. Separated from the accessor so
// tests can drive the collector with a canned process table.
type ProcessLister interface {
	Pids() ([]int, error)
	Threads(pid int) ([]int, error)
}

type procfsLister struct {
	fs procfs.FS
}

// NewProcfsLister enumerates through a procfs mount at root.
func NewProcfsLister(root string) (ProcessLister, error) {
	fs, err := procfs.NewFS(root)
	if err != nil {
		return nil, err
	}
	return &procfsLister{fs: fs}, nil
}

func (l *procfsLister) Pids() ([]int, error) {
	procs, err := l.fs.AllProcs()
	if err != nil {
		return nil, err
	}
	pids := make([]int, 0, len(procs))
	for _, p := range procs {
		pids = append(pids, p.PID)
	}
	sort.Ints(pids)
	return pids, nil
}

func (l *procfsLister) Threads(pid int) ([]int, error) {
	procs, err := l.fs.AllThreads(pid)
	if err != nil {
		return nil, err
	}
	tids := make([]int, 0, len(procs))
	for _, p := range procs {
		tids = append(tids, p.PID)
	}
	sort.Ints(tids)
	return tids, nil
}

// MapLister is the canned lister used in tests: thread-group leaders
// mapped to their full tid lists.
type MapLister map[int][]int

var _ ProcessLister = MapLister(nil)

func (m MapLister) Pids() ([]int, error) {
	pids := make([]int, 0, len(m))
	for pid := range m {
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	return pids, nil
}

func (m MapLister) Threads(pid int) ([]int, error) {
	return m[pid], nil
}
