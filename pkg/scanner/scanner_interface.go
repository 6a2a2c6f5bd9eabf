package scanner

import (
	"context"

	"github.com/fdscan/fdscan/pkg/fdclass"
)

// Scanner walks the process table and builds the Process/File graph.
type Scanner interface {
	Scan(ctx context.Context) (*Result, error)
}

// Result is one completed scan. Ctx carries the per-scan state the
// column fill hooks need; keep it alongside the processes until the
// result is released.
type Result struct {
	Processes []*fdclass.Process
	Ctx       *fdclass.Ctx
}

// Release runs the per-file teardown hooks and the class finalizers.
// Call exactly once, after the result has been rendered.
func (r *Result) Release() {
	for _, p := range r.Processes {
		for _, f := range p.Files {
			fdclass.Release(r.Ctx, f)
		}
	}
	fdclass.FinalizeClasses(r.Ctx)
}

// MuxDetector inspects a freshly collected process and flags the
// descriptors it is multiplexing over. Runs while the process is still
// likely parked in its wait syscall.
type MuxDetector interface {
	Mark(p *fdclass.Process)
}
