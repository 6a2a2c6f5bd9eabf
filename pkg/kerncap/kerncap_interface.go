// Package kerncap wraps the two kernel facilities the engine cannot get
// from /proc text: reading another process's memory and comparing kernel
// resources between two processes. Both are optional; callers degrade
// gracefully when a facility is unavailable.
package kerncap

// VMReader reads another process's address space.
type VMReader interface {
	// ReadVM copies len(buf) bytes from addr in pid's address space.
	// Short reads are errors.
	ReadVM(pid int, addr uintptr, buf []byte) error
}

// ResourceKind names a per-process kernel resource that can be shared
// between tasks.
type ResourceKind int

const (
	// ResourceFS is the filesystem context (cwd and root).
	ResourceFS ResourceKind = iota
	// ResourceVM is the address space.
	ResourceVM
	// ResourceFiles is the file descriptor table.
	ResourceFiles
)

// ResourceComparer reports whether two processes share a kernel
// resource, so a scan of one can be reused for the other. An
// implementation that cannot tell must answer false.
type ResourceComparer interface {
	Share(pid1, pid2 int, kind ResourceKind) bool
}
