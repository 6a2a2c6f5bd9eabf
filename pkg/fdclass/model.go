// Package fdclass holds the typed Process/File model and the polymorphic
// file-class registry that classifies every descriptor, mapping and
// namespace reference a scan discovers.
package fdclass

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/fdscan/fdscan/pkg/procpath"
)

// Association says why a File exists for a process: a non-negative file
// descriptor, or one of the negative sentinels below.
type Association int

const (
	AssocExe Association = -(iota + 1)
	AssocCwd
	AssocRoot
	AssocNSCgroup
	AssocNSIpc
	AssocNSMnt
	AssocNSNet
	AssocNSPid
	AssocNSPidForChildren
	AssocNSTime
	AssocNSTimeForChildren
	AssocNSUser
	AssocNSUts
	AssocMem
	AssocShm
)

// "root" shows up as a user name too, so the root directory association
// renders as "rtd".
var assocNames = map[Association]string{
	AssocExe:               "exe",
	AssocCwd:               "cwd",
	AssocRoot:              "rtd",
	AssocNSCgroup:          "cgroup",
	AssocNSIpc:             "ipc",
	AssocNSMnt:             "mnt",
	AssocNSNet:             "net",
	AssocNSPid:             "pid",
	AssocNSPidForChildren:  "pid4c",
	AssocNSTime:            "time",
	AssocNSTimeForChildren: "time4c",
	AssocNSUser:            "user",
	AssocNSUts:             "uts",
	AssocMem:               "mem",
	AssocShm:               "shm",
}

func (a Association) IsFD() bool     { return a >= 0 }
func (a Association) IsMapped() bool { return a == AssocMem || a == AssocShm }

func (a Association) String() string {
	if a.IsFD() {
		return ""
	}
	return assocNames[a]
}

// SyscallError records the failing syscall behind a readlink-error or
// stat-error file.
type SyscallError struct {
	Syscall string
	Errno   error
}

// File is one fd, mapping or out-of-box association of a process. Created
// once, owned by its Process, never shared across processes.
type File struct {
	Class *Class
	Assoc Association
	Name  string
	Stat  procpath.FileStat
	Err   *SyscallError

	// Mode carries the access-mode bits (rwx as seen by the opener), not
	// the file type; the type lives in Stat.Mode.
	Mode     uint32
	Pos      uint64
	MapStart uint64
	MapEnd   uint64
	SysFlags uint32
	MntID    uint32

	LockedRead  bool
	LockedWrite bool
	Multiplexed bool
	IsError     bool

	Proc *Process

	// Content is owned exclusively by the concrete class.
	Content any
}

// MntNamespaceRef is the part of a mount-namespace record the model needs
// to see; the cache behind it lives in pkg/nscache.
type MntNamespaceRef interface {
	NamespaceID() uint64
	MountinfoRead() bool
}

// Process is one scanned process (or thread, when thread-level detail was
// requested). Leader points to itself for a thread-group leader.
type Process struct {
	PID     int
	PPID    int
	Leader  *Process
	Command string
	UID     uint32
	KThread bool

	Files []*File
	MntNS MntNamespaceRef

	// EpollTargets collects every descriptor number some eventpoll file
	// of this process is watching.
	EpollTargets mapset.Set[int]
}

func NewProcess(pid int, leader *Process) *Process {
	p := &Process{PID: pid, EpollTargets: mapset.NewThreadUnsafeSet[int]()}
	if leader != nil {
		p.Leader = leader
	} else {
		p.Leader = p
	}
	return p
}

// AddFile appends f to the process's ordered file collection.
func (p *Process) AddFile(f *File) {
	f.Proc = p
	p.Files = append(p.Files, f)
}

// LastFile returns the most recently added file, or nil. The collector
// uses it to dedup consecutive entries backed by the same inode.
func (p *Process) LastFile() *File {
	if len(p.Files) == 0 {
		return nil
	}
	return p.Files[len(p.Files)-1]
}
