// Package muxdetect flags descriptors a process is multiplexing over:
// the arguments of the poll or select call it is currently parked in,
// read out of its address space, plus the targets of its eventpoll
// descriptors.
package muxdetect

import (
	"encoding/binary"
	"io"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/fdscan/fdscan/pkg/fdclass"
	"github.com/fdscan/fdscan/pkg/kerncap"
	"github.com/fdscan/fdscan/pkg/metricsmanager"
	"github.com/fdscan/fdscan/pkg/procpath"
)

const (
	// sizeof(struct pollfd): int fd, short events, short revents.
	pollfdSize = 8

	// fd_set is a fixed bitmap of FD_SETSIZE (1024) descriptors.
	fdSetBytes = 128
	fdSetBits  = fdSetBytes * 8

	// Bound on nfds read out of a traced process; anything bigger is a
	// torn or garbage register snapshot.
	maxPollFds = 1 << 20
)

type Detector struct {
	acc     procpath.Accessor
	vm      kerncap.VMReader
	metrics metricsmanager.MetricsManager
}

func NewDetector(acc procpath.Accessor, vm kerncap.VMReader, metrics metricsmanager.MetricsManager) *Detector {
	return &Detector{acc: acc, vm: vm, metrics: metrics}
}

// Mark inspects the process's blocked syscall and its eventpoll targets
// and sets the multiplexed bit on the affected descriptors. Every
// failure is silent: the process may have moved on, died, or be beyond
// our ptrace reach, and the bit just stays unset.
func (d *Detector) Mark(p *fdclass.Process) {
	d.markSyscall(p)
	d.markEventpoll(p)
}

func (d *Detector) markEventpoll(p *fdclass.Process) {
	if p.EpollTargets == nil || p.EpollTargets.Cardinality() == 0 {
		return
	}
	for _, f := range p.Files {
		if f.Assoc.IsFD() && !f.Multiplexed && p.EpollTargets.Contains(int(f.Assoc)) {
			f.Multiplexed = true
		}
	}
}

func (d *Detector) markSyscall(p *fdclass.Process) {
	if d.vm == nil {
		return
	}

	r, err := d.acc.Open(p.PID, "syscall")
	if err != nil {
		return
	}
	data, err := io.ReadAll(r)
	_ = r.Close()
	if err != nil {
		return
	}

	// "<nr> <arg1> .. <arg6> <sp> <pc>", or "running", or "-1" for a
	// process parked outside any syscall.
	fields := strings.Fields(string(data))
	if len(fields) < 7 {
		return
	}
	nr, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || nr < 0 {
		return
	}

	args := make([]uint64, 6)
	for i := range args {
		v, err := strconv.ParseUint(strings.TrimPrefix(fields[i+1], "0x"), 16, 64)
		if err != nil {
			return
		}
		args[i] = v
	}

	switch nr {
	case sysPoll, unix.SYS_PPOLL:
		d.markPollFds(p, args[0], args[1])
	case sysSelect, unix.SYS_PSELECT6:
		d.markSelectFds(p, args[0], args[1], args[2], args[3])
	}
}

// markPollFds reads the pollfd array the process handed to poll and
// flags every collected descriptor that appears in it.
func (d *Detector) markPollFds(p *fdclass.Process, addr, nfds uint64) {
	if addr == 0 || nfds == 0 || nfds > maxPollFds {
		return
	}

	buf := make([]byte, nfds*pollfdSize)
	if err := d.vm.ReadVM(p.PID, uintptr(addr), buf); err != nil {
		d.metrics.ReportVMReadFailure()
		return
	}

	polled := make([]int, 0, nfds)
	for i := uint64(0); i < nfds; i++ {
		fd := int32(binary.LittleEndian.Uint32(buf[i*pollfdSize:]))
		polled = append(polled, int(fd))
	}
	sort.Ints(polled)

	for _, f := range p.Files {
		if !f.Assoc.IsFD() || f.Multiplexed {
			continue
		}
		i := sort.SearchInts(polled, int(f.Assoc))
		if i < len(polled) && polled[i] == int(f.Assoc) {
			f.Multiplexed = true
		}
	}
}

// markSelectFds reads up to three fd_set bitmaps; a null pointer means
// the caller passed no set there.
func (d *Detector) markSelectFds(p *fdclass.Process, nfds, readAddr, writeAddr, exceptAddr uint64) {
	if nfds == 0 {
		return
	}
	if nfds > fdSetBits {
		nfds = fdSetBits
	}

	var sets [3][]byte
	for i, addr := range []uint64{readAddr, writeAddr, exceptAddr} {
		if addr == 0 {
			continue
		}
		buf := make([]byte, fdSetBytes)
		if err := d.vm.ReadVM(p.PID, uintptr(addr), buf); err != nil {
			d.metrics.ReportVMReadFailure()
			return
		}
		sets[i] = buf
	}

	for _, f := range p.Files {
		if !f.Assoc.IsFD() || f.Multiplexed {
			continue
		}
		fd := uint64(f.Assoc)
		if fd >= nfds {
			continue
		}
		for _, set := range sets {
			if set != nil && set[fd/8]&(1<<(fd%8)) != 0 {
				f.Multiplexed = true
				break
			}
		}
	}
}
