package muxdetect

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"

	"github.com/fdscan/fdscan/pkg/fdclass"
	"github.com/fdscan/fdscan/pkg/kerncap"
	"github.com/fdscan/fdscan/pkg/metricsmanager"
	"github.com/fdscan/fdscan/pkg/procpath"
)

func newTestProcess(pid int, fds ...int) *fdclass.Process {
	p := fdclass.NewProcess(pid, nil)
	for _, fd := range fds {
		fdclass.NewFile(p, &fdclass.FileClass, &procpath.FileStat{}, fmt.Sprintf("/f/%d", fd), fdclass.Association(fd))
	}
	return p
}

func fileByFd(p *fdclass.Process, fd int) *fdclass.File {
	for _, f := range p.Files {
		if f.Assoc == fdclass.Association(fd) {
			return f
		}
	}
	return nil
}

func pollfdBytes(fds ...int32) []byte {
	buf := make([]byte, len(fds)*pollfdSize)
	for i, fd := range fds {
		binary.LittleEndian.PutUint32(buf[i*pollfdSize:], uint32(fd))
	}
	return buf
}

func TestMarkPollFds(t *testing.T) {
	const pid = 100
	const addr = uintptr(0x7f0000)

	acc := procpath.NewMapAccessor()
	acc.SetFile(pid, "syscall",
		[]byte(fmt.Sprintf("%d 0x%x 0x2 0x0 0x0 0x0 0x0 0x7ffc0000 0x401000\n", unix.SYS_PPOLL, addr)))

	vm := kerncap.NewMapVMReader()
	vm.SetRegion(pid, addr, pollfdBytes(5, 9))

	p := newTestProcess(pid, 4, 5, 6)
	NewDetector(acc, vm, metricsmanager.NewMetricsMock()).Mark(p)

	assert.False(t, fileByFd(p, 4).Multiplexed)
	assert.True(t, fileByFd(p, 5).Multiplexed)
	assert.False(t, fileByFd(p, 6).Multiplexed)
}

func TestMarkSelectFds(t *testing.T) {
	const pid = 101
	const readAddr = uintptr(0x50000)

	set := make([]byte, fdSetBytes)
	set[0] |= 1 << 5 // fd 5
	set[1] |= 1 << 2 // fd 10, beyond nfds

	acc := procpath.NewMapAccessor()
	acc.SetFile(pid, "syscall",
		[]byte(fmt.Sprintf("%d 0x7 0x%x 0x0 0x0 0x0 0x0 0x7ffc0000 0x401000\n", unix.SYS_PSELECT6, readAddr)))

	vm := kerncap.NewMapVMReader()
	vm.SetRegion(pid, readAddr, set)

	p := newTestProcess(pid, 4, 5, 10)
	NewDetector(acc, vm, metricsmanager.NewMetricsMock()).Mark(p)

	assert.False(t, fileByFd(p, 4).Multiplexed)
	assert.True(t, fileByFd(p, 5).Multiplexed)
	assert.False(t, fileByFd(p, 10).Multiplexed)
}

func TestMarkEventpoll(t *testing.T) {
	p := newTestProcess(102, 3, 7)
	p.EpollTargets.Add(3)

	acc := procpath.NewMapAccessor()
	NewDetector(acc, kerncap.NewMapVMReader(), metricsmanager.NewMetricsMock()).Mark(p)

	assert.True(t, fileByFd(p, 3).Multiplexed)
	assert.False(t, fileByFd(p, 7).Multiplexed)
}

func TestMarkVMReadFailureCounted(t *testing.T) {
	const pid = 103

	acc := procpath.NewMapAccessor()
	acc.SetFile(pid, "syscall",
		[]byte(fmt.Sprintf("%d 0xdead 0x1 0x0 0x0 0x0 0x0 0x7ffc0000 0x401000\n", unix.SYS_PPOLL)))

	metrics := metricsmanager.NewMetricsMock()
	p := newTestProcess(pid, 4)
	NewDetector(acc, kerncap.NewMapVMReader(), metrics).Mark(p)

	assert.False(t, fileByFd(p, 4).Multiplexed)
	assert.Equal(t, int32(1), metrics.VMReadFailureCounter.Load())
}

func TestMarkRunningProcessIgnored(t *testing.T) {
	const pid = 104

	acc := procpath.NewMapAccessor()
	acc.SetFile(pid, "syscall", []byte("running\n"))

	p := newTestProcess(pid, 4)
	NewDetector(acc, kerncap.NewMapVMReader(), metricsmanager.NewMetricsMock()).Mark(p)

	assert.False(t, fileByFd(p, 4).Multiplexed)
}
