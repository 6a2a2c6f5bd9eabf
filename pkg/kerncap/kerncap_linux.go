package kerncap

import (
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

type vmReader struct{}

// NewVMReader returns a process_vm_readv backed VMReader.
func NewVMReader() VMReader { return vmReader{} }

func (vmReader) ReadVM(pid int, addr uintptr, buf []byte) error {
	local := []unix.Iovec{{Base: &buf[0], Len: uint64(len(buf))}}
	remote := []unix.RemoteIovec{{Base: addr, Len: len(buf)}}
	n, err := unix.ProcessVMReadv(pid, local, remote, 0)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("short read from pid %d: %d of %d bytes", pid, n, len(buf))
	}
	return nil
}

const (
	kcmpFile  = 0
	kcmpVM    = 1
	kcmpFiles = 2
	kcmpFS    = 3
)

type kcmpComparer struct {
	// broken flips once kcmp reports ENOSYS; later calls short-circuit.
	broken atomic.Bool
}

// NewResourceComparer returns a kcmp(2) backed ResourceComparer. When
// the kernel lacks the syscall every comparison answers false, which
// just costs a recollection.
func NewResourceComparer() ResourceComparer { return &kcmpComparer{} }

func (c *kcmpComparer) Share(pid1, pid2 int, kind ResourceKind) bool {
	if c.broken.Load() {
		return false
	}

	var typ uintptr
	switch kind {
	case ResourceFS:
		typ = kcmpFS
	case ResourceVM:
		typ = kcmpVM
	case ResourceFiles:
		typ = kcmpFiles
	default:
		return false
	}

	ret, _, errno := unix.Syscall6(unix.SYS_KCMP,
		uintptr(pid1), uintptr(pid2), typ, 0, 0, 0)
	if errno != 0 {
		if errors.Is(errno, unix.ENOSYS) {
			c.broken.Store(true)
		}
		return false
	}
	return ret == 0
}
