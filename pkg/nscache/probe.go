package nscache

import (
	"golang.org/x/sys/unix"
)

// Prober seeds a NodevRegistry with kernel-internal filesystems that do
// not appear in any mount table, by statting well-known objects that
// live on them.
type Prober interface {
	Probe(reg *NodevRegistry)
}

type linuxProber struct{}

// NewProber returns the live-kernel prober.
func NewProber() Prober { return linuxProber{} }

// Probe registers nsfs and pidfs, whose device numbers can only be
// discovered by statting an instance. tmpfs and mqueue normally come
// from mountinfo but are probed too so classification works even when
// no process has them mounted.
func (linuxProber) Probe(reg *NodevRegistry) {
	var st unix.Stat_t

	if err := unix.Stat("/proc/self/ns/mnt", &st); err == nil {
		reg.Add(unix.Minor(st.Dev), "nsfs")
	}
	if err := unix.Stat("/dev/shm", &st); err == nil {
		reg.Add(unix.Minor(st.Dev), "tmpfs")
	}
	if err := unix.Stat("/dev/mqueue", &st); err == nil {
		reg.Add(unix.Minor(st.Dev), "mqueue")
	}

	// pidfs has no filesystem object at a fixed path; open a pidfd on
	// ourselves and stat it.
	if fd, err := unix.PidfdOpen(unix.Getpid(), 0); err == nil {
		if err := unix.Fstat(fd, &st); err == nil {
			reg.Add(unix.Minor(st.Dev), "pidfs")
		}
		_ = unix.Close(fd)
	}
}

// MapProber is the canned prober used in tests.
type MapProber map[uint32]string

func (m MapProber) Probe(reg *NodevRegistry) {
	for minor, name := range m {
		reg.Add(minor, name)
	}
}
