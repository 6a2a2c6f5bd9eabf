package nscache

import (
	"path/filepath"
	"strconv"
	"sync"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/moby/sys/mountinfo"
	"golang.org/x/sys/unix"

	"github.com/fdscan/fdscan/pkg/procpath"
)

// CookedDevice maps the device number a mountpoint shows from outside the
// namespace to the device the namespace's mount table declares for it.
type CookedDevice struct {
	Cooked     uint64
	Raw        uint64
	Filesystem string
}

// MntNamespace is the cached per-namespace record, keyed by the
// namespace's identifying inode. The mount table behind it is parsed at
// most once; readDone is set even on failure so a broken namespace is not
// retried for every process in it.
type MntNamespace struct {
	id       uint64
	readDone bool
	cooked   map[uint64]*CookedDevice
}

func (ns *MntNamespace) NamespaceID() uint64 { return ns.id }
func (ns *MntNamespace) MountinfoRead() bool { return ns.readDone }

// CookedDevices returns the surviving remap entries, for tests.
func (ns *MntNamespace) CookedDevices() map[uint64]*CookedDevice { return ns.cooked }

// addCooked records a remap entry. Unlike the nodev registry this is
// last-write-wins: remounts may legitimately change a namespace-local
// mapping. The minor suffix for zero-major devices is attached only
// when the entry is first created; an overwrite keeps the plain name.
func (ns *MntNamespace) addCooked(cooked, raw uint64, filesystem string) {
	if entry, ok := ns.cooked[cooked]; ok {
		entry.Raw = raw
		entry.Filesystem = filesystem
		return
	}
	if unix.Major(cooked) == 0 {
		filesystem = filesystem + ":" + strconv.FormatUint(uint64(unix.Minor(cooked)), 10)
	}
	ns.cooked[cooked] = &CookedDevice{Cooked: cooked, Raw: raw, Filesystem: filesystem}
}

// Cache memoizes MntNamespace records by namespace inode.
type Cache struct {
	mu         *sync.Mutex
	namespaces map[uint64]*MntNamespace
	nodev      *NodevRegistry
	acc        procpath.Accessor
	selfNSID   uint64

	// ParseCount counts mountinfo reads; tests assert the memoization
	// invariant through it.
	ParseCount int
}

func NewCache(nodev *NodevRegistry, acc procpath.Accessor) *Cache {
	return &Cache{
		namespaces: make(map[uint64]*MntNamespace),
		nodev:      nodev,
		acc:        acc,
	}
}

// NewConcurrentCache locks lookups and parses, for the parallel scan
// mode.
func NewConcurrentCache(nodev *NodevRegistry, acc procpath.Accessor) *Cache {
	c := NewCache(nodev, acc)
	c.mu = &sync.Mutex{}
	return c
}

func (c *Cache) lock() func() {
	if c.mu == nil {
		return func() {}
	}
	c.mu.Lock()
	return c.mu.Unlock
}

// SetSelfNamespace tells the cache which namespace the scanner itself
// runs in; device cooking is skipped for it since nothing needs
// remapping there.
func (c *Cache) SetSelfNamespace(id uint64) { c.selfNSID = id }

// Lookup finds or lazily creates the record for a namespace inode.
func (c *Cache) Lookup(id uint64) *MntNamespace {
	defer c.lock()()
	if ns, ok := c.namespaces[id]; ok {
		return ns
	}
	ns := &MntNamespace{id: id, cooked: make(map[uint64]*CookedDevice)}
	c.namespaces[id] = ns
	return ns
}

// ReadMountinfo parses the namespace's mount table through the given
// process at most once for the cache's lifetime, reporting whether a
// parse actually ran. Failure still marks the record done, yielding no
// cooking and no nodev entries.
func (c *Cache) ReadMountinfo(pid int, ns *MntNamespace) bool {
	defer c.lock()()
	if ns != nil && ns.readDone {
		return false
	}

	cooking := ns != nil && ns.id != c.selfNSID
	if ns != nil {
		ns.readDone = true
	}

	r, err := c.acc.Open(pid, "mountinfo")
	if err != nil {
		logger.L().Debug("mountinfo unreadable",
			helpers.Int("pid", pid), helpers.Error(err))
		return false
	}
	defer func() { _ = r.Close() }()
	c.ParseCount++

	mounts, err := mountinfo.GetMountsFromReader(r, nil)
	if err != nil {
		logger.L().Debug("mountinfo parse failed",
			helpers.Int("pid", pid), helpers.Error(err))
		return false
	}

	rootPrefix := filepath.Join(c.acc.Root(), strconv.Itoa(pid), "root")
	for _, m := range mounts {
		raw := unix.Mkdev(uint32(m.Major), uint32(m.Minor))

		if cooking {
			// The effective device is what the mountpoint shows when
			// addressed through the process's root, i.e. from outside
			// the namespace's own device numbering.
			if st, err := c.acc.StatAbs(filepath.Join(rootPrefix, m.Mountpoint)); err == nil {
				ns.addCooked(st.Dev, raw, m.FSType)
			}
		}

		if m.Major == 0 {
			c.nodev.Add(uint32(m.Minor), m.FSType)
		}
	}

	if cooking {
		c.finishCooking(ns)
	}
	return true
}

// finishCooking prunes identity remaps and promotes zero-major cooked
// devices into the nodev registry.
func (c *Cache) finishCooking(ns *MntNamespace) {
	for cooked, entry := range ns.cooked {
		if entry.Cooked == entry.Raw {
			delete(ns.cooked, cooked)
			continue
		}
		minor := unix.Minor(entry.Cooked)
		if unix.Major(entry.Cooked) == 0 {
			if _, known := c.nodev.NodevFilesystem(minor); !known {
				c.nodev.Add(minor, entry.Filesystem)
			}
		}
	}
}
