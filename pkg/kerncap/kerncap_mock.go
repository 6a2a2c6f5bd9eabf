package kerncap

import "os"

// MapVMReader serves reads from canned memory regions keyed by pid and
// base address. A read must fall entirely inside one region.
type MapVMReader struct {
	Regions map[int]map[uintptr][]byte
}

var _ VMReader = (*MapVMReader)(nil)

func NewMapVMReader() *MapVMReader {
	return &MapVMReader{Regions: make(map[int]map[uintptr][]byte)}
}

// SetRegion installs a memory region for pid at base.
func (m *MapVMReader) SetRegion(pid int, base uintptr, data []byte) {
	if m.Regions[pid] == nil {
		m.Regions[pid] = make(map[uintptr][]byte)
	}
	m.Regions[pid][base] = data
}

func (m *MapVMReader) ReadVM(pid int, addr uintptr, buf []byte) error {
	for base, data := range m.Regions[pid] {
		if addr >= base && addr+uintptr(len(buf)) <= base+uintptr(len(data)) {
			copy(buf, data[addr-base:])
			return nil
		}
	}
	return os.ErrNotExist
}

// StaticComparer answers every comparison with a fixed verdict.
type StaticComparer bool

var _ ResourceComparer = StaticComparer(false)

func (s StaticComparer) Share(int, int, ResourceKind) bool { return bool(s) }
