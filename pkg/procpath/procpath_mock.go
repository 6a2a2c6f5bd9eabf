package procpath

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// MapAccessor is an in-memory Accessor for tests. Keys are pid-relative
// ("42/maps", "42/fd/3") for the pid operations and plain paths for
// StatAbs. StatCalls counts every Stat/LStat/StatAbs so tests can assert
// the dedup invariants.
type MapAccessor struct {
	RootDir   string
	Files     map[string][]byte
	Links     map[string]string
	Stats     map[string]*FileStat
	StatCalls int

	mu sync.Mutex
}

var _ Accessor = (*MapAccessor)(nil)

func NewMapAccessor() *MapAccessor {
	return &MapAccessor{
		RootDir: "/proc",
		Files:   make(map[string][]byte),
		Links:   make(map[string]string),
		Stats:   make(map[string]*FileStat),
	}
}

func (m *MapAccessor) key(pid int, name string) string {
	return filepath.Join(strconv.Itoa(pid), name)
}

func (m *MapAccessor) Root() string { return m.RootDir }

func (m *MapAccessor) Open(pid int, name string) (io.ReadCloser, error) {
	data, ok := m.Files[m.key(pid, name)]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MapAccessor) ReadLink(pid int, name string) (string, error) {
	target, ok := m.Links[m.key(pid, name)]
	if !ok {
		return "", os.ErrNotExist
	}
	return target, nil
}

func (m *MapAccessor) Stat(pid int, name string) (*FileStat, error) {
	return m.lookup(m.key(pid, name))
}

func (m *MapAccessor) LStat(pid int, name string) (*FileStat, error) {
	return m.lookup(m.key(pid, name) + "@lstat")
}

func (m *MapAccessor) StatAbs(path string) (*FileStat, error) {
	return m.lookup(path)
}

// ReadDir derives directory entries from the registered files and links,
// sorted so descriptor walks are deterministic.
func (m *MapAccessor) ReadDir(pid int, name string) ([]string, error) {
	prefix := m.key(pid, name) + "/"
	seen := make(map[string]struct{})
	collect := func(key string) {
		if rest, ok := strings.CutPrefix(key, prefix); ok {
			if i := strings.IndexByte(rest, '/'); i >= 0 {
				rest = rest[:i]
			}
			rest = strings.TrimSuffix(rest, "@lstat")
			seen[rest] = struct{}{}
		}
	}
	for key := range m.Files {
		collect(key)
	}
	for key := range m.Links {
		collect(key)
	}
	if len(seen) == 0 {
		return nil, os.ErrNotExist
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		a, errA := strconv.Atoi(names[i])
		b, errB := strconv.Atoi(names[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return names[i] < names[j]
	})
	return names, nil
}

func (m *MapAccessor) lookup(key string) (*FileStat, error) {
	m.mu.Lock()
	m.StatCalls++
	m.mu.Unlock()
	st, ok := m.Stats[key]
	if !ok {
		return nil, os.ErrNotExist
	}
	cp := *st
	return &cp, nil
}

// SetFile registers a pid-relative regular file.
func (m *MapAccessor) SetFile(pid int, name string, data []byte) {
	m.Files[m.key(pid, name)] = data
}

// SetLink registers a pid-relative symlink with its stat result.
func (m *MapAccessor) SetLink(pid int, name, target string, st *FileStat) {
	m.Links[m.key(pid, name)] = target
	if st != nil {
		m.Stats[m.key(pid, name)] = st
	}
}

// SetLStat registers the no-follow stat result for a pid-relative path.
func (m *MapAccessor) SetLStat(pid int, name string, st *FileStat) {
	m.Stats[m.key(pid, name)+"@lstat"] = st
}
