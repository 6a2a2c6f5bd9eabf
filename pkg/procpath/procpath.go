// Package procpath gives the engine path-scoped access to a process's
// /proc/<pid> directory with an overridable root prefix, so the whole
// scan can run against a captured snapshot instead of a live system.
package procpath

import (
	"io"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// FileStat is the captured stat snapshot the engine keeps per file. It is
// deliberately small; everything else in unix.Stat_t is noise here.
type FileStat struct {
	Dev   uint64
	RDev  uint64
	Ino   uint64
	Mode  uint32
	Nlink uint64
	Size  int64
	UID   uint32
}

// Accessor is the file-access capability bound to a proc root. All
// pid-relative operations resolve under <root>/<pid>/.
type Accessor interface {
	// Open opens a pid-relative file such as "maps" or "fdinfo/3".
	Open(pid int, name string) (io.ReadCloser, error)
	// ReadLink resolves a pid-relative symlink such as "fd/0" or "exe".
	ReadLink(pid int, name string) (string, error)
	// Stat stats a pid-relative path, following the final symlink.
	Stat(pid int, name string) (*FileStat, error)
	// LStat stats a pid-relative path without following the final symlink.
	LStat(pid int, name string) (*FileStat, error)
	// StatAbs stats an absolute path under the accessor's root. Used for
	// mountpoint cooking and for maps entries that carry a pathname.
	StatAbs(path string) (*FileStat, error)
	// ReadDir lists the entry names of a pid-relative directory such as
	// "fd" or "map_files".
	ReadDir(pid int, name string) ([]string, error)
	// Root returns the proc root prefix ("/proc" on a live system).
	Root() string
}

type osAccessor struct {
	root string
	fs   afero.Fs
}

// New returns an Accessor rooted at root (usually "/proc"). Reads go
// through fs; stat and readlink hit the kernel directly since afero
// cannot surface device and inode numbers.
func New(root string, fs afero.Fs) Accessor {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &osAccessor{root: root, fs: fs}
}

func (a *osAccessor) pidPath(pid int, name string) string {
	return filepath.Join(a.root, strconv.Itoa(pid), name)
}

func (a *osAccessor) Root() string { return a.root }

func (a *osAccessor) Open(pid int, name string) (io.ReadCloser, error) {
	return a.fs.Open(a.pidPath(pid, name))
}

func (a *osAccessor) ReadLink(pid int, name string) (string, error) {
	if lr, ok := a.fs.(afero.LinkReader); ok {
		return lr.ReadlinkIfPossible(a.pidPath(pid, name))
	}
	return "", afero.ErrNoReadlink
}

func (a *osAccessor) Stat(pid int, name string) (*FileStat, error) {
	return statPath(a.pidPath(pid, name), true)
}

func (a *osAccessor) LStat(pid int, name string) (*FileStat, error) {
	return statPath(a.pidPath(pid, name), false)
}

func (a *osAccessor) StatAbs(path string) (*FileStat, error) {
	return statPath(path, true)
}

func (a *osAccessor) ReadDir(pid int, name string) ([]string, error) {
	infos, err := afero.ReadDir(a.fs, a.pidPath(pid, name))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names, nil
}

func statPath(path string, follow bool) (*FileStat, error) {
	var st unix.Stat_t
	var err error
	if follow {
		err = unix.Stat(path, &st)
	} else {
		err = unix.Lstat(path, &st)
	}
	if err != nil {
		return nil, err
	}
	return &FileStat{
		Dev:   uint64(st.Dev),
		RDev:  uint64(st.Rdev),
		Ino:   st.Ino,
		Mode:  uint32(st.Mode),
		Nlink: uint64(st.Nlink),
		Size:  st.Size,
		UID:   st.Uid,
	}, nil
}
