package scanner

import (
	"bufio"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/fdscan/fdscan/pkg/fdclass"
)

func (s *Scanner) collectMemFiles(st *scanState, p *fdclass.Process) {
	r, err := s.acc.Open(p.PID, "maps")
	if err != nil {
		return
	}
	defer func() { _ = r.Close() }()

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		s.parseMapsLine(st, p, sc.Text())
	}
}

// parseMapsLine collects one mapping:
//
//	start-end perms offset maj:min inode [path]
//
// Private anonymous mappings carry no file and are skipped.
func (s *Scanner) parseMapsLine(st *scanState, p *fdclass.Process, line string) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return
	}

	startStr, endStr, found := strings.Cut(fields[0], "-")
	if !found {
		return
	}
	start, err1 := strconv.ParseUint(startStr, 16, 64)
	end, err2 := strconv.ParseUint(endStr, 16, 64)
	if err1 != nil || err2 != nil {
		return
	}

	perms := fields[1]
	offset, err := strconv.ParseUint(fields[2], 16, 64)
	if err != nil {
		return
	}

	majStr, minStr, found := strings.Cut(fields[3], ":")
	if !found {
		return
	}
	major, err1 := strconv.ParseUint(majStr, 16, 32)
	minor, err2 := strconv.ParseUint(minStr, 16, 32)
	if err1 != nil || err2 != nil {
		return
	}

	ino, err := strconv.ParseUint(fields[4], 10, 64)
	if err != nil {
		return
	}

	if major == 0 && minor == 0 && ino == 0 {
		return
	}

	dev := unix.Mkdev(uint32(major), uint32(minor))
	assoc := fdclass.AssocMem
	if len(perms) > 3 && perms[3] == 's' {
		assoc = fdclass.AssocShm
	}

	var f *fdclass.File
	prev := p.LastFile()
	switch {
	// Consecutive mapping lines usually refer to the same file; reuse
	// the previous stat snapshot when device and inode agree.
	case prev != nil && !prev.IsError && prev.Stat.Dev == dev && prev.Stat.Ino == ino:
		f = fdclass.CopyFile(prev, assoc)
	case len(fields) > 5 && strings.HasPrefix(fields[5], "/"):
		path := strings.TrimSpace(line[strings.Index(line, fields[5]):])
		if fst, err := s.acc.StatAbs(filepath.Join(s.acc.Root(), strconv.Itoa(p.PID), "root", path)); err == nil {
			f = fdclass.NewFile(p, fdclass.Classify(fst, st.nodev), fst, path, assoc)
			break
		}
		// A mapped-then-unlinked file cannot be stat'ed by name; the
		// map_files entry still reaches it.
		fallthrough
	default:
		f = s.collectMapFile(st, p, start, end, assoc)
	}

	if len(perms) > 0 && perms[0] == 'r' {
		f.Mode |= unix.S_IRUSR
	}
	if len(perms) > 1 && perms[1] == 'w' {
		f.Mode |= unix.S_IWUSR
	}
	if len(perms) > 2 && perms[2] == 'x' {
		f.Mode |= unix.S_IXUSR
	}
	f.MapStart = start
	f.MapEnd = end
	f.Pos = offset

	fdclass.InitContent(st.fctx, f)
}

// collectMapFile resolves a pathless mapping (mmap'ed sockets, unlinked
// files) through /proc/<pid>/map_files.
func (s *Scanner) collectMapFile(st *scanState, p *fdclass.Process, start, end uint64, assoc fdclass.Association) *fdclass.File {
	name := fmt.Sprintf("map_files/%x-%x", start, end)
	target, err := s.acc.ReadLink(p.PID, name)
	if err != nil {
		return fdclass.NewReadlinkErrorFile(p, err, assoc)
	}
	fst, err := s.acc.Stat(p.PID, name)
	if err != nil {
		return fdclass.NewStatErrorFile(p, target, err, assoc)
	}
	return fdclass.NewFile(p, fdclass.Classify(fst, st.nodev), fst, target, assoc)
}
