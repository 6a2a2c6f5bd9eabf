package scanner

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"

	"github.com/fdscan/fdscan/pkg/fdclass"
)

func (s *Scanner) collectFdFiles(st *scanState, p *fdclass.Process) {
	names, err := s.acc.ReadDir(p.PID, "fd")
	if err != nil {
		logger.L().Debug("fd directory unreadable",
			helpers.Int("pid", p.PID), helpers.Error(err))
		return
	}
	for _, name := range names {
		fd, err := strconv.Atoi(name)
		if err != nil || fd < 0 {
			continue
		}
		s.collectSymlink(st, p, "fd/"+name, fdclass.Association(fd))
	}
}

// readFdinfo feeds every "key:\tvalue" line of /proc/<pid>/fdinfo/<fd>
// down the file's class chain. Unrecognized keys fall off the end.
func (s *Scanner) readFdinfo(p *fdclass.Process, f *fdclass.File) {
	r, err := s.acc.Open(p.PID, "fdinfo/"+strconv.Itoa(int(f.Assoc)))
	if err != nil {
		return
	}
	defer func() { _ = r.Close() }()

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		key, value, found := strings.Cut(sc.Text(), ":")
		if !found {
			continue
		}
		fdclass.HandleFdinfo(f, key, strings.TrimSpace(value))
	}
}
