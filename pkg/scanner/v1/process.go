package scanner

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fdscan/fdscan/pkg/fdclass"
)

// PF_KTHREAD in the kernel's task flags, surfaced as field 9 of
// /proc/<pid>/stat.
const pfKthread = 0x00200000

// readIdentity fills command, ppid, uid and the kernel-thread bit from
// /proc/<pid>/stat and the pid directory's owner.
func (s *Scanner) readIdentity(p *fdclass.Process) error {
	r, err := s.acc.Open(p.PID, "stat")
	if err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	_ = r.Close()
	if err != nil {
		return err
	}

	// The command may contain spaces and parentheses; everything between
	// the first '(' and the last ')' is the command.
	line := string(data)
	open := strings.IndexByte(line, '(')
	end := strings.LastIndexByte(line, ')')
	if open < 0 || end < open {
		return fmt.Errorf("malformed stat line for pid %d", p.PID)
	}
	p.Command = line[open+1 : end]

	// After the command: state ppid pgrp session tty_nr tpgid flags ...
	fields := strings.Fields(line[end+1:])
	if len(fields) > 1 {
		if ppid, err := strconv.Atoi(fields[1]); err == nil {
			p.PPID = ppid
		}
	}
	if len(fields) > 6 {
		if flags, err := strconv.ParseUint(fields[6], 10, 64); err == nil {
			p.KThread = flags&pfKthread != 0
		}
	}

	if st, err := s.acc.Stat(p.PID, "."); err == nil {
		p.UID = st.UID
	}
	return nil
}

// collectSymlink turns one /proc/<pid> symlink into a classified file.
// Consecutive links resolving to the same path reuse the previous stat
// snapshot; /proc/#/fd often holds the same file several times.
func (s *Scanner) collectSymlink(st *scanState, p *fdclass.Process, name string, assoc fdclass.Association) *fdclass.File {
	var f *fdclass.File

	target, err := s.acc.ReadLink(p.PID, name)
	if err != nil {
		f = fdclass.NewReadlinkErrorFile(p, err, assoc)
	} else if prev := p.LastFile(); prev != nil && !prev.IsError && prev.Name != "" && prev.Name == target {
		f = fdclass.CopyFile(prev, assoc)
	} else if fst, err := s.acc.Stat(p.PID, name); err != nil {
		f = fdclass.NewStatErrorFile(p, target, err, assoc)
	} else {
		f = fdclass.NewFile(p, fdclass.Classify(fst, st.nodev), fst, target, assoc)
	}

	fdclass.InitContent(st.fctx, f)

	if f.IsError {
		return f
	}

	switch {
	case f.Assoc == fdclass.AssocNSMnt:
		ns := st.nsCache.Lookup(f.Stat.Ino)
		p.MntNS = ns
	case f.Assoc.IsFD():
		if lst, err := s.acc.LStat(p.PID, name); err == nil {
			f.Mode = lst.Mode
		}
		s.readFdinfo(p, f)
	}
	return f
}

func (s *Scanner) collectExeFile(st *scanState, p *fdclass.Process) {
	s.collectSymlink(st, p, "exe", fdclass.AssocExe)
}

func (s *Scanner) collectFsFiles(st *scanState, p *fdclass.Process) {
	s.collectSymlink(st, p, "cwd", fdclass.AssocCwd)
	s.collectSymlink(st, p, "root", fdclass.AssocRoot)
}

// The mount namespace reference must come last in the top half so its
// cache record is fresh when the mount table is read right after.
func (s *Scanner) collectNamespaceFilesTopHalf(st *scanState, p *fdclass.Process) {
	s.collectSymlink(st, p, "ns/cgroup", fdclass.AssocNSCgroup)
	s.collectSymlink(st, p, "ns/ipc", fdclass.AssocNSIpc)
	s.collectSymlink(st, p, "ns/mnt", fdclass.AssocNSMnt)
}

// The rest of the namespaces wait until the mount table is known, so
// their nsfs backing device already has a name.
func (s *Scanner) collectNamespaceFilesBottomHalf(st *scanState, p *fdclass.Process) {
	s.collectSymlink(st, p, "ns/net", fdclass.AssocNSNet)
	s.collectSymlink(st, p, "ns/pid", fdclass.AssocNSPid)
	s.collectSymlink(st, p, "ns/pid_for_children", fdclass.AssocNSPidForChildren)
	s.collectSymlink(st, p, "ns/time", fdclass.AssocNSTime)
	s.collectSymlink(st, p, "ns/time_for_children", fdclass.AssocNSTimeForChildren)
	s.collectSymlink(st, p, "ns/user", fdclass.AssocNSUser)
	s.collectSymlink(st, p, "ns/uts", fdclass.AssocNSUts)
}
