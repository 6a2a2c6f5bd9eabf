package fdclass

import (
	"github.com/fdscan/fdscan/pkg/procpath"
)

// NewFile builds a classified file and hands it to its process.
func NewFile(p *Process, class *Class, st *procpath.FileStat, name string, assoc Association) *File {
	f := &File{
		Class: class,
		Assoc: assoc,
		Name:  name,
		Stat:  *st,
	}
	p.AddFile(f)
	return f
}

// NewReadlinkErrorFile records an association whose symlink could not be
// read.
func NewReadlinkErrorFile(p *Process, err error, assoc Association) *File {
	f := &File{
		Class: &ReadlinkErrorClass,
		Assoc: assoc,
		Err:   &SyscallError{Syscall: "readlink", Errno: err},
	}
	p.AddFile(f)
	return f
}

// NewStatErrorFile records an association whose target could not be
// stat'ed; the resolved name is kept.
func NewStatErrorFile(p *Process, name string, err error, assoc Association) *File {
	f := &File{
		Class: &StatErrorClass,
		Assoc: assoc,
		Name:  name,
		Err:   &SyscallError{Syscall: "stat", Errno: err},
	}
	p.AddFile(f)
	return f
}

// CopyFile duplicates class, name and stat snapshot under a new
// association, so consecutive entries backed by the same inode don't cost
// a second stat.
func CopyFile(old *File, assoc Association) *File {
	f := &File{
		Class: old.Class,
		Assoc: assoc,
		Name:  old.Name,
		Stat:  old.Stat,
	}
	old.Proc.AddFile(f)
	return f
}
