package fdclass

import (
	"golang.org/x/sys/unix"

	"github.com/fdscan/fdscan/pkg/procpath"
)

// Classify maps a stat snapshot to exactly one class. Total: every input
// lands somewhere, with UnknClass as the floor.
func Classify(st *procpath.FileStat, nodev NodevResolver) *Class {
	switch st.Mode & unix.S_IFMT {
	case unix.S_IFCHR:
		return &CdevClass
	case unix.S_IFBLK:
		return &BdevClass
	case unix.S_IFSOCK:
		return &SockClass
	case unix.S_IFIFO:
		return &FifoClass
	case unix.S_IFLNK, unix.S_IFDIR:
		return &FileClass
	case unix.S_IFREG:
		if unix.Major(st.Dev) != 0 {
			return &FileClass
		}
		if nodev != nil {
			switch fs, _ := nodev.NodevFilesystem(unix.Minor(st.Dev)); fs {
			case "nsfs":
				return &NsfsClass
			case "mqueue":
				return &MqueueClass
			case "pidfs":
				return &PidfsClass
			}
		}
		return &FileClass
	default:
		return &UnknClass
	}
}
