package fdclass

import (
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/fdscan/fdscan/pkg/columns"
)

func stTypeString(mode uint32) string {
	switch mode & unix.S_IFMT {
	case unix.S_IFBLK:
		return "BLK"
	case unix.S_IFCHR:
		return "CHR"
	case unix.S_IFDIR:
		return "DIR"
	case unix.S_IFIFO:
		return "FIFO"
	case unix.S_IFLNK:
		return "LINK"
	case unix.S_IFREG:
		return "REG"
	case unix.S_IFSOCK:
		return "SOCK"
	default:
		return "UNKN"
	}
}

// decodeSource renders a device as a filesystem name when the nodev
// registry knows it, falling back to maj:min.
func decodeSource(ctx *Ctx, dev uint64) string {
	major, minor := unix.Major(dev), unix.Minor(dev)
	if major == 0 && ctx.Nodev != nil {
		if fs, ok := ctx.Nodev.NodevFilesystem(minor); ok {
			return fs
		}
	}
	return majMinString(dev)
}

func majMinString(dev uint64) string {
	return strconv.FormatUint(uint64(unix.Major(dev)), 10) + ":" +
		strconv.FormatUint(uint64(unix.Minor(dev)), 10)
}

const deletedSuffix = "(deleted)"

func fileFillColumn(ctx *Ctx, _ *Process, f *File, id columns.ColumnID) (string, FillResult) {
	switch id {
	case columns.ColName:
		if f.Name != "" && f.Stat.Nlink == 0 {
			if i := strings.LastIndex(f.Name, deletedSuffix); i >= 0 {
				return strings.TrimRight(f.Name[:i], " "), Handled
			}
		}
		fallthrough
	case columns.ColKName:
		if f.Name == "" {
			return "", HandledEmpty
		}
		return f.Name, Handled
	case columns.ColType, columns.ColSTType:
		return stTypeString(f.Stat.Mode), Handled
	case columns.ColInode:
		return strconv.FormatUint(f.Stat.Ino, 10), Handled
	case columns.ColSource, columns.ColPartition:
		return decodeSource(ctx, f.Stat.Dev), Handled
	case columns.ColDev:
		return majMinString(f.Stat.Dev), Handled
	case columns.ColRDev:
		return majMinString(f.Stat.RDev), Handled
	case columns.ColFUID:
		return strconv.FormatUint(uint64(f.Stat.UID), 10), Handled
	case columns.ColSize:
		return strconv.FormatInt(f.Stat.Size, 10), Handled
	case columns.ColNLink:
		return strconv.FormatUint(f.Stat.Nlink, 10), Handled
	case columns.ColDeleted:
		if f.Stat.Nlink == 0 {
			return "1", Handled
		}
		return "0", Handled
	case columns.ColMntID:
		if !f.Assoc.IsFD() {
			return "0", Handled
		}
		return strconv.FormatUint(uint64(f.MntID), 10), Handled
	case columns.ColMode:
		if !hasFdinfoAlike(f) {
			return "---", Handled
		}
		rwx := rwxBytes(f)
		return string(rwx[:]), Handled
	case columns.ColXMode:
		d := byte('-')
		if f.Stat.Nlink == 0 {
			d = 'D'
		}
		rwx := [3]byte{'-', '-', '-'}
		if hasFdinfoAlike(f) {
			rwx = rwxBytes(f)
		}
		return xmodeString(f, rwx[0], rwx[1], rwx[2], d), Handled
	default:
		return "", NotHandled
	}
}

func rwxBytes(f *File) [3]byte {
	rwx := [3]byte{'-', '-', '-'}
	if f.Mode&unix.S_IRUSR != 0 {
		rwx[0] = 'r'
	}
	if f.Mode&unix.S_IWUSR != 0 {
		rwx[1] = 'w'
	}
	if f.Assoc.IsMapped() && f.Mode&unix.S_IXUSR != 0 {
		rwx[2] = 'x'
	}
	return rwx
}

// parseLockMode picks READ/WRITE out of a /proc/<pid>/fdinfo lock line,
// e.g. "1: POSIX  ADVISORY  WRITE 2283225 fd:03:26219728 0 0".
func parseLockMode(value string) (read, write bool) {
	fields := strings.Fields(value)
	if len(fields) < 4 {
		return false, false
	}
	switch fields[3] {
	case "READ":
		return true, false
	case "WRITE":
		return false, true
	}
	return false, false
}

func fileHandleFdinfo(f *File, key, value string) bool {
	switch key {
	case "pos":
		v, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return false
		}
		f.Pos = v
	case "flags":
		v, err := strconv.ParseUint(value, 8, 32)
		if err != nil {
			return false
		}
		f.SysFlags = uint32(v)
	case "mnt_id":
		v, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return false
		}
		f.MntID = uint32(v)
	case "lock":
		r, w := parseLockMode(value)
		f.LockedRead = f.LockedRead || r
		f.LockedWrite = f.LockedWrite || w
	default:
		return false
	}
	return true
}

// FileClass is the generic class for regular files, directories and
// symlinks; every specialized regular-file class chains to it.
var FileClass = Class{
	Name:         "file",
	Super:        &AbstClass,
	FillColumn:   fileFillColumn,
	HandleFdinfo: fileHandleFdinfo,
}
