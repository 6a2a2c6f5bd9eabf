package fdclass

import (
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/fdscan/fdscan/pkg/columns"
)

// hasFdinfoAlike reports whether the file carries fdinfo-derived fields
// (pos, mode, flags): open descriptors and mappings do, out-of-box
// associations don't.
func hasFdinfoAlike(f *File) bool {
	return f.Assoc.IsFD() || f.Assoc.IsMapped()
}

func abstFillColumn(ctx *Ctx, p *Process, f *File, id columns.ColumnID) (string, FillResult) {
	switch id {
	case columns.ColCommand:
		if p.Command == "" {
			return "", HandledEmpty
		}
		return p.Command, Handled
	case columns.ColName, columns.ColKName:
		if f.Name == "" {
			return "", HandledEmpty
		}
		return f.Name, Handled
	case columns.ColUser:
		return ctx.UserName(p.UID), Handled
	case columns.ColFD:
		if !f.Assoc.IsFD() {
			return "", HandledEmpty
		}
		return strconv.Itoa(int(f.Assoc)), Handled
	case columns.ColAssoc:
		if f.Assoc.IsFD() {
			return strconv.Itoa(int(f.Assoc)), Handled
		}
		return f.Assoc.String(), Handled
	case columns.ColPID:
		return strconv.Itoa(p.Leader.PID), Handled
	case columns.ColTID:
		return strconv.Itoa(p.PID), Handled
	case columns.ColUID:
		return strconv.FormatUint(uint64(p.UID), 10), Handled
	case columns.ColKThread:
		if p.KThread {
			return "1", Handled
		}
		return "0", Handled
	case columns.ColMode:
		return "???", Handled
	case columns.ColXMode:
		return xmodeString(f, '?', '?', '?', '?'), Handled
	case columns.ColPos:
		if !hasFdinfoAlike(f) {
			return "0", Handled
		}
		return strconv.FormatUint(f.Pos, 10), Handled
	case columns.ColFlags:
		if !f.Assoc.IsFD() || f.SysFlags == 0 {
			return "", HandledEmpty
		}
		return decodeOpenFlags(f.SysFlags), Handled
	case columns.ColMapLen:
		if !f.Assoc.IsMapped() {
			return "", HandledEmpty
		}
		return strconv.FormatUint((f.MapEnd-f.MapStart)/ctx.PageSize, 10), Handled
	default:
		return "", NotHandled
	}
}

// xmodeString renders the extended mode: rwx, deleted, lock, multiplexed.
func xmodeString(f *File, r, w, x, d byte) string {
	l := byte('-')
	if f.LockedWrite {
		l = 'L'
	} else if f.LockedRead {
		l = 'l'
	}
	m := byte('-')
	if f.Multiplexed {
		m = 'm'
	}
	return string([]byte{r, w, x, d, l, m})
}

var openFlagNames = []struct {
	bit  uint32
	name string
}{
	{unix.O_WRONLY, "wronly"},
	{unix.O_RDWR, "rdwr"},
	{unix.O_CREAT, "creat"},
	{unix.O_EXCL, "excl"},
	{unix.O_NOCTTY, "noctty"},
	{unix.O_TRUNC, "trunc"},
	{unix.O_APPEND, "append"},
	{unix.O_NONBLOCK, "nonblock"},
	{unix.O_DSYNC, "dsync"},
	{unix.O_DIRECT, "direct"},
	{unix.O_LARGEFILE, "largefile"},
	{unix.O_DIRECTORY, "directory"},
	{unix.O_NOFOLLOW, "nofollow"},
	{unix.O_NOATIME, "noatime"},
	{unix.O_CLOEXEC, "cloexec"},
	{unix.O_PATH, "path"},
}

func decodeOpenFlags(flags uint32) string {
	var parts []string
	for _, fl := range openFlagNames {
		// O_LARGEFILE is 0 on 64-bit targets; a zero bit matches nothing.
		if fl.bit != 0 && flags&fl.bit == fl.bit {
			parts = append(parts, fl.name)
		}
	}
	return strings.Join(parts, ",")
}

// AbstClass fills the columns that don't need a stat snapshot. It is the
// root of every chain.
var AbstClass = Class{
	Name:       "abst",
	FillColumn: abstFillColumn,
}
