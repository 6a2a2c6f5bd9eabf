package fdclass

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/fdscan/fdscan/pkg/columns"
)

// An inaccessible association still materializes as a File, typed by one
// of the error classes below, so a single unreadable entry never aborts
// the scan.

func errnoName(err error) string {
	var errno unix.Errno
	if errors.As(err, &errno) {
		if name := unix.ErrnoName(errno); name != "" {
			return name
		}
	}
	if err != nil {
		return err.Error()
	}
	return "unknown"
}

func errorFillColumn(_ *Ctx, _ *Process, f *File, id columns.ColumnID) (string, FillResult) {
	switch id {
	case columns.ColType:
		return "ERROR", Handled
	case columns.ColSource:
		return f.Err.Syscall + ":" + errnoName(f.Err.Errno), Handled
	default:
		return "", NotHandled
	}
}

func initErrorContent(_ *Ctx, f *File) {
	f.IsError = true
}

var errorClass = Class{
	Name:       "error",
	Super:      &AbstClass,
	FillColumn: errorFillColumn,
}

// ReadlinkErrorClass marks associations whose symlink could not be read.
// There is no name to show, so NAME/KNAME render empty instead of falling
// through to the abstract class.
var ReadlinkErrorClass = Class{
	Name:              "readlink-error",
	Super:             &errorClass,
	InitializeContent: initErrorContent,
	FillColumn: func(_ *Ctx, _ *Process, _ *File, id columns.ColumnID) (string, FillResult) {
		switch id {
		case columns.ColName, columns.ColKName:
			return "", HandledEmpty
		default:
			return "", NotHandled
		}
	},
}

// StatErrorClass marks associations whose symlink resolved but whose
// target could not be stat'ed; the name survives.
var StatErrorClass = Class{
	Name:              "stat-error",
	Super:             &errorClass,
	InitializeContent: initErrorContent,
}
