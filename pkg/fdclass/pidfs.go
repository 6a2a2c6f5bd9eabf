package fdclass

import (
	"strconv"
	"strings"

	"github.com/fdscan/fdscan/pkg/columns"
)

type pidfsContent struct {
	pid   int
	nsPID string
}

func initPidfsContent(_ *Ctx, f *File) {
	f.Content = &pidfsContent{pid: -1}
}

func pidfsHandleFdinfo(f *File, key, value string) bool {
	c, ok := f.Content.(*pidfsContent)
	if !ok {
		return false
	}
	switch key {
	case "Pid":
		v, err := strconv.Atoi(value)
		if err != nil {
			return false
		}
		c.pid = v
	case "NSpid":
		c.nsPID = strings.Join(strings.Fields(value), " ")
	default:
		return false
	}
	return true
}

func pidfsFillColumn(_ *Ctx, _ *Process, f *File, id columns.ColumnID) (string, FillResult) {
	c, ok := f.Content.(*pidfsContent)
	if !ok {
		return "", NotHandled
	}
	switch id {
	case columns.ColType:
		return "pidfd", Handled
	case columns.ColName:
		if c.pid < 0 {
			return "", NotHandled
		}
		return "pid=" + strconv.Itoa(c.pid), Handled
	default:
		return "", NotHandled
	}
}

// PidfsClass covers pidfd descriptors backed by the pidfs filesystem.
var PidfsClass = Class{
	Name:              "pidfs",
	Super:             &FileClass,
	InitializeContent: initPidfsContent,
	HandleFdinfo:      pidfsHandleFdinfo,
	FillColumn:        pidfsFillColumn,
}
