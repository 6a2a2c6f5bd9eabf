package fdclass

import (
	"strconv"
	"strings"

	"github.com/fdscan/fdscan/pkg/columns"
)

type nsfsContent struct {
	nsType string
}

var assocNSTypes = map[Association]string{
	AssocNSCgroup:          "cgroup",
	AssocNSIpc:             "ipc",
	AssocNSMnt:             "mnt",
	AssocNSNet:             "net",
	AssocNSPid:             "pid",
	AssocNSPidForChildren:  "pid",
	AssocNSTime:            "time",
	AssocNSTimeForChildren: "time",
	AssocNSUser:            "user",
	AssocNSUts:             "uts",
}

func initNsfsContent(_ *Ctx, f *File) {
	c := &nsfsContent{}
	if t, ok := assocNSTypes[f.Assoc]; ok {
		c.nsType = t
	} else if f.Assoc.IsFD() {
		// An nsfs descriptor's kernel name is "<type>:[<inode>]".
		if i := strings.IndexByte(f.Name, ':'); i > 0 {
			c.nsType = f.Name[:i]
		}
	}
	f.Content = c
}

func nsfsFillColumn(_ *Ctx, _ *Process, f *File, id columns.ColumnID) (string, FillResult) {
	c, ok := f.Content.(*nsfsContent)
	if !ok || c.nsType == "" {
		return "", NotHandled
	}
	switch id {
	case columns.ColNSName:
		return c.nsType + ":[" + strconv.FormatUint(f.Stat.Ino, 10) + "]", Handled
	case columns.ColNSType:
		return c.nsType, Handled
	default:
		return "", NotHandled
	}
}

// NsfsClass covers regular files on the nsfs anonymous filesystem, i.e.
// namespace references.
var NsfsClass = Class{
	Name:              "nsfs",
	Super:             &FileClass,
	InitializeContent: initNsfsContent,
	FillColumn:        nsfsFillColumn,
}
