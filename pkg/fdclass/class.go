package fdclass

import (
	"github.com/fdscan/fdscan/pkg/columns"
)

// FillResult reports how far a fill hook got. HandledEmpty means the
// class recognized the column but has nothing to show; dispatch stops
// either way.
type FillResult int

const (
	NotHandled FillResult = iota
	HandledEmpty
	Handled
)

// Class is the capability record shared by every File of one kind. All
// hooks are optional. Super points at the parent for chain dispatch;
// the hierarchy is single-parent.
type Class struct {
	Name  string
	Super *Class

	FillColumn        func(ctx *Ctx, p *Process, f *File, id columns.ColumnID) (string, FillResult)
	HandleFdinfo      func(f *File, key, value string) bool
	InitializeContent func(ctx *Ctx, f *File)
	AttachXinfo       func(f *File)
	FreeContent       func(ctx *Ctx, f *File)
	InitializeClass   func(ctx *Ctx)
	FinalizeClass     func(ctx *Ctx)
	GetIPCClass       func(f *File) IPCClass
}

// Fill walks the chain from the file's own class toward the root until a
// class claims the column. A class may decline on purpose and let an
// ancestor answer.
func Fill(ctx *Ctx, p *Process, f *File, id columns.ColumnID) (string, bool) {
	for c := f.Class; c != nil; c = c.Super {
		if c.FillColumn == nil {
			continue
		}
		s, res := c.FillColumn(ctx, p, f, id)
		switch res {
		case Handled:
			return s, true
		case HandledEmpty:
			return "", false
		}
	}
	return "", false
}

// HandleFdinfo dispatches one fdinfo key/value pair down the chain until
// some class consumes it.
func HandleFdinfo(f *File, key, value string) bool {
	for c := f.Class; c != nil; c = c.Super {
		if c.HandleFdinfo != nil && c.HandleFdinfo(f, key, value) {
			return true
		}
	}
	return false
}

// InitContent runs the most specific initialize-content hook.
func InitContent(ctx *Ctx, f *File) {
	if f.Class != nil && f.Class.InitializeContent != nil {
		f.Class.InitializeContent(ctx, f)
	}
}

// Attach runs the most specific attach-xinfo hook, after fdinfo has been
// fully consumed.
func Attach(f *File) {
	if f.Class != nil && f.Class.AttachXinfo != nil {
		f.Class.AttachXinfo(f)
	}
}

// Release walks the whole chain unconditionally: every level that
// attached something must let go of it.
func Release(ctx *Ctx, f *File) {
	for c := f.Class; c != nil; c = c.Super {
		if c.FreeContent != nil {
			c.FreeContent(ctx, f)
		}
	}
}

// allClasses lists every class whose process-wide hooks must run once per
// scan, in initialization order.
var allClasses = []*Class{
	&AbstClass,
	&FileClass,
	&CdevClass,
	&BdevClass,
	&SockClass,
	&FifoClass,
	&NsfsClass,
	&MqueueClass,
	&PidfsClass,
	&UnknClass,
	&ReadlinkErrorClass,
	&StatErrorClass,
}

// InitializeClasses runs every class's process-wide setup once, at the
// start of a run.
func InitializeClasses(ctx *Ctx) {
	for _, c := range allClasses {
		if c.InitializeClass != nil {
			c.InitializeClass(ctx)
		}
	}
}

// FinalizeClasses is the matching teardown, called once at the end.
func FinalizeClasses(ctx *Ctx) {
	for _, c := range allClasses {
		if c.FinalizeClass != nil {
			c.FinalizeClass(ctx)
		}
	}
}
