package fdclass

import (
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/fdscan/fdscan/pkg/columns"
)

type mqueueContent struct {
	ipc IPCObject
}

// mqueueIPCClass keys message-queue descriptors by inode: two files in
// any two processes referring to the same queue share the inode.
type mqueueIPCClass struct{}

func (mqueueIPCClass) Hash(f *File) uint64 { return f.Stat.Ino }

func (mqueueIPCClass) Identity(f *File) uint64 { return f.Stat.Ino }

func (mqueueIPCClass) IsSame(identity uint64, f *File) bool { return identity == f.Stat.Ino }

var mqueueIPC IPCClass = mqueueIPCClass{}

func initMqueueContent(ctx *Ctx, f *File) {
	c := &mqueueContent{}
	if ctx.IPC != nil {
		c.ipc = ctx.IPC.Attach(mqueueIPC, f)
	}
	f.Content = c
}

func freeMqueueContent(ctx *Ctx, f *File) {
	if _, ok := f.Content.(*mqueueContent); ok && ctx.IPC != nil {
		ctx.IPC.Detach(f)
	}
}

func endpointString(f *File) string {
	r, w := byte('-'), byte('-')
	if f.Mode&unix.S_IRUSR != 0 {
		r = 'r'
	}
	if f.Mode&unix.S_IWUSR != 0 {
		w = 'w'
	}
	return strconv.Itoa(f.Proc.PID) + "," + f.Proc.Command + "," +
		strconv.Itoa(int(f.Assoc)) + string([]byte{r, w})
}

func mqueueFillColumn(_ *Ctx, _ *Process, f *File, id columns.ColumnID) (string, FillResult) {
	switch id {
	case columns.ColType:
		return "mqueue", Handled
	case columns.ColEndpoints:
		c, ok := f.Content.(*mqueueContent)
		if !ok || c.ipc == nil {
			return "", NotHandled
		}
		var peers []string
		for _, other := range c.ipc.Endpoints() {
			if other == f {
				continue
			}
			peers = append(peers, endpointString(other))
		}
		if len(peers) == 0 {
			return "", NotHandled
		}
		return strings.Join(peers, "\n"), Handled
	default:
		return "", NotHandled
	}
}

// MqueueClass covers POSIX message-queue descriptors; instances of the
// same queue across processes find each other through the IPC table.
var MqueueClass = Class{
	Name:              "mqueue",
	Super:             &FileClass,
	InitializeContent: initMqueueContent,
	FreeContent:       freeMqueueContent,
	FillColumn:        mqueueFillColumn,
	GetIPCClass:       func(*File) IPCClass { return mqueueIPC },
}
