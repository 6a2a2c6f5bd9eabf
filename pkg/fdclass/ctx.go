package fdclass

import (
	"os/user"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
)

// NodevResolver names anonymous (zero-major) filesystems by device minor.
// Implemented by the nodev registry in pkg/nscache.
type NodevResolver interface {
	NodevFilesystem(minor uint32) (string, bool)
}

// IPCClass describes how files of one kind key into the correlation
// table: a bucket hash plus an equality predicate over the minimal
// identity copied into the shared object.
type IPCClass interface {
	Hash(f *File) uint64
	Identity(f *File) uint64
	IsSame(identity uint64, f *File) bool
}

// IPCObject is one shared kernel resource with its current endpoints.
type IPCObject interface {
	Endpoints() []*File
}

// IPCRegistry is the correlation table boundary (pkg/ipctable).
type IPCRegistry interface {
	// Attach finds or creates the object f belongs to and links f as an
	// endpoint, returning the object.
	Attach(c IPCClass, f *File) IPCObject
	// Detach removes f's endpoint at process teardown. An object whose
	// last endpoint is removed stays in its bucket, abandoned.
	Detach(f *File)
}

// Ctx carries the per-scan state the class hooks need. One Ctx per scan;
// nothing here is a process-wide singleton, so repeated or parallel test
// runs don't leak state into each other.
type Ctx struct {
	Nodev NodevResolver
	IPC   IPCRegistry

	// PageSize divides mapping lengths for the MAPLEN column.
	PageSize uint64

	// LookupUser resolves a uid to a user name; overridable for tests.
	LookupUser func(uid uint32) string

	userNames *lru.Cache[uint32, string]
}

const userNameCacheSize = 512

func NewCtx(nodev NodevResolver, ipc IPCRegistry) *Ctx {
	cache, _ := lru.New[uint32, string](userNameCacheSize)
	return &Ctx{
		Nodev:      nodev,
		IPC:        ipc,
		PageSize:   4096,
		LookupUser: lookupUserName,
		userNames:  cache,
	}
}

func (c *Ctx) UserName(uid uint32) string {
	if name, ok := c.userNames.Get(uid); ok {
		return name
	}
	name := c.LookupUser(uid)
	c.userNames.Add(uid, name)
	return name
}

func lookupUserName(uid uint32) string {
	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		return strconv.FormatUint(uint64(uid), 10)
	}
	return u.Username
}
