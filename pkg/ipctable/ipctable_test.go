package ipctable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fdscan/fdscan/pkg/fdclass"
	"github.com/fdscan/fdscan/pkg/procpath"
)

// inodeKeyed correlates files by inode, the way message queues do.
type inodeKeyed struct{}

func (inodeKeyed) Hash(f *fdclass.File) uint64 { return f.Stat.Ino }

func (inodeKeyed) Identity(f *fdclass.File) uint64 { return f.Stat.Ino }

func (inodeKeyed) IsSame(id uint64, f *fdclass.File) bool { return id == f.Stat.Ino }

var keyed fdclass.IPCClass = inodeKeyed{}

func newFile(pid int, fd int, ino uint64) *fdclass.File {
	p := fdclass.NewProcess(pid, nil)
	return fdclass.NewFile(p, &fdclass.FileClass,
		&procpath.FileStat{Ino: ino, Nlink: 1}, "/q", fdclass.Association(fd))
}

func TestAttachCorrelatesSameIdentity(t *testing.T) {
	tbl := New()

	a := newFile(100, 3, 42)
	b := newFile(101, 4, 42)
	c := newFile(102, 5, 43)

	objA := tbl.Attach(keyed, a)
	objB := tbl.Attach(keyed, b)
	objC := tbl.Attach(keyed, c)

	assert.Same(t, objA, objB)
	assert.NotSame(t, objA, objC)
	assert.Equal(t, []*fdclass.File{a, b}, objA.Endpoints())
	assert.Equal(t, []*fdclass.File{c}, objC.Endpoints())
	assert.Equal(t, 3, tbl.Len())
}

func TestAttachOrderIndependent(t *testing.T) {
	tbl := New()

	b := newFile(101, 4, 42)
	a := newFile(100, 3, 42)

	objB := tbl.Attach(keyed, b)
	objA := tbl.Attach(keyed, a)

	assert.Same(t, objB, objA)
	assert.Equal(t, []*fdclass.File{b, a}, objA.Endpoints())
}

func TestDetachLeavesAbandonedObject(t *testing.T) {
	tbl := New()

	a := newFile(100, 3, 42)
	b := newFile(101, 4, 42)
	obj := tbl.Attach(keyed, a)
	tbl.Attach(keyed, b)

	tbl.Detach(a)
	assert.Equal(t, []*fdclass.File{b}, obj.Endpoints())
	assert.Equal(t, 1, tbl.Len())

	tbl.Detach(b)
	assert.Empty(t, obj.Endpoints())
	assert.Zero(t, tbl.Len())

	// A late arrival with the same identity still finds the object.
	c := newFile(102, 5, 42)
	require.Same(t, obj, tbl.Attach(keyed, c))
}

func TestDetachUnknownFileIsNoop(t *testing.T) {
	tbl := New()
	tbl.Detach(newFile(100, 3, 42))
	assert.Zero(t, tbl.Len())
}

func TestHashCollisionKeepsIdentitiesApart(t *testing.T) {
	tbl := New()

	// Inodes 1 and 1+bucketCount land in the same bucket.
	a := newFile(100, 3, 1)
	b := newFile(101, 4, 1+bucketCount)

	objA := tbl.Attach(keyed, a)
	objB := tbl.Attach(keyed, b)
	assert.NotSame(t, objA, objB)
}
