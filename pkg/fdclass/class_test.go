package fdclass

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/fdscan/fdscan/pkg/columns"
	"github.com/fdscan/fdscan/pkg/procpath"
)

func testCtx() *Ctx {
	ctx := NewCtx(nil, nil)
	ctx.LookupUser = func(uid uint32) string {
		if uid == 0 {
			return "root"
		}
		return "user"
	}
	return ctx
}

func TestFillChainMostSpecificWins(t *testing.T) {
	ctx := testCtx()
	p := NewProcess(100, nil)
	p.Command = "demo"
	f := NewFile(p, &MqueueClass, &procpath.FileStat{
		Mode: unix.S_IFREG | 0o600, Ino: 42, Nlink: 1,
	}, "/q", Association(3))

	// TYPE is answered by the mqueue class itself.
	got, ok := Fill(ctx, p, f, columns.ColType)
	require.True(t, ok)
	assert.Equal(t, "mqueue", got)

	// INODE falls through to the generic file class.
	got, ok = Fill(ctx, p, f, columns.ColInode)
	require.True(t, ok)
	assert.Equal(t, "42", got)

	// COMMAND falls all the way to the abstract root.
	got, ok = Fill(ctx, p, f, columns.ColCommand)
	require.True(t, ok)
	assert.Equal(t, "demo", got)
}

func TestFillHandledEmptyStopsChain(t *testing.T) {
	ctx := testCtx()
	p := NewProcess(100, nil)
	f := NewReadlinkErrorFile(p, unix.ENOENT, AssocExe)
	InitContent(ctx, f)

	// The readlink-error class declares NAME empty; nothing below it may
	// answer instead.
	got, ok := Fill(ctx, p, f, columns.ColName)
	assert.False(t, ok)
	assert.Empty(t, got)

	got, ok = Fill(ctx, p, f, columns.ColType)
	require.True(t, ok)
	assert.Equal(t, "ERROR", got)

	got, ok = Fill(ctx, p, f, columns.ColSource)
	require.True(t, ok)
	assert.Equal(t, "readlink:ENOENT", got)
	assert.True(t, f.IsError)
}

func TestStatErrorKeepsName(t *testing.T) {
	ctx := testCtx()
	p := NewProcess(100, nil)
	f := NewStatErrorFile(p, "/gone", unix.EACCES, AssocCwd)
	InitContent(ctx, f)

	got, ok := Fill(ctx, p, f, columns.ColName)
	require.True(t, ok)
	assert.Equal(t, "/gone", got)

	got, ok = Fill(ctx, p, f, columns.ColSource)
	require.True(t, ok)
	assert.Equal(t, "stat:EACCES", got)
}

func TestHandleFdinfoChain(t *testing.T) {
	p := NewProcess(100, nil)
	f := NewFile(p, &FileClass, &procpath.FileStat{Mode: unix.S_IFREG, Nlink: 1}, "/f", Association(3))

	assert.True(t, HandleFdinfo(f, "pos", "42"))
	assert.True(t, HandleFdinfo(f, "flags", "02"))
	assert.True(t, HandleFdinfo(f, "mnt_id", "21"))
	assert.False(t, HandleFdinfo(f, "no_such_key", "1"))

	assert.Equal(t, uint64(42), f.Pos)
	assert.Equal(t, uint32(unix.O_RDWR), f.SysFlags)
	assert.Equal(t, uint32(21), f.MntID)
}

func TestHandleFdinfoLockAccumulates(t *testing.T) {
	p := NewProcess(100, nil)
	f := NewFile(p, &FileClass, &procpath.FileStat{Mode: unix.S_IFREG, Nlink: 1}, "/f", Association(3))

	assert.True(t, HandleFdinfo(f, "lock", "1: POSIX  ADVISORY  READ 100 08:01:42 0 EOF"))
	assert.True(t, f.LockedRead)
	assert.False(t, f.LockedWrite)

	assert.True(t, HandleFdinfo(f, "lock", "2: POSIX  ADVISORY  WRITE 100 08:01:42 0 EOF"))
	assert.True(t, f.LockedRead)
	assert.True(t, f.LockedWrite)
}

func TestFillXMode(t *testing.T) {
	ctx := testCtx()
	p := NewProcess(100, nil)
	f := NewFile(p, &FileClass, &procpath.FileStat{
		Mode: unix.S_IFREG | 0o600, Nlink: 0,
	}, "/tmp/x (deleted)", Association(3))
	f.Mode = unix.S_IRUSR | unix.S_IWUSR
	f.LockedWrite = true
	f.Multiplexed = true

	got, ok := Fill(ctx, p, f, columns.ColXMode)
	require.True(t, ok)
	assert.Equal(t, "rw-DLm", got)

	// NAME strips the deleted marker, KNAME keeps the kernel's string.
	got, ok = Fill(ctx, p, f, columns.ColName)
	require.True(t, ok)
	assert.Equal(t, "/tmp/x", got)

	got, ok = Fill(ctx, p, f, columns.ColKName)
	require.True(t, ok)
	assert.Equal(t, "/tmp/x (deleted)", got)

	got, ok = Fill(ctx, p, f, columns.ColDeleted)
	require.True(t, ok)
	assert.Equal(t, "1", got)
}

func TestFillNamespaceColumns(t *testing.T) {
	ctx := testCtx()
	p := NewProcess(100, nil)
	f := NewFile(p, &NsfsClass, &procpath.FileStat{
		Mode: unix.S_IFREG, Ino: 4026531840, Nlink: 1,
	}, "mnt:[4026531840]", AssocNSMnt)
	InitContent(ctx, f)

	got, ok := Fill(ctx, p, f, columns.ColNSName)
	require.True(t, ok)
	assert.Equal(t, "mnt:[4026531840]", got)

	got, ok = Fill(ctx, p, f, columns.ColNSType)
	require.True(t, ok)
	assert.Equal(t, "mnt", got)

	got, ok = Fill(ctx, p, f, columns.ColAssoc)
	require.True(t, ok)
	assert.Equal(t, "mnt", got)
}

func TestFillPidfdColumns(t *testing.T) {
	ctx := testCtx()
	p := NewProcess(100, nil)
	f := NewFile(p, &PidfsClass, &procpath.FileStat{
		Mode: unix.S_IFREG, Ino: 7, Nlink: 1,
	}, "anon_inode:[pidfd]", Association(8))
	InitContent(ctx, f)

	assert.True(t, HandleFdinfo(f, "Pid", "1234"))

	got, ok := Fill(ctx, p, f, columns.ColType)
	require.True(t, ok)
	assert.Equal(t, "pidfd", got)

	got, ok = Fill(ctx, p, f, columns.ColName)
	require.True(t, ok)
	assert.Equal(t, "pid=1234", got)
}

func TestDecodeOpenFlags(t *testing.T) {
	assert.Equal(t, "rdwr,cloexec", decodeOpenFlags(unix.O_RDWR|unix.O_CLOEXEC))
	assert.Equal(t, "wronly,append", decodeOpenFlags(unix.O_WRONLY|unix.O_APPEND))
	assert.Empty(t, decodeOpenFlags(unix.O_RDONLY))

	// O_LARGEFILE is zero on 64-bit targets; it must not leak into
	// every decoded value.
	assert.NotContains(t, decodeOpenFlags(unix.O_RDWR), "largefile")
}

func TestUserNameCached(t *testing.T) {
	ctx := NewCtx(nil, nil)
	calls := 0
	ctx.LookupUser = func(uint32) string {
		calls++
		return "cached"
	}

	assert.Equal(t, "cached", ctx.UserName(1000))
	assert.Equal(t, "cached", ctx.UserName(1000))
	assert.Equal(t, 1, calls)
}

func TestCopyFileKeepsSnapshot(t *testing.T) {
	p := NewProcess(100, nil)
	orig := NewFile(p, &CdevClass, &procpath.FileStat{
		Mode: unix.S_IFCHR | 0o666, Ino: 5, Nlink: 1,
	}, "/dev/null", Association(0))

	cp := CopyFile(orig, Association(1))
	assert.Equal(t, orig.Class, cp.Class)
	assert.Equal(t, orig.Name, cp.Name)
	assert.Equal(t, orig.Stat, cp.Stat)
	assert.Equal(t, Association(1), cp.Assoc)
	assert.Same(t, cp, p.LastFile())
}
