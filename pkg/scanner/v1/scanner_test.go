package scanner

import (
	"context"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/fdscan/fdscan/pkg/columns"
	"github.com/fdscan/fdscan/pkg/config"
	"github.com/fdscan/fdscan/pkg/fdclass"
	"github.com/fdscan/fdscan/pkg/kerncap"
	"github.com/fdscan/fdscan/pkg/metricsmanager"
	"github.com/fdscan/fdscan/pkg/nscache"
	"github.com/fdscan/fdscan/pkg/procpath"
	"github.com/fdscan/fdscan/pkg/scanner"
)

func seedProcess(acc *procpath.MapAccessor, pid int, comm string, flags uint64) {
	acc.SetFile(pid, "stat",
		[]byte(fmt.Sprintf("%d (%s) S 1 %d %d 0 -1 %d 0 0 0 0\n", pid, comm, pid, pid, flags)))
	acc.Stats[strconv.Itoa(pid)] = &procpath.FileStat{UID: 1000}
}

func devNullStat() *procpath.FileStat {
	return &procpath.FileStat{
		Dev:   unix.Mkdev(0, 5),
		RDev:  unix.Mkdev(1, 3),
		Ino:   5,
		Mode:  unix.S_IFCHR | 0o666,
		Nlink: 1,
	}
}

func fileByAssoc(p *fdclass.Process, assoc fdclass.Association) *fdclass.File {
	for _, f := range p.Files {
		if f.Assoc == assoc {
			return f
		}
	}
	return nil
}

func runScan(t *testing.T, acc *procpath.MapAccessor, lister ProcessLister,
	cfg config.Config, cmp kerncap.ResourceComparer, prober nscache.Prober,
	metrics metricsmanager.MetricsManager) *scanner.Result {
	t.Helper()
	if metrics == nil {
		metrics = metricsmanager.NewMetricsMock()
	}
	s := CreateScanner(cfg, acc, lister, cmp, nil, prober, metrics)
	res, err := s.Scan(context.Background())
	require.NoError(t, err)
	return res
}

func TestScanClassifiesDescriptors(t *testing.T) {
	acc := procpath.NewMapAccessor()
	seedProcess(acc, 100, "demo", 0x400000)

	acc.SetLink(100, "exe", "/usr/bin/demo", &procpath.FileStat{
		Dev: unix.Mkdev(8, 1), Ino: 10, Mode: unix.S_IFREG | 0o755, Nlink: 1,
	})
	acc.SetLink(100, "fd/0", "/dev/null", devNullStat())
	acc.SetLStat(100, "fd/0", &procpath.FileStat{Mode: 0o600})
	acc.SetFile(100, "fdinfo/0", []byte("pos:\t42\nflags:\t02\nmnt_id:\t21\n"))

	res := runScan(t, acc, MapLister{100: {100}}, config.Config{}, nil, nil, nil)
	require.Len(t, res.Processes, 1)

	p := res.Processes[0]
	assert.Equal(t, "demo", p.Command)
	assert.Equal(t, 1, p.PPID)
	assert.Equal(t, uint32(1000), p.UID)
	assert.False(t, p.KThread)

	exe := fileByAssoc(p, fdclass.AssocExe)
	require.NotNil(t, exe)
	assert.Equal(t, &fdclass.FileClass, exe.Class)
	assert.Equal(t, "/usr/bin/demo", exe.Name)

	fd0 := fileByAssoc(p, 0)
	require.NotNil(t, fd0)
	assert.Equal(t, &fdclass.CdevClass, fd0.Class)
	assert.Equal(t, uint64(42), fd0.Pos)
	assert.Equal(t, uint32(unix.O_RDWR), fd0.SysFlags)
	assert.Equal(t, uint32(21), fd0.MntID)
	assert.NotZero(t, fd0.Mode&unix.S_IRUSR)
	assert.NotZero(t, fd0.Mode&unix.S_IWUSR)
}

func TestScanRecordsReadlinkErrors(t *testing.T) {
	acc := procpath.NewMapAccessor()
	seedProcess(acc, 100, "demo", 0x400000)

	res := runScan(t, acc, MapLister{100: {100}}, config.Config{}, nil, nil, nil)
	require.Len(t, res.Processes, 1)

	exe := fileByAssoc(res.Processes[0], fdclass.AssocExe)
	require.NotNil(t, exe)
	assert.True(t, exe.IsError)
	require.NotNil(t, exe.Err)
	assert.Equal(t, "readlink", exe.Err.Syscall)
}

func TestScanDedupsConsecutiveFds(t *testing.T) {
	acc := procpath.NewMapAccessor()
	seedProcess(acc, 100, "demo", 0x400000)

	st := devNullStat()
	acc.SetLink(100, "fd/0", "/dev/null", st)
	acc.Links["100/fd/1"] = "/dev/null"
	acc.Links["100/fd/2"] = "/dev/null"

	res := runScan(t, acc, MapLister{100: {100}}, config.Config{}, nil, nil, nil)
	p := res.Processes[0]

	// Only fd/0 has a registered stat result; fd/1 and fd/2 resolve to
	// the same path and must reuse its snapshot instead of stat'ing.
	for fd := 0; fd <= 2; fd++ {
		f := fileByAssoc(p, fdclass.Association(fd))
		require.NotNil(t, f, "fd %d", fd)
		assert.False(t, f.IsError, "fd %d", fd)
		assert.Equal(t, &fdclass.CdevClass, f.Class, "fd %d", fd)
		assert.Equal(t, st.Ino, f.Stat.Ino, "fd %d", fd)
	}
}

func TestScanMapsDedup(t *testing.T) {
	acc := procpath.NewMapAccessor()
	seedProcess(acc, 100, "demo", 0x400000)

	acc.SetFile(100, "maps", []byte(
		"7f0000000000-7f0000004000 r-xp 00000000 08:01 10 /usr/bin/demo\n"+
			"7f0000004000-7f0000005000 rw-p 00004000 08:01 10 /usr/bin/demo\n"+
			"7f0000005000-7f0000006000 rw-p 00000000 00:00 0\n"))
	acc.Stats["/proc/100/root/usr/bin/demo"] = &procpath.FileStat{
		Dev: unix.Mkdev(8, 1), Ino: 10, Mode: unix.S_IFREG | 0o755, Nlink: 1,
	}

	s := CreateScanner(config.Config{}, acc, MapLister{100: {100}}, nil, nil, nil, metricsmanager.NewMetricsMock())
	st := s.newScanState()
	p := fdclass.NewProcess(100, nil)

	before := acc.StatCalls
	s.collectMemFiles(st, p)

	require.Len(t, p.Files, 2)
	assert.Equal(t, 1, acc.StatCalls-before)

	first, second := p.Files[0], p.Files[1]
	assert.Equal(t, fdclass.AssocMem, first.Assoc)
	assert.Equal(t, uint64(0x7f0000000000), first.MapStart)
	assert.NotZero(t, first.Mode&unix.S_IXUSR)
	assert.Equal(t, first.Stat.Ino, second.Stat.Ino)
	assert.NotZero(t, second.Mode&unix.S_IWUSR)
	assert.Zero(t, second.Mode&unix.S_IXUSR)
}

func TestScanSharedMappingAssociation(t *testing.T) {
	acc := procpath.NewMapAccessor()
	acc.SetFile(100, "maps",
		[]byte("7f0000000000-7f0000001000 rw-s 00000000 00:01 77 /dev/shm/seg\n"))
	acc.Stats["/proc/100/root/dev/shm/seg"] = &procpath.FileStat{
		Dev: unix.Mkdev(0, 1), Ino: 77, Mode: unix.S_IFREG | 0o600, Nlink: 1,
	}

	s := CreateScanner(config.Config{}, acc, MapLister{}, nil, nil, nil, metricsmanager.NewMetricsMock())
	st := s.newScanState()
	p := fdclass.NewProcess(100, nil)
	s.collectMemFiles(st, p)

	require.Len(t, p.Files, 1)
	assert.Equal(t, fdclass.AssocShm, p.Files[0].Assoc)
}

func TestScanSkipsKernelThreads(t *testing.T) {
	acc := procpath.NewMapAccessor()
	seedProcess(acc, 2, "kthreadd", 0x200000)
	seedProcess(acc, 100, "demo", 0x400000)

	res := runScan(t, acc, MapLister{2: {2}, 100: {100}}, config.Config{}, nil, nil, nil)
	require.Len(t, res.Processes, 1)
	assert.Equal(t, 100, res.Processes[0].PID)
}

func TestScanThreadsShareDescriptorTable(t *testing.T) {
	acc := procpath.NewMapAccessor()
	seedProcess(acc, 100, "demo", 0x400000)
	seedProcess(acc, 200, "demo", 0x400000)

	acc.SetLink(100, "fd/0", "/dev/null", devNullStat())
	acc.SetLink(200, "fd/0", "/dev/null", devNullStat())

	cfg := config.Config{ShowThreads: true}
	res := runScan(t, acc, MapLister{100: {100, 200}}, cfg, kerncap.StaticComparer(true), nil, nil)
	require.Len(t, res.Processes, 2)

	leader := res.Processes[0]
	thread := res.Processes[1]
	assert.Equal(t, 100, leader.PID)
	assert.Equal(t, 200, thread.PID)
	assert.Same(t, leader, thread.Leader)

	// The comparer says the descriptor table is shared, so the thread's
	// fds must not be collected again.
	assert.NotNil(t, fileByAssoc(leader, 0))
	assert.Nil(t, fileByAssoc(thread, 0))
}

func TestScanNamespaceMemoization(t *testing.T) {
	mountinfo := []byte("21 1 8:1 / / rw - ext4 /dev/sda1 rw\n")
	nsStat := &procpath.FileStat{
		Dev: unix.Mkdev(0, 40), Ino: 4026531840, Mode: unix.S_IFREG, Nlink: 1,
	}

	acc := procpath.NewMapAccessor()
	for _, pid := range []int{100, 101} {
		seedProcess(acc, pid, "demo", 0x400000)
		acc.SetLink(pid, "ns/mnt", "mnt:[4026531840]", nsStat)
		acc.SetFile(pid, "mountinfo", mountinfo)
	}

	metrics := metricsmanager.NewMetricsMock()
	res := runScan(t, acc, MapLister{100: {100}, 101: {101}}, config.Config{},
		nil, nscache.MapProber{40: "nsfs"}, metrics)
	require.Len(t, res.Processes, 2)

	// Both processes live in the same mount namespace; its table is
	// parsed once.
	assert.Equal(t, int32(1), metrics.MountinfoCounter.Load())

	for _, p := range res.Processes {
		require.NotNil(t, p.MntNS)
		assert.Equal(t, uint64(4026531840), p.MntNS.NamespaceID())
		assert.True(t, p.MntNS.MountinfoRead())

		ns := fileByAssoc(p, fdclass.AssocNSMnt)
		require.NotNil(t, ns)
		assert.Equal(t, &fdclass.NsfsClass, ns.Class)
	}
	assert.Same(t, res.Processes[0].MntNS, res.Processes[1].MntNS)
}

func TestScanMqueueCorrelation(t *testing.T) {
	queueStat := func(ino uint64) *procpath.FileStat {
		return &procpath.FileStat{
			Dev: unix.Mkdev(0, 24), Ino: ino, Mode: unix.S_IFREG | 0o600, Nlink: 1,
		}
	}

	acc := procpath.NewMapAccessor()
	seedProcess(acc, 100, "sender", 0x400000)
	seedProcess(acc, 101, "receiver", 0x400000)
	seedProcess(acc, 102, "bystander", 0x400000)
	acc.SetLink(100, "fd/3", "/q", queueStat(42))
	acc.SetLStat(100, "fd/3", &procpath.FileStat{Mode: 0o200})
	acc.SetLink(101, "fd/4", "/q", queueStat(42))
	acc.SetLStat(101, "fd/4", &procpath.FileStat{Mode: 0o400})
	acc.SetLink(102, "fd/5", "/other", queueStat(43))

	res := runScan(t, acc, MapLister{100: {100}, 101: {101}, 102: {102}},
		config.Config{}, nil, nscache.MapProber{24: "mqueue"}, nil)
	require.Len(t, res.Processes, 3)

	sender := fileByAssoc(res.Processes[0], 3)
	receiver := fileByAssoc(res.Processes[1], 4)
	bystander := fileByAssoc(res.Processes[2], 5)
	require.NotNil(t, sender)
	require.NotNil(t, receiver)
	require.NotNil(t, bystander)
	assert.Equal(t, &fdclass.MqueueClass, sender.Class)

	got, ok := fdclass.Fill(res.Ctx, res.Processes[0], sender, columns.ColEndpoints)
	require.True(t, ok)
	assert.Equal(t, "101,receiver,4r-", got)

	got, ok = fdclass.Fill(res.Ctx, res.Processes[1], receiver, columns.ColEndpoints)
	require.True(t, ok)
	assert.Equal(t, "100,sender,3-w", got)

	_, ok = fdclass.Fill(res.Ctx, res.Processes[2], bystander, columns.ColEndpoints)
	assert.False(t, ok)
}

func TestScanEventpollTargets(t *testing.T) {
	acc := procpath.NewMapAccessor()
	seedProcess(acc, 100, "demo", 0x400000)

	acc.SetLink(100, "fd/6", "anon_inode:[eventpoll]", &procpath.FileStat{Ino: 99, Nlink: 1})
	acc.SetFile(100, "fdinfo/6",
		[]byte("pos:\t0\nflags:\t02\ntfd:       5 events:       19 data: 5\ntfd:       3 events:       19 data: 3\n"))

	res := runScan(t, acc, MapLister{100: {100}}, config.Config{}, nil, nil, nil)
	p := res.Processes[0]

	ep := fileByAssoc(p, 6)
	require.NotNil(t, ep)
	assert.Equal(t, &fdclass.UnknClass, ep.Class)

	got, ok := fdclass.Fill(res.Ctx, p, ep, columns.ColType)
	require.True(t, ok)
	assert.Equal(t, "eventpoll", got)

	assert.True(t, p.EpollTargets.Contains(3))
	assert.True(t, p.EpollTargets.Contains(5))
	assert.False(t, p.EpollTargets.Contains(6))
}

func TestScanSocketsOnly(t *testing.T) {
	acc := procpath.NewMapAccessor()
	seedProcess(acc, 100, "demo", 0x400000)

	acc.SetLink(100, "fd/0", "/dev/null", devNullStat())
	acc.SetLink(100, "fd/3", "socket:[1234]", &procpath.FileStat{
		Dev: unix.Mkdev(0, 8), Ino: 1234, Mode: unix.S_IFSOCK | 0o777, Nlink: 1,
	})

	res := runScan(t, acc, MapLister{100: {100}}, config.Config{SocketsOnly: true}, nil, nil, nil)
	p := res.Processes[0]

	require.Len(t, p.Files, 1)
	assert.Equal(t, &fdclass.SockClass, p.Files[0].Class)
	assert.Equal(t, fdclass.Association(3), p.Files[0].Assoc)
}

func TestScanExplicitPidList(t *testing.T) {
	acc := procpath.NewMapAccessor()
	seedProcess(acc, 100, "demo", 0x400000)
	seedProcess(acc, 101, "other", 0x400000)

	cfg := config.Config{Pids: []int{101}}
	res := runScan(t, acc, MapLister{100: {100}, 101: {101}}, cfg, nil, nil, nil)
	require.Len(t, res.Processes, 1)
	assert.Equal(t, 101, res.Processes[0].PID)
}

func TestScanParallelCollectsAll(t *testing.T) {
	acc := procpath.NewMapAccessor()
	lister := MapLister{}
	for pid := 100; pid < 116; pid++ {
		seedProcess(acc, pid, "demo", 0x400000)
		acc.SetLink(pid, "fd/0", "/dev/null", devNullStat())
		lister[pid] = []int{pid}
	}

	cfg := config.Config{ParallelScan: true, ScanWorkers: 4}
	res := runScan(t, acc, lister, cfg, nil, nil, nil)
	assert.Len(t, res.Processes, 16)
}
