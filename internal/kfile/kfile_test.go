package kfile

import (
	"sync"
	"testing"

	"github.com/S1riyS/vfsd/internal/models"
	"github.com/S1riyS/vfsd/internal/pkg/kerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testProc struct {
	files Space
}

func (p *testProc) FileSpace() *Space { return &p.files }

func info(node uint32, name string) *models.NodeInfo {
	return &models.NodeInfo{Node: node, Name: name, Type: models.NodeTypeFile}
}

func TestOpenCloseRoundTrip(t *testing.T) {
	tbl := New()
	p := &testProc{}

	fd, err := tbl.Open(p, info(10, "a"), ModeRead)
	require.NoError(t, err)
	assert.Equal(t, 0, fd)

	before, err := tbl.GetRef(10, ModeAll)
	require.NoError(t, err)

	fd2, err := tbl.Open(p, info(10, "a"), ModeWrite)
	require.NoError(t, err)
	assert.Equal(t, 1, fd2)
	tbl.Close(p, fd2)

	after, err := tbl.GetRef(10, ModeAll)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 1, tbl.Count(p))
}

func TestReadTwiceCloseTwiceFreesEntry(t *testing.T) {
	tbl := New()
	p := &testProc{}

	fd1, err := tbl.Open(p, info(5, "fb0"), ModeRead)
	require.NoError(t, err)
	fd2, err := tbl.Open(p, info(5, "fb0"), ModeRead)
	require.NoError(t, err)

	tbl.Close(p, fd1)
	n, err := tbl.GetRef(5, ModeRead)
	require.NoError(t, err)
	assert.Equal(t, int32(1), n)

	tbl.Close(p, fd2)
	_, err = tbl.GetRef(5, ModeRead)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = tbl.NodeInfoByHandle(5)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, tbl.InUse())
}

func TestGetRefSumsModes(t *testing.T) {
	tbl := New()
	p := &testProc{}
	for _, m := range []Mode{ModeRead, ModeRead, ModeWrite} {
		_, err := tbl.Open(p, info(3, "x"), m)
		require.NoError(t, err)
	}
	r, _ := tbl.GetRef(3, ModeRead)
	w, _ := tbl.GetRef(3, ModeWrite)
	all, err := tbl.GetRef(3, ModeAll)
	require.NoError(t, err)
	assert.Equal(t, int32(2), r)
	assert.Equal(t, int32(1), w)
	assert.Equal(t, r+w, all)
}

func TestCacheCapacity(t *testing.T) {
	tbl := New()
	procs := make([]*testProc, 0, OpenMax/FileMax+1)
	p := &testProc{}
	procs = append(procs, p)

	for i := 1; i <= OpenMax; i++ {
		if tbl.Count(p) == FileMax {
			p = &testProc{}
			procs = append(procs, p)
		}
		_, err := tbl.Open(p, info(uint32(i), "n"), ModeRead)
		require.NoError(t, err, "open %d", i)
	}
	assert.Equal(t, OpenMax, tbl.InUse())

	fresh := &testProc{}
	_, err := tbl.Open(fresh, info(OpenMax+1, "overflow"), ModeRead)
	assert.ErrorIs(t, err, ErrCacheFull)
	assert.Equal(t, kerrors.ENFILE, Errno(err))
	assert.Equal(t, 0, tbl.Count(fresh))

	// Existing entries are untouched.
	got, err := tbl.NodeInfoByHandle(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), got.Node)

	// An already cached node can still be opened while the cache is full.
	_, err = tbl.Open(fresh, info(1, "n"), ModeWrite)
	require.NoError(t, err)

	// Releasing one entry makes room again.
	tbl.CloseAll(procs[0])
	_, err = tbl.Open(fresh, info(OpenMax+1, "overflow"), ModeRead)
	require.NoError(t, err)
}

func TestDescriptorTableFullRevertsRef(t *testing.T) {
	tbl := New()
	p := &testProc{}
	for i := 0; i < FileMax; i++ {
		_, err := tbl.Open(p, info(1, "shared"), ModeRead)
		require.NoError(t, err)
	}
	_, err := tbl.Open(p, info(2, "other"), ModeRead)
	assert.ErrorIs(t, err, ErrDescriptorsFull)

	_, err = tbl.GetRef(2, ModeAll)
	assert.ErrorIs(t, err, ErrNotFound, "reverted open must not leak a cache entry")

	n, err := tbl.GetRef(1, ModeRead)
	require.NoError(t, err)
	assert.Equal(t, int32(FileMax), n)
}

func TestCloseIgnoresBadDescriptors(t *testing.T) {
	tbl := New()
	p := &testProc{}
	fd, err := tbl.Open(p, info(8, "a"), ModeWrite)
	require.NoError(t, err)

	tbl.Close(p, -1)
	tbl.Close(p, FileMax)
	tbl.Close(p, fd+1)
	tbl.Close(nil, fd)

	n, err := tbl.GetRef(8, ModeWrite)
	require.NoError(t, err)
	assert.Equal(t, int32(1), n)

	tbl.Close(p, fd)
	tbl.Close(p, fd)
	_, err = tbl.GetRef(8, ModeWrite)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenRequiresProcess(t *testing.T) {
	tbl := New()
	_, err := tbl.Open(nil, info(1, "a"), ModeRead)
	assert.ErrorIs(t, err, ErrNoProcess)

	_, err = tbl.Open(&testProc{}, info(0, "none"), ModeRead)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = tbl.Open(&testProc{}, info(1, "a"), ModeAll)
	assert.ErrorIs(t, err, ErrBadMode)
}

func TestMetadataLastWriterWins(t *testing.T) {
	tbl := New()
	p := &testProc{}
	first := info(4, "log")
	first.Size = 10
	fd, err := tbl.Open(p, first, ModeRead)
	require.NoError(t, err)

	second := info(4, "log")
	second.Size = 20
	_, err = tbl.Open(p, second, ModeWrite)
	require.NoError(t, err)

	got, err := tbl.NodeInfoByFD(p, fd)
	require.NoError(t, err)
	assert.Equal(t, uint32(20), got.Size)

	update := info(99, "log")
	update.Size = 30
	require.NoError(t, tbl.NodeInfoUpdate(4, update))
	got, err = tbl.NodeInfoByHandle(4)
	require.NoError(t, err)
	assert.Equal(t, uint32(30), got.Size)
	assert.Equal(t, uint32(4), got.Node, "update keeps the cache key")

	assert.ErrorIs(t, tbl.NodeInfoUpdate(77, update), ErrNotFound)
}

func TestSeekState(t *testing.T) {
	tbl := New()
	p := &testProc{}
	fd, err := tbl.Open(p, info(6, "data"), ModeWrite)
	require.NoError(t, err)

	d, err := tbl.Descriptor(p, fd)
	require.NoError(t, err)
	assert.Equal(t, int32(0), d.Seek)
	assert.Equal(t, ModeWrite, d.Mode)

	require.NoError(t, tbl.SetSeek(p, fd, 128))
	d, err = tbl.Descriptor(p, fd)
	require.NoError(t, err)
	assert.Equal(t, int32(128), d.Seek)

	assert.ErrorIs(t, tbl.SetSeek(p, fd, -1), ErrBadOffset)
	assert.ErrorIs(t, tbl.SetSeek(p, fd+1, 0), ErrBadDescriptor)

	tbl.Close(p, fd)
	fd, err = tbl.Open(p, info(6, "data"), ModeWrite)
	require.NoError(t, err)
	d, err = tbl.Descriptor(p, fd)
	require.NoError(t, err)
	assert.Equal(t, int32(0), d.Seek, "reopened descriptor starts at zero")
}

func TestConcurrentOpenClose(t *testing.T) {
	tbl := New()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := &testProc{}
			for i := 0; i < 200; i++ {
				fd, err := tbl.Open(p, info(uint32(i%4+1), "hot"), Mode(i%2))
				if err != nil {
					t.Errorf("open: %v", err)
					return
				}
				tbl.Close(p, fd)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, tbl.InUse())
}
