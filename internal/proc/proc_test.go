package proc

import (
	"testing"

	"github.com/S1riyS/vfsd/internal/kfile"
	"github.com/S1riyS/vfsd/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTable(t *testing.T) (*Table, *kfile.Table) {
	t.Helper()
	files := kfile.New()
	tbl := NewTable(files)
	require.NoError(t, tbl.Seed([]models.Process{
		{PID: 1, Owner: RootUID, Cmd: "init"},
		{PID: 7, FatherPID: 1, Owner: RootUID, Cmd: "fbd"},
		{PID: 20, FatherPID: 1, Owner: 1000, Cmd: "sh"},
		{PID: 21, FatherPID: 20, Owner: 1000, Cmd: "ls"},
		{PID: 30, FatherPID: 1, Owner: 1001, Cmd: "sh"},
	}))
	return tbl, files
}

func TestUID(t *testing.T) {
	tbl, _ := newTable(t)

	uid, err := tbl.UID(20)
	require.NoError(t, err)
	assert.Equal(t, int32(1000), uid)

	_, err = tbl.UID(99)
	assert.ErrorIs(t, err, ErrNoProcess)
}

func TestSeedCollectsRejected(t *testing.T) {
	tbl, _ := newTable(t)
	err := tbl.Seed([]models.Process{
		{PID: 1, Cmd: "dup"},
		{PID: 0, Cmd: "zero"},
		{PID: 40, Cmd: "ok"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExists)
	assert.ErrorIs(t, err, ErrBadPID)
	assert.NotNil(t, tbl.Get(40))
}

func TestListFiltersByOwner(t *testing.T) {
	tbl, _ := newTable(t)

	all, err := tbl.List(1)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	mine, err := tbl.List(21)
	require.NoError(t, err)
	var pids []int32
	for _, p := range mine {
		pids = append(pids, p.PID)
	}
	assert.Equal(t, []int32{20, 21}, pids)

	_, err = tbl.List(404)
	assert.ErrorIs(t, err, ErrNoProcess)
}

func TestExitReleasesDescriptors(t *testing.T) {
	tbl, files := newTable(t)
	p := tbl.Get(20)
	require.NotNil(t, p)

	info := &models.NodeInfo{Node: 11, Name: "console0"}
	_, err := files.Open(p, info, kfile.ModeRead)
	require.NoError(t, err)
	_, err = files.Open(p, info, kfile.ModeWrite)
	require.NoError(t, err)

	other := tbl.Get(30)
	_, err = files.Open(other, info, kfile.ModeRead)
	require.NoError(t, err)

	n, err := tbl.Exit(20)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Nil(t, tbl.Get(20))

	refs, err := files.GetRef(11, kfile.ModeAll)
	require.NoError(t, err)
	assert.Equal(t, int32(1), refs)

	_, err = tbl.Exit(20)
	assert.ErrorIs(t, err, ErrNoProcess)
}
