package fstree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustAlloc(t *testing.T, tr *Tree, name string) Handle {
	t.Helper()
	h, _, err := tr.Alloc(name)
	require.NoError(t, err)
	require.NotEqual(t, None, h)
	return h
}

func TestAllocGetFree(t *testing.T) {
	tr := New()
	root := mustAlloc(t, tr, "/")
	etc := mustAlloc(t, tr, "etc")
	require.NoError(t, tr.Append(root, etc))

	n := tr.Get(etc)
	require.NotNil(t, n)
	assert.Equal(t, "etc", n.Name)
	assert.Equal(t, root, tr.Parent(etc))
	assert.Equal(t, 2, tr.Len())

	require.NoError(t, tr.Free(etc, nil))
	assert.Nil(t, tr.Get(etc), "freed handle must stop resolving")
	assert.Equal(t, 0, tr.KidCount(root))

	// The slot is recycled under a new generation.
	again := mustAlloc(t, tr, "var")
	assert.NotEqual(t, etc, again)
	assert.Nil(t, tr.Get(etc))
	assert.NotNil(t, tr.Get(again))
}

func TestGetRejectsGarbage(t *testing.T) {
	tr := New()
	assert.Nil(t, tr.Get(None))
	assert.Nil(t, tr.Get(Handle(0xdeadbeef)))
	assert.ErrorIs(t, tr.Free(Handle(42), nil), ErrInvalidHandle)
}

func TestResolve(t *testing.T) {
	tr := New()
	root := mustAlloc(t, tr, "/")
	dev := mustAlloc(t, tr, "dev")
	fb := mustAlloc(t, tr, "fb0")
	require.NoError(t, tr.Append(root, dev))
	require.NoError(t, tr.Append(dev, fb))

	tests := []struct {
		path string
		want Handle
	}{
		{"", root},
		{"/", root},
		{"/dev", dev},
		{"dev/", dev},
		{"//dev//fb0", fb},
		{"/dev/fb1", None},
		{"/dev/fb0/x", None},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tr.Resolve(root, tt.path), tt.path)
	}
}

func TestChildFirstMatchAndOrder(t *testing.T) {
	tr := New()
	root := mustAlloc(t, tr, "/")
	a := mustAlloc(t, tr, "a")
	b := mustAlloc(t, tr, "b")
	c := mustAlloc(t, tr, "c")
	for _, h := range []Handle{a, b, c} {
		require.NoError(t, tr.Append(root, h))
	}
	assert.Equal(t, []Handle{a, b, c}, tr.Kids(root))
	assert.Equal(t, b, tr.Child(root, "b"))

	tr.Detach(b)
	assert.Equal(t, []Handle{a, c}, tr.Kids(root))
	assert.Equal(t, None, tr.Parent(b))
	assert.NotNil(t, tr.Get(b), "detach keeps the node alive")
}

func TestReplaceKeepsPosition(t *testing.T) {
	tr := New()
	root := mustAlloc(t, tr, "/")
	a := mustAlloc(t, tr, "a")
	b := mustAlloc(t, tr, "b")
	c := mustAlloc(t, tr, "c")
	for _, h := range []Handle{a, b, c} {
		require.NoError(t, tr.Append(root, h))
	}
	repl := mustAlloc(t, tr, "b")
	require.NoError(t, tr.Replace(b, repl))

	assert.Equal(t, []Handle{a, repl, c}, tr.Kids(root))
	assert.Equal(t, None, tr.Parent(b))
	assert.Equal(t, root, tr.Parent(repl))
}

func TestAppendRejectsCyclesAndAttached(t *testing.T) {
	tr := New()
	root := mustAlloc(t, tr, "/")
	a := mustAlloc(t, tr, "a")
	require.NoError(t, tr.Append(root, a))

	assert.ErrorIs(t, tr.Append(root, a), ErrAttached)

	lone := mustAlloc(t, tr, "lone")
	require.NoError(t, tr.Append(lone, root))
	assert.ErrorIs(t, tr.Append(a, lone), ErrCycle)
}

func TestFreeReleasesChildrenFirst(t *testing.T) {
	tr := New()
	root := mustAlloc(t, tr, "/")
	dir := mustAlloc(t, tr, "dir")
	f1 := mustAlloc(t, tr, "f1")
	f2 := mustAlloc(t, tr, "f2")
	require.NoError(t, tr.Append(root, dir))
	require.NoError(t, tr.Append(dir, f1))
	require.NoError(t, tr.Append(dir, f2))

	var order []string
	require.NoError(t, tr.Free(dir, func(_ Handle, n *Node) {
		order = append(order, n.Name)
	}))
	assert.Equal(t, []string{"f1", "f2", "dir"}, order)
	assert.Equal(t, 1, tr.Len())
	for _, h := range []Handle{dir, f1, f2} {
		assert.False(t, tr.Valid(h))
	}
}

func TestWalkPreOrder(t *testing.T) {
	tr := New()
	root := mustAlloc(t, tr, "/")
	a := mustAlloc(t, tr, "a")
	b := mustAlloc(t, tr, "b")
	require.NoError(t, tr.Append(root, a))
	require.NoError(t, tr.Append(a, b))

	var names []string
	tr.Walk(root, func(_ Handle, n *Node) { names = append(names, n.Name) })
	assert.Equal(t, []string{"/", "a", "b"}, names)
}
