// Package fstree keeps the namespace as an arena of nodes addressed by
// generation-checked handles. A handle is never a memory address: the low
// bits select an arena slot and the high bits carry the slot generation, so a
// handle to a freed node stops resolving as soon as the slot is released.
package fstree

import (
	"errors"
	"strings"

	"github.com/S1riyS/vfsd/internal/models"
)

// Handle identifies a node within the lifetime of one Tree. None is never
// issued.
type Handle uint32

const None Handle = 0

const (
	indexBits = 20
	indexMask = 1<<indexBits - 1
	genMask   = 1<<(32-indexBits) - 1

	// MaxNodes is the number of live nodes a tree can hold.
	MaxNodes = indexMask
)

var (
	ErrInvalidHandle = errors.New("fstree: invalid handle")
	ErrAttached      = errors.New("fstree: node already has a parent")
	ErrCycle         = errors.New("fstree: node is an ancestor of the target")
	ErrFull          = errors.New("fstree: node arena exhausted")
)

func makeHandle(index, gen uint32) Handle {
	return Handle(gen<<indexBits | index)
}

func (h Handle) index() uint32 { return uint32(h) & indexMask }
func (h Handle) gen() uint32   { return uint32(h) >> indexBits }

// Node is the payload of one tree entry. Structural links are private to the
// tree; everything else is owned by the caller.
type Node struct {
	ID    uint32
	Type  models.NodeType
	Size  uint32 // byte length, meaningful for files only
	Owner int32
	Mount int32 // mount table slot supplying the device backend
	Data  uint32
	Name  string

	parent Handle
	kids   []Handle
}

type slot struct {
	gen  uint32
	node *Node
}

// Tree is not safe for concurrent use. The namespace server owns it from a
// single goroutine.
type Tree struct {
	slots  []slot // slot 0 is reserved so that no handle equals None
	freed  []uint32
	live   int
	nextID uint32
}

func New() *Tree {
	return &Tree{slots: make([]slot, 1, 64)}
}

// Alloc creates a detached node and returns its handle.
func (t *Tree) Alloc(name string) (Handle, *Node, error) {
	var index uint32
	if n := len(t.freed); n > 0 {
		index = t.freed[n-1]
		t.freed = t.freed[:n-1]
	} else {
		if len(t.slots) > MaxNodes {
			return None, nil, ErrFull
		}
		index = uint32(len(t.slots))
		t.slots = append(t.slots, slot{gen: 1})
	}

	t.nextID++
	node := &Node{ID: t.nextID, Name: name}
	t.slots[index].node = node
	t.live++

	return makeHandle(index, t.slots[index].gen), node, nil
}

// Get returns the node behind h, or nil if h is None, stale or out of range.
func (t *Tree) Get(h Handle) *Node {
	if h == None {
		return nil
	}
	i := h.index()
	if i == 0 || int(i) >= len(t.slots) {
		return nil
	}
	s := t.slots[i]
	if s.node == nil || s.gen != h.gen() {
		return nil
	}
	return s.node
}

func (t *Tree) Valid(h Handle) bool {
	return t.Get(h) != nil
}

// Len reports the number of live nodes, attached or not.
func (t *Tree) Len() int {
	return t.live
}

func (t *Tree) Parent(h Handle) Handle {
	if n := t.Get(h); n != nil {
		return n.parent
	}
	return None
}

// Kids returns a copy of the ordered child list of h.
func (t *Tree) Kids(h Handle) []Handle {
	n := t.Get(h)
	if n == nil || len(n.kids) == 0 {
		return nil
	}
	out := make([]Handle, len(n.kids))
	copy(out, n.kids)
	return out
}

func (t *Tree) KidCount(h Handle) int {
	if n := t.Get(h); n != nil {
		return len(n.kids)
	}
	return 0
}

// Child returns the first child of h called name.
func (t *Tree) Child(h Handle, name string) Handle {
	n := t.Get(h)
	if n == nil {
		return None
	}
	for _, k := range n.kids {
		if t.slots[k.index()].node.Name == name {
			return k
		}
	}
	return None
}

// Resolve walks a slash separated path from root. Empty segments are
// skipped, so "", "/" and "//" all name root itself.
func (t *Tree) Resolve(root Handle, path string) Handle {
	if !t.Valid(root) {
		return None
	}
	node := root
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		node = t.Child(node, seg)
		if node == None {
			return None
		}
	}
	return node
}

func (t *Tree) isAncestor(a, h Handle) bool {
	for h != None {
		if h == a {
			return true
		}
		h = t.slots[h.index()].node.parent
	}
	return false
}

// Append links the detached node child as the last child of parent.
func (t *Tree) Append(parent, child Handle) error {
	p, c := t.Get(parent), t.Get(child)
	if p == nil || c == nil {
		return ErrInvalidHandle
	}
	if c.parent != None {
		return ErrAttached
	}
	if t.isAncestor(child, parent) {
		return ErrCycle
	}
	c.parent = parent
	p.kids = append(p.kids, child)
	return nil
}

// Detach unlinks h from its parent. Its own subtree stays intact.
func (t *Tree) Detach(h Handle) {
	n := t.Get(h)
	if n == nil || n.parent == None {
		return
	}
	p := t.slots[n.parent.index()].node
	for i, k := range p.kids {
		if k == h {
			p.kids = append(p.kids[:i], p.kids[i+1:]...)
			break
		}
	}
	n.parent = None
}

// Replace puts the detached node repl at the position old occupies under its
// parent and detaches old. When old has no parent only old is detached.
func (t *Tree) Replace(old, repl Handle) error {
	o, r := t.Get(old), t.Get(repl)
	if o == nil || r == nil {
		return ErrInvalidHandle
	}
	if r.parent != None {
		return ErrAttached
	}
	if o.parent == None {
		return nil
	}
	if t.isAncestor(repl, o.parent) {
		return ErrCycle
	}
	p := t.slots[o.parent.index()].node
	for i, k := range p.kids {
		if k == old {
			p.kids[i] = repl
			break
		}
	}
	r.parent = o.parent
	o.parent = None
	return nil
}

// Walk visits h and its descendants in pre-order.
func (t *Tree) Walk(h Handle, fn func(Handle, *Node)) {
	n := t.Get(h)
	if n == nil {
		return
	}
	fn(h, n)
	for _, k := range n.kids {
		t.Walk(k, fn)
	}
}

// Free detaches h and releases its whole subtree. release, if set, sees each
// node just before its slot is recycled, children before parents.
func (t *Tree) Free(h Handle, release func(Handle, *Node)) error {
	if !t.Valid(h) {
		return ErrInvalidHandle
	}
	t.Detach(h)
	t.freeSubtree(h, release)
	return nil
}

func (t *Tree) freeSubtree(h Handle, release func(Handle, *Node)) {
	n := t.slots[h.index()].node
	for _, k := range n.kids {
		t.freeSubtree(k, release)
	}
	if release != nil {
		release(h, n)
	}
	s := &t.slots[h.index()]
	s.node = nil
	s.gen = (s.gen + 1) & genMask
	if s.gen == 0 {
		s.gen = 1
	}
	t.freed = append(t.freed, h.index())
	t.live--
}
