// Package kfile is the kernel-side open-file table. It caches, per node
// handle, the node metadata and aggregate read/write reference counts, and
// binds per-process descriptor slots to those shared entries.
//
// Every exported method takes the table lock once, never calls out while
// holding it and never blocks, so callers may use it from any process
// context. Requests to the namespace server must be made before or after a
// call, not during one.
package kfile

import (
	"errors"
	"sync"

	"github.com/S1riyS/vfsd/internal/models"
	"github.com/S1riyS/vfsd/internal/pkg/kerrors"
)

const (
	OpenMax = 128 // distinct nodes open system wide
	FileMax = 32  // descriptors per process
)

// Mode selects which reference count an operation touches.
type Mode uint32

const (
	ModeRead  Mode = 0
	ModeWrite Mode = 1
	ModeAll   Mode = 2 // GetRef only: read + write
)

var (
	ErrNoProcess       = errors.New("kfile: no calling process")
	ErrCacheFull       = errors.New("kfile: open file table is full")
	ErrDescriptorsFull = errors.New("kfile: process descriptor table is full")
	ErrNotFound        = errors.New("kfile: node is not open")
	ErrBadDescriptor   = errors.New("kfile: bad file descriptor")
	ErrBadMode         = errors.New("kfile: bad open mode")
	ErrBadOffset       = errors.New("kfile: negative seek offset")
)

// Errno maps a table error to the kernel code reported to user space.
func Errno(err error) int64 {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrNoProcess):
		return kerrors.ESRCH
	case errors.Is(err, ErrCacheFull):
		return kerrors.ENFILE
	case errors.Is(err, ErrDescriptorsFull):
		return kerrors.EMFILE
	case errors.Is(err, ErrNotFound):
		return kerrors.ENOENT
	case errors.Is(err, ErrBadDescriptor):
		return kerrors.EBADF
	default:
		return kerrors.EINVAL
	}
}

// entry is free iff info.Node == 0.
type entry struct {
	info models.NodeInfo
	refR int32
	refW int32
}

func (e *entry) free() bool { return e.info.Node == 0 }

type fileSlot struct {
	kf   *entry
	mode Mode
	seek int32
}

// Space is the descriptor array of one process. The zero value is an empty
// array. Its contents are only touched under the owning Table's lock.
type Space struct {
	files [FileMax]fileSlot
	count int
}

// Process is the calling process as seen by the table.
type Process interface {
	FileSpace() *Space
}

// Descriptor is a snapshot of one open descriptor.
type Descriptor struct {
	Info models.NodeInfo
	Mode Mode
	Seek int32
}

type Table struct {
	mu    sync.Mutex
	files [OpenMax]entry
}

func New() *Table {
	return &Table{}
}

// lookup returns the entry caching node, allocating the first free one when
// add is set. Caller holds t.mu.
func (t *Table) lookup(node uint32, add bool) *entry {
	var at *entry
	for i := range t.files {
		e := &t.files[i]
		if e.free() {
			if at == nil {
				at = e
			}
		} else if e.info.Node == node {
			return e
		}
	}
	if at == nil || !add {
		return nil
	}
	*at = entry{}
	at.info.Node = node
	return at
}

func (e *entry) ref(mode Mode) {
	if mode == ModeRead {
		e.refR++
	} else {
		e.refW++
	}
}

// unref drops one reference, clamped at zero, and frees the entry once both
// counts are zero. Caller holds t.mu.
func (e *entry) unref(mode Mode) {
	if mode == ModeRead {
		if e.refR > 0 {
			e.refR--
		}
	} else if e.refW > 0 {
		e.refW--
	}
	if e.refR+e.refW == 0 {
		*e = entry{}
	}
}

func space(p Process) *Space {
	if p == nil {
		return nil
	}
	return p.FileSpace()
}

func (t *Table) slot(p Process, fd int) (*fileSlot, error) {
	s := space(p)
	if s == nil {
		return nil, ErrNoProcess
	}
	if fd < 0 || fd >= FileMax || s.files[fd].kf == nil {
		return nil, ErrBadDescriptor
	}
	return &s.files[fd], nil
}

// GetRef returns the reference count of node selected by mode. ErrNotFound
// distinguishes a node that is not open from a zero count.
func (t *Table) GetRef(node uint32, mode Mode) (int32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.lookup(node, false)
	if e == nil {
		return -1, ErrNotFound
	}
	switch mode {
	case ModeRead:
		return e.refR, nil
	case ModeWrite:
		return e.refW, nil
	default:
		return e.refR + e.refW, nil
	}
}

// Open caches info, takes a reference of the given mode and binds the first
// free descriptor of p to the entry.
func (t *Table) Open(p Process, info *models.NodeInfo, mode Mode) (int, error) {
	s := space(p)
	if s == nil {
		return -1, ErrNoProcess
	}
	if info == nil || info.Node == 0 {
		return -1, ErrNotFound
	}
	if mode != ModeRead && mode != ModeWrite {
		return -1, ErrBadMode
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.lookup(info.Node, true)
	if e == nil {
		return -1, ErrCacheFull
	}
	e.ref(mode)
	e.info = *info

	for fd := range s.files {
		if s.files[fd].kf == nil {
			s.files[fd] = fileSlot{kf: e, mode: mode}
			s.count++
			return fd, nil
		}
	}

	e.unref(mode)
	return -1, ErrDescriptorsFull
}

// Close releases descriptor fd of p. Unknown or out of range descriptors are
// ignored, since exit paths may race with explicit closes.
func (t *Table) Close(p Process, fd int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closeLocked(p, fd)
}

func (t *Table) closeLocked(p Process, fd int) bool {
	f, err := t.slot(p, fd)
	if err != nil {
		return false
	}
	f.kf.unref(f.mode)
	*f = fileSlot{}
	space(p).count--
	return true
}

// CloseAll releases every descriptor p still holds and reports how many
// there were.
func (t *Table) CloseAll(p Process) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for fd := 0; fd < FileMax; fd++ {
		if t.closeLocked(p, fd) {
			n++
		}
	}
	return n
}

// Count reports the number of descriptors p holds.
func (t *Table) Count(p Process) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s := space(p); s != nil {
		return s.count
	}
	return 0
}

func (t *Table) Descriptor(p Process, fd int) (Descriptor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := t.slot(p, fd)
	if err != nil {
		return Descriptor{}, err
	}
	return Descriptor{Info: f.kf.info, Mode: f.mode, Seek: f.seek}, nil
}

func (t *Table) NodeInfoByFD(p Process, fd int) (models.NodeInfo, error) {
	d, err := t.Descriptor(p, fd)
	return d.Info, err
}

func (t *Table) NodeInfoByHandle(node uint32) (models.NodeInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.lookup(node, false)
	if e == nil {
		return models.NodeInfo{}, ErrNotFound
	}
	return e.info, nil
}

// NodeInfoUpdate overwrites the cached metadata of an open node in place.
func (t *Table) NodeInfoUpdate(node uint32, info *models.NodeInfo) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.lookup(node, false)
	if e == nil || info == nil {
		return ErrNotFound
	}
	e.info = *info
	e.info.Node = node
	return nil
}

func (t *Table) SetSeek(p Process, fd int, seek int32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := t.slot(p, fd)
	if err != nil {
		return err
	}
	if seek < 0 {
		return ErrBadOffset
	}
	f.seek = seek
	return nil
}

// InUse reports the number of occupied cache entries.
func (t *Table) InUse() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for i := range t.files {
		if !t.files[i].free() {
			n++
		}
	}
	return n
}
