// Package proc is the kernel process registry: pid to owner resolution,
// per-process descriptor space, exit-time release and process listing.
package proc

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/S1riyS/vfsd/internal/kfile"
	"github.com/S1riyS/vfsd/internal/models"
	"github.com/hashicorp/go-multierror"
)

// RootUID sees every process and owns the boot processes.
const RootUID int32 = 0

var (
	ErrNoProcess = errors.New("proc: no such process")
	ErrExists    = errors.New("proc: pid already in use")
	ErrBadPID    = errors.New("proc: pid must be positive")
)

type Process struct {
	models.Process
	files kfile.Space
}

func (p *Process) FileSpace() *kfile.Space {
	return &p.files
}

type Table struct {
	mu    sync.RWMutex
	procs map[int32]*Process
	files *kfile.Table
}

func NewTable(files *kfile.Table) *Table {
	return &Table{
		procs: make(map[int32]*Process),
		files: files,
	}
}

func (t *Table) Spawn(rec models.Process) (*Process, error) {
	if rec.PID <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrBadPID, rec.PID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.procs[rec.PID]; ok {
		return nil, fmt.Errorf("%w: %d", ErrExists, rec.PID)
	}
	p := &Process{Process: rec}
	t.procs[rec.PID] = p
	return p, nil
}

// Seed spawns every record, skipping the ones that fail. The returned error
// lists all rejected records.
func (t *Table) Seed(recs []models.Process) error {
	var result *multierror.Error
	for _, rec := range recs {
		if _, err := t.Spawn(rec); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Get returns the process, or nil when pid is unknown.
func (t *Table) Get(pid int32) *Process {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.procs[pid]
}

// UID resolves the owning user of pid.
func (t *Table) UID(pid int32) (int32, error) {
	p := t.Get(pid)
	if p == nil {
		return -1, fmt.Errorf("%w: %d", ErrNoProcess, pid)
	}
	return p.Owner, nil
}

// Exit releases every descriptor still open in pid and removes it. It
// returns the number of descriptors that were closed.
func (t *Table) Exit(pid int32) (int, error) {
	t.mu.Lock()
	p, ok := t.procs[pid]
	delete(t.procs, pid)
	t.mu.Unlock()

	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrNoProcess, pid)
	}
	return t.files.CloseAll(p), nil
}

// List returns the processes visible to caller ordered by pid: all of them
// for the root user, otherwise those sharing the caller's owner.
func (t *Table) List(caller int32) ([]models.Process, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	me, ok := t.procs[caller]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoProcess, caller)
	}

	out := make([]models.Process, 0, len(t.procs))
	for _, p := range t.procs {
		if me.Owner == RootUID || p.Owner == me.Owner {
			out = append(out, p.Process)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out, nil
}
