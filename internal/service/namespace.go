package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/S1riyS/vfsd/internal/fstree"
	"github.com/S1riyS/vfsd/internal/models"
	"github.com/S1riyS/vfsd/internal/pkg/kerrors"
	"github.com/S1riyS/vfsd/pkg/logging"
	"github.com/S1riyS/vfsd/pkg/logging/slogext"
)

const MountMax = 32

// UIDResolver maps a requesting process to its owning user.
type UIDResolver interface {
	UID(pid int32) (int32, error)
}

// NamespaceService is the namespace tree plus the mount table. It is not
// safe for concurrent use: the namespace server calls it from one goroutine.
type NamespaceService interface {
	Add(ctx context.Context, parent uint32, name string, size uint32, pid int32, data uint32) (uint32, error)
	Del(ctx context.Context, node uint32) error
	Info(ctx context.Context, node uint32) (*models.NodeInfo, error)
	NodeByName(ctx context.Context, path string) (*models.NodeInfo, error)
	Kids(ctx context.Context, node uint32) ([]models.NodeInfo, error)
	Mount(ctx context.Context, path, devName string, devIndex int32, isFile bool, pid int32) (uint32, error)
	Unmount(ctx context.Context, node uint32) error
	Mounts(ctx context.Context) []models.MountEntry
}

type namespaceService struct {
	tree   *fstree.Tree
	root   fstree.Handle
	mounts [MountMax]models.MountEntry
	uids   UIDResolver
}

func NewNamespaceService(uids UIDResolver) NamespaceService {
	return &namespaceService{
		tree: fstree.New(),
		uids: uids,
	}
}

func (s *namespaceService) owner(pid int32) (int32, error) {
	uid, err := s.uids.UID(pid)
	if err != nil {
		return -1, newError(kerrors.ESRCH, err.Error())
	}
	return uid, nil
}

// resolve checks that node names a live node.
func (s *namespaceService) resolve(node uint32) (fstree.Handle, *fstree.Node, error) {
	if node == 0 {
		return fstree.None, nil, newError(kerrors.EINVAL, "null node handle")
	}
	h := fstree.Handle(node)
	n := s.tree.Get(h)
	if n == nil {
		return fstree.None, nil, newError(kerrors.ENOENT, "no such node")
	}
	return h, n, nil
}

func validName(name string) error {
	switch {
	case name == "":
		return newError(kerrors.EINVAL, "empty name")
	case strings.Contains(name, "/"):
		return newError(kerrors.EINVAL, "name contains '/'")
	case len(name) > models.NameMax:
		return newError(kerrors.ENAMETOOLONG, "name too long")
	}
	return nil
}

func splitPath(path string) []string {
	segs := strings.Split(path, "/")
	out := segs[:0]
	for _, seg := range segs {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

func (s *namespaceService) alloc(name string) (fstree.Handle, *fstree.Node, error) {
	h, n, err := s.tree.Alloc(name)
	if errors.Is(err, fstree.ErrFull) {
		return fstree.None, nil, newError(kerrors.ENOSPC, "node arena exhausted")
	}
	return h, n, err
}

// add returns the child of parent called name, creating it when missing.
// created reports whether a node was allocated.
func (s *namespaceService) add(parent fstree.Handle, name string, size uint32, owner int32, data uint32) (h fstree.Handle, created bool, err error) {
	p := s.tree.Get(parent)
	if p == nil {
		return fstree.None, false, newError(kerrors.ENOENT, "no such parent")
	}
	if p.Type != models.NodeTypeDir {
		return fstree.None, false, newError(kerrors.ENOTDIR, "parent is not a directory")
	}
	if err := validName(name); err != nil {
		return fstree.None, false, err
	}

	if h := s.tree.Child(parent, name); h != fstree.None {
		return h, false, nil
	}

	h, n, err := s.alloc(name)
	if err != nil {
		return fstree.None, false, err
	}
	if size == models.DirSize {
		n.Type = models.NodeTypeDir
	} else {
		n.Type = models.NodeTypeFile
		n.Size = size
	}
	n.Mount = p.Mount
	n.Owner = owner
	n.Data = data

	if err := s.tree.Append(parent, h); err != nil {
		_ = s.tree.Free(h, nil)
		return fstree.None, false, err
	}
	return h, true, nil
}

func (s *namespaceService) Add(ctx context.Context, parent uint32, name string, size uint32, pid int32, data uint32) (uint32, error) {
	const op = "service.namespaceService.Add"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Add",
		slogext.Handle("parent", parent),
		slog.String("name", name),
		slog.Any("size", size),
		slog.Int("pid", int(pid)),
	)

	owner, err := s.owner(pid)
	if err != nil {
		logger.Debug("Cannot resolve owner", slogext.Err(err))
		return 0, err
	}

	ph, _, err := s.resolve(parent)
	if err != nil {
		logger.Debug("Parent not found", slogext.Handle("parent", parent))
		return 0, err
	}

	h, created, err := s.add(ph, name, size, owner, data)
	if err != nil {
		logger.Debug("Add failed", slogext.Err(err))
		return 0, err
	}

	logger.Debug("Add successful",
		slogext.Handle("node", uint32(h)),
		slog.Bool("created", created),
	)
	return uint32(h), nil
}

func (s *namespaceService) Del(ctx context.Context, node uint32) error {
	const op = "service.namespaceService.Del"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Del", slogext.Handle("node", node))

	h, _, err := s.resolve(node)
	if err != nil {
		logger.Debug("Node not found", slogext.Handle("node", node))
		return err
	}
	if h == s.root {
		logger.Debug("Refusing to delete root")
		return newError(kerrors.EPERM, "root cannot be deleted")
	}

	freed := s.release(h)

	logger.Debug("Del successful", slog.Int("freed", freed))
	return nil
}

// release frees the subtree at h. Mount points inside it give up their slots
// and the nodes those mounts had replaced are freed as well. It returns the
// number of nodes freed.
func (s *namespaceService) release(h fstree.Handle) int {
	freed := 0
	queue := []fstree.Handle{h}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		_ = s.tree.Free(next, func(nh fstree.Handle, _ *fstree.Node) {
			freed++
			if slot := s.mountOf(nh); slot >= 0 {
				if old := fstree.Handle(s.mounts[slot].Old); s.tree.Valid(old) {
					queue = append(queue, old)
				}
				s.mounts[slot] = models.MountEntry{}
			}
		})
	}
	return freed
}

// mountOf returns the slot whose mount point is h, or -1.
func (s *namespaceService) mountOf(h fstree.Handle) int {
	for i := range s.mounts {
		if !s.mounts[i].Free() && fstree.Handle(s.mounts[i].Point) == h {
			return i
		}
	}
	return -1
}

func (s *namespaceService) freeSlot() int {
	for i := range s.mounts {
		if s.mounts[i].Free() {
			return i
		}
	}
	return -1
}

func (s *namespaceService) info(h fstree.Handle, n *fstree.Node) models.NodeInfo {
	info := models.NodeInfo{
		ID:    n.ID,
		Node:  uint32(h),
		Type:  n.Type,
		Owner: n.Owner,
		Name:  n.Name,
		Data:  n.Data,
	}
	if n.Type == models.NodeTypeDir {
		info.Size = uint32(s.tree.KidCount(h))
	} else {
		info.Size = n.Size
	}
	if n.Mount >= 0 && int(n.Mount) < MountMax {
		m := &s.mounts[n.Mount]
		info.DevIndex = m.DevIndex
		info.DevServPID = m.DevServPID
	}
	return info
}

func (s *namespaceService) Info(ctx context.Context, node uint32) (*models.NodeInfo, error) {
	const op = "service.namespaceService.Info"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	h, n, err := s.resolve(node)
	if err != nil {
		logger.Debug("Node not found", slogext.Handle("node", node), slogext.Err(err))
		return nil, err
	}

	info := s.info(h, n)
	return &info, nil
}

func (s *namespaceService) NodeByName(ctx context.Context, path string) (*models.NodeInfo, error) {
	const op = "service.namespaceService.NodeByName"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("NodeByName", slog.String("path", path))

	h := s.tree.Resolve(s.root, path)
	if h == fstree.None {
		logger.Debug("Path not found", slog.String("path", path))
		return nil, newError(kerrors.ENOENT, "no such file or directory")
	}

	info := s.info(h, s.tree.Get(h))
	return &info, nil
}

func (s *namespaceService) Kids(ctx context.Context, node uint32) ([]models.NodeInfo, error) {
	const op = "service.namespaceService.Kids"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	h, _, err := s.resolve(node)
	if err != nil {
		logger.Debug("Listing unknown node", slogext.Handle("node", node))
		return []models.NodeInfo{}, nil
	}

	kids := s.tree.Kids(h)
	out := make([]models.NodeInfo, 0, len(kids))
	for _, k := range kids {
		out = append(out, s.info(k, s.tree.Get(k)))
	}

	logger.Debug("Kids listed", slogext.Handle("node", node), slog.Int("count", len(out)))
	return out, nil
}

func (s *namespaceService) Mount(ctx context.Context, path, devName string, devIndex int32, isFile bool, pid int32) (uint32, error) {
	const op = "service.namespaceService.Mount"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Mount",
		slog.String("path", path),
		slog.String("dev_name", devName),
		slog.Int("dev_index", int(devIndex)),
		slog.Bool("is_file", isFile),
		slog.Int("pid", int(pid)),
	)

	switch {
	case devName == "":
		return 0, newError(kerrors.EINVAL, "empty device name")
	case len(devName) > models.DevNameMax:
		return 0, newError(kerrors.ENAMETOOLONG, "device name too long")
	}

	owner, err := s.owner(pid)
	if err != nil {
		logger.Debug("Cannot resolve owner", slogext.Err(err))
		return 0, err
	}

	segs := splitPath(path)
	for _, seg := range segs {
		if err := validName(seg); err != nil {
			return 0, err
		}
	}

	slot := s.freeSlot()
	if slot < 0 {
		logger.Warn("Mount table full", slog.Int("mount_max", MountMax))
		return 0, newError(kerrors.ENOSPC, "mount table full")
	}

	name := "/"
	if len(segs) > 0 {
		name = segs[len(segs)-1]
	}

	// Resolve the mount point, creating missing parent directories. Anything
	// created here is rolled back if the mount fails further down.
	target := s.root
	parent := fstree.None
	var created []fstree.Handle
	rollback := func() {
		for i := len(created) - 1; i >= 0; i-- {
			_ = s.tree.Free(created[i], nil)
		}
	}

	if s.root != fstree.None && len(segs) > 0 {
		parent = s.root
		for _, seg := range segs[:len(segs)-1] {
			h, isNew, err := s.add(parent, seg, models.DirSize, owner, 0)
			if err != nil {
				rollback()
				logger.Debug("Cannot build mount path", slog.String("segment", seg), slogext.Err(err))
				return 0, err
			}
			if isNew {
				created = append(created, h)
			}
			parent = h
		}
		if p := s.tree.Get(parent); p.Type != models.NodeTypeDir {
			rollback()
			return 0, newError(kerrors.ENOTDIR, "mount parent is not a directory")
		}
		target = s.tree.Child(parent, name)
	}

	if target != fstree.None && s.mountOf(target) >= 0 {
		rollback()
		logger.Warn("Refusing to mount over a mount point", slog.String("path", path))
		return 0, newError(kerrors.EBUSY, "mount point already mounted")
	}

	h, n, err := s.alloc(name)
	if err != nil {
		rollback()
		return 0, err
	}
	n.Owner = owner
	n.Mount = int32(slot)
	if isFile {
		n.Type = models.NodeTypeFile
	} else {
		n.Type = models.NodeTypeDir
	}

	switch {
	case s.root == fstree.None:
		s.root = h
	case target == s.root:
		s.root = h
	case target != fstree.None:
		err = s.tree.Replace(target, h)
	default:
		err = s.tree.Append(parent, h)
	}
	if err != nil {
		_ = s.tree.Free(h, nil)
		rollback()
		logger.Error("Failed to splice mount point", slogext.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.mounts[slot] = models.MountEntry{
		DevName:    devName,
		DevIndex:   devIndex,
		DevServPID: pid,
		Point:      uint32(h),
		Old:        uint32(target),
	}

	logger.Debug("Mount successful",
		slogext.Handle("node", uint32(h)),
		slogext.Handle("old", uint32(target)),
		slog.Int("slot", slot),
	)
	return uint32(h), nil
}

func (s *namespaceService) Unmount(ctx context.Context, node uint32) error {
	const op = "service.namespaceService.Unmount"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Debug("Unmount", slogext.Handle("node", node))

	h, _, err := s.resolve(node)
	if err != nil {
		logger.Debug("Node not found", slogext.Handle("node", node))
		return err
	}
	if h == s.root {
		logger.Debug("Refusing to unmount root")
		return newError(kerrors.EPERM, "root cannot be unmounted")
	}

	slot := s.mountOf(h)
	if slot < 0 {
		logger.Debug("Node is not a mount point", slogext.Handle("node", node))
		return newError(kerrors.EINVAL, "not a mount point")
	}

	m := s.mounts[slot]
	s.mounts[slot] = models.MountEntry{}
	parent := s.tree.Parent(h)
	freed := s.release(h)

	old := fstree.Handle(m.Old)
	restored := false
	if s.tree.Valid(old) && parent != fstree.None {
		if err := s.tree.Append(parent, old); err != nil {
			logger.Error("Failed to restore replaced node", slogext.Err(err))
			return fmt.Errorf("%s: %w", op, err)
		}
		restored = true
	} else if s.tree.Valid(old) {
		freed += s.release(old)
	}

	logger.Debug("Unmount successful",
		slog.String("dev_name", m.DevName),
		slog.Int("freed", freed),
		slog.Bool("restored", restored),
	)
	return nil
}

func (s *namespaceService) Mounts(ctx context.Context) []models.MountEntry {
	out := make([]models.MountEntry, 0, MountMax)
	for _, m := range s.mounts {
		if !m.Free() {
			out = append(out, m)
		}
	}
	return out
}
