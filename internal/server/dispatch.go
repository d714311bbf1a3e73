package server

import (
	"context"

	"github.com/S1riyS/vfsd/internal/pkg/kerrors"
	"github.com/S1riyS/vfsd/internal/service"
	"github.com/S1riyS/vfsd/pkg/binary"
	"github.com/S1riyS/vfsd/pkg/logging"
	"github.com/S1riyS/vfsd/pkg/logging/slogext"
)

func (s *Server) dispatch(ctx context.Context, pkg Package) Response {
	const op = "server.Server.dispatch"

	var (
		body []byte
		err  error
	)

	switch pkg.Type {
	case TagAdd:
		body, err = s.doAdd(ctx, pkg)
	case TagDel:
		body, err = s.doDel(ctx, pkg)
	case TagInfo:
		body, err = s.doInfo(ctx, pkg)
	case TagNodeByName:
		body, err = s.doNodeByName(ctx, pkg)
	case TagKids:
		body, err = s.doKids(ctx, pkg)
	case TagMount:
		body, err = s.doMount(ctx, pkg)
	case TagUnmount:
		body, err = s.doUnmount(ctx, pkg)
	default:
		err = &service.ServiceError{Code: kerrors.EINVAL, Message: "unknown request type"}
	}

	if err != nil {
		logger := logging.GetLoggerFromContextWithOp(ctx, op)
		logger.Debug("Request failed", slogext.Err(err))
		return Response{ID: pkg.ID, Type: TagErr, Errno: service.Code(err)}
	}
	return Response{ID: pkg.ID, Type: pkg.Type, Body: body}
}

func badPayload(err error) error {
	return &service.ServiceError{Code: kerrors.EINVAL, Message: "malformed payload: " + err.Error()}
}

func (s *Server) doAdd(ctx context.Context, pkg Package) ([]byte, error) {
	r := binary.NewReader(pkg.Body)
	node := r.ReadUint()
	name := r.ReadStr()
	size := r.ReadUint()
	data := r.ReadUint()
	if err := r.Err(); err != nil {
		return nil, badPayload(err)
	}

	h, err := s.ns.Add(ctx, node, name, size, pkg.PID, data)
	if err != nil {
		return nil, err
	}
	return binary.EncodeHandle(h), nil
}

func (s *Server) doDel(ctx context.Context, pkg Package) ([]byte, error) {
	node, err := binary.DecodeHandle(pkg.Body)
	if err != nil {
		return nil, badPayload(err)
	}
	return nil, s.ns.Del(ctx, node)
}

func (s *Server) doInfo(ctx context.Context, pkg Package) ([]byte, error) {
	node, err := binary.DecodeHandle(pkg.Body)
	if err != nil {
		return nil, badPayload(err)
	}
	info, err := s.ns.Info(ctx, node)
	if err != nil {
		return nil, err
	}
	return binary.EncodeNodeInfo(info)
}

func (s *Server) doNodeByName(ctx context.Context, pkg Package) ([]byte, error) {
	r := binary.NewReader(pkg.Body)
	path := r.ReadStr()
	if err := r.Err(); err != nil {
		return nil, badPayload(err)
	}
	info, err := s.ns.NodeByName(ctx, path)
	if err != nil {
		return nil, err
	}
	return binary.EncodeNodeInfo(info)
}

// doKids never fails: an unreadable or unknown parent lists as empty.
func (s *Server) doKids(ctx context.Context, pkg Package) ([]byte, error) {
	node, err := binary.DecodeHandle(pkg.Body)
	if err != nil {
		return nil, nil
	}
	kids, err := s.ns.Kids(ctx, node)
	if err != nil || len(kids) == 0 {
		return nil, nil
	}
	return binary.EncodeNodeInfos(kids)
}

func (s *Server) doMount(ctx context.Context, pkg Package) ([]byte, error) {
	r := binary.NewReader(pkg.Body)
	path := r.ReadStr()
	devName := r.ReadStr()
	devIndex := r.ReadInt()
	isFile := r.ReadInt()
	if err := r.Err(); err != nil {
		return nil, badPayload(err)
	}

	h, err := s.ns.Mount(ctx, path, devName, devIndex, isFile != 0, pkg.PID)
	if err != nil {
		return nil, err
	}
	return binary.EncodeHandle(h), nil
}

func (s *Server) doUnmount(ctx context.Context, pkg Package) ([]byte, error) {
	node, err := binary.DecodeHandle(pkg.Body)
	if err != nil {
		return nil, badPayload(err)
	}
	return nil, s.ns.Unmount(ctx, node)
}
