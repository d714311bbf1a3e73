package server

import (
	"context"
	"sync/atomic"

	"github.com/S1riyS/vfsd/internal/kfile"
	"github.com/S1riyS/vfsd/internal/models"
	"github.com/S1riyS/vfsd/internal/service"
	"github.com/S1riyS/vfsd/pkg/binary"
)

// Client issues namespace requests on behalf of one process.
type Client struct {
	srv *Server
	pid int32
	seq atomic.Uint32
}

func (s *Server) Client(pid int32) *Client {
	return &Client{srv: s, pid: pid}
}

func (c *Client) PID() int32 {
	return c.pid
}

func (c *Client) call(ctx context.Context, tag Tag, body []byte) ([]byte, error) {
	resp, err := c.srv.Call(ctx, Package{
		ID:   c.seq.Add(1),
		PID:  c.pid,
		Type: tag,
		Body: body,
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, &service.ServiceError{Code: resp.Errno, Message: tag.String() + " failed"}
	}
	return resp.Body, nil
}

func (c *Client) callHandle(ctx context.Context, tag Tag, body []byte) (uint32, error) {
	out, err := c.call(ctx, tag, body)
	if err != nil {
		return 0, err
	}
	return binary.DecodeHandle(out)
}

func (c *Client) callInfo(ctx context.Context, tag Tag, body []byte) (*models.NodeInfo, error) {
	out, err := c.call(ctx, tag, body)
	if err != nil {
		return nil, err
	}
	return binary.DecodeNodeInfo(out)
}

func (c *Client) Add(ctx context.Context, parent uint32, name string, size uint32, data uint32) (uint32, error) {
	body := binary.NewWriter().WriteUint(parent).WriteStr(name).WriteUint(size).WriteUint(data).Bytes()
	return c.callHandle(ctx, TagAdd, body)
}

func (c *Client) Del(ctx context.Context, node uint32) error {
	_, err := c.call(ctx, TagDel, binary.EncodeHandle(node))
	return err
}

func (c *Client) Info(ctx context.Context, node uint32) (*models.NodeInfo, error) {
	return c.callInfo(ctx, TagInfo, binary.EncodeHandle(node))
}

func (c *Client) NodeByName(ctx context.Context, path string) (*models.NodeInfo, error) {
	return c.callInfo(ctx, TagNodeByName, binary.NewWriter().WriteStr(path).Bytes())
}

func (c *Client) Kids(ctx context.Context, node uint32) ([]models.NodeInfo, error) {
	out, err := c.call(ctx, TagKids, binary.EncodeHandle(node))
	if err != nil {
		return nil, err
	}
	return binary.DecodeNodeInfos(out)
}

func (c *Client) Mount(ctx context.Context, path, devName string, devIndex int32, isFile bool) (uint32, error) {
	var file int32
	if isFile {
		file = 1
	}
	body := binary.NewWriter().WriteStr(path).WriteStr(devName).WriteInt(devIndex).WriteInt(file).Bytes()
	return c.callHandle(ctx, TagMount, body)
}

func (c *Client) Unmount(ctx context.Context, node uint32) error {
	_, err := c.call(ctx, TagUnmount, binary.EncodeHandle(node))
	return err
}

// Open resolves path through the namespace server and then opens the node
// in the open-file table. The namespace round trip completes before the
// table is touched.
func (c *Client) Open(ctx context.Context, files *kfile.Table, p kfile.Process, path string, mode kfile.Mode) (int, error) {
	info, err := c.NodeByName(ctx, path)
	if err != nil {
		return -1, err
	}
	return files.Open(p, info, mode)
}
