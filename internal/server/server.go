// Package server runs the namespace server: one goroutine draining a mailbox
// of packages and applying them to the namespace in arrival order. Each
// sender gets its reply on its own channel.
package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/S1riyS/vfsd/internal/metrics"
	"github.com/S1riyS/vfsd/internal/service"
	"github.com/S1riyS/vfsd/pkg/logging"
)

const DefaultMailboxSize = 64

var ErrStopped = errors.New("server: namespace server is not running")

type request struct {
	rid   string
	pkg   Package
	reply chan<- Response
}

type Server struct {
	ns      service.NamespaceService
	metrics *metrics.Metrics

	mailbox chan request
	done    chan struct{}
	stop    sync.Once
}

type Option func(*Server)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

func WithMailboxSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.mailbox = make(chan request, n)
		}
	}
}

func New(ns service.NamespaceService, opts ...Option) *Server {
	s := &Server{
		ns:      ns,
		mailbox: make(chan request, DefaultMailboxSize),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run serves the mailbox until ctx is cancelled. Each request is finished
// before the next one is dequeued.
func (s *Server) Run(ctx context.Context) error {
	const op = "server.Server.Run"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)
	logger.Info("Namespace server started", slog.Int("mailbox", cap(s.mailbox)))
	defer s.stop.Do(func() { close(s.done) })

	for {
		select {
		case <-ctx.Done():
			logger.Info("Namespace server stopped")
			return nil
		case req := <-s.mailbox:
			s.metrics.SetMailboxDepth(len(s.mailbox))

			reqCtx := logging.MakeContextWithRequestID(ctx, req.rid)
			reqCtx = logging.MakeContextWithAttrs(reqCtx,
				slog.Int("pid", int(req.pkg.PID)),
				slog.String("tag", req.pkg.Type.String()),
			)

			start := time.Now()
			resp := s.dispatch(reqCtx, req.pkg)
			s.metrics.ObserveRequest(req.pkg.Type.String(), resp.OK(), time.Since(start).Seconds())

			req.reply <- resp
		}
	}
}

// Call enqueues pkg and waits for its response. Every call carries its own
// reply channel with room for one value, so the loop never blocks on a
// caller that gave up.
func (s *Server) Call(ctx context.Context, pkg Package) (Response, error) {
	reply := make(chan Response, 1)
	req := request{
		rid:   logging.GetRequestIDFromCtx(ctx),
		pkg:   pkg,
		reply: reply,
	}

	select {
	case s.mailbox <- req:
	case <-s.done:
		return Response{}, ErrStopped
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}

	select {
	case resp := <-reply:
		return resp, nil
	case <-s.done:
		return Response{}, ErrStopped
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}
