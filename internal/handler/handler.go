package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/S1riyS/vfsd/internal/pkg/kerrors"
	"github.com/S1riyS/vfsd/internal/proc"
	"github.com/S1riyS/vfsd/internal/server"
	"github.com/S1riyS/vfsd/pkg/binary"
	"github.com/S1riyS/vfsd/pkg/logging"
	"github.com/S1riyS/vfsd/pkg/logging/slogext"
)

// maxPayload bounds request bodies; the largest legal payload is a MOUNT
// with two bounded strings.
const maxPayload = 4096

type Handler struct {
	server  *server.Server
	procs   *proc.Table
	timeout time.Duration
}

func NewHandler(srv *server.Server, procs *proc.Table, timeout time.Duration) *Handler {
	return &Handler{server: srv, procs: procs, timeout: timeout}
}

func parsePID(r *http.Request) (int32, bool) {
	pid, err := strconv.ParseInt(r.URL.Query().Get("pid"), 10, 32)
	if err != nil || pid <= 0 {
		return 0, false
	}
	return int32(pid), true
}

// HandleVFS forwards one namespace request. The tag comes from the path, the
// sender from the pid query parameter and the body is the raw payload.
func (h *Handler) HandleVFS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	const op = "handler.HandleVFS"

	logger := logging.GetLoggerFromContextWithOp(ctx, op)

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tag, ok := server.ParseTag(r.PathValue("op"))
	if !ok {
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}

	pid, ok := parsePID(r)
	if !ok {
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayload+1))
	if err != nil || len(body) > maxPayload {
		logger.Warn("Cannot read payload", slog.Int("len", len(body)), slogext.Err(err))
		binary.WriteResponse(w, kerrors.EINVAL_NEG, nil)
		return
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	resp, err := h.server.Call(ctx, server.Package{PID: pid, Type: tag, Body: body})
	if err != nil {
		logger.Error("Namespace server call failed", slogext.Err(err), slog.String("tag", tag.String()))
		if errors.Is(err, server.ErrStopped) {
			http.Error(w, "namespace server is not running", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "namespace server timeout", http.StatusGatewayTimeout)
		return
	}

	if !resp.OK() {
		binary.WriteResponse(w, -resp.Errno, nil)
		return
	}
	binary.WriteResponse(w, 0, resp.Body)
}

// HandleProcs lists the processes visible to the caller.
func (h *Handler) HandleProcs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	const op = "handler.HandleProcs"

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	pid, ok := parsePID(r)
	if !ok {
		http.Error(w, "bad pid", http.StatusBadRequest)
		return
	}

	procs, err := h.procs.List(pid)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(procs); err != nil {
		logger := logging.GetLoggerFromContextWithOp(ctx, op)
		logger.Warn("Failed to write process list", slogext.Err(err))
	}
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	response := `{"status":"ok","service":"vfsd"}`
	w.Write([]byte(response))
}
