// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NFive Contributors

// Package control provides an HTTP control socket for operating a running
// server: health, boot status, console commands and shutdown.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/nfive/server/internal/boot"
	"github.com/nfive/server/internal/reload"
	"github.com/nfive/server/internal/xdg"
)

// SocketName is the file name of the control socket inside the runtime directory.
const SocketName = "nfive.sock"

// HealthResponse is returned by the /health endpoint.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// StatusResponse is returned by the /status endpoint.
type StatusResponse struct {
	Running       bool        `json:"running"`
	PID           int         `json:"pid"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	Boot          boot.Status `json:"boot"`
}

// RconRequest is the body of a /rcon call.
type RconRequest struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// RconResponse reports whether any handler consumed the command.
type RconResponse struct {
	Handled bool `json:"handled"`
}

// ShutdownResponse is returned by the /shutdown endpoint.
type ShutdownResponse struct {
	Message string `json:"message"`
}

// StatusSource reports boot progress.
type StatusSource interface {
	Status() boot.Status
	Ready() bool
}

// Dispatcher delivers raw host events.
type Dispatcher interface {
	Trigger(ctx context.Context, name, source string, args ...any) (bool, error)
}

// HealthChecker is a named dependency probed by /health.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// Deps wires the server to the running process.
type Deps struct {
	Boot StatusSource
	Host Dispatcher
	// Checkers is evaluated on every /health call, so it may grow after boot.
	Checkers func() []HealthChecker
	Shutdown func()
	Logger   *slog.Logger
}

// Server runs HTTP over a Unix socket for process management.
type Server struct {
	deps       Deps
	logger     *slog.Logger
	startTime  time.Time
	socketPath string
	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// SocketPath returns the default control socket path.
func SocketPath() (string, error) {
	dir, err := xdg.RuntimeDir()
	if err != nil {
		return "", oops.Code("CONTROL_SOCKET_PATH").Wrapf(err, "get runtime directory")
	}
	return filepath.Join(dir, SocketName), nil
}

// NewServer creates a control server that will listen on socketPath.
func NewServer(socketPath string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		deps:       deps,
		logger:     logger.With("component", "control"),
		startTime:  time.Now(),
		socketPath: socketPath,
	}
	s.running.Store(true)
	return s
}

// Handler returns the control routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /rcon", s.handleRcon)
	mux.HandleFunc("POST /shutdown", s.handleShutdown)
	return mux
}

// Start begins listening on the Unix socket.
func (s *Server) Start() error {
	if err := xdg.EnsureDir(filepath.Dir(s.socketPath)); err != nil {
		return oops.Code("CONTROL_LISTEN_FAILED").Wrapf(err, "create runtime directory")
	}

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return oops.Code("CONTROL_LISTEN_FAILED").With("path", s.socketPath).Wrapf(err, "remove existing socket")
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return oops.Code("CONTROL_LISTEN_FAILED").With("path", s.socketPath).Wrapf(err, "listen on socket")
	}
	s.listener = listener

	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		_ = listener.Close()
		return oops.Code("CONTROL_LISTEN_FAILED").With("path", s.socketPath).Wrapf(err, "set socket permissions")
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("control socket server error", "error", err)
		}
	}()

	s.logger.Info("control socket listening", "path", s.socketPath)
	return nil
}

// Stop gracefully shuts down the control socket server.
func (s *Server) Stop(ctx context.Context) error {
	s.running.Store(false)

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return oops.Code("CONTROL_SHUTDOWN_FAILED").Wrapf(err, "shutdown http server")
		}
	}

	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Warn("failed to close control socket listener", "error", err)
		}
	}

	if s.httpServer != nil {
		if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove control socket file", "path", s.socketPath, "error", err)
		}
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK

	if s.deps.Boot != nil && !s.deps.Boot.Ready() {
		resp.Status = "starting"
		code = http.StatusServiceUnavailable
	}

	var checkers []HealthChecker
	if s.deps.Checkers != nil {
		checkers = s.deps.Checkers()
	}
	if len(checkers) > 0 {
		resp.Checks = make(map[string]string, len(checkers))
		for _, c := range checkers {
			if err := c.Check(r.Context()); err != nil {
				resp.Checks[c.Name()] = err.Error()
				resp.Status = "unhealthy"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[c.Name()] = "ok"
		}
	}

	s.write(w, code, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Running:       s.running.Load(),
		PID:           os.Getpid(),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	}
	if s.deps.Boot != nil {
		resp.Boot = s.deps.Boot.Status()
	}
	s.write(w, http.StatusOK, resp)
}

func (s *Server) handleRcon(w http.ResponseWriter, r *http.Request) {
	if s.deps.Host == nil {
		http.Error(w, "no host", http.StatusServiceUnavailable)
		return
	}

	var req RconRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Command == "" {
		http.Error(w, "command is required", http.StatusBadRequest)
		return
	}

	args := make([]any, 0, len(req.Args)+1)
	args = append(args, req.Command)
	for _, a := range req.Args {
		args = append(args, a)
	}

	handled, err := s.deps.Host.Trigger(r.Context(), reload.Event, "control", args...)
	if err != nil {
		s.logger.Warn("console command failed", "command", req.Command, "error", err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	s.write(w, http.StatusOK, RconResponse{Handled: handled})
}

func (s *Server) handleShutdown(w http.ResponseWriter, _ *http.Request) {
	s.write(w, http.StatusOK, ShutdownResponse{Message: "shutdown initiated"})
	if s.deps.Shutdown != nil {
		go s.deps.Shutdown()
	}
}

func (s *Server) write(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to write control response", "error", err)
	}
}
