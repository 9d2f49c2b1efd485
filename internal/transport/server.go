// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QueryMesh Contributors

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/querymesh/querymesh/internal/endpoint"
)

const requestIDHeader = "X-Request-Id"

// Server serves the RPC operations on a local endpoint. It implements
// the service lifecycle: Start blocks serving until Stop is called.
// Whoever binds the endpoint owns its unlink on clean shutdown.
type Server struct {
	name    string
	path    string
	handler Handler

	mu         sync.Mutex
	listener   net.Listener
	httpServer *http.Server
	stopped    bool
}

// NewServer creates an RPC server for the endpoint at path. If the
// handler also implements ManagerHandler the manager-only operations are
// routed; otherwise they are not served.
func NewServer(name, path string, handler Handler) *Server {
	return &Server{
		name:    name,
		path:    path,
		handler: handler,
	}
}

// Name identifies the service.
func (s *Server) Name() string {
	return s.name
}

// Path returns the endpoint path the server binds.
func (s *Server) Path() string {
	return s.path
}

// Start binds the endpoint and serves until Stop.
func (s *Server) Start() error {
	listener, err := endpoint.Listen(s.path)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ping", s.handlePing)
	mux.HandleFunc("/call", s.handleCall)
	mux.HandleFunc("/shutdown", s.handleShutdown)

	if mh, ok := s.handler.(ManagerHandler); ok {
		mux.HandleFunc("/registerExtension", s.handleRegister(mh))
		mux.HandleFunc("/extensions", s.handleExtensions(mh))
		mux.HandleFunc("/options", s.handleOptions(mh))
		mux.HandleFunc("/query", s.handleQuery(mh))
		mux.HandleFunc("/getQueryColumns", s.handleGetQueryColumns(mh))
	}

	httpServer := &http.Server{
		Handler:           requestIDMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		_ = listener.Close()
		s.removeEndpoint()
		return nil
	}
	s.listener = listener
	s.httpServer = httpServer
	s.mu.Unlock()

	if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down and unlinks the endpoint.
func (s *Server) Stop() {
	s.mu.Lock()
	s.stopped = true
	httpServer := s.httpServer
	listener := s.listener
	s.mu.Unlock()

	if httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			slog.Warn("endpoint server shutdown failed",
				"service", s.name,
				"error", err,
			)
		}
	}

	if listener != nil {
		if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			slog.Warn("failed to close endpoint listener",
				"service", s.name,
				"error", err,
			)
		}
	}

	s.removeEndpoint()
}

// removeEndpoint cleans up the socket file. Named pipes vanish with the
// listener, in which case this is a no-op.
func (s *Server) removeEndpoint() {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		slog.Debug("failed to remove endpoint file",
			"service", s.name,
			"path", s.path,
			"error", err,
		)
	}
}

// requestIDMiddleware echoes the caller's request id, minting one when
// absent.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = ulid.Make().String()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.name, s.handler.Ping())
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	if !readJSON(w, r, s.name, &req) {
		return
	}
	writeJSON(w, s.name, s.handler.Call(req.Registry, req.Item, req.Request))
}

func (s *Server) handleShutdown(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.name, Success())

	// Trigger shutdown asynchronously so the response flushes first.
	go s.handler.Shutdown()
}

func (s *Server) handleRegister(mh ManagerHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if !readJSON(w, r, s.name, &req) {
			return
		}
		writeJSON(w, s.name, mh.RegisterExtension(req.Info, req.Broadcast))
	}
}

func (s *Server) handleExtensions(mh ManagerHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, s.name, mh.Extensions())
	}
}

func (s *Server) handleOptions(mh ManagerHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, s.name, mh.Options())
	}
}

func (s *Server) handleQuery(mh ManagerHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req QueryRequest
		if !readJSON(w, r, s.name, &req) {
			return
		}
		writeJSON(w, s.name, mh.Query(req.SQL))
	}
}

func (s *Server) handleGetQueryColumns(mh ManagerHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req QueryRequest
		if !readJSON(w, r, s.name, &req) {
			return
		}
		writeJSON(w, s.name, mh.GetQueryColumns(req.SQL))
	}
}

// readJSON decodes the request body, writing a 400 on failure.
func readJSON(w http.ResponseWriter, r *http.Request, service string, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		slog.Debug("malformed request body",
			"service", service,
			"error", err,
		)
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return false
	}
	return true
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, service string, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to encode response",
			"service", service,
			"error", err,
		)
	}
}
