// Package api provides the HTTP API and the websocket pose stream.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"keyavatar/internal/animation"
	"keyavatar/internal/log"
	"keyavatar/internal/scheduler"
)

// Controller is the part of the scheduler the API drives.
type Controller interface {
	Snapshot() scheduler.Snapshot
	RequestResync()
	RequestMode(name string)
}

// Options configure a Server.
type Options struct {
	Controller Controller
	Token      string
	Version    string
}

// Server provides the HTTP API and the pose stream
type Server struct {
	ctrl    Controller
	token   string
	version string
	id      string
	wsMgr   *WSManager
	logger  *slog.Logger

	mu   sync.Mutex
	http *http.Server
}

// NewServer creates a new API server. The websocket hub starts immediately so
// poses can be published before Start.
func NewServer(opts Options) *Server {
	s := &Server{
		ctrl:    opts.Controller,
		token:   opts.Token,
		version: opts.Version,
		id:      uuid.NewString(),
		logger:  log.Component("api"),
	}
	s.wsMgr = newWSManager(s)
	go s.wsMgr.start()
	return s
}

// Handler returns the routed handler with auth and panic recovery.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/resync", s.handleResync)
	mux.HandleFunc("/api/mode", s.handleMode)
	mux.HandleFunc("/ws", s.wsMgr.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return s.authMiddleware(s.recoverMiddleware(mux))
}

// Start serves on addr until Shutdown. It blocks.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.logger.Error("failed to listen", "addr", addr, "error", err)
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown. It blocks.
func (s *Server) Serve(ln net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.http = server
	s.mu.Unlock()

	s.logger.Info("pose stream listening", "addr", ln.Addr().String())
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("server stopped", "error", err)
		return err
	}
	return nil
}

// Shutdown stops accepting requests and closes every stream client.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	server := s.http
	s.mu.Unlock()

	var err error
	if server != nil {
		err = server.Shutdown(ctx)
	}
	s.wsMgr.stop()
	return err
}

// PublishPose broadcasts a frame to every stream client. It never blocks.
func (s *Server) PublishPose(seq uint64, frame animation.PoseFrame) {
	s.wsMgr.BroadcastPose(seq, time.Now(), frame)
}

// Clients returns the number of connected stream clients.
func (s *Server) Clients() int {
	return s.wsMgr.count()
}

// recoverMiddleware prevents panics from crashing the whole server
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("handler panicked", "path", r.URL.Path, "panic", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authMiddleware checks the API token if configured. Browsers cannot set
// headers on a websocket upgrade, so /ws also accepts ?token=.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)

		// Skip auth for health check
		if r.URL.Path == "/health" || s.token == "" {
			next.ServeHTTP(w, r)
			return
		}

		bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		authorized := ok && s.tokenMatches(bearer)
		if !authorized && r.URL.Path == "/ws" {
			authorized = s.tokenMatches(r.URL.Query().Get("token"))
		}
		if !authorized {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// tokenMatches compares in constant time for equal lengths.
func (s *Server) tokenMatches(got string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) == 1
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.ctrl.Snapshot())
}

// handleResync handles POST /api/resync
func (s *Server) handleResync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.logger.Info("resync requested", "remote", r.RemoteAddr)
	s.ctrl.RequestResync()
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleMode handles GET /api/mode (list) and POST /api/mode?name=<mode>
func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		snap := s.ctrl.Snapshot()
		writeJSON(w, map[string]interface{}{
			"mode":  snap.Mode,
			"modes": snap.Modes,
		})

	case http.MethodPost:
		name := r.URL.Query().Get("name")
		if name == "" {
			http.Error(w, "Missing name parameter", http.StatusBadRequest)
			return
		}
		if !hasMode(s.ctrl.Snapshot().Modes, name) {
			http.Error(w, "Unknown mode", http.StatusNotFound)
			return
		}
		s.logger.Info("mode switch requested", "mode", name, "remote", r.RemoteAddr)
		s.ctrl.RequestMode(name)
		writeJSON(w, map[string]string{"status": "ok", "mode": name})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleHealth handles GET /health (for monitoring)
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func hasMode(modes []string, name string) bool {
	for _, m := range modes {
		if m == name {
			return true
		}
	}
	return false
}
