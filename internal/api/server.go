// Package api provides the operational HTTP API for the gateway daemon:
// liveness and readiness probes, server management, and buffered log access.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/mcpgate/mcpgate/pkg/logging"
	"github.com/mcpgate/mcpgate/pkg/registry"
	"github.com/mcpgate/mcpgate/pkg/store"
)

// Server provides the operational API for mcpgate.
type Server struct {
	registry       *registry.Registry
	logBuffer      *logging.RingBuffer
	logger         *slog.Logger
	authToken      string
	allowedOrigins []string
}

// NewServer creates the API server around a registry.
func NewServer(reg *registry.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Server{registry: reg, logger: logger}
}

// SetLogBuffer sets the ring buffer served by /api/logs.
func (s *Server) SetLogBuffer(buffer *logging.RingBuffer) {
	s.logBuffer = buffer
}

// SetAuth configures bearer-token authentication. When set, all requests
// except /health and /ready must carry the token.
func (s *Server) SetAuth(token string) {
	s.authToken = token
}

// SetAllowedOrigins sets the CORS allowed origins.
func (s *Server) SetAllowedOrigins(origins []string) {
	s.allowedOrigins = origins
}

// Handler returns the main HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/api/servers", s.handleServers)
	mux.HandleFunc("/api/servers/", s.handleServerAction)
	mux.HandleFunc("/api/logs", s.handleLogs)

	handler := authMiddleware(s.authToken, mux)
	return corsMiddleware(s.allowedOrigins, handler)
}

// handleHealth is the liveness check. It answers as long as the daemon is
// serving requests, regardless of MCP server state.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady is the readiness check. It reports 503 until every enabled
// server has a connected driver.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	healths, err := s.registry.ListHealth(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	for _, h := range healths {
		if h.Disabled {
			continue
		}
		if !h.Connected {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("server not connected: " + h.ID))
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleServers lists server health on GET and registers a server on POST.
func (s *Server) handleServers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		healths, err := s.registry.ListHealth(r.Context())
		if err != nil {
			writeJSONError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, healths)
	case http.MethodPost:
		var spec store.ServerSpec
		if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
			writeJSONError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if spec.ID == "" || spec.Type == "" {
			writeJSONError(w, "id and type are required", http.StatusBadRequest)
			return
		}
		if err := s.registry.Register(r.Context(), &spec); err != nil {
			writeJSONError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, map[string]string{"id": spec.ID})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleServerAction routes per-server requests.
// URL pattern: /api/servers/{id}[/{action}]
func (s *Server) handleServerAction(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/servers/")
	parts := strings.Split(path, "/")
	if parts[0] == "" {
		http.Error(w, "Invalid path: expected /api/servers/{id}", http.StatusBadRequest)
		return
	}
	id := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.handleServerHealth(w, r, id)
		case http.MethodDelete:
			s.handleServerDelete(w, r, id)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	switch parts[1] {
	case "reconnect":
		s.handleServerReconnect(w, r, id)
	case "disable":
		s.handleServerDisable(w, r, id)
	default:
		http.Error(w, "Unknown action: "+parts[1], http.StatusBadRequest)
	}
}

func (s *Server) handleServerHealth(w http.ResponseWriter, r *http.Request, id string) {
	h, err := s.registry.Health(r.Context(), id)
	if err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, h)
}

func (s *Server) handleServerDelete(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.registry.Unregister(r.Context(), id); err != nil {
		writeRegistryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleServerReconnect(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.registry.Reconnect(r.Context(), id); err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "reconnected", "id": id})
}

func (s *Server) handleServerDisable(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.registry.DisableServer(r.Context(), id); err != nil {
		writeRegistryError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "disabled", "id": id})
}

// handleLogs serves recent buffered log entries. Query params: lines
// (default 100) and level (comma-separated filter).
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.logBuffer == nil {
		writeJSON(w, []logging.Entry{})
		return
	}

	lines := 100
	if linesParam := r.URL.Query().Get("lines"); linesParam != "" {
		if n, err := strconv.Atoi(linesParam); err == nil && n > 0 {
			lines = n
		}
	}

	entries := s.logBuffer.Recent(lines)

	if levelParam := r.URL.Query().Get("level"); levelParam != "" {
		levels := make(map[string]bool)
		for _, l := range strings.Split(levelParam, ",") {
			levels[strings.ToUpper(strings.TrimSpace(l))] = true
		}

		filtered := make([]logging.Entry, 0, len(entries))
		for _, entry := range entries {
			if levels[strings.ToUpper(entry.Level)] {
				filtered = append(filtered, entry)
			}
		}
		entries = filtered
	}

	writeJSON(w, entries)
}

// writeRegistryError maps registry errors to HTTP status codes.
func writeRegistryError(w http.ResponseWriter, err error) {
	var notFound *registry.ServerNotFoundError
	if errors.As(err, &notFound) {
		writeJSONError(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSONError(w, err.Error(), http.StatusInternalServerError)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// corsMiddleware adds CORS headers based on allowed origins.
func corsMiddleware(allowedOrigins []string, next http.Handler) http.Handler {
	originSet := make(map[string]bool, len(allowedOrigins))
	allowAll := false
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		originSet[o] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowAll || originSet[origin]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
