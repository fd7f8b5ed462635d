package ws

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agent-pulse/backend/internal/config"
	"github.com/agent-pulse/backend/internal/locator"
	"github.com/agent-pulse/backend/internal/monitor"
)

type Server struct {
	config      *config.Config
	ctrl        *monitor.Controller
	broadcaster *Broadcaster
}

func NewServer(cfg *config.Config, ctrl *monitor.Controller, broadcaster *Broadcaster) *Server {
	return &Server{
		config:      cfg,
		ctrl:        ctrl,
		broadcaster: broadcaster,
	}
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/pin", s.handlePin)
	mux.HandleFunc("/api/session", s.handleSession)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}

	log.Printf("WebSocket client connected: %s", r.RemoteAddr)
	c := s.broadcaster.AddClient(conn)

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			log.Printf("WebSocket client disconnected: %s", r.RemoteAddr)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(SnapshotPayload{
		Stats:  s.ctrl.Snapshot(),
		State:  s.ctrl.State().String(),
		Pinned: s.ctrl.Pinned(),
	})
}

// SessionInfo is one row of the /api/sessions listing.
type SessionInfo struct {
	Path     string    `json:"path"`
	ID       string    `json:"id"`
	Modified time.Time `json:"modified"`
	Size     int64     `json:"size"`
	Active   bool      `json:"active"`
	Current  bool      `json:"current"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	dir := s.ctrl.SessionDir()
	current := s.ctrl.SessionPath()
	threshold := s.config.Monitor.ActiveSessionThreshold

	var infos []SessionInfo
	for _, path := range locator.FindAllSessions(dir) {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		infos = append(infos, SessionInfo{
			Path:     path,
			ID:       locator.SessionID(path),
			Modified: info.ModTime(),
			Size:     info.Size(),
			Active:   time.Since(info.ModTime()) < threshold,
			Current:  path == current,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(infos)
}

func (s *Server) handlePin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	pinned := s.ctrl.TogglePin()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"pinned": pinned})
}

type sessionRequest struct {
	// Path switches to a specific session file.
	Path string `json:"path"`
	// Dir overrides workspace-based discovery with a custom directory.
	Dir string `json:"dir"`
}

// handleSession switches sessions. POST with {"path": ...} attaches that
// file; POST with {"dir": ...} sets a persisted custom directory; DELETE
// clears the custom directory.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req sessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		switch {
		case req.Path != "":
			if _, err := os.Stat(req.Path); err != nil {
				http.Error(w, "session file not found", http.StatusNotFound)
				return
			}
			s.ctrl.SwitchToSession(req.Path)
		case req.Dir != "":
			s.ctrl.StartWithCustomPath(req.Dir)
		default:
			http.Error(w, "path or dir required", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		s.ctrl.ClearCustomPath()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// checkOrigin allows same-host and loopback origins. The daemon binds to
// loopback by default, so anything else is a cross-site request.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}
	if host == r.Host {
		return true
	}
	if strings.HasPrefix(host, "localhost:") || host == "localhost" {
		return true
	}
	if strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" {
		return true
	}
	if strings.HasPrefix(host, "[::1]:") || host == "::1" {
		return true
	}

	return false
}

func ListenAndServe(host string, port int, mux *http.ServeMux) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	log.Printf("Server listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
