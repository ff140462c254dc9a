// Package mcptest provides an in-process stand-in for the MCP REST server.
package mcptest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"

	"github.com/amarbel-llc/mcpbridge/internal/protocol"
)

// CommandFunc produces the reply for one command. A non-zero status overrides 200.
type CommandFunc func(cmd protocol.Command) (status int, body any)

// Recorded is a request the server received.
type Recorded struct {
	Method    string
	Path      string
	RequestID string
	Command   protocol.Command
}

type Server struct {
	*httptest.Server

	mu       sync.Mutex
	commands map[string]CommandFunc
	status   CommandFunc
	requests []Recorded
}

// NewServer starts a server that answers like the demo MCP server: every
// command succeeds and import_asset reports asset_info.
func NewServer() *Server {
	s := &Server{commands: make(map[string]CommandFunc)}
	s.Server = httptest.NewServer(s.routes())
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/api/blender/command", s.handleCommand(protocol.TargetBlender))
	mux.HandleFunc("/api/unreal/command", s.handleCommand(protocol.TargetUnreal))
	mux.HandleFunc("/api/ai/generate", s.handleGenerate)
	return mux
}

// Handle overrides the reply for target/command, e.g. Handle("unreal", "import_asset", fn).
func (s *Server) Handle(target protocol.Target, command string, fn CommandFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands[string(target)+"/"+command] = fn
}

// HandleStatus overrides the /status reply.
func (s *Server) HandleStatus(fn CommandFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = fn
}

func (s *Server) Requests() []Recorded {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Recorded, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *Server) record(r *http.Request, cmd protocol.Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, Recorded{
		Method:    r.Method,
		Path:      r.URL.Path,
		RequestID: r.Header.Get("X-Request-ID"),
		Command:   cmd,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	s.record(r, protocol.Command{})

	s.mu.Lock()
	fn := s.status
	s.mu.Unlock()
	if fn != nil {
		status, body := fn(protocol.Command{})
		reply(w, status, body)
		return
	}

	writeJSON(w, http.StatusOK, protocol.Status{
		Status:  protocol.StatusRunning,
		Version: "1.0.0",
		AI:      protocol.AIStatus{Provider: "mock", Model: "gpt-4", Status: "mock mode"},
		Blender: protocol.AppStatus{Enabled: true, Status: "connected"},
		Unreal:  protocol.AppStatus{Enabled: true, Status: "connected"},
	})
}

func (s *Server) handleCommand(target protocol.Target) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}

		var cmd protocol.Command
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil || cmd.Command == "" {
			s.record(r, cmd)
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "command is required"})
			return
		}
		s.record(r, cmd)

		s.mu.Lock()
		fn := s.commands[string(target)+"/"+cmd.Command]
		s.mu.Unlock()
		if fn != nil {
			status, body := fn(cmd)
			reply(w, status, body)
			return
		}

		writeJSON(w, http.StatusOK, defaultReply(cmd))
	}
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req protocol.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "prompt is required"})
		return
	}
	s.record(r, protocol.Command{Command: "generate", Params: map[string]any{"prompt": req.Prompt, "type": req.Type}})

	writeJSON(w, http.StatusOK, protocol.GenerateResponse{
		Status:   protocol.StatusSuccess,
		Type:     req.Type,
		Provider: "mock",
		Result:   map[string]any{"text": fmt.Sprintf("mock content for %q", req.Prompt)},
	})
}

func defaultReply(cmd protocol.Command) map[string]any {
	result := map[string]any{
		"message": fmt.Sprintf("command %q executed", cmd.Command),
		"data":    cmd.Params,
	}

	if cmd.Command == "import_asset" {
		file, _ := cmd.Params["path"].(string)
		dest, _ := cmd.Params["destination"].(string)
		base := path.Base(strings.ReplaceAll(file, "\\", "/"))
		result["asset_info"] = map[string]any{
			"path": dest,
			"name": strings.TrimSuffix(base, path.Ext(base)),
		}
	}

	return map[string]any{
		"status":  protocol.StatusSuccess,
		"command": cmd.Command,
		"result":  result,
	}
}

func reply(w http.ResponseWriter, status int, body any) {
	if status == 0 {
		status = http.StatusOK
	}
	if raw, ok := body.(string); ok {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(raw))
		return
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
