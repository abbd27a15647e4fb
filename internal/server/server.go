// Package server exposes the daemon's HTTP API and the WebSocket event feed
// consumed by the browser shell.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/user/foundry/internal/pipeline"
	"github.com/user/foundry/internal/preview"
	"github.com/user/foundry/internal/state"
	"github.com/user/foundry/internal/types"
	"github.com/user/foundry/internal/workspace"
)

// Server is the HTTP handler for the shell API.
type Server struct {
	runner   *pipeline.Runner
	messages types.MessageStore
	tasks    types.TaskStore
	trees    types.WorkspaceStore
	previews *preview.Manager
	settings *state.SettingsStore
	hub      *Hub
	tail     int
	mux      *http.ServeMux
}

// NewServer creates a Server wired to the given collaborators. messageTail
// is the default message count served when the caller sends no limit.
func NewServer(
	runner *pipeline.Runner,
	messages types.MessageStore,
	tasks types.TaskStore,
	trees types.WorkspaceStore,
	previews *preview.Manager,
	settings *state.SettingsStore,
	hub *Hub,
	messageTail int,
) *Server {
	if messageTail <= 0 {
		messageTail = 200
	}
	s := &Server{
		runner:   runner,
		messages: messages,
		tasks:    tasks,
		trees:    trees,
		previews: previews,
		settings: settings,
		hub:      hub,
		tail:     messageTail,
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("POST /api/handoff/resume", s.handleResume)
	s.mux.HandleFunc("GET /api/messages", s.handleMessages)
	s.mux.HandleFunc("GET /api/tasks", s.handleTasks)
	s.mux.HandleFunc("GET /api/workspace", s.handleWorkspace)
	s.mux.HandleFunc("PUT /api/workspace/files/{name}", s.handleWriteFile)
	s.mux.HandleFunc("GET /api/preview", s.handlePreview)
	s.mux.HandleFunc("GET /api/settings/{key}", s.handleGetSetting)
	s.mux.HandleFunc("PUT /api/settings/{key}", s.handleSetSetting)
	s.mux.HandleFunc("GET /ws", s.handleWS)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]string{"status": "ok"})
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	Text      string           `json:"text"`
	ImageData string           `json:"image_data,omitempty"`
	Options   types.RunOptions `json:"options"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	err := s.runner.Submit(r.Context(), req.Text, req.ImageData, req.Options)
	switch {
	case errors.Is(err, pipeline.ErrBusy):
		http.Error(w, `{"error":"a run is already in flight"}`, http.StatusConflict)
		return
	case errors.Is(err, pipeline.ErrEmptyRequest):
		http.Error(w, `{"error":"request needs text or an image"}`, http.StatusBadRequest)
		return
	case err != nil:
		// Credential failures and the like were already surfaced as system
		// messages; report them to the caller too.
		http.Error(w, `{"error":`+strconv.Quote(err.Error())+`}`, http.StatusUnprocessableEntity)
		return
	}

	writeStatus(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	err := s.runner.Resume(r.Context())
	switch {
	case errors.Is(err, pipeline.ErrNoHandoff):
		http.Error(w, `{"error":"no pending hand-off"}`, http.StatusNotFound)
		return
	case errors.Is(err, pipeline.ErrBusy):
		http.Error(w, `{"error":"a run is already in flight"}`, http.StatusConflict)
		return
	case err != nil:
		slog.Error("resume failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	writeStatus(w, http.StatusAccepted, map[string]string{"status": "resumed"})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	limit := s.tail
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}

	msgs, err := s.messages.Tail(r.Context(), limit)
	if err != nil {
		slog.Error("tail messages failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if msgs == nil {
		msgs = []*types.ChatMessage{}
	}
	writeOK(w, msgs)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.List(r.Context())
	if err != nil {
		slog.Error("list tasks failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if tasks == nil {
		tasks = []*types.AgentTask{}
	}
	writeOK(w, tasks)
}

// workspaceResponse pairs the tree with the runner's active file so the shell
// can restore the open editor tab.
type workspaceResponse struct {
	Root       *types.FileNode `json:"root"`
	ActiveFile string          `json:"active_file,omitempty"`
	Processing bool            `json:"processing"`
	Phase      pipeline.Phase  `json:"phase"`
}

func (s *Server) handleWorkspace(w http.ResponseWriter, r *http.Request) {
	root, err := s.trees.Load(r.Context())
	if err != nil {
		slog.Error("load workspace failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	writeOK(w, workspaceResponse{
		Root:       root,
		ActiveFile: s.runner.ActiveFile(),
		Processing: s.runner.Processing(),
		Phase:      s.runner.Phase(),
	})
}

// fileWriteRequest is the JSON body for PUT /api/workspace/files/{name}.
type fileWriteRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		http.Error(w, `{"error":"file name required"}`, http.StatusBadRequest)
		return
	}

	var req fileWriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	root, err := s.trees.Load(r.Context())
	if err != nil {
		slog.Error("load workspace failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	file := workspace.NewFile(name, req.Content)
	file.New = false
	updated := workspace.Upsert(root, file)
	if err := s.trees.Replace(r.Context(), updated); err != nil {
		slog.Error("persist workspace failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	// Editor keystrokes regenerate the preview after the debounce window.
	s.previews.Schedule(file)
	s.hub.Broadcast(pipeline.Event{Type: "workspace", Payload: updated})

	writeOK(w, map[string]string{"status": "saved"})
}

// previewResponse is the shell's iframe contract: document, the exact
// sandbox attribute to apply, and the state snapshot.
type previewResponse struct {
	Doc       string            `json:"doc"`
	Sandbox   string            `json:"sandbox"`
	Snapshot  map[string]string `json:"snapshot,omitempty"`
	HasUpdate bool              `json:"has_update"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	st := s.previews.State()
	writeOK(w, previewResponse{
		Doc:       st.CurrentDoc,
		Sandbox:   preview.SandboxAttr,
		Snapshot:  st.Snapshot,
		HasUpdate: st.CurrentDoc != "" && st.CurrentDoc != st.PreviousDoc,
	})
}

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	value, err := s.settings.Get(r.Context(), key)
	if err != nil {
		slog.Error("read setting failed", "key", key, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	writeOK(w, map[string]string{"key": key, "value": value})
}

// settingWriteRequest is the JSON body for PUT /api/settings/{key}.
type settingWriteRequest struct {
	Value string `json:"value"`
}

func (s *Server) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	var req settingWriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	if err := s.settings.Set(r.Context(), key, req.Value); err != nil {
		slog.Error("write setting failed", "key", key, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	writeOK(w, map[string]string{"status": "saved"})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if err := s.hub.Add(w, r); err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
	}
}

func writeOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
