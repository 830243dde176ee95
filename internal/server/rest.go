package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/haasonsaas/agentd/pkg/models"
)

type uploadRequest struct {
	SessionID string `json:"session_id"`
	File      struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	} `json:"file"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleUpload stores a client file under the session's uploads directory.
// Data URLs are decoded to binary; everything else is written as text.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	if req.SessionID == "" || req.File.Path == "" {
		writeError(w, http.StatusBadRequest, "session_id and file.path are required")
		return
	}

	uploadsDir := filepath.Join(s.cfg.WorkspaceRoot, req.SessionID, "uploads")
	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error saving file: %v", err))
		return
	}

	name := filepath.Base(req.File.Path)
	target := uniquePath(uploadsDir, name)

	data, err := decodeUpload(req.File.Content)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Error decoding file content: %v", err))
		return
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error saving file: %v", err))
		return
	}

	relPath := "/uploads/" + filepath.Base(target)
	event := models.NewEvent(models.EventUploadSuccess, map[string]any{
		"file": map[string]any{"path": relPath, "saved_path": target},
	})
	if err := s.store.AppendEvent(r.Context(), req.SessionID, event); err != nil {
		s.logger.Warn("persist upload event", "error", err, "session_id", req.SessionID)
	}

	s.logger.Info("file uploaded", "session_id", req.SessionID, "path", target)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "File uploaded successfully",
		"file":    map[string]any{"path": relPath, "saved_path": target},
	})
}

// uniquePath appends _1, _2, ... before the extension until the name is
// free in dir.
func uniquePath(dir, name string) string {
	target := filepath.Join(dir, name)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		if _, err := os.Stat(target); os.IsNotExist(err) {
			return target
		}
		target = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, n, ext))
	}
}

func decodeUpload(content string) ([]byte, error) {
	if strings.HasPrefix(content, "data:") {
		_, b64, ok := strings.Cut(content, "base64,")
		if !ok {
			return nil, fmt.Errorf("unsupported data URL encoding")
		}
		return base64.StdEncoding.DecodeString(b64)
	}
	return []byte(content), nil
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("device_id")
	sessions, err := s.store.SessionsByDevice(r.Context(), deviceID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error fetching sessions: %v", err))
		return
	}
	if sessions == nil {
		sessions = []models.SessionSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	events, err := s.store.EventsBySession(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error fetching events: %v", err))
		return
	}
	if events == nil {
		events = []models.EventRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
