package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/skosovsky/toolpipe"
)

type toolCallsRequest struct {
	ToolCalls []toolpipe.ToolCallRequest `json:"tool_calls"`
}

type toolCallsResponse struct {
	Results []toolpipe.ToolCallResult `json:"results"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "tools": s.reg.Len()})
}

func (s *Server) listTools(w http.ResponseWriter, r *http.Request) {
	var tools []toolpipe.ToolDefinition
	if tag := r.URL.Query().Get("tag"); tag != "" {
		tools = s.reg.GetTools(toolpipe.HasTag(tag))
	} else {
		tools = s.reg.GetAllTools()
	}
	if tools == nil {
		tools = []toolpipe.ToolDefinition{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": tools, "meta": map[string]int{"total": len(tools)}})
}

func (s *Server) getTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	def, ok := s.reg.GetTool(name)
	if !ok {
		writeError(w, http.StatusNotFound, "tool not found: "+name)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// validateTools always answers 200 with the report; Valid carries the verdict.
func (s *Server) validateTools(w http.ResponseWriter, r *http.Request) {
	provider := strings.TrimSpace(r.URL.Query().Get("provider"))
	if provider == "" {
		provider = s.provider
	}
	writeJSON(w, http.StatusOK, s.reg.ValidateToolsForProvider(provider))
}

func (s *Server) executeToolCalls(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req toolCallsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for i, tc := range req.ToolCalls {
		if strings.TrimSpace(tc.CallID) == "" || strings.TrimSpace(tc.Name) == "" {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("tool_calls[%d]: call_id and name are required", i))
			return
		}
	}
	results := s.exec.ExecuteToolCalls(r.Context(), req.ToolCalls)
	writeJSON(w, http.StatusOK, toolCallsResponse{Results: results})
}
