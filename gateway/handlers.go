package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonwraymond/toolgate/auth"
	"github.com/jonwraymond/toolgate/observe"
	"github.com/jonwraymond/toolgate/resilience"
	"github.com/jonwraymond/toolgate/session"
	"github.com/jonwraymond/toolgate/toolclient"
)

const maxBodyBytes = 1 << 20

type storeTokenRequest struct {
	SessionID   string `json:"session_id"`
	AccessToken string `json:"access_token"`
}

type callToolRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type callToolResponse struct {
	Result *mcp.CallToolResult `json:"result"`
}

type listToolsResponse struct {
	Tools []mcp.Tool `json:"tools"`
}

// handleAuthConfig reports every field, configured or empty, whether or not
// auth is enabled.
func (s *Server) handleAuthConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Auth)
}

func (s *Server) handleStoreToken(w http.ResponseWriter, r *http.Request) {
	if s.opts.Sessions == nil {
		auth.WriteError(w, http.StatusServiceUnavailable, CodeUnavailable, "session storage is not configured")
		return
	}

	var req storeTokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.AccessToken == "" {
		auth.WriteError(w, http.StatusBadRequest, CodeInvalidRequest, "access_token is required")
		return
	}

	err := s.opts.Sessions.Put(r.Context(), req.SessionID, req.AccessToken)
	switch {
	case errors.Is(err, session.ErrTokenExpired):
		auth.WriteError(w, http.StatusBadRequest, CodeInvalidRequest, "access_token has expired")
		return
	case err != nil:
		s.logger.Error(r.Context(), "store session token", observe.Field{Key: "error", Value: err})
		auth.WriteError(w, http.StatusServiceUnavailable, CodeUnavailable, "session storage is unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	var tools []mcp.Tool
	err := s.opts.Bulkhead.Execute(r.Context(), func(ctx context.Context) error {
		var err error
		tools, err = s.opts.Tools.Shared().ListTools(ctx)
		return err
	})
	if err != nil {
		s.toolError(w, r, "tools/list", err)
		return
	}
	if tools == nil {
		tools = []mcp.Tool{}
	}
	writeJSON(w, http.StatusOK, listToolsResponse{Tools: tools})
}

func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	s.callTool(w, r, s.opts.Tools.Shared())
}

func (s *Server) handleSessionCallTool(w http.ResponseWriter, r *http.Request) {
	client, err := s.opts.Tools.ForSession(r.Context(), chi.URLParam(r, "sessionID"))
	switch {
	case errors.Is(err, session.ErrUnknownSession):
		auth.WriteError(w, http.StatusNotFound, CodeUnknownSession, "no token is stored for this session")
		return
	case err != nil:
		s.logger.Error(r.Context(), "load session token", observe.Field{Key: "error", Value: err})
		auth.WriteError(w, http.StatusServiceUnavailable, CodeUnavailable, "session storage is unavailable")
		return
	}
	s.callTool(w, r, client)
}

// callTool runs one tool call with the request's context, so the
// credential bound to it travels with the outbound requests.
func (s *Server) callTool(w http.ResponseWriter, r *http.Request, client *toolclient.Client) {
	var req callToolRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		auth.WriteError(w, http.StatusBadRequest, CodeInvalidRequest, "name is required")
		return
	}

	var result *mcp.CallToolResult
	err := s.opts.Bulkhead.Execute(r.Context(), func(ctx context.Context) error {
		return s.obs.Track(ctx, req.Name, trace.SpanKindClient, func(ctx context.Context) error {
			var err error
			result, err = client.CallTool(ctx, req.Name, req.Arguments)
			return err
		})
	})
	if err != nil {
		s.toolError(w, r, req.Name, err)
		return
	}
	writeJSON(w, http.StatusOK, callToolResponse{Result: result})
}

func (s *Server) toolError(w http.ResponseWriter, r *http.Request, tool string, err error) {
	if errors.Is(err, resilience.ErrBulkheadFull) {
		auth.WriteError(w, http.StatusServiceUnavailable, CodeUnavailable, "too many concurrent tool calls")
		return
	}
	s.logger.Warn(r.Context(), "tool call failed",
		observe.Field{Key: "tool", Value: tool},
		observe.Field{Key: "error", Value: err},
	)
	auth.WriteError(w, http.StatusBadGateway, CodeToolCallFailed, "the tool server call failed")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		auth.WriteError(w, http.StatusBadRequest, CodeInvalidRequest, "request body must be a JSON object")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
