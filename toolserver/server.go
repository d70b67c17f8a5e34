package toolserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonwraymond/toolgate/auth"
	"github.com/jonwraymond/toolgate/health"
	"github.com/jonwraymond/toolgate/observe"
)

// MCPPath is where the MCP endpoint is mounted.
const MCPPath = "/mcp"

// Options configures a Server.
type Options struct {
	Name    string
	Version string

	// Verifier authenticates every MCP request. Nil disables authentication.
	Verifier *auth.Verifier

	// Authorizer decides per tool call. Default: auth.AllowAllAuthorizer.
	Authorizer auth.Authorizer

	// Observe instruments requests and tool calls. Default: no-op.
	Observe *observe.Middleware

	// Health is mounted at the health paths when set.
	Health *health.Aggregator
}

// Server is the tool server.
type Server struct {
	opts Options
	mcp  *server.MCPServer
	obs  *observe.Middleware
}

// New creates a Server with the whoami and check_scope tools registered.
func New(opts Options) *Server {
	if opts.Name == "" {
		opts.Name = "toolgate-tools"
	}
	if opts.Authorizer == nil {
		opts.Authorizer = auth.AllowAllAuthorizer{}
	}
	obs := opts.Observe
	if obs == nil {
		obs = observe.NewMiddleware(nil, nil, nil)
	}

	s := &Server{opts: opts, obs: obs}
	s.mcp = server.NewMCPServer(opts.Name, opts.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithToolHandlerMiddleware(s.instrument),
	)
	s.mcp.AddTool(whoamiTool, whoami)
	s.mcp.AddTool(checkScopeTool, checkScope)
	return s
}

// MCP returns the underlying MCP server, for registering more tools.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// Handler returns the HTTP handler: /mcp plus health routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(observe.RequestID)
	r.Use(s.obs.Handler)

	if s.opts.Health != nil {
		health.Mount(r, s.opts.Health)
	}

	var endpoint http.Handler = server.NewStreamableHTTPServer(s.mcp, server.WithStateLess(true))
	if s.opts.Verifier != nil {
		endpoint = auth.RequireIdentity(s.opts.Verifier, s.obs.Logger())(endpoint)
	}
	r.Handle(MCPPath, endpoint)
	return r
}

// instrument authorizes and tracks every tool call.
func (s *Server) instrument(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name := req.Params.Name
		err := s.opts.Authorizer.Authorize(ctx, &auth.AuthzRequest{
			Subject: auth.IdentityFromContext(ctx),
			Tool:    name,
		})
		if errors.Is(err, auth.ErrForbidden) {
			s.obs.Logger().Warn(ctx, "tool call denied",
				observe.Field{Key: "tool", Value: name},
				observe.Field{Key: "client_id", Value: auth.ClientIDFromContext(ctx)},
				observe.Field{Key: "error", Value: err},
			)
			return mcp.NewToolResultError("forbidden: " + name), nil
		}
		if err != nil {
			return nil, err
		}

		var result *mcp.CallToolResult
		err = s.obs.Track(ctx, name, trace.SpanKindServer, func(ctx context.Context) error {
			var err error
			result, err = next(ctx, req)
			return err
		})
		return result, err
	}
}
