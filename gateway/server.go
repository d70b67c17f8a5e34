package gateway

import (
	"context"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonwraymond/toolgate/auth"
	"github.com/jonwraymond/toolgate/health"
	"github.com/jonwraymond/toolgate/observe"
	"github.com/jonwraymond/toolgate/resilience"
	"github.com/jonwraymond/toolgate/session"
	"github.com/jonwraymond/toolgate/toolclient"
)

// Routes.
const (
	AuthConfigPath  = "/api/auth/config"
	AuthTokenPath   = "/api/auth/token"
	ToolsPath       = "/api/tools"
	ToolCallPath    = "/api/tools/call"
	SessionCallPath = "/api/sessions/{sessionID}/tools/call"
	MetricsPath     = "/metrics"
)

// Error codes beyond those defined by auth.
const (
	CodeInvalidRequest = "invalid_request"
	CodeUnknownSession = "unknown_session"
	CodeToolCallFailed = "tool_call_failed"
	CodeUnavailable    = "unavailable"
)

// AuthSettings is what GET /api/auth/config reports.
type AuthSettings struct {
	Enabled   bool   `json:"enabled"`
	Authority string `json:"authority"`
	ClientID  string `json:"clientId"`
	Scope     string `json:"scope"`
	TenantID  string `json:"tenantId"`
}

// Options configures a Server.
type Options struct {
	// Auth describes the identity provider. When Auth.Enabled is false no
	// gate is installed.
	Auth AuthSettings

	Tools    *toolclient.Factory
	Sessions *session.Store

	// Bulkhead bounds concurrent tool calls. Default: 64 slots, no waiting.
	Bulkhead *resilience.Bulkhead

	Observe *observe.Middleware
	Health  *health.Aggregator

	// Metrics serves /metrics. Default: promhttp.Handler().
	Metrics http.Handler

	// StaticDir, when set, is served at / and /static/.
	StaticDir string
}

// Server is the gateway HTTP server.
type Server struct {
	opts   Options
	obs    *observe.Middleware
	logger observe.Logger
}

// New creates a Server.
func New(opts Options) *Server {
	if opts.Bulkhead == nil {
		opts.Bulkhead = resilience.NewBulkhead(resilience.BulkheadConfig{MaxConcurrent: 64})
	}
	if opts.Metrics == nil {
		opts.Metrics = promhttp.Handler()
	}
	if opts.Health == nil {
		opts.Health = health.NewAggregator(health.AggregatorConfig{})
	}
	opts.Health.Register("tool_calls", bulkheadChecker(opts.Bulkhead))
	obs := opts.Observe
	if obs == nil {
		obs = observe.NewMiddleware(nil, nil, nil)
	}
	return &Server{opts: opts, obs: obs, logger: obs.Logger()}
}

// bulkheadChecker reports the gateway degraded while every downstream call
// slot is taken.
func bulkheadChecker(b *resilience.Bulkhead) health.Checker {
	return health.CheckerFunc(func(context.Context) health.Result {
		st := b.Stats()
		details := map[string]any{
			"active":   st.Active,
			"max":      st.MaxConcurrent,
			"rejected": st.Rejected,
		}
		if st.Full() {
			return health.Degraded("all tool call slots in use", resilience.ErrBulkheadFull).WithDetails(details)
		}
		return health.Healthy("accepting tool calls").WithDetails(details)
	})
}

// Gate returns the inbound gate with the gateway's public paths
// allow-listed.
func (s *Server) Gate() *auth.Gate {
	return auth.NewGate(auth.GateConfig{
		AllowPaths: []string{
			"/",
			AuthConfigPath,
			health.LivenessPath,
			health.ReadinessPath,
			health.DetailPath,
			MetricsPath,
		},
		AllowPrefixes: []string{"/static/", health.DetailPath + "/"},
		Logger:        s.logger,
	})
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(observe.RequestID)
	r.Use(s.obs.Handler)
	if s.opts.Auth.Enabled {
		r.Use(s.Gate().Middleware)
	}

	r.Get(AuthConfigPath, s.handleAuthConfig)
	r.Post(AuthTokenPath, s.handleStoreToken)
	r.Get(ToolsPath, s.handleListTools)
	r.Post(ToolCallPath, s.handleCallTool)
	r.Post(SessionCallPath, s.handleSessionCallTool)

	health.Mount(r, s.opts.Health)
	r.Handle(MetricsPath, s.opts.Metrics)

	if dir := s.opts.StaticDir; dir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(dir))))
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
		})
	}
	return r
}
