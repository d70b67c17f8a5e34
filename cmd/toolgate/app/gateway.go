package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonwraymond/toolgate/auth"
	"github.com/jonwraymond/toolgate/gateway"
	"github.com/jonwraymond/toolgate/health"
	"github.com/jonwraymond/toolgate/observe"
	"github.com/jonwraymond/toolgate/resilience"
	"github.com/jonwraymond/toolgate/toolclient"
)

func newGatewayCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Run the shared gateway that forwards each caller's token to the tool server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGateway(cmd, v)
		},
	}
	flags := cmd.Flags()
	flags.String("addr", "", "Listen address (default :8000)")
	flags.String("tool-server-url", "", "MCP endpoint of the tool server")
	flags.String("static-dir", "", "Directory served at / and /static/")
	bindFlag(v, "gateway.addr", flags, "addr")
	bindFlag(v, "gateway.tool_server_url", flags, "tool-server-url")
	bindFlag(v, "gateway.static_dir", flags, "static-dir")
	return cmd
}

func runGateway(cmd *cobra.Command, v *viper.Viper) error {
	ctx := cmd.Context()
	rt, err := newRuntime(ctx, v, "toolgate-gateway")
	if err != nil {
		return err
	}
	defer rt.shutdown(ctx)
	cfg := rt.cfg

	sessions, sessionCheck, closeSessions, err := rt.newSessionStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = closeSessions() }()

	checks := health.NewAggregator(health.AggregatorConfig{Logger: rt.logger})
	if sessionCheck != nil {
		checks.Register("sessions", sessionCheck)
	}

	dispatcher := auth.NewDispatcher(auth.DispatcherOptions{
		Timeout: cfg.Gateway.DispatchTimeout,
		Metrics: rt.mw.Metrics(),
		Tracer:  rt.mw.Tracer(),
	})

	srv := gateway.New(gateway.Options{
		Auth: gateway.AuthSettings{
			Enabled:   cfg.AuthEnabled(),
			Authority: cfg.Auth.Authority(),
			ClientID:  cfg.Auth.ClientID,
			Scope:     cfg.Auth.Scope,
			TenantID:  cfg.Auth.TenantID,
		},
		Tools: &toolclient.Factory{
			URL:           cfg.Gateway.ToolServerURL,
			HTTPClient:    dispatcher,
			Sessions:      sessions,
			ClientName:    "toolgate-gateway",
			ClientVersion: Version,
		},
		Sessions: sessions,
		Bulkhead: resilience.NewBulkhead(resilience.BulkheadConfig{
			MaxConcurrent: cfg.Gateway.MaxConcurrentCalls,
		}),
		Observe:   rt.mw,
		Health:    checks,
		StaticDir: cfg.Gateway.StaticDir,
	})

	if !cfg.AuthEnabled() {
		rt.logger.Warn(ctx, "auth disabled: tenant, client or api client id missing")
	}
	rt.logger.Info(ctx, "gateway starting",
		observe.Field{Key: "tool_server", Value: cfg.Gateway.ToolServerURL},
		observe.Field{Key: "session_backend", Value: cfg.Session.Backend},
	)
	return serve(ctx, cfg.Gateway.Addr, srv.Handler(), rt.logger)
}
