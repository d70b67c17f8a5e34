package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonwraymond/toolgate/auth"
	"github.com/jonwraymond/toolgate/health"
	"github.com/jonwraymond/toolgate/toolserver"
)

func newToolServerCmd(v *viper.Viper) *cobra.Command {
	var requiredScopes []string
	cmd := &cobra.Command{
		Use:   "toolserver",
		Short: "Run the MCP tool server that verifies the forwarded bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runToolServer(cmd, v, requiredScopes)
		},
	}
	flags := cmd.Flags()
	flags.String("addr", "", "Listen address (default :8001)")
	flags.StringSliceVar(&requiredScopes, "require-scope", nil, "Scope every tool call must hold (repeatable)")
	bindFlag(v, "toolserver.addr", flags, "addr")
	return cmd
}

func runToolServer(cmd *cobra.Command, v *viper.Viper, requiredScopes []string) error {
	ctx := cmd.Context()
	rt, err := newRuntime(ctx, v, "toolgate-toolserver")
	if err != nil {
		return err
	}
	defer rt.shutdown(ctx)
	cfg := rt.cfg

	checks := health.NewAggregator(health.AggregatorConfig{Logger: rt.logger})
	opts := toolserver.Options{
		Name:    "toolgate-tools",
		Version: Version,
		Observe: rt.mw,
		Health:  checks,
	}

	if cfg.VerificationEnabled() {
		keys, err := rt.newKeySet(ctx)
		if err != nil {
			return err
		}
		verifier, err := rt.newVerifier(keys)
		if err != nil {
			return err
		}
		checks.Register("keyset", health.NewKeySetChecker(keys))
		opts.Verifier = verifier
		if len(requiredScopes) > 0 {
			opts.Authorizer = &auth.ScopeAuthorizer{Default: requiredScopes}
		}
	} else {
		rt.logger.Warn(ctx, "auth disabled: tool calls are not authenticated")
	}

	return serve(ctx, cfg.ToolServer.Addr, toolserver.New(opts).Handler(), rt.logger)
}
