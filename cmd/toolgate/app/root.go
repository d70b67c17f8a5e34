// Package app holds the toolgate commands and the composition root that
// wires configuration into the gateway and the tool server.
package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jonwraymond/toolgate/config"
)

// Version is set at build time.
var Version = "dev"

// NewRootCmd creates the toolgate command tree. Every command shares one
// viper instance; flags bound to it win over the environment and the file.
func NewRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:           "toolgate",
		Short:         "Per-request credential propagation between a shared gateway and an MCP tool server",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       Version,
	}
	flags := root.PersistentFlags()
	flags.String("config", "", "Path to a YAML config file")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	bindFlag(v, config.ConfigFileKey, flags, "config")
	bindFlag(v, "observe.log_level", flags, "log-level")

	root.AddCommand(newGatewayCmd(v), newToolServerCmd(v))
	return root
}

func bindFlag(v *viper.Viper, key string, flags *pflag.FlagSet, name string) {
	if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", name, err))
	}
}
