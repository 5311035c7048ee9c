package main

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/taipm/agentrun/agent"
)

// Version is the current agentrund build version.
const Version = "0.1.0"

// NewRootCommand builds the cobra command tree: a root command carrying
// no action of its own, and a serve subcommand that brings the HTTP
// server up.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "agentrund",
		Short:        "Autonomous task planning and tool orchestration service",
		Version:      Version,
		SilenceUsage: true,
	}

	root.AddCommand(newServeCommand())
	return root
}

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return Serve(cfg, logger)
		},
	}
	agent.BindServiceFlags(cmd.Flags())
	return cmd
}

// loadConfig wires viper's flags > env > YAML file > defaults precedence:
// BindPFlags picks up the cobra flags first, AutomaticEnv plus
// SetEnvKeyReplacer maps AGENTRUN_STORAGE_DSN to the "storage-dsn" key,
// and ReadInConfig layers in agentrund.yaml if present before any of that
// is asked for a value.
func loadConfig(cmd *cobra.Command) (agent.ServiceConfig, agent.Logger, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("agentrund")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.agentrund")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return agent.ServiceConfig{}, nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix("AGENTRUN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return agent.ServiceConfig{}, nil, fmt.Errorf("bind flags: %w", err)
	}

	cfg, err := agent.LoadServiceConfig(v)
	if err != nil {
		return agent.ServiceConfig{}, nil, err
	}

	logger, err := agent.NewZapAdapterForMode(cfg.LogMode)
	if err != nil {
		return agent.ServiceConfig{}, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, logger, nil
}
