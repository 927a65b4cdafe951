package main

import (
	"fmt"

	"github.com/gomantics/gitmcp/config"
	"github.com/gomantics/gitmcp/domains/executor"
	"github.com/gomantics/gitmcp/domains/handles"
	"github.com/gomantics/gitmcp/domains/tools"
	"github.com/gomantics/gitmcp/libs/gitengine"
	"github.com/gomantics/gitmcp/pkg/logger"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "gitmcp",
		Short: "Git operations as schema-validated tools",
		Long: `gitmcp exposes repository operations (init, commit, log, branches,
remotes, worktrees) as named tools with JSON arguments and results.

Examples:
  gitmcp serve
  gitmcp tools
  gitmcp call git_status '{"path":"."}'`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(configPath); err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file (default $"+config.EnvConfigFile+")")

	cmd.AddCommand(
		newServeCommand(),
		newToolsCommand(),
		newCallCommand(),
	)
	return cmd
}

// components wires the tool runtime shared by every command.
func components() fx.Option {
	return fx.Options(
		fx.Provide(
			logger.New,
			gitengine.NewFromConfig,
			handles.NewFromConfig,
			executor.NewFromConfig,
			tools.NewCatalog,
			tools.NewFromConfig,
		),
		fx.Decorate(func(l *zap.Logger) *zap.Logger {
			return l.With(zap.String("service", "gitmcp"))
		}),
	)
}
