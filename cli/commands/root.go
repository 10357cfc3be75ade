// Package commands implements the duckql command line.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/duckql/cli/internal/ui"
	"github.com/satishbabariya/duckql/cli/internal/version"
	"github.com/satishbabariya/duckql/config"
	"github.com/satishbabariya/duckql/internal/debug"
)

// globalFlags are shared by every command.
type globalFlags struct {
	configFile string
	debug      bool
	logFormat  string
	events     string
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "duckql",
		Short:         "Query DuckDB with typed, parameterized statements",
		Long:          "duckql compiles statements to DuckDB SQL with bound parameters, exposes file sources as views and runs queries.",
		Version:       version.Get().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			debug.Init(debug.Options{Enable: flags.debug, Format: flags.logFormat})
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "config file (default: .duckql.{yaml,json,toml} in . or ~)")
	cmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "log every statement to stderr")
	cmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "text", "log format: text or json")
	cmd.PersistentFlags().StringVar(&flags.events, "events", "", "append session events as JSON lines to this file")

	cmd.AddCommand(NewExecCommand(flags))
	cmd.AddCommand(NewViewsCommand(flags))
	cmd.AddCommand(NewTypesCommand())
	cmd.AddCommand(NewVersionCommand())
	return cmd
}

// Execute is the main entry point for the CLI
func Execute() error {
	if err := NewRootCommand().ExecuteContext(context.Background()); err != nil {
		ui.PrintError("%v", err)
		return err
	}
	return nil
}

// loadConfig reads the config and applies the --debug override.
func (f *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return nil, err
	}
	if cfg.Debug && !f.debug {
		f.debug = true
		debug.Init(debug.Options{Enable: true, Format: f.logFormat})
	}
	debug.Debug("config loaded", "file", cfg.File, "driver", cfg.Driver, "path", cfg.Path, "mappings", len(cfg.TableMappings))
	return cfg, nil
}

func requireConfigFile(cfg *config.Config) error {
	if cfg.File == "" {
		return fmt.Errorf("no config file found; pass --config or create .duckql.yaml")
	}
	return nil
}
