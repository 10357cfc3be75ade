package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sort"
	"strings"
	"syscall"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/satishbabariya/duckql/cli/internal/ui"
	"github.com/satishbabariya/duckql/cli/internal/watch"
	"github.com/satishbabariya/duckql/config"
	"github.com/satishbabariya/duckql/internal/debug"
	"github.com/satishbabariya/duckql/query/compiler"
	"github.com/satishbabariya/duckql/runtime/client"
	"github.com/satishbabariya/duckql/runtime/session"
)

// NewViewsCommand creates the parent views command.
func NewViewsCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "views",
		Short: "Manage views over the configured table mappings",
		Long: `Every entry under table_mappings in the config becomes a view that reads
the mapped file through the matching DuckDB reader (read_json_auto,
read_csv_auto, read_parquet, ...).`,
	}

	cmd.AddCommand(newViewsListCommand(flags))
	cmd.AddCommand(newViewsApplyCommand(flags))
	cmd.AddCommand(newViewsDropCommand(flags))
	cmd.AddCommand(newViewsWatchCommand(flags))
	return cmd
}

func newViewsListCommand(flags *globalFlags) *cobra.Command {
	var showSQL bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the view each mapping produces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			comp, err := compilerFor(cfg)
			if err != nil {
				return err
			}
			plans, err := client.PlanViews(comp, cfg.TableMappings)
			if err != nil {
				return err
			}
			if len(plans) == 0 {
				ui.PrintWarning("no table mappings configured")
				return nil
			}
			rows := make([][]string, len(plans))
			for i, p := range plans {
				rows[i] = []string{p.Name, p.Source, p.Reader, formatOptions(cfg.TableMappings[p.Name])}
			}
			if err := ui.PrintTable([]string{"View", "Source", "Reader", "Options"}, rows); err != nil {
				return err
			}
			if showSQL {
				for _, p := range plans {
					ui.PrintSection("view " + p.Name)
					ui.PrintCodeBlock(p.Query.SQL)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showSQL, "sql", false, "print the CREATE VIEW statements")
	return cmd
}

func newViewsApplyCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Create or replace every mapped view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Path == ":memory:" {
				ui.PrintWarning("database is in memory; views last only for this command")
			}
			cl, err := flags.openClient(ctx, cfg)
			if err != nil {
				return err
			}
			defer cl.Close()

			return cl.WithConn(ctx, func(conn *session.Conn) error {
				plans, err := cl.ApplyTableMappings(ctx, conn, nil)
				if err != nil {
					return err
				}
				for _, p := range plans {
					ui.PrintSuccess("%s → %s(%s)", p.Name, p.Reader, p.Source)
				}
				return nil
			})
		},
	}
}

func newViewsDropCommand(flags *globalFlags) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "drop [view]...",
		Short: "Drop mapped views (all of them when none are named)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			names := args
			if len(names) == 0 {
				names = cfg.MappingNames()
			}
			if len(names) == 0 {
				ui.PrintWarning("nothing to drop")
				return nil
			}

			if !yes {
				ok := false
				prompt := &survey.Confirm{
					Message: fmt.Sprintf("Drop %d view(s): %s?", len(names), strings.Join(names, ", ")),
				}
				if err := survey.AskOne(prompt, &ok); err != nil {
					return err
				}
				if !ok {
					ui.PrintInfo("aborted")
					return nil
				}
			}

			cl, err := flags.openClient(ctx, cfg)
			if err != nil {
				return err
			}
			defer cl.Close()

			return cl.WithConn(ctx, func(conn *session.Conn) error {
				if err := cl.DropViews(ctx, conn, names...); err != nil {
					return err
				}
				ui.PrintSuccess("dropped %s", strings.Join(names, ", "))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newViewsWatchCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Re-apply views whenever the config file changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			if err := requireConfigFile(cfg); err != nil {
				return err
			}
			cl, err := flags.openClient(ctx, cfg)
			if err != nil {
				return err
			}
			defer cl.Close()

			return cl.WithConn(ctx, func(conn *session.Conn) error {
				vs := &viewSync{client: cl, conn: conn, file: cfg.File}
				w, err := watch.NewWatcher(cfg.File, vs.apply, watch.WithErrorHandler(func(err error) {
					ui.PrintError("%v", err)
				}))
				if err != nil {
					return err
				}
				ui.PrintInfo("watching %s (Ctrl+C to stop)", cfg.File)
				return w.Run(ctx)
			})
		},
	}
}

// viewSync keeps the views on one session in line with the config file.
type viewSync struct {
	client  *client.Client
	conn    *session.Conn
	file    string
	applied []string
}

func (s *viewSync) apply(ctx context.Context) error {
	cfg, err := config.Load(s.file)
	if err != nil {
		return err
	}
	plans, err := s.client.ApplyTableMappings(ctx, s.conn, cfg.TableMappings)
	if err != nil {
		return err
	}

	current := make([]string, len(plans))
	for i, p := range plans {
		current[i] = p.Name
	}
	var stale []string
	for _, name := range s.applied {
		if !slices.Contains(current, name) {
			stale = append(stale, name)
		}
	}
	if err := s.client.DropViews(ctx, s.conn, stale...); err != nil {
		return err
	}
	s.applied = current

	debug.Debug("views synced", "applied", len(current), "dropped", len(stale))
	ui.PrintSuccess("%d view(s) applied, %d dropped", len(current), len(stale))
	return nil
}

func compilerFor(cfg *config.Config) (*compiler.Compiler, error) {
	opts, err := cfg.CompilerOptions()
	if err != nil {
		return nil, err
	}
	return compiler.New(opts...)
}

func formatOptions(m config.TableMapping) string {
	keys := make([]string, 0, len(m.Options))
	for k := range m.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, m.Options[k])
	}
	return ui.Truncate(strings.Join(parts, " "), 60)
}
