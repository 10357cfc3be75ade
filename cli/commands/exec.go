package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/duckql/cli/internal/ui"
	"github.com/satishbabariya/duckql/query/ast"
	"github.com/satishbabariya/duckql/runtime/client"
	"github.com/satishbabariya/duckql/runtime/session"
	"github.com/satishbabariya/duckql/runtime/types"
)

// NewExecCommand creates the exec command.
func NewExecCommand(flags *globalFlags) *cobra.Command {
	var rawArgs []string
	var noViews bool
	var showSQL bool

	cmd := &cobra.Command{
		Use:   "exec <sql>",
		Short: "Run one SQL statement and print its rows",
		Long: `Run one SQL statement. Each ? in the statement is bound to the next --arg
value; arguments are never spliced into the SQL text. Table mappings from the
config are created as views first.`,
		Example: `  duckql exec "SELECT * FROM events WHERE id = ?" --arg 42
  duckql exec "INSERT INTO notes VALUES (?, ?)" --arg 1 --arg text:007`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := make([]types.Value, len(rawArgs))
			for i, a := range rawArgs {
				params[i] = parseArg(a)
			}
			return runExec(cmd.Context(), flags, args[0], params, !noViews, showSQL)
		},
	}

	cmd.Flags().StringArrayVarP(&rawArgs, "arg", "a", nil, "bind a parameter (repeatable; null, true, false, numbers, text: prefix forces text)")
	cmd.Flags().BoolVar(&noViews, "no-views", false, "skip creating views for table mappings")
	cmd.Flags().BoolVar(&showSQL, "show-sql", false, "print the compiled SQL before running it")
	return cmd
}

func runExec(ctx context.Context, flags *globalFlags, sql string, params []types.Value, views, showSQL bool) error {
	cfg, err := flags.loadConfig()
	if err != nil {
		return err
	}
	cl, err := flags.openClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer cl.Close()

	stmt := &ast.Raw{SQL: sql, Args: params}
	if showSQL {
		q, err := cl.Compile(stmt)
		if err != nil {
			return err
		}
		ui.PrintCodeBlock(q.SQL)
	}

	return cl.WithConn(ctx, func(conn *session.Conn) error {
		if views && len(cfg.TableMappings) > 0 {
			if _, err := cl.ApplyTableMappings(ctx, conn, nil); err != nil {
				return fmt.Errorf("failed to create views: %w", err)
			}
		}
		return execOn(ctx, cl, conn, stmt)
	})
}

func execOn(ctx context.Context, cl *client.Client, conn *session.Conn, stmt ast.Statement) error {
	rows, err := cl.Run(ctx, conn, stmt)
	if err != nil {
		return err
	}
	all, err := rows.Collect(ctx)
	if err != nil {
		return err
	}
	if len(rows.Columns()) == 0 {
		ui.PrintSuccess("%d rows affected", rows.RowsAffected())
		return nil
	}
	if err := printRows(rows.Columns(), all); err != nil {
		return err
	}
	ui.PrintInfo("%d rows", len(all))
	return nil
}
