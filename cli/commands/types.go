package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/duckql/cli/internal/ui"
	"github.com/satishbabariya/duckql/query/compiler"
	"github.com/satishbabariya/duckql/runtime/types"
)

// NewTypesCommand creates the types command.
func NewTypesCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "types <name>...",
		Short:   "Parse engine type names and print their canonical form",
		Example: `  duckql types "int4[]" "STRUCT(a INT, b VARCHAR)" "DECIMAL(18, 3)"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([][]string, 0, len(args))
			var failed int
			for _, name := range args {
				t, err := types.ParseDataType(name)
				if err != nil {
					ui.PrintError("%s: %v", name, err)
					failed++
					continue
				}
				sql, err := compiler.TypeSQL(t)
				if err != nil {
					sql = ui.WarningStyle.Render(err.Error())
				}
				rows = append(rows, []string{name, t.Kind().String(), t.String(), sql})
			}
			if len(rows) > 0 {
				if err := ui.PrintTable([]string{"Input", "Kind", "Canonical", "SQL"}, rows); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d type names did not parse", failed, len(args))
			}
			return nil
		},
	}
}
