package cmd

import (
	"fmt"
	"io"

	"acuvalidator/internal/schema"

	"github.com/spf13/cobra"
)

var columnsCmd = &cobra.Command{
	Use:   "columns",
	Short: "List the custom columns of the active database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetValidatorConfig()
		if err != nil {
			return err
		}
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		cols, err := db.columnSource(cfg.FieldPrefix).DeclaredColumns(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "🔍 %d %s* columns via %s\n", len(cols), cfg.FieldPrefix, db.driver)
		writeColumns(out, cols)
		return nil
	},
}

// writeColumns prints one line per column: qualified name, normalized type and nullability.
func writeColumns(out io.Writer, cols []schema.DeclaredColumn) {
	for _, c := range cols {
		null := "not null"
		if c.Nullable {
			null = "null"
		}
		fmt.Fprintf(out, "%s.%s\t%s\t%s\n", c.OwnerTable, c.Name, c.DataType, null)
	}
}

func init() {
	RootCmd.AddCommand(columnsCmd)
}
