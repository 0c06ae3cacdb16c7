package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"acuvalidator/internal/inspect"

	"github.com/spf13/cobra"
)

var (
	fieldsInspector string
	indexOut        string
)

var fieldsCmd = &cobra.Command{
	Use:   "fields <module>...",
	Short: "List extension types and their properties in modules",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if indexOut != "" && len(args) != 1 {
			return fmt.Errorf("--index needs exactly one module, got %d", len(args))
		}
		cfg, err := GetValidatorConfig()
		if err != nil {
			return err
		}
		insp, err := inspect.GetInspector(fieldsInspector)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, path := range args {
			m, err := insp.Open(path)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", path, err)
			}
			idx, err := inspect.BuildIndex(m, cfg.ExtensionBasePrefix)
			m.Close()
			if err != nil {
				return fmt.Errorf("failed to inspect %s: %w", path, err)
			}

			fmt.Fprintf(out, "📦 %s (%d extension types)\n", filepath.Base(path), len(idx.Types))
			for _, t := range idx.Types {
				fmt.Fprintf(out, "  %s : %s<%s>\n", qualified(t.Namespace, t.Name), t.Base, strings.Join(t.GenericArgs, ", "))
				for _, p := range t.Properties {
					fmt.Fprintf(out, "    %-30s %s\n", p.Name, strings.Join(p.Attributes, ", "))
				}
			}

			if indexOut != "" {
				f, err := os.Create(indexOut)
				if err != nil {
					return fmt.Errorf("failed to create index: %w", err)
				}
				if err := inspect.WriteIndex(f, idx); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Fprintf(out, "Index written to %s\n", indexOut)
			}
		}
		return nil
	},
}

func qualified(namespace, name string) string {
	if namespace == "" {
		return name
	}
	return namespace + "." + name
}

func init() {
	RootCmd.AddCommand(fieldsCmd)

	fieldsCmd.Flags().StringVar(&fieldsInspector, "inspector", "clr", "Module inspector: clr, index or source")
	fieldsCmd.Flags().StringVar(&indexOut, "index", "", "Write a precomputed index (for --inspector index) to this file")
}
