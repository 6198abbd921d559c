package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rajithv/CausalLoop/internal/grammar"
)

func newFmtCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fmt <file|->",
		Short: "Rewrite a definition in canonical form",
		Long: `Print a definition in canonical form: edges first, then node values,
with unparseable lines dropped. With --write the file is rewritten in place.

Examples:
  causalloop fmt loop.cld
  causalloop fmt --write loop.cld`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			write, _ := cmd.Flags().GetBool("write")
			path := args[0]

			if write && path == "-" {
				return fmt.Errorf("--write needs a file, not stdin")
			}

			text, err := readSource(cmd, path)
			if err != nil {
				return err
			}

			def, skipped := grammar.ParseWithSkips(text)
			formatted := grammar.Serialize(def) + "\n"
			changed := formatted != text

			if write && changed {
				info, err := os.Stat(path)
				if err != nil {
					return fmt.Errorf("failed to stat %s: %w", path, err)
				}
				if err := os.WriteFile(path, []byte(formatted), info.Mode().Perm()); err != nil {
					return fmt.Errorf("failed to write %s: %w", path, err)
				}
			}

			w := cmd.OutOrStdout()
			switch {
			case jsonOut:
				return json.NewEncoder(w).Encode(map[string]interface{}{
					"file":    path,
					"text":    formatted,
					"changed": changed,
					"skipped": len(skipped),
				})
			case write:
				if changed {
					fmt.Fprintf(w, "formatted %s\n", path)
				}
			default:
				fmt.Fprint(w, formatted)
			}
			return nil
		},
	}

	cmd.Flags().BoolP("write", "w", false, "Write the result back to the file")

	return cmd
}
