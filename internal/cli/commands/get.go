package commands

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/tuplizer/internal/cli/ui"
	"github.com/conduit-lang/tuplizer/internal/orm/storage"
)

func newGetCommand(e *env) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "get <entity> <id>",
		Short: "Load one instance from the configured store",
		Long: `Load an instance through a unit of work, running its PostLoad hooks, and
print its attribute values. Associations are shown as the target identifier.`,
		Example: `  tuplizer get Customer 42
  tuplizer get Customer 42 --json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer ws.close()

			sess := ws.session(e)
			defer sess.Close()

			t, err := sess.Get(ctx, args[0], args[1])
			if err != nil {
				if storage.IsNotFound(err) {
					ui.Problem{
						Context: "instance not found",
						Message: fmt.Sprintf("%s %s", args[0], args[1]),
					}.Write(cmd.ErrOrStderr(), e.noColor)
				}
				return err
			}

			values, err := sess.Values(t)
			if err != nil {
				return err
			}
			return printRow(cmd, e, values, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printRow(cmd *cobra.Command, e *env, row storage.Row, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(row)
	}

	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kv := ui.NewKeyValueTable(out, e.noColor)
	for _, k := range keys {
		v := row[k]
		if v == nil {
			kv.AddRow(k, "null")
			continue
		}
		kv.AddRow(k, fmt.Sprint(v))
	}
	kv.Render()
	return nil
}
