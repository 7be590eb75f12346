package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/tuplizer/internal/cli/ui"
	"github.com/conduit-lang/tuplizer/internal/orm/schema"
	"github.com/conduit-lang/tuplizer/internal/server"
)

func newInspectCommand(e *env) *cobra.Command {
	var (
		mode   string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "inspect [entity]",
		Short: "Show registered entities and their attributes",
		Long: `Without an argument, list every registered entity with its modes.
With an entity name, show its table, identifier and attributes.`,
		Example: `  tuplizer inspect
  tuplizer inspect Customer
  tuplizer inspect Customer --mode typed-object --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, _, err := e.registry()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				t := ui.NewTable(out, e.noColor, "Entity", "Modes", "Table", "Attributes")
				for _, name := range reg.Names() {
					var modes []string
					var meta *schema.EntityMetadata
					for _, m := range []schema.RepresentationMode{schema.TypedObject, schema.DynamicMap} {
						if found, err := reg.LookupMode(name, m); err == nil {
							modes = append(modes, m.String())
							meta = found
						}
					}
					t.AddRow(name, strings.Join(modes, ","), meta.TableName(), strconv.Itoa(len(meta.Attributes)))
				}
				t.Render()
				return nil
			}

			m := e.cfg.RepresentationMode()
			if mode != "" {
				if m, err = schema.ParseRepresentationMode(mode); err != nil {
					return err
				}
			}
			meta, err := reg.LookupMode(args[0], m)
			if err != nil {
				ui.Problem{
					Context:     "entity not found",
					Message:     fmt.Sprintf("%s (%s mode)", args[0], m),
					Suggestions: ui.Suggest(args[0], reg.Names()),
					Hints:       []string{"List entities: tuplizer inspect"},
				}.Write(cmd.ErrOrStderr(), e.noColor)
				return err
			}

			view := server.NewEntityView(meta)
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(view)
			}

			kv := ui.NewKeyValueTable(out, e.noColor)
			kv.AddRow("Entity", view.Name)
			kv.AddRow("Mode", view.Mode)
			kv.AddRow("Table", view.Table)
			if view.Tuplizer != "" {
				kv.AddRow("Tuplizer", view.Tuplizer)
			}
			if view.Identifier != nil {
				kv.AddRow("Identifier", fmt.Sprintf("%s %s (%s)", view.Identifier.Name, view.Identifier.Type, view.Strategy))
			} else {
				kv.AddRow("Identifier", "none")
			}
			kv.Render()
			fmt.Fprintln(out)

			t := ui.NewTable(out, e.noColor, "#", "Attribute", "Type", "Column", "Null", "Target")
			for _, a := range view.Attributes {
				target := ""
				if a.Target != "" {
					target = fmt.Sprintf("%s (%s, %s)", a.Target, a.Fetch, a.Cascade)
				}
				t.AddRow(strconv.Itoa(a.Ordinal), a.Name, a.Type, a.Column, yesNo(a.Nullable), target)
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "Representation mode (default: configured mode)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
