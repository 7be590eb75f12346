package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/tuplizer/internal/cli/ui"
	"github.com/conduit-lang/tuplizer/internal/orm/session"
	"github.com/conduit-lang/tuplizer/internal/orm/tuplizer"
)

func newPutCommand(e *env) *cobra.Command {
	var (
		file        string
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "put <entity> [json]",
		Short: "Save instances from JSON",
		Long: `Create instances of an entity from a JSON object or an array of objects
and save them in one unit of work. Input is read from the argument, from
--file, or from stdin. Association attributes take the target identifier.

With --interactive, prompt for the attributes of one instance instead.`,
		Example: `  tuplizer put Customer '{"id": 1, "name": "Ann", "organization": 5}'
  tuplizer put Customer --file customers.json
  tuplizer put Customer --interactive`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var objects []map[string]interface{}
			if !interactive {
				data, err := readInput(cmd, args, file)
				if err != nil {
					return err
				}
				if objects, err = decodeObjects(data); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			ws, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer ws.close()

			sess := ws.session(e)
			defer sess.Close()

			if interactive {
				tz, err := sess.Tuplizer(args[0])
				if err != nil {
					return err
				}
				obj, err := askObject(tz.Metadata())
				if err != nil {
					return err
				}
				objects = append(objects, obj)
			}

			out := cmd.OutOrStdout()
			saved := 0
			for i, obj := range objects {
				t, err := buildInstance(ctx, sess, args[0], obj)
				if err != nil {
					return fmt.Errorf("object %d: %w", i, err)
				}
				status, err := sess.Save(ctx, t)
				if err != nil {
					return fmt.Errorf("object %d: %w", i, err)
				}
				if status == session.Vetoed {
					ui.Problem{Level: ui.LevelWarning, Message: fmt.Sprintf("object %d vetoed", i)}.Write(out, e.noColor)
					continue
				}
				saved++
			}
			ui.WriteSuccess(out, fmt.Sprintf("saved %d %s", saved, args[0]), e.noColor)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read JSON from a file")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Prompt for attribute values")
	return cmd
}

func readInput(cmd *cobra.Command, args []string, file string) ([]byte, error) {
	switch {
	case len(args) == 2:
		return []byte(args[1]), nil
	case file != "":
		return os.ReadFile(file)
	default:
		return io.ReadAll(cmd.InOrStdin())
	}
}

// decodeObjects accepts one JSON object or an array of objects
func decodeObjects(data []byte) ([]map[string]interface{}, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, fmt.Errorf("no input")
	}

	if strings.HasPrefix(trimmed, "[") {
		var objects []map[string]interface{}
		if err := json.Unmarshal([]byte(trimmed), &objects); err != nil {
			return nil, fmt.Errorf("invalid json: %w", err)
		}
		return objects, nil
	}

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	return []map[string]interface{}{obj}, nil
}

// buildInstance creates an instance and sets the attributes named in obj.
// Association values are identifiers and become references.
func buildInstance(ctx context.Context, sess *session.Session, entity string, obj map[string]interface{}) (tuplizer.Tuple, error) {
	tz, err := sess.Tuplizer(entity)
	if err != nil {
		return nil, err
	}
	meta := tz.Metadata()

	t, err := tz.CreateInstance()
	if err != nil {
		return nil, err
	}

	for name, raw := range obj {
		if meta.Identifier != nil && name == meta.Identifier.Name {
			id, err := meta.Identifier.Type.Coerce(raw)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			if err := tz.SetIdentifier(t, id); err != nil {
				return nil, err
			}
			continue
		}

		ord, ok := meta.Ordinal(name)
		if !ok {
			return nil, fmt.Errorf("%s has no attribute %s", entity, name)
		}
		attr := meta.Attributes[ord]

		var v interface{}
		switch {
		case raw == nil:
		case attr.IsAssociation():
			if v, err = sess.Reference(ctx, attr.Target, raw); err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
		default:
			if v, err = attr.Type.Coerce(raw); err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
		}
		if err := tz.SetAttribute(t, ord, v); err != nil {
			return nil, err
		}
	}
	return t, nil
}
