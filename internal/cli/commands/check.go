package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/tuplizer/internal/cli/ui"
	"github.com/conduit-lang/tuplizer/internal/orm/mapping"
	"github.com/conduit-lang/tuplizer/internal/orm/schema"
	"github.com/conduit-lang/tuplizer/internal/orm/tuplizer"
)

// ErrCheckFailed is returned by check when any entity cannot be bound
var ErrCheckFailed = errors.New("mapping check failed")

func newCheckCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate mapping documents",
		Long: `Load every mapping document, register the entities, verify association
targets and bind a tuplizer for each entity in the configured mode.

Entities of other modes are registered and verified but not bound, since
typed-object entities need Go types supplied by the application.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			reg, _, err := e.registry()
			if err != nil {
				problemFor(err).Write(out, e.noColor)
				return ErrCheckFailed
			}

			mode := e.cfg.RepresentationMode()
			catalog := tuplizer.NewCatalog(reg)

			var failures []string
			bound, skipped := 0, 0
			for _, meta := range reg.All() {
				if meta.Mode != mode {
					skipped++
					continue
				}
				if _, err := catalog.For(meta); err != nil {
					failures = append(failures, err.Error())
					continue
				}
				bound++
			}

			if len(failures) > 0 {
				ui.Problem{
					Context: "binding failed",
					Message: fmt.Sprintf("%d of %d entities", len(failures), len(failures)+bound),
					Details: failures,
					Hints:   []string{"Inspect an entity: tuplizer inspect <entity>"},
				}.Write(out, e.noColor)
				return ErrCheckFailed
			}

			msg := fmt.Sprintf("%d entities bound in %s mode", bound, mode)
			if skipped > 0 {
				msg += fmt.Sprintf(", %d in other modes verified", skipped)
			}
			ui.WriteSuccess(out, msg, e.noColor)
			return nil
		},
	}
}

// problemFor describes a registry or mapping error
func problemFor(err error) ui.Problem {
	var mappingErr *mapping.MappingError
	var unknown *schema.UnknownEntityError
	var dup *schema.DuplicateEntityError

	switch {
	case errors.As(err, &mappingErr):
		p := ui.Problem{Context: "mapping error", Message: mappingErr.Source}
		if mappingErr.Entity != "" {
			p.Details = append(p.Details, "entity "+mappingErr.Entity)
		}
		p.Details = append(p.Details, mappingErr.Err.Error())
		return p
	case errors.As(err, &dup):
		return ui.Problem{
			Context: "duplicate entity",
			Message: dup.Entity,
			Details: []string{err.Error()},
		}
	case errors.As(err, &unknown):
		return ui.Problem{
			Context: "unknown entity",
			Message: unknown.Entity,
			Details: []string{err.Error()},
		}
	case errors.Is(err, schema.ErrInvalidMetadata):
		return ui.Problem{Context: "invalid metadata", Message: err.Error()}
	case errors.Is(err, mapping.ErrNoMappings):
		return ui.Problem{
			Context: "no mappings",
			Message: err.Error(),
			Hints:   []string{"Set mapping.paths in tuplizer.yaml"},
		}
	}
	return ui.Problem{Context: "check failed", Message: err.Error()}
}
