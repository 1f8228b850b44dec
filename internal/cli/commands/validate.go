package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapmeta/internal/cli/output"
)

// ErrValidation is returned when the catalog has problems.
var ErrValidation = errors.New("catalog validation failed")

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate every stored asset and lineage edge",
		Long: `Check every cataloged asset against the metadata schema rules and every
stored lineage edge against the assets and columns it references.
Exits with an error when a problem is found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cctx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			problems, err := cctx.Engine.Validate(cmd.Context())
			if err != nil {
				return err
			}

			r := cctx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				msgs := make([]string, len(problems))
				for i, p := range problems {
					msgs[i] = p.Error()
				}
				if err := r.JSON(map[string]any{"valid": len(problems) == 0, "problems": msgs}); err != nil {
					return err
				}
			} else {
				for _, p := range problems {
					r.Error(p.Error())
				}
				if len(problems) == 0 {
					r.Success("Catalog is valid")
				}
			}
			if len(problems) > 0 {
				return fmt.Errorf("%w: %d problems", ErrValidation, len(problems))
			}
			return nil
		},
	}
}
