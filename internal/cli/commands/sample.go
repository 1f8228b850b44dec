package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapmeta/internal/cli/output"
	"github.com/leapstack-labs/leapmeta/internal/sample"
)

// NewSampleCommand creates the sample command.
func NewSampleCommand() *cobra.Command {
	var seed int64
	cmd := &cobra.Command{
		Use:   "sample <dir>",
		Short: "Generate a demo project with sample pipeline data",
		Long: `Generate a small, self-contained demo project: raw CSV extracts with
realistic data problems, a pipelines file describing staging, marts and
reports, a starter business glossary, a classification rule and
leapmeta.yaml. The same seed always produces the same files.`,
		Example: `  leapmeta sample demo
  cd demo && leapmeta collect && leapmeta graph`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return fmt.Errorf("failed to create %s: %w", dir, err)
			}
			res, err := sample.Generate(dir, seed)
			if err != nil {
				return err
			}

			r := NewCommandContextWithoutEngine(cmd).Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(res)
			}
			r.Header(1, "Created demo project in "+dir)
			for _, f := range res.Files {
				r.Println("  " + f)
			}
			r.Println("")
			r.Muted(fmt.Sprintf("Next: cd %s && leapmeta collect && leapmeta graph", dir))
			return nil
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 42, "Random seed")
	return cmd
}
