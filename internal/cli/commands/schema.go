package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// NewSchemaCommand creates the schema command.
func NewSchemaCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the metadata JSON Schema",
		Long:  `Print metadata_schema.json, the JSON Schema every cataloged asset conforms to.`,
		Example: `  leapmeta schema > metadata_schema.json
  leapmeta schema -f metadata_schema.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema := core.MetadataSchema()
			if file == "" || file == "-" {
				_, err := cmd.OutOrStdout().Write(schema)
				return err
			}
			if err := os.WriteFile(file, schema, 0o600); err != nil {
				return fmt.Errorf("failed to write schema: %w", err)
			}
			NewCommandContextWithoutEngine(cmd).Renderer.Success("Wrote " + file)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Write to this file instead of stdout")
	return cmd
}
