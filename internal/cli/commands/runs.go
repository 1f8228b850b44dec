package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapmeta/internal/cli/output"
	"github.com/leapstack-labs/leapmeta/internal/state"
)

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent collection runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cctx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			runs, err := cctx.Engine.Store().ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			r := cctx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				if runs == nil {
					runs = []*state.Run{}
				}
				return r.JSON(runs)
			}

			r.Header(1, fmt.Sprintf("Collection runs (%d)", len(runs)))
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					run.ID, string(run.Status), run.StartedAt.Format(time.RFC3339),
					run.Duration().Round(time.Millisecond).String(), strings.Join(run.Sources, ", "),
					strconv.Itoa(run.Assets), strconv.Itoa(run.Stale), strconv.Itoa(run.Errors),
				})
			}
			r.Table([]string{"Run", "Status", "Started", "Duration", "Sources", "Assets", "Stale", "Errors"}, rows)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs")
	return cmd
}
