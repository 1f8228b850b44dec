package commands

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapmeta/internal/cli/output"
	intconfig "github.com/leapstack-labs/leapmeta/internal/config"
	"github.com/leapstack-labs/leapmeta/internal/engine"
	"github.com/leapstack-labs/leapmeta/internal/lineage"
)

// CollectOptions holds options for the collect command.
type CollectOptions struct {
	Sources     []string
	NoPipelines bool
}

// collectOutput is the JSON shape of a collection.
type collectOutput struct {
	*engine.CollectResult
	Errors  []string       `json:"errors,omitempty"`
	Lineage *lineage.Stats `json:"lineage,omitempty"`
}

// NewCollectCommand creates the collect command.
func NewCollectCommand() *cobra.Command {
	opts := &CollectOptions{}
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect metadata from the configured sources",
		Long: `Run the collector of every configured source, merge the assets into the
catalog and load the pipelines file.

Assets that a successful source no longer reports are tagged "stale".
A failing source does not stop the others; the run is then recorded as
failed and the command exits with an error.`,
		Example: `  # Collect every source
  leapmeta collect

  # Collect one source and skip the pipelines file
  leapmeta collect --source landing --no-pipelines`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCollect(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Sources, "source", "s", nil, "Only collect these sources")
	cmd.Flags().BoolVar(&opts.NoPipelines, "no-pipelines", false, "Do not load the pipelines file")
	return cmd
}

func selectSources(all []intconfig.Source, names []string) ([]intconfig.Source, error) {
	if len(names) == 0 {
		return all, nil
	}
	var out []intconfig.Source
	for _, name := range names {
		i := slices.IndexFunc(all, func(s intconfig.Source) bool { return s.Name == name })
		if i < 0 {
			return nil, fmt.Errorf("unknown source %q", name)
		}
		out = append(out, all[i])
	}
	return out, nil
}

func runCollect(cmd *cobra.Command, opts *CollectOptions) error {
	cctx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := cctx.Cfg.RequireSources(); err != nil {
		return err
	}
	sources, err := selectSources(cctx.Cfg.Sources, opts.Sources)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	res, collectErr := cctx.Engine.Collect(ctx, sources)
	if res == nil {
		return collectErr
	}

	out := collectOutput{CollectResult: res}
	for _, s := range res.Failed() {
		out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", s.Name, s.Err))
	}
	if !opts.NoPipelines {
		stats, err := cctx.Engine.LoadPipelines(ctx, "")
		switch {
		case errors.Is(err, os.ErrNotExist):
			cctx.Logger.Debug("no pipelines file", "path", cctx.Cfg.PipelinesPath)
		case err != nil:
			return fmt.Errorf("failed to load pipelines: %w", err)
		default:
			out.Lineage = &stats
		}
	}

	r := cctx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		if err := r.JSON(out); err != nil {
			return err
		}
		return collectErr
	}

	r.Header(1, fmt.Sprintf("Collection %s", res.Run.ID))
	rows := make([][]string, 0, len(res.Sources))
	for _, s := range res.Sources {
		status := "ok"
		if s.Err != nil {
			status = "failed"
		}
		rows = append(rows, []string{
			s.Name, s.Type, status,
			strconv.Itoa(s.Assets), strconv.Itoa(s.Skipped), strconv.Itoa(s.Stale),
			s.Duration.Round(time.Millisecond).String(),
		})
	}
	r.Table([]string{"Source", "Type", "Status", "Assets", "Skipped", "Stale", "Duration"}, rows)

	for _, e := range out.Errors {
		r.Error(e)
	}
	if out.Lineage != nil {
		r.Success(fmt.Sprintf("Lineage: %d assets, %d edges, %d column edges", out.Lineage.Assets, out.Lineage.Edges, out.Lineage.ColumnEdges))
	}
	summary := fmt.Sprintf("Run %s: %d assets, %d stale", res.Run.Status, res.Run.Assets, res.Run.Stale)
	if collectErr != nil {
		r.Warning(summary)
		if len(out.Errors) == 0 {
			return collectErr
		}
		return fmt.Errorf("%d of %d sources failed: %s", len(out.Errors), len(res.Sources), strings.Join(out.Errors, "; "))
	}
	r.Success(summary)
	return nil
}
