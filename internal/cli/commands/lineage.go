package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapmeta/internal/cli/output"
	"github.com/leapstack-labs/leapmeta/internal/dag"
	"github.com/leapstack-labs/leapmeta/internal/lineage"
	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// LineageOptions holds options for the lineage command.
type LineageOptions struct {
	Upstream   bool
	Downstream bool
	Depth      int
	Column     string
}

type assetLineageOutput struct {
	Asset      string        `json:"asset"`
	Upstream   []lineage.Hop `json:"upstream"`
	Downstream []lineage.Hop `json:"downstream"`
}

type columnLineageOutput struct {
	Column     core.ColumnRef      `json:"column"`
	Upstream   []lineage.ColumnHop `json:"upstream"`
	Downstream []lineage.ColumnHop `json:"downstream"`
}

// NewLineageCommand creates the lineage command.
func NewLineageCommand() *cobra.Command {
	opts := &LineageOptions{}

	cmd := &cobra.Command{
		Use:   "lineage <asset|asset#column>",
		Short: "Show lineage for an asset or column",
		Long: `Display where an asset's data comes from and where it flows to.

Give "asset#column" (or --column) to trace a single column through the
column mappings of the pipelines.`,
		Example: `  # Full lineage of a table
  leapmeta lineage warehouse.staging.customers

  # Only what feeds it, two hops deep
  leapmeta lineage warehouse.staging.customers --downstream=false --depth 2

  # Trace one column downstream
  leapmeta lineage 'landing.orders_csv#amount' --upstream=false`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLineage(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Upstream, "upstream", true, "Include upstream dependencies")
	cmd.Flags().BoolVar(&opts.Downstream, "downstream", true, "Include downstream dependents")
	cmd.Flags().IntVar(&opts.Depth, "depth", 0, "Max traversal depth (0 = unlimited)")
	cmd.Flags().StringVar(&opts.Column, "column", "", "Trace this column of the asset")

	return cmd
}

func runLineage(cmd *cobra.Command, target string, opts *LineageOptions) error {
	cctx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	t, err := cctx.Engine.Tracker(cmd.Context())
	if err != nil {
		return err
	}
	if opts.Column != "" && !core.IsColumnRef(target) {
		target = core.ColumnRef{Asset: target, Column: opts.Column}.String()
	}

	if core.IsColumnRef(target) {
		ref, err := core.ParseColumnRef(target)
		if err != nil {
			return err
		}
		return columnLineage(cctx.Renderer, t, ref, opts)
	}
	if _, ok := t.Asset(target); !ok {
		return fmt.Errorf("asset %s: %w", target, core.ErrNotFound)
	}
	return assetLineage(cctx.Renderer, t, target, opts)
}

func assetLineage(r *output.Renderer, t *lineage.Tracker, id string, opts *LineageOptions) error {
	out := assetLineageOutput{Asset: id, Upstream: []lineage.Hop{}, Downstream: []lineage.Hop{}}
	var err error
	if opts.Upstream {
		if out.Upstream, err = t.Upstream(id, opts.Depth); err != nil {
			return err
		}
	}
	if opts.Downstream {
		if out.Downstream, err = t.Downstream(id, opts.Depth); err != nil {
			return err
		}
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}

	r.Header(1, "Lineage for "+id)
	if opts.Upstream {
		r.Header(2, fmt.Sprintf("Upstream (%d)", len(out.Upstream)))
		printHops(r, out.Upstream)
	}
	if opts.Downstream {
		r.Header(2, fmt.Sprintf("Downstream (%d)", len(out.Downstream)))
		printHops(r, out.Downstream)
	}
	return nil
}

func printHops(r *output.Renderer, hops []lineage.Hop) {
	if len(hops) == 0 {
		r.Muted("  (none)")
		r.Println("")
		return
	}
	for _, h := range hops {
		line := strings.Repeat("  ", h.Depth) + "- " + r.Styles().ID.Render(h.ID)
		if h.Job != "" {
			line += r.Styles().Muted.Render(" via " + h.Job)
		}
		r.Println(line)
	}
	r.Println("")
}

func columnLineage(r *output.Renderer, t *lineage.Tracker, ref core.ColumnRef, opts *LineageOptions) error {
	out := columnLineageOutput{Column: ref, Upstream: []lineage.ColumnHop{}, Downstream: []lineage.ColumnHop{}}
	var err error
	if opts.Upstream {
		if out.Upstream, err = t.TraceColumn(ref, dag.Upstream, opts.Depth); err != nil {
			return err
		}
	}
	if opts.Downstream {
		if out.Downstream, err = t.TraceColumn(ref, dag.Downstream, opts.Depth); err != nil {
			return err
		}
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(out)
	}

	r.Header(1, "Column lineage for "+ref.String())
	if opts.Upstream {
		r.Header(2, fmt.Sprintf("Upstream (%d)", len(out.Upstream)))
		printColumnHops(r, out.Upstream)
	}
	if opts.Downstream {
		r.Header(2, fmt.Sprintf("Downstream (%d)", len(out.Downstream)))
		printColumnHops(r, out.Downstream)
	}
	return nil
}

func printColumnHops(r *output.Renderer, hops []lineage.ColumnHop) {
	if len(hops) == 0 {
		r.Muted("  (none)")
		r.Println("")
		return
	}
	for _, h := range hops {
		line := strings.Repeat("  ", h.Depth) + "- " + r.Styles().ID.Render(h.Ref.String())
		switch {
		case h.Expression != "":
			line += r.Styles().Muted.Render(" = " + h.Expression)
		case h.Transform != "":
			line += r.Styles().Muted.Render(" (" + string(h.Transform) + ")")
		}
		r.Println(line)
	}
	r.Println("")
}
