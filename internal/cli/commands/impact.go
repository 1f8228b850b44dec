package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapmeta/internal/cli/output"
	"github.com/leapstack-labs/leapmeta/internal/impact"
	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// ImpactOptions holds options for the impact command.
type ImpactOptions struct {
	Change string
	Column string
	Depth  int
}

// NewImpactCommand creates the impact command.
func NewImpactCommand() *cobra.Command {
	opts := &ImpactOptions{}
	types := make([]string, len(impact.ChangeTypes))
	for i, c := range impact.ChangeTypes {
		types[i] = string(c)
	}

	cmd := &cobra.Command{
		Use:   "impact <asset|asset#column>",
		Short: "Analyze the downstream impact of a change",
		Long: `Find every downstream asset a proposed change reaches, grade its severity
and list the owners to notify.

Change types: ` + strings.Join(types, ", ") + `.
A column target without --change defaults to drop_column; an asset target
defaults to drop_asset.`,
		Example: `  # What breaks if the orders extract disappears?
  leapmeta impact landing.orders_csv

  # Renaming one column
  leapmeta impact landing.customers_csv --column email --change rename_column`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImpact(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.Change, "change", "", "Change type")
	cmd.Flags().StringVar(&opts.Column, "column", "", "Column the change applies to")
	cmd.Flags().IntVar(&opts.Depth, "depth", 0, "Max downstream depth (0 = unlimited)")
	_ = cmd.RegisterFlagCompletionFunc("change", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return types, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

// buildChange turns the command arguments into an impact.Change.
func buildChange(target string, opts *ImpactOptions) (impact.Change, error) {
	c := impact.Change{Target: target, Column: opts.Column, MaxDepth: opts.Depth}
	if core.IsColumnRef(target) {
		ref, err := core.ParseColumnRef(target)
		if err != nil {
			return c, err
		}
		c.Target, c.Column = ref.Asset, ref.Column
	}

	switch {
	case opts.Change != "":
		t, err := impact.ParseChangeType(opts.Change)
		if err != nil {
			return c, err
		}
		c.Type = t
	case c.Column != "":
		c.Type = impact.ChangeDropColumn
	default:
		c.Type = impact.ChangeDropAsset
	}
	return c, nil
}

func runImpact(cmd *cobra.Command, target string, opts *ImpactOptions) error {
	change, err := buildChange(target, opts)
	if err != nil {
		return err
	}

	cctx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	rep, err := cctx.Engine.Impact(cmd.Context(), change)
	if err != nil {
		return err
	}

	r := cctx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(rep)
	}

	subject := change.Target
	if change.Column != "" {
		subject = core.ColumnRef{Asset: change.Target, Column: change.Column}.String()
	}
	r.Header(1, fmt.Sprintf("Impact of %s on %s", change.Type, subject))
	r.KeyValue("Severity", r.Styles().Severity(string(rep.Severity)).Render(strings.ToUpper(string(rep.Severity))))
	r.KeyValue("Score", strconv.Itoa(rep.Score))
	r.KeyValue("Affected assets", strconv.Itoa(len(rep.Affected)))
	r.KeyValue("Owners", strings.Join(rep.Owners, ", "))
	r.KeyValue("Reports", strings.Join(rep.Reports, ", "))
	if rep.PII {
		r.KeyValue("PII", r.Styles().PII.Render("affected assets hold personal data"))
	}
	r.Println("")

	if len(rep.Affected) > 0 {
		r.Header(2, "Affected")
		rows := make([][]string, 0, len(rep.Affected))
		for _, a := range rep.Affected {
			rows = append(rows, []string{
				a.ID, string(a.Type), strconv.Itoa(a.Distance), a.Owner,
				string(a.Criticality), strings.Join(a.Columns, ", "),
			})
		}
		r.Table([]string{"Asset", "Type", "Distance", "Owner", "Criticality", "Columns"}, rows)
		r.Println("")
	}

	r.Header(2, "Recommendations")
	for _, rec := range rep.Recommendations {
		r.Println("- " + rec)
	}
	return nil
}
