package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapmeta/internal/cli/output"
	"github.com/leapstack-labs/leapmeta/internal/state"
	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// AssetsListOptions holds options for the assets list command.
type AssetsListOptions struct {
	Type    string
	Source  string
	Tag     string
	Query   string
	PIIOnly bool
	Limit   int
}

// NewAssetsCommand creates the assets command group.
func NewAssetsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "assets",
		Aliases: []string{"asset"},
		Short:   "Browse cataloged assets",
	}
	cmd.AddCommand(newAssetsListCommand(), newAssetsShowCommand(), newAssetsColumnsCommand())
	return cmd
}

func newAssetsListCommand() *cobra.Command {
	opts := &AssetsListOptions{}
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List assets",
		Example: `  # Every asset
  leapmeta assets list

  # Tables of one source holding personal data
  leapmeta assets list --source crm --type table --pii`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAssetsList(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Type, "type", "", "Filter by asset type")
	cmd.Flags().StringVar(&opts.Source, "source", "", "Filter by source")
	cmd.Flags().StringVar(&opts.Tag, "tag", "", "Filter by business tag")
	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "Substring of the ID, name or description")
	cmd.Flags().BoolVar(&opts.PIIOnly, "pii", false, "Only assets with PII columns")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of assets (0 = no limit)")
	return cmd
}

func runAssetsList(cmd *cobra.Command, opts *AssetsListOptions) error {
	cctx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	assets, err := cctx.Engine.Store().ListAssets(cmd.Context(), state.Filter{
		Type:    core.AssetType(opts.Type),
		Source:  opts.Source,
		Tag:     opts.Tag,
		Query:   opts.Query,
		PIIOnly: opts.PIIOnly,
		Limit:   opts.Limit,
	})
	if err != nil {
		return err
	}

	r := cctx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		if assets == nil {
			assets = []*core.Asset{}
		}
		return r.JSON(assets)
	}

	r.Header(1, fmt.Sprintf("Assets (%d)", len(assets)))
	rows := make([][]string, 0, len(assets))
	for _, a := range assets {
		rows = append(rows, []string{
			a.ID, string(a.Type), a.Business.Owner,
			strconv.Itoa(len(a.Technical.Columns)), strings.Join(a.PIIColumns(), ", "),
			qualityScore(a), strings.Join(a.Business.Tags, ", "),
		})
	}
	r.Table([]string{"ID", "Type", "Owner", "Columns", "PII", "Quality", "Tags"}, rows)
	return nil
}

func qualityScore(a *core.Asset) string {
	if a.Quality == nil {
		return ""
	}
	return fmt.Sprintf("%.0f%%", a.Quality.Score*100)
}

func newAssetsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <asset>",
		Short: "Show every metadata field of an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAssetsShow(cmd, args[0])
		},
	}
}

func runAssetsShow(cmd *cobra.Command, id string) error {
	cctx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	a, err := cctx.Engine.Store().GetAsset(ctx, id)
	if err != nil {
		return err
	}
	t, err := cctx.Engine.Tracker(ctx)
	if err != nil {
		return err
	}
	if tracked, ok := t.Asset(id); ok {
		a.Lineage = tracked.Lineage
	}

	r := cctx.Renderer
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(a)
	}

	r.Header(1, a.ID)
	r.KeyValue("Name", a.Name)
	r.KeyValue("Type", string(a.Type))
	r.KeyValue("Source", a.Technical.Source)
	r.KeyValue("Location", a.Technical.Location)
	r.KeyValue("Format", string(a.Technical.Format))
	if a.Technical.RowCount > 0 {
		r.KeyValue("Rows", strconv.FormatInt(a.Technical.RowCount, 10))
	}
	if a.Technical.SizeBytes > 0 {
		r.KeyValue("Size", strconv.FormatInt(a.Technical.SizeBytes, 10)+" bytes")
	}
	r.Println("")

	r.Header(2, "Business")
	r.KeyValue("Owner", a.Business.Owner)
	r.KeyValue("Steward", a.Business.Steward)
	r.KeyValue("Domain", a.Business.Domain)
	r.KeyValue("Criticality", string(a.Business.Criticality))
	r.KeyValue("Description", a.Business.Description)
	r.KeyValue("Tags", strings.Join(a.Business.Tags, ", "))
	r.KeyValue("Terms", strings.Join(a.Business.GlossaryTerms, ", "))
	r.Println("")

	r.Header(2, "Operational")
	r.KeyValue("Collected", formatTime(a.Operational.CollectedAt))
	r.KeyValue("Updated", formatTime(a.Operational.UpdatedAt))
	r.KeyValue("Schedule", a.Operational.RefreshSchedule)
	r.KeyValue("Run", a.Operational.RunID)
	r.Println("")

	if q := a.Quality; q != nil {
		r.Header(2, "Quality")
		r.KeyValue("Score", qualityScore(a))
		r.KeyValue("Completeness", fmt.Sprintf("%.2f", q.Completeness))
		r.KeyValue("Validity", fmt.Sprintf("%.2f", q.Validity))
		r.KeyValue("Uniqueness", fmt.Sprintf("%.2f", q.Uniqueness))
		r.Println("")
	}

	if len(a.Technical.Columns) > 0 {
		r.Header(2, "Columns")
		rows := make([][]string, 0, len(a.Technical.Columns))
		for _, c := range a.Technical.Columns {
			pii := ""
			if c.PII {
				pii = "yes"
			}
			rows = append(rows, []string{
				c.Name, c.DataType, string(c.Classification), pii,
				strings.Join(c.GlossaryTerms, ", "), strings.Join(c.Tags, ", "),
			})
		}
		r.Table([]string{"Column", "Type", "Classification", "PII", "Terms", "Tags"}, rows)
	}

	if len(a.Lineage.Upstream)+len(a.Lineage.Downstream) > 0 {
		r.Header(2, "Lineage")
		r.KeyValue("Upstream", strings.Join(a.Lineage.Upstream, ", "))
		r.KeyValue("Downstream", strings.Join(a.Lineage.Downstream, ", "))
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func newAssetsColumnsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "columns <query>",
		Short: "Find columns by name across all assets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cctx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			matches, err := cctx.Engine.Store().SearchColumns(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			r := cctx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				if matches == nil {
					matches = []state.ColumnMatch{}
				}
				return r.JSON(matches)
			}
			rows := make([][]string, 0, len(matches))
			for _, m := range matches {
				rows = append(rows, []string{m.Ref().String(), m.Column.DataType, string(m.Column.Classification)})
			}
			r.Header(1, fmt.Sprintf("Columns matching %q (%d)", args[0], len(matches)))
			r.Table([]string{"Column", "Type", "Classification"}, rows)
			return nil
		},
	}
}
