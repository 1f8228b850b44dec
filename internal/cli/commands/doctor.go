package commands

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/leapmeta/internal/cli/output"
	"github.com/leapstack-labs/leapmeta/internal/glossary"
	"github.com/leapstack-labs/leapmeta/internal/lineage"
	"github.com/leapstack-labs/leapmeta/pkg/core"
	"github.com/spf13/cobra"
)

// Health check statuses.
const (
	statusPass  = "pass"
	statusWarn  = "warn"
	statusError = "error"
)

// lowQuality is the asset quality score below which the doctor warns.
const lowQuality = 0.8

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run a catalog health check",
		Long: `Analyze the catalog for governance gaps and report:
- Catalog summary (assets, lineage edges, glossary terms)
- Health checks grouped by category (Governance, Lineage, Glossary)
- Health score (0-100)
- Actionable recommendations

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format
  - JSON: Machine-readable format`,
		Example: `  # Run health check
  leapmeta doctor

  # Output as JSON
  leapmeta doctor -o json`,
		Args: cobra.NoArgs,
		RunE: runDoctor,
	}
}

// DoctorOutput is the JSON output for the doctor command.
type DoctorOutput struct {
	Summary         CatalogSummary `json:"summary"`
	HealthChecks    []HealthCheck  `json:"health_checks"`
	Score           int            `json:"score"`
	Recommendations []string       `json:"recommendations"`
	IssueCount      int            `json:"issue_count"`
}

// CatalogSummary contains catalog-level statistics.
type CatalogSummary struct {
	Assets      int `json:"assets"`
	Columns     int `json:"columns"`
	PIIColumns  int `json:"pii_columns"`
	Edges       int `json:"edges"`
	ColumnEdges int `json:"column_edges"`
	Roots       int `json:"roots"`
	Leaves      int `json:"leaves"`
	Terms       int `json:"terms"`
}

// HealthCheck represents a single health check result.
type HealthCheck struct {
	RuleID     string   `json:"rule_id"`
	Name       string   `json:"name"`
	Group      string   `json:"group"`
	Status     string   `json:"status"` // "pass", "warn", "error"
	IssueCount int      `json:"issue_count"`
	Details    []string `json:"details,omitempty"`
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	eng := cmdCtx.Engine
	r := cmdCtx.Renderer

	tracker, err := eng.Tracker(ctx)
	if err != nil {
		return fmt.Errorf("failed to load lineage: %w", err)
	}
	problems, err := eng.Validate(ctx)
	if err != nil {
		return err
	}

	out := diagnose(tracker.Assets(), eng.Glossary().List(), problems, tracker.Stats())
	if out.Summary.Assets == 0 {
		r.Warning("Catalog is empty; run leapmeta collect first")
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(out)
	case output.ModeMarkdown:
		return renderDoctorMarkdown(r, out)
	default:
		return renderDoctorText(r, out)
	}
}

// checkDef describes one health rule.
type checkDef struct {
	id, name, group, severity string
	run                       func(*core.Asset) []string
}

var assetChecks = []checkDef{
	{"GV01", "Assets have an owner", "governance", statusWarn, func(a *core.Asset) []string {
		if a.Business.Owner == "" {
			return []string{a.ID + " has no owner"}
		}
		return nil
	}},
	{"GV02", "Assets are described", "governance", statusWarn, func(a *core.Asset) []string {
		if a.Business.Description == "" {
			return []string{a.ID + " has no description"}
		}
		return nil
	}},
	{"GV03", "PII columns are protected", "governance", statusError, func(a *core.Asset) []string {
		var out []string
		for _, c := range a.Technical.Columns {
			if c.PII && c.Classification.Rank() < core.ClassConfidential.Rank() {
				out = append(out, fmt.Sprintf("%s is PII but classified %q", core.ColumnRef{Asset: a.ID, Column: c.Name}, c.Classification))
			}
		}
		return out
	}},
	{"GV04", "Assets are fresh", "governance", statusWarn, func(a *core.Asset) []string {
		if a.HasTag(core.TagStale) {
			return []string{a.ID + " was not seen by the latest collection"}
		}
		return nil
	}},
	{"GV05", "Quality is acceptable", "governance", statusWarn, func(a *core.Asset) []string {
		if a.Quality != nil && a.Quality.Score < lowQuality {
			return []string{fmt.Sprintf("%s scores %.2f", a.ID, a.Quality.Score)}
		}
		return nil
	}},
	{"LN01", "Assets are connected", "lineage", statusWarn, func(a *core.Asset) []string {
		if len(a.Lineage.Upstream) == 0 && len(a.Lineage.Downstream) == 0 {
			return []string{a.ID + " has no lineage"}
		}
		return nil
	}},
}

// diagnose builds the health report from the catalog contents.
func diagnose(assets []*core.Asset, terms []glossary.Term, problems []error, stats lineage.Stats) *DoctorOutput {
	summary := CatalogSummary{
		Assets:      len(assets),
		Edges:       stats.Edges,
		ColumnEdges: stats.ColumnEdges,
		Roots:       len(stats.Roots),
		Leaves:      len(stats.Leaves),
		Terms:       len(terms),
	}
	for _, a := range assets {
		summary.Columns += len(a.Technical.Columns)
		summary.PIIColumns += len(a.PIIColumns())
	}

	checks := make([]HealthCheck, 0, len(assetChecks)+3)
	for _, def := range assetChecks {
		var details []string
		for _, a := range assets {
			details = append(details, def.run(a)...)
		}
		checks = append(checks, newHealthCheck(def.id, def.name, def.group, def.severity, details))
	}

	details := make([]string, len(problems))
	for i, p := range problems {
		details[i] = p.Error()
	}
	checks = append(checks, newHealthCheck("LN02", "Lineage references resolve", "lineage", statusError, details))

	var drafts, unlinked []string
	for _, t := range terms {
		switch {
		case t.Status == glossary.StatusDraft:
			drafts = append(drafts, t.Name+" is still a draft")
		case t.Status == glossary.StatusApproved && len(t.Links) == 0:
			unlinked = append(unlinked, t.Name+" is not linked to any asset or column")
		}
	}
	checks = append(checks,
		newHealthCheck("GL01", "Terms are approved", "glossary", statusWarn, drafts),
		newHealthCheck("GL02", "Approved terms are used", "glossary", statusWarn, unlinked),
	)

	sort.Slice(checks, func(i, j int) bool {
		if checks[i].Group != checks[j].Group {
			return checks[i].Group < checks[j].Group
		}
		return checks[i].RuleID < checks[j].RuleID
	})

	issues := 0
	for _, c := range checks {
		issues += c.IssueCount
	}
	return &DoctorOutput{
		Summary:         summary,
		HealthChecks:    checks,
		Score:           calculateHealthScore(checks, summary.Assets),
		Recommendations: generateRecommendations(checks),
		IssueCount:      issues,
	}
}

func newHealthCheck(id, name, group, severity string, details []string) HealthCheck {
	status := statusPass
	if len(details) > 0 {
		status = severity
	}
	return HealthCheck{
		RuleID:     id,
		Name:       name,
		Group:      group,
		Status:     status,
		IssueCount: len(details),
		Details:    details,
	}
}

// calculateHealthScore computes a health score from 0-100.
// With more assets, each individual issue has less impact.
// Errors count double.
func calculateHealthScore(checks []HealthCheck, assetCount int) int {
	if len(checks) == 0 {
		return 100
	}

	score := 100.0
	basePenalty := 5.0
	if assetCount > 10 {
		basePenalty = 3.0
	}
	if assetCount > 50 {
		basePenalty = 2.0
	}
	if assetCount > 100 {
		basePenalty = 1.0
	}

	for _, check := range checks {
		switch check.Status {
		case statusError:
			score -= float64(check.IssueCount) * basePenalty * 2
		case statusWarn:
			score -= float64(check.IssueCount) * basePenalty
		}
	}

	return int(max(0, min(100, score)))
}

// generateRecommendations creates actionable recommendations based on findings.
func generateRecommendations(checks []HealthCheck) []string {
	var recommendations []string
	seen := make(map[string]bool)

	for _, check := range checks {
		if check.IssueCount == 0 {
			continue
		}
		rec := getRecommendation(check.RuleID)
		if rec != "" && !seen[rec] {
			recommendations = append(recommendations, rec)
			seen[rec] = true
		}
	}

	if len(recommendations) > 5 {
		recommendations = recommendations[:5]
	}
	return recommendations
}

// getRecommendation returns a recommendation for a specific rule.
func getRecommendation(ruleID string) string {
	switch ruleID {
	case "GV01":
		return "Assign owners in the pipelines file or with a classification rule"
	case "GV02":
		return "Describe assets so consumers know what they contain"
	case "GV03":
		return "Classify PII columns as confidential or restricted"
	case "GV04":
		return "Review stale assets and remove the ones that no longer exist"
	case "GV05":
		return "Investigate low quality assets before they reach reports"
	case "LN01":
		return "Declare jobs for unconnected assets in the pipelines file"
	case "LN02":
		return "Fix broken lineage references reported by leapmeta validate"
	case "GL01":
		return "Review draft glossary terms and approve or deprecate them"
	case "GL02":
		return "Link approved terms with leapmeta glossary suggest --apply"
	default:
		return ""
	}
}

func renderDoctorText(r *output.Renderer, out *DoctorOutput) error {
	styles := r.Styles()

	r.Println("")
	r.Println(styles.Header.Render("Catalog Health Report"))
	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	r.Println("")

	r.Println(styles.Bold.Render("Catalog Summary"))
	r.Printf("   Assets: %d | Columns: %d | PII columns: %d | Terms: %d\n",
		out.Summary.Assets, out.Summary.Columns, out.Summary.PIIColumns, out.Summary.Terms)
	r.Printf("   Edges: %d | Column edges: %d | Roots: %d | Leaves: %d\n",
		out.Summary.Edges, out.Summary.ColumnEdges, out.Summary.Roots, out.Summary.Leaves)
	r.Println("")

	r.Println(styles.Bold.Render("Health Checks"))
	r.Println("")

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println(styles.Bold.Render("   " + titleCaser.String(currentGroup)))
			r.Println(styles.Muted.Render("   " + strings.Repeat("-", 40)))
		}

		icon := styles.Success.Render("✓")
		switch check.Status {
		case statusWarn:
			icon = styles.Warning.Render("!")
		case statusError:
			icon = styles.Error.Render("✗")
		}

		status := fmt.Sprintf("%s %s: %s", icon, check.RuleID, check.Name)
		if check.IssueCount > 0 {
			status += fmt.Sprintf(" (%d issues)", check.IssueCount)
		}
		r.Println("   " + status)

		for i, detail := range check.Details {
			if i >= 3 {
				r.Println(styles.Muted.Render(fmt.Sprintf("       ... and %d more", len(check.Details)-3)))
				break
			}
			r.Println(styles.Muted.Render("       - " + detail))
		}
	}
	r.Println("")

	r.Println(styles.Muted.Render(strings.Repeat("=", 55)))
	scoreStyle := styles.Success
	if out.Score < 70 {
		scoreStyle = styles.Warning
	}
	if out.Score < 50 {
		scoreStyle = styles.Error
	}
	r.Printf("   Health Score: %s\n", scoreStyle.Render(fmt.Sprintf("%d/100", out.Score)))
	r.Println("")

	if len(out.Recommendations) > 0 {
		r.Println(styles.Bold.Render("Recommendations"))
		for i, rec := range out.Recommendations {
			r.Printf("   %d. %s\n", i+1, rec)
		}
		r.Println("")
	}

	return nil
}

func renderDoctorMarkdown(r *output.Renderer, out *DoctorOutput) error {
	r.Println("# Catalog Health Report")
	r.Println("")

	r.Println("## Catalog Summary")
	r.Println("")
	r.Printf("- **Assets**: %d\n", out.Summary.Assets)
	r.Printf("- **Columns**: %d\n", out.Summary.Columns)
	r.Printf("- **PII Columns**: %d\n", out.Summary.PIIColumns)
	r.Printf("- **Lineage Edges**: %d\n", out.Summary.Edges)
	r.Printf("- **Column Edges**: %d\n", out.Summary.ColumnEdges)
	r.Printf("- **Glossary Terms**: %d\n", out.Summary.Terms)
	r.Println("")

	r.Println("## Health Checks")
	r.Println("")

	currentGroup := ""
	titleCaser := cases.Title(language.English)
	for _, check := range out.HealthChecks {
		if check.Group != currentGroup {
			currentGroup = check.Group
			r.Println("### " + titleCaser.String(currentGroup))
			r.Println("")
		}

		r.Printf("- **[%s]** %s: %s", strings.ToUpper(check.Status), check.RuleID, check.Name)
		if check.IssueCount > 0 {
			r.Printf(" (%d issues)", check.IssueCount)
		}
		r.Println("")

		for _, detail := range check.Details {
			r.Printf("  - %s\n", detail)
		}
	}
	r.Println("")

	r.Println("## Health Score")
	r.Println("")
	r.Printf("**%d/100**\n", out.Score)
	r.Println("")

	if len(out.Recommendations) > 0 {
		r.Println("## Recommendations")
		r.Println("")
		for i, rec := range out.Recommendations {
			r.Printf("%d. %s\n", i+1, rec)
		}
		r.Println("")
	}

	return nil
}
