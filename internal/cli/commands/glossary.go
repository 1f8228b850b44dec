package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapmeta/internal/cli/output"
	"github.com/leapstack-labs/leapmeta/internal/glossary"
)

// NewGlossaryCommand creates the glossary command group.
func NewGlossaryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "glossary",
		Short: "Manage the business glossary",
		Long: `Manage business terms and their links to assets and columns.

Edits are written to the glossary file (business_glossary.json by default)
and mirrored into the catalog.`,
	}
	cmd.AddCommand(
		newGlossaryListCommand(),
		newGlossaryAddCommand(),
		newGlossarySearchCommand(),
		newGlossaryLinkCommand(true),
		newGlossaryLinkCommand(false),
		newGlossarySuggestCommand(),
		newGlossaryImportCommand(),
	)
	return cmd
}

func newGlossaryListCommand() *cobra.Command {
	var status, domain string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List terms",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cctx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			terms := []glossary.Term{}
			for _, t := range cctx.Engine.Glossary().List() {
				if status != "" && string(t.Status) != status {
					continue
				}
				if domain != "" && !strings.EqualFold(t.Domain, domain) {
					continue
				}
				terms = append(terms, t)
			}
			return renderTerms(cctx.Renderer, fmt.Sprintf("Glossary (%d terms)", len(terms)), terms)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (draft, approved, deprecated)")
	cmd.Flags().StringVar(&domain, "domain", "", "Filter by domain")
	return cmd
}

func renderTerms(r *output.Renderer, title string, terms []glossary.Term) error {
	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(terms)
	}
	r.Header(1, title)
	rows := make([][]string, 0, len(terms))
	for _, t := range terms {
		rows = append(rows, []string{
			t.Name, string(t.Status), t.Domain, truncate(t.Definition, 60),
			strings.Join(t.Synonyms, ", "), fmt.Sprint(len(t.Links)),
		})
	}
	r.Table([]string{"Term", "Status", "Domain", "Definition", "Synonyms", "Links"}, rows)
	return nil
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}

func newGlossaryAddCommand() *cobra.Command {
	var t glossary.Term
	var status string
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a term",
		Example: `  leapmeta glossary add "Churn Rate" \
    --definition "Share of customers lost in a period." \
    --domain sales --synonym attrition --status approved`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cctx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			t.Name = args[0]
			t.Status = glossary.Status(status)
			added, err := cctx.Engine.Glossary().Add(t)
			if err != nil {
				return err
			}
			if err := cctx.Engine.SaveGlossary(cmd.Context()); err != nil {
				return err
			}

			r := cctx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(added)
			}
			r.Success(fmt.Sprintf("Added term %s (%s)", added.Name, added.ID))
			return nil
		},
	}
	cmd.Flags().StringVarP(&t.Definition, "definition", "d", "", "Definition (required)")
	cmd.Flags().StringVar(&t.Domain, "domain", "", "Business domain")
	cmd.Flags().StringVar(&t.Owner, "owner", "", "Owner")
	cmd.Flags().StringVar(&t.Steward, "steward", "", "Data steward")
	cmd.Flags().StringSliceVar(&t.Synonyms, "synonym", nil, "Synonym (repeatable)")
	cmd.Flags().StringSliceVar(&t.Related, "related", nil, "Related term (repeatable)")
	cmd.Flags().StringVar(&status, "status", string(glossary.StatusDraft), "Status (draft, approved, deprecated)")
	_ = cmd.MarkFlagRequired("definition")
	return cmd
}

func newGlossarySearchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search terms by name, synonym or definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cctx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			matches := cctx.Engine.Glossary().Search(args[0])
			r := cctx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				if matches == nil {
					matches = []glossary.Match{}
				}
				return r.JSON(matches)
			}
			terms := make([]glossary.Term, len(matches))
			for i, m := range matches {
				terms[i] = m.Term
			}
			return renderTerms(r, fmt.Sprintf("Terms matching %q (%d)", args[0], len(terms)), terms)
		},
	}
}

func newGlossaryLinkCommand(link bool) *cobra.Command {
	use, short, verb := "link", "Link a term to an asset or column", "Linked"
	if !link {
		use, short, verb = "unlink", "Remove a term link", "Unlinked"
	}
	return &cobra.Command{
		Use:     use + " <term> <asset|asset#column>",
		Short:   short,
		Example: fmt.Sprintf("  leapmeta glossary %s Revenue 'warehouse.marts.customer_revenue#total_revenue'", use),
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cctx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			edit := cctx.Engine.LinkTerm
			if !link {
				edit = cctx.Engine.UnlinkTerm
			}
			t, err := edit(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			r := cctx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(t)
			}
			r.Success(fmt.Sprintf("%s %s and %s", verb, t.Name, args[1]))
			return nil
		},
	}
}

func newGlossarySuggestCommand() *cobra.Command {
	var minScore float64
	var apply bool
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Suggest term links for cataloged columns",
		Long: `Compare column names with term names and synonyms and propose links.
With --apply every suggestion is linked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cctx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			suggestions, err := cctx.Engine.SuggestTerms(ctx, minScore)
			if err != nil {
				return err
			}
			applied := 0
			if apply {
				if applied, err = cctx.Engine.ApplySuggestions(ctx, suggestions); err != nil {
					return err
				}
			}

			r := cctx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				if suggestions == nil {
					suggestions = []glossary.Suggestion{}
				}
				return r.JSON(map[string]any{"suggestions": suggestions, "applied": applied})
			}
			r.Header(1, fmt.Sprintf("Suggestions (%d)", len(suggestions)))
			rows := make([][]string, 0, len(suggestions))
			for _, s := range suggestions {
				rows = append(rows, []string{s.Target, s.TermName, fmt.Sprintf("%.2f", s.Score), s.Reason})
			}
			r.Table([]string{"Target", "Term", "Score", "Reason"}, rows)
			if apply {
				r.Success(fmt.Sprintf("Applied %d links", applied))
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&minScore, "min-score", 0.5, "Drop suggestions scoring below this")
	cmd.Flags().BoolVar(&apply, "apply", false, "Link every suggestion")
	return cmd
}

func newGlossaryImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Bulk-load terms from a YAML file",
		Long: `Load terms from a YAML document with a top-level "terms" list.
Terms whose name already exists are updated; list fields are merged.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cctx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			res, err := cctx.Engine.Glossary().ImportYAML(f)
			if err != nil {
				return err
			}
			if err := cctx.Engine.SaveGlossary(cmd.Context()); err != nil {
				return err
			}

			r := cctx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(res)
			}
			r.Success(fmt.Sprintf("Imported %d new and %d updated terms", res.Added, res.Updated))
			return nil
		},
	}
}
