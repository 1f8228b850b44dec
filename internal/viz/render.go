package viz

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/leapstack-labs/leapmeta/internal/lineage"
	"github.com/leapstack-labs/leapmeta/pkg/core"
)

//go:embed lineage.html.tmpl
var htmlTemplate string

var pageTmpl = template.Must(template.New("lineage").Funcs(template.FuncMap{
	"truncate": truncate,
}).Parse(htmlTemplate))

// HTMLOptions configures RenderHTML.
type HTMLOptions struct {
	Title string
	// Generated is shown in the footer; zero means now.
	Generated time.Time
	// LiveReload subscribes the page to /events and reloads on change.
	LiveReload bool
}

type legendEntry struct {
	Type  core.AssetType
	Color string
}

type pageData struct {
	Title      string
	Generated  string
	LiveReload bool
	Layout     *Placement
	Snapshot   *lineage.Snapshot
	Legend     []legendEntry
}

// RenderHTML writes a self-contained HTML page with the graph drawn as
// inline SVG and the snapshot embedded as JSON.
func RenderHTML(w io.Writer, snap *lineage.Snapshot, opts HTMLOptions) error {
	if opts.Title == "" {
		opts.Title = "Data lineage"
		if snap.Focus != "" {
			opts.Title += ": " + snap.Focus
		}
	}
	if opts.Generated.IsZero() {
		opts.Generated = time.Now()
	}

	data := pageData{
		Title:      opts.Title,
		Generated:  opts.Generated.UTC().Format(time.RFC3339),
		LiveReload: opts.LiveReload,
		Layout:     Layout(snap),
		Snapshot:   snap,
	}
	for _, t := range core.AssetTypes {
		data.Legend = append(data.Legend, legendEntry{Type: t, Color: ColorOf(t)})
	}
	if err := pageTmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to render lineage html: %w", err)
	}
	return nil
}

// RenderJSON writes the snapshot as indented JSON.
func RenderJSON(w io.Writer, snap *lineage.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// RenderDOT writes the snapshot as a Graphviz digraph.
func RenderDOT(w io.Writer, snap *lineage.Snapshot) error {
	var b strings.Builder
	b.WriteString("digraph lineage {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box, style=\"rounded,filled\", fontname=\"Helvetica\", fontcolor=white];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n")
	for _, n := range snap.Nodes {
		attrs := []string{
			"label=" + dotQuote(n.Name+"\n"+string(n.Type)),
			"fillcolor=" + dotQuote(ColorOf(n.Type)),
		}
		if n.PII {
			attrs = append(attrs, "color=\"#d62728\"", "penwidth=3")
		}
		if n.Stale {
			attrs = append(attrs, "style=\"rounded,filled,dashed\"")
		}
		fmt.Fprintf(&b, "  %s [%s];\n", dotQuote(n.ID), strings.Join(attrs, ", "))
	}
	for _, e := range snap.Edges {
		fmt.Fprintf(&b, "  %s -> %s", dotQuote(e.From), dotQuote(e.To))
		if e.Job != "" {
			fmt.Fprintf(&b, " [label=%s]", dotQuote(e.Job))
		}
		b.WriteString(";\n")
	}
	b.WriteString("}\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func dotQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}

func truncate(n int, s string) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
