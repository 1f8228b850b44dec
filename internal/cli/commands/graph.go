package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapmeta/internal/lineage"
	"github.com/leapstack-labs/leapmeta/internal/viz"
)

// DefaultGraphFile is where the HTML graph is written when -f is not given.
const DefaultGraphFile = "lineage_graph.html"

// GraphOptions holds options for the graph command.
type GraphOptions struct {
	Format  string
	Focus   string
	Depth   int
	Columns bool
	File    string
}

// NewGraphCommand creates the graph command.
func NewGraphCommand() *cobra.Command {
	opts := &GraphOptions{}
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the lineage graph",
		Long: `Render the lineage graph as a self-contained HTML page, JSON or Graphviz DOT.

HTML is written to ` + DefaultGraphFile + ` in the project root unless -f is
given; JSON and DOT go to stdout. Use -f - to force stdout.`,
		Example: `  # Write lineage_graph.html
  leapmeta graph

  # Two hops around one asset, as DOT piped to Graphviz
  leapmeta graph --format dot --focus warehouse.marts.customer_revenue --depth 2 | dot -Tsvg > graph.svg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGraph(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Format, "format", "html", "Output format: html, json, dot")
	cmd.Flags().StringVar(&opts.Focus, "focus", "", "Only the neighbourhood of this asset")
	cmd.Flags().IntVar(&opts.Depth, "depth", 0, "Neighbourhood depth around --focus (0 = unlimited)")
	cmd.Flags().BoolVar(&opts.Columns, "columns", true, "Include column-level edges")
	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "Output file (- for stdout)")
	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"html", "json", "dot"}, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func runGraph(cmd *cobra.Command, opts *GraphOptions) error {
	var render func(io.Writer, *lineage.Snapshot) error
	switch opts.Format {
	case "html":
		render = func(w io.Writer, snap *lineage.Snapshot) error {
			return viz.RenderHTML(w, snap, viz.HTMLOptions{})
		}
	case "json":
		render = viz.RenderJSON
	case "dot":
		render = viz.RenderDOT
	default:
		return fmt.Errorf("unknown format %q (want html, json or dot)", opts.Format)
	}

	cctx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	snap, err := cctx.Engine.Graph(cmd.Context(), lineage.GraphOptions{
		Focus:   opts.Focus,
		Depth:   opts.Depth,
		Columns: opts.Columns,
	})
	if err != nil {
		return err
	}

	path := opts.File
	if path == "" && opts.Format == "html" {
		path = filepath.Join(cctx.Cfg.ProjectRoot, DefaultGraphFile)
	}
	if path == "" || path == "-" {
		return render(cmd.OutOrStdout(), snap)
	}

	f, err := os.Create(path) //nolint:gosec // G304: path comes from the command line
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	if err := render(w, snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	cctx.Renderer.Success(fmt.Sprintf("Wrote %s (%d assets, %d edges)", path, len(snap.Nodes), len(snap.Edges)))
	return nil
}
