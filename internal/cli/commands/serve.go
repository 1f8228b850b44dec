package commands

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapmeta/internal/metrics"
	"github.com/leapstack-labs/leapmeta/internal/server"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	Port    int
	Watch   bool
	Collect bool
	Open    bool
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the catalog API and live lineage graph",
		Long: `Start a local web server with:
- a JSON API over assets, lineage, impact, the glossary and collection runs
- the lineage graph page, which reloads when the catalog changes
- Prometheus metrics on /metrics

With --watch, changes to files sources are re-collected automatically.`,
		Example: `  # Serve on the configured port (default 8787)
  leapmeta serve

  # Custom port, re-collect files sources on change
  leapmeta serve --port 3000 --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Port, "port", 0, "Port to serve on (default: server.port or 8787)")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "Re-collect files sources when they change")
	cmd.Flags().BoolVar(&opts.Collect, "collect", true, "Collect every source before serving")
	cmd.Flags().BoolVar(&opts.Open, "open", false, "Open the graph page in a browser")
	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	m := metrics.New()
	cctx, cleanup, err := newCommandContext(cmd, m)
	if err != nil {
		return err
	}
	defer cleanup()

	cfg := cctx.Cfg
	port := cfg.Server.Port
	if opts.Port != 0 {
		port = opts.Port
	}
	watch := cfg.Server.Watch
	if cmd.Flags().Changed("watch") {
		watch = opts.Watch
	}

	ctx := cmd.Context()
	r := cctx.Renderer
	if opts.Collect && len(cfg.Sources) > 0 {
		res, err := cctx.Engine.Collect(ctx, cfg.Sources)
		switch {
		case res == nil:
			return err
		case err != nil:
			r.Warning(fmt.Sprintf("Collection finished with errors: %v", err))
		default:
			r.Success(fmt.Sprintf("Collected %d assets", res.Run.Assets))
		}
		if _, err := cctx.Engine.LoadPipelines(ctx, ""); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.Warning(fmt.Sprintf("Pipelines not loaded: %v", err))
		}
	}

	srv := server.New(server.Config{
		Engine:  cctx.Engine,
		Sources: cfg.Sources,
		Port:    port,
		Watch:   watch,
		Metrics: m,
		Logger:  cctx.Logger,
	})

	url := fmt.Sprintf("http://localhost:%d", port)
	if opts.Open {
		go openBrowser(url)
	}
	r.Println(fmt.Sprintf("Serving the catalog on %s", url))
	r.Muted("Press Ctrl+C to stop")

	return srv.Serve(ctx)
}

// openBrowser opens the default browser to the specified URL.
func openBrowser(url string) {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url) //nolint:noctx
	case "linux":
		cmd = exec.Command("xdg-open", url) //nolint:noctx
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url) //nolint:noctx
	default:
		return
	}

	_ = cmd.Start()
}
