package cmd

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mediadupfinder/internal/models"
	"mediadupfinder/internal/server"
)

var (
	serveAddr    string
	serveTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve [folder...]",
	Short: "Start the HTTP API for reviewing and cleaning duplicates",
	Long: `Start a local web server exposing scans, duplicate groups, month buckets,
selections and deletes over a JSON API, with live status over a WebSocket.

The server will:
- Start and cancel scans per asset class
- Push status updates to /ws?class=<class>
- Serve listed media under /api/media?id=<asset id>
- Auto-shutdown after idle timeout (when no tab is active)

Example:
  mediadupfinder serve ~/Pictures           # Listen on 127.0.0.1:8080
  mediadupfinder serve -a :3000             # Use custom address
  mediadupfinder serve --timeout 10m        # 10 minute idle timeout`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "", "Address to listen on (overrides config)")
	serveCmd.Flags().DurationVar(&serveTimeout, "timeout", 5*time.Minute, "Idle timeout (0 to disable)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	roots, err := resolveFolders(args)
	if err != nil {
		return err
	}

	a, err := openApp(withRoots(roots), withJSONLogs())
	if err != nil {
		return err
	}
	defer a.Close()

	addr := a.cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	timeout := serveTimeout
	if !cmd.Flags().Changed("timeout") && a.cfg.Server.IdleTimeout > 0 {
		timeout = a.cfg.Server.IdleTimeout
	}

	srv := server.New(a.engine,
		server.WithAddr(addr),
		server.WithIdleTimeout(timeout),
		server.WithLookup(a.lookup),
		server.WithLogger(a.log.With().Str("component", "server").Logger()),
	)

	url := browserURL(addr)
	fmt.Printf("Starting server at %s\n", url)
	fmt.Printf("Idle timeout: %v (resets on activity, pauses when tab is active)\n", timeout)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}

func browserURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// lookup resolves an asset listed in this process or held by a restored group
func (a *app) lookup(id string) (models.AssetRef, bool) {
	if ref, ok := a.lib.Lookup(id); ok {
		return ref, true
	}
	for _, class := range models.AllClasses {
		for _, g := range a.engine.Status(class).Groups {
			for _, m := range g.Members {
				if m.Asset.ID == id {
					return m.Asset, true
				}
			}
		}
		for _, b := range a.engine.MonthBuckets(class) {
			for _, m := range b.Members {
				if m.ID == id {
					return m, true
				}
			}
		}
	}
	return models.AssetRef{}, false
}
