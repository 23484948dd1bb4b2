package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"clinicsync/web"

	"github.com/spf13/cobra"
)

var (
	servePort   int
	serveNoOpen bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local JSON API for imports, backups and RFV scores",
	Long: `Start a local HTTP server bound to 127.0.0.1.

The API accepts spreadsheet uploads for column mapping, validation and import,
lists backups and the import history, restores backups and serves RFV scores.
Prometheus metrics are exposed at /metrics.`,
	Example: `
  # Start local server on default port
  clinicsync serve

  # Start on a custom port against a specific database
  clinicsync serve --port 9090 --db ./clinicsync.db --no-open
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if expired, err := a.backups.ExpireStale(context.Background()); err != nil {
			a.log.WithError(err).Warn("expire stale backups")
		} else if expired > 0 {
			a.log.WithField("expired", expired).Info("expired stale backups")
		}

		handler := web.NewServer(a.service, a.backups, a.store, web.Defaults{
			Backup:      a.cfg.Import.BackupBeforeImport,
			Recalculate: a.cfg.Import.AutoRecalculateAfterImport,
		}, a.log.WithField("component", "web"))

		server := &http.Server{
			Addr:              serveAddr(servePort),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.ListenAndServe()
		}()

		listenURL := fmt.Sprintf("http://localhost:%d", servePort)
		fmt.Printf("Listening on %s\n", listenURL)
		if !serveNoOpen {
			if openErr := openURLInBrowser(listenURL + "/api/import-logs"); openErr != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to open browser: %v\n", openErr)
			}
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-sigCh:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("shutdown server: %w", err)
			}
			err := <-errCh
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVar(&servePort, "port", 8080, "HTTP port for the local web server")
	serveCmd.Flags().BoolVar(&serveNoOpen, "no-open", false, "Do not open browser automatically")
}

// serveAddr keeps the unauthenticated API off external interfaces.
func serveAddr(port int) string {
	return fmt.Sprintf("127.0.0.1:%d", port)
}

func openURLInBrowser(rawURL string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", rawURL)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", rawURL)
	default:
		cmd = exec.Command("xdg-open", rawURL)
	}
	return cmd.Start()
}
