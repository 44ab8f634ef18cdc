package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/koustreak/cloudbox/internal/api"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the data box HTTP API",
	Long: `Serve the data box HTTP API until interrupted.

Routes:
  GET  /boxes
  GET  /boxes/{box}/test
  GET  /boxes/{box}/contents?prefix=&limit=&token=
  PUT  /boxes/{box}/files/{path}
  GET  /boxes/{box}/files/{path}
  GET  /boxes/{box}/signed-url?path=&ttl=
  GET  /boxes/{box}/buckets
  POST /boxes/{box}/buckets
  GET  /metrics
  GET  /healthz`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd, versionCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	cfg := a.cfg.Server
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}
	srv := api.New(api.Options{
		Boxes:          a.boxes,
		Env:            a.env,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Log:            a.log,
	}).HTTPServer(cfg)

	errCh := make(chan error, 1)
	go func() {
		a.log.InfoWith("api listening", map[string]interface{}{"addr": cfg.Addr, "boxes": a.cfg.Boxes.Source})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "cloudbox %s (commit %s, built %s)\n",
			versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
		return err
	},
}
