package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/aretw0/casesync/pkg/remote"
)

var (
	serveAddr    string
	serveOffline bool
)

// serveCmd runs the in-memory reference remote.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run an in-memory remote service for notes and tasks",
	Long: `Serve exposes the REST surface the sync engine talks to, backed by memory,
plus Prometheus metrics on /metrics. Data is lost on exit.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		gin.SetMode(gin.ReleaseMode)
		srv := remote.New(remote.Config{
			Resources:   []string{"notes", "tasks"},
			MetricsPath: "/metrics",
			Logger:      slog.Default(),
		})
		srv.SetOffline(serveOffline)

		httpSrv := &http.Server{
			Addr:              serveAddr,
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			slog.Info("remote listening", "addr", serveAddr)
			errCh <- httpSrv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				fatal("Server failed", err)
			}
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				fatal("Shutdown failed", err)
			}
			slog.Info("remote stopped")
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
	serveCmd.Flags().BoolVar(&serveOffline, "offline", false, "start answering 503 on every route")
}
