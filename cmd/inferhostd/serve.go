package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"inferhost/internal/host"
	"inferhost/internal/httpapi"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		evalTimeout     time.Duration
		shutdownTimeout time.Duration
		maxBody         int64
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load the core and serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(ctxOf(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reg, err := a.newRegistry()
			if err != nil {
				return err
			}
			if !reg.LoadCore(a.cfg.CorePath) {
				// Keep serving; /readyz reports the core as not loaded.
				a.log.Error().Str("event", "core_unavailable").Str("path", a.cfg.CorePath).
					Str("error", reg.Status().LastError).Msg("serve")
			}
			defer reg.UnloadCore()

			httpapi.SetLogger(a.log)
			httpapi.SetBaseContext(ctx)
			httpapi.SetEvaluateTimeout(evalTimeout)
			httpapi.SetMaxBodyBytes(maxBody)
			if len(a.cfg.CORSOrigins) > 0 {
				httpapi.SetCORSOptions(true, a.cfg.CORSOrigins,
					[]string{http.MethodGet, http.MethodPost, http.MethodOptions},
					[]string{"Content-Type", "X-Log-Level", "X-Request-Id"})
			}

			svc := host.New(reg, a.cfg.ModelsDir, &a.log)
			srv := &http.Server{
				Addr:              a.cfg.Addr,
				Handler:           httpapi.NewMux(svc),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				a.log.Info().Str("event", "listening").Str("addr", a.cfg.Addr).
					Str("core", a.cfg.CorePath).Str("models_dir", a.cfg.ModelsDir).Msg("serve")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			case <-ctx.Done():
			}
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				a.log.Warn().Str("event", "shutdown_error").Err(err).Msg("serve")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&a.addr, "addr", "", "HTTP listen address, e.g. :8080 (default from config)")
	cmd.Flags().StringVar(&a.corsOrigins, "cors-origins", "", "Comma-separated allowed CORS origins (empty disables CORS)")
	cmd.Flags().DurationVar(&evalTimeout, "evaluate-timeout", 0, "Admission timeout per /v1/evaluate request (0 disables)")
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 5*time.Second, "Graceful HTTP shutdown timeout")
	cmd.Flags().Int64Var(&maxBody, "max-body-bytes", 1<<20, "Maximum request body size")
	return cmd
}
