package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tax-intake/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the document editor to a local browser front end",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// Encrypted files come back as 422 with passwordRequired; the
		// browser resubmits with a password.
		env, err := initEnv(ctx, "serve", true, nil)
		if err != nil {
			return err
		}
		defer env.Close()

		if env.Session.SignedIn() {
			if err := env.Workspace.Reload(ctx); err != nil {
				zap.L().Warn("initial reload failed", zap.Error(err))
			}
		}

		srv := server.New(env.Workspace, env.Flow, env.Session, server.Options{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			MaxUploadBytes: 4 * cfg.Upload.MaxFileBytes(),
			Uploads:        env.Uploads,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
