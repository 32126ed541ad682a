package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/cli/config"
	httpctrl "github.com/secmon-lab/recall/pkg/controller/http"
	"github.com/secmon-lab/recall/pkg/usecase"
	"github.com/secmon-lab/recall/pkg/utils/logging"
	"github.com/secmon-lab/recall/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

func cmdServe(version string) *cli.Command {
	var addr string
	var authToken string
	var appCfg config.AppConfig
	var repoCfg config.Repository
	var embeddingCfg config.Embedding
	var sentryCfg config.Sentry

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("RECALL_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "auth-token",
			Usage:       "Bearer token required on /query and /upsert (disabled when empty)",
			Category:    "Authentication",
			Sources:     cli.EnvVars("RECALL_AUTH_TOKEN"),
			Destination: &authToken,
		},
	}

	// Add shared config flags
	flags = append(flags, appCfg.Flags()...)
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, embeddingCfg.Flags()...)
	flags = append(flags, sentryCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			flush, err := sentryCfg.Configure(version)
			if err != nil {
				return goerr.Wrap(err, "failed to configure sentry")
			}
			defer flush()

			app, err := appCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to load configuration")
			}

			logger.Info("Configuration loaded",
				slog.GroupAttrs("app", app.LogAttrs()...),
				slog.GroupAttrs("repository", repoCfg.LogAttrs()...),
				slog.GroupAttrs("embedding", embeddingCfg.LogAttrs()...),
				slog.GroupAttrs("sentry", sentryCfg.LogAttrs()...),
				slog.Bool("auth_enabled", authToken != ""),
			)

			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer safe.Close(ctx, repo)

			embeddingSvc, err := embeddingCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize embedding service")
			}

			ucOpts := append([]usecase.Option{usecase.WithEmbedding(embeddingSvc)}, app.UseCaseOptions()...)
			uc := usecase.New(repo, ucOpts...)

			httpServer := httpctrl.New(uc.Memory,
				httpctrl.WithVersion(version),
				httpctrl.WithAuthToken(authToken),
				httpctrl.WithRequestLimits(app.RequestLimits()),
			)

			server := &http.Server{
				Addr:              addr,
				Handler:           httpServer,
				ReadHeaderTimeout: 10 * time.Second,
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			errCh := make(chan error, 1)
			go func() {
				logger.Info("Starting HTTP server", "addr", addr, "version", version)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			// Wait for shutdown signal or server error
			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				logger.Info("Context canceled, shutting down")
			case sig := <-sigCh:
				logger.Info("Received shutdown signal", "signal", sig)
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				return goerr.Wrap(err, "failed to shutdown server gracefully")
			}

			logger.Info("Server shutdown completed")
			return nil
		},
	}
}
