package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/retroscale/retroscale/internal/http"
	"github.com/retroscale/retroscale/internal/watcher"
)

// serveCmd runs the long-lived service: worker pool, HTTP API, and the
// optional drop-directory watcher.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the enhancement service with its HTTP API",
	Long: `Run retroscale as a service. Jobs are accepted over the HTTP API and,
when watch.dir is configured, from a watched drop directory. Job state
is mirrored to the database when one is enabled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := slog.Default()

		q, cleanup, err := buildQueue(cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		q.Start(cmd.Context())
		defer q.Stop()

		if cfg.Watch.Dir != "" {
			w, err := watcher.New(cfg.Watch.Dir, cfg.Watch.SettleDelay.AsDuration(), q.IsVideoFile,
				func(path string) { q.AddJob(path, "") }, logger)
			if err != nil {
				return err
			}
			defer w.Close()
			if err := w.Start(); err != nil {
				return err
			}
			if err := w.Rescan(); err != nil {
				return err
			}

			if cfg.Watch.RescanCron != "" {
				scheduler := cron.New()
				if _, err := scheduler.AddFunc(cfg.Watch.RescanCron, func() {
					if err := w.Rescan(); err != nil {
						logger.Warn("scheduled rescan failed", slog.String("error", err.Error()))
					}
				}); err != nil {
					return err
				}
				scheduler.Start()
				defer scheduler.Stop()
			}
		}

		srv := http.NewServer(cfg.Server, q, logger)

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case <-stop:
			logger.Info("shutting down")
		case <-cmd.Context().Done():
		}

		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Warn("http shutdown incomplete", slog.String("error", err.Error()))
		}
		return <-errCh
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
