package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/retroscale/retroscale/internal/watcher"
)

// watchCmd keeps a drop directory under observation and enhances whatever
// lands in it.
var watchCmd = &cobra.Command{
	Use:   "watch [DIR]",
	Short: "Watch a directory and enhance new video files",
	Long: `Watch a drop directory for new video files and enqueue each one once it
has settled (stopped growing). An optional cron schedule rescans the
directory to catch files missed by filesystem events. Runs until
interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		applyEncoderFlags(cmd, cfg)
		logger := slog.Default()

		dir := cfg.Watch.Dir
		if len(args) == 1 {
			dir = args[0]
		}
		if dir == "" {
			return fmt.Errorf("no watch directory: pass DIR or set watch.dir")
		}

		q, cleanup, err := buildQueue(cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		q.Start(cmd.Context())
		defer q.Stop()

		w, err := watcher.New(dir, cfg.Watch.SettleDelay.AsDuration(), q.IsVideoFile,
			func(path string) { q.AddJob(path, "") }, logger)
		if err != nil {
			return err
		}
		defer w.Close()

		if err := w.Start(); err != nil {
			return err
		}
		// Pick up what was already in the directory before we started.
		if err := w.Rescan(); err != nil {
			return err
		}

		var scheduler *cron.Cron
		if cfg.Watch.RescanCron != "" {
			scheduler = cron.New()
			if _, err := scheduler.AddFunc(cfg.Watch.RescanCron, func() {
				if err := w.Rescan(); err != nil {
					logger.Warn("scheduled rescan failed", slog.String("error", err.Error()))
				}
			}); err != nil {
				return fmt.Errorf("invalid rescan schedule %q: %w", cfg.Watch.RescanCron, err)
			}
			scheduler.Start()
			defer scheduler.Stop()
		}

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-stop:
			logger.Info("shutting down")
		case <-cmd.Context().Done():
		}
		return nil
	},
}

func init() {
	addEncoderFlags(watchCmd)
	rootCmd.AddCommand(watchCmd)
}
