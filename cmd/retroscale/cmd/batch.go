package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/retroscale/retroscale/internal/queue"
)

// batchCmd enhances every video file in the given directories and exits
// once the queue drains.
var batchCmd = &cobra.Command{
	Use:   "batch DIR [DIR...]",
	Short: "Enhance every video file in one or more directories",
	Long: `Scan each directory (non-recursively) for video files and enhance them
with the configured worker pool. Outputs are written as
<name>_enhanced.mp4, into the configured output directory or next to
each input.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		applyEncoderFlags(cmd, cfg)
		logger := slog.Default()

		q, cleanup, err := buildQueue(cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		total := 0
		for _, dir := range args {
			jobs, err := q.AddDirectory(dir)
			if err != nil {
				return err
			}
			total += len(jobs)
		}
		if total == 0 {
			fmt.Println("no video files found")
			return nil
		}
		fmt.Printf("queued %d jobs\n", total)

		q.Start(cmd.Context())
		defer q.Stop()

		for {
			counts := q.Counts()
			if counts[queue.StatusPending]+counts[queue.StatusProcessing] == 0 {
				fmt.Printf("done: %d completed, %d failed\n",
					counts[queue.StatusCompleted], counts[queue.StatusFailed])
				if counts[queue.StatusFailed] > 0 {
					for _, job := range q.GetAllJobs() {
						if job.Status == queue.StatusFailed {
							fmt.Printf("  failed: %s: %s\n", job.Input, job.Error)
						}
					}
					return fmt.Errorf("%d jobs failed", counts[queue.StatusFailed])
				}
				return nil
			}

			select {
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			case <-time.After(200 * time.Millisecond):
			}
		}
	},
}

func init() {
	addEncoderFlags(batchCmd)
	rootCmd.AddCommand(batchCmd)
}
