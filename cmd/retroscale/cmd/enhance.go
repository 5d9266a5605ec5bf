package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/retroscale/retroscale/internal/config"
	"github.com/retroscale/retroscale/internal/pipeline"
)

// enhanceCmd runs one file through the pipeline in the foreground.
var enhanceCmd = &cobra.Command{
	Use:   "enhance INPUT [OUTPUT]",
	Short: "Enhance a single video file",
	Long: `Enhance one video file and exit. When OUTPUT is omitted the result is
written next to the input as <name>_enhanced.mp4.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		applyEncoderFlags(cmd, cfg)

		input := args[0]
		output := deriveOutput(input, cfg.Storage.OutputDir)
		if len(args) == 2 {
			output = args[1]
		}

		p := pipeline.NewDefault(cfg, slog.Default())

		lastPercent := -1
		progress := func(stage pipeline.Stage, percent float64) {
			pct := int(percent)
			if pct == lastPercent {
				return
			}
			lastPercent = pct
			fmt.Fprintf(os.Stderr, "\r%-10s %3d%%", stage, pct)
			if stage == pipeline.StageDone {
				fmt.Fprintln(os.Stderr)
			}
		}

		result, err := p.Process(cmd.Context(), input, output, progress)
		if err != nil {
			fmt.Fprintln(os.Stderr)
			return err
		}
		fmt.Printf("%s -> %s (%d frames)\n", result.Input, result.Output, result.Frames)
		return nil
	},
}

// applyEncoderFlags overrides encoder configuration with explicitly set
// CLI flags.
func applyEncoderFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("codec") {
		cfg.Encoder.Codec, _ = cmd.Flags().GetString("codec")
	}
	if cmd.Flags().Changed("crf") {
		cfg.Encoder.CRF, _ = cmd.Flags().GetInt("crf")
	}
	if cmd.Flags().Changed("preset") {
		cfg.Encoder.Preset, _ = cmd.Flags().GetString("preset")
	}
	if cmd.Flags().Changed("gpu") {
		cfg.Encoder.UseGPU, _ = cmd.Flags().GetBool("gpu")
	}
}

func addEncoderFlags(cmd *cobra.Command) {
	cmd.Flags().String("codec", "", "output codec (hevc, av1, h264)")
	cmd.Flags().Int("crf", 0, "constant rate factor (0-51, lower is better)")
	cmd.Flags().String("preset", "", "encoder preset (ultrafast..veryslow)")
	cmd.Flags().Bool("gpu", false, "use NVIDIA hardware encoding when available")
}

func deriveOutput(input, outputDir string) string {
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	dir := outputDir
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, stem+"_enhanced.mp4")
}

func init() {
	addEncoderFlags(enhanceCmd)
	rootCmd.AddCommand(enhanceCmd)
}
