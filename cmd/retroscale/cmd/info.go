package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/retroscale/retroscale/internal/ffmpeg"
)

var infoJSON bool

// infoCmd probes a file and prints what the enhancer would see.
var infoCmd = &cobra.Command{
	Use:   "info FILE",
	Short: "Probe a video file and print its properties",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		detector := ffmpeg.NewDetector(cfg.Encoder.ProbePath, nil)
		props, err := detector.Detect(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if infoJSON {
			out, err := json.MarshalIndent(props, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}

		fmt.Printf("Container:    %s\n", props.Container)
		fmt.Printf("Codec:        %s\n", props.Codec)
		fmt.Printf("Resolution:   %dx%d", props.Width, props.Height)
		if ffmpeg.IsSDResolution(props.Width, props.Height) {
			fmt.Print(" (SD)")
		}
		fmt.Println()
		fmt.Printf("Frame rate:   %.3f (%d/%d)\n", props.FPS, props.FPSNum, props.FPSDen)
		if props.Interlaced {
			fmt.Printf("Interlaced:   yes (%s)\n", props.FieldOrder)
		} else {
			fmt.Println("Interlaced:   no")
		}
		fmt.Printf("Pixel format: %s\n", props.PixelFormat)
		fmt.Printf("Duration:     %.2fs\n", props.Duration)
		fmt.Printf("Frames:       %d\n", props.FrameCount())
		return nil
	},
}

func init() {
	infoCmd.Flags().BoolVar(&infoJSON, "json", false, "output properties as JSON")
	rootCmd.AddCommand(infoCmd)
}
