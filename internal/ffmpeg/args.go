// Package ffmpeg wraps the external encoder/prober binaries: codec argument
// mapping, the raw-frame streaming protocol, format detection, and
// capability probing.
package ffmpeg

import (
	"fmt"
	"strconv"
)

// EncodeOptions selects the output codec configuration for one export.
// Immutable for the session's lifetime.
type EncodeOptions struct {
	Codec             string // hevc, av1; anything else falls back to h264
	CRF               int
	Preset            string
	UseGPU            bool
	OutputPixelFormat string // applied on the encoder output, default yuv420p
}

// Geometry describes the raw-video input fed to the encoder.
type Geometry struct {
	Width  int
	Height int
	FPSNum int
	FPSDen int
}

// EncoderName maps (codec, gpu) to the ffmpeg encoder implementation.
// Unknown codecs fall back to libx264.
func EncoderName(codec string, useGPU bool) string {
	switch codec {
	case "hevc":
		if useGPU {
			return "hevc_nvenc"
		}
		return "libx265"
	case "av1":
		if useGPU {
			return "av1_nvenc"
		}
		return "libsvtav1"
	default:
		return "libx264"
	}
}

// BuildEncodeArgs assembles the full ffmpeg argument list for one export:
// packed RGB frames on stdin, encoded file at outputPath.
func BuildEncodeArgs(opts EncodeOptions, geom Geometry, outputPath string) []string {
	pixFmt := opts.OutputPixelFormat
	if pixFmt == "" {
		pixFmt = "yuv420p"
	}
	den := geom.FPSDen
	if den <= 0 {
		den = 1
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-s", fmt.Sprintf("%dx%d", geom.Width, geom.Height),
		"-r", fmt.Sprintf("%d/%d", geom.FPSNum, den),
		"-i", "-",
		"-c:v", EncoderName(opts.Codec, opts.UseGPU),
		"-crf", strconv.Itoa(opts.CRF),
		"-preset", opts.Preset,
		"-pix_fmt", pixFmt,
	}
	return append(args, outputPath)
}
