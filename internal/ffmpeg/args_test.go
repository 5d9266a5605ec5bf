package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncoderName(t *testing.T) {
	tests := []struct {
		codec  string
		useGPU bool
		want   string
	}{
		{"hevc", false, "libx265"},
		{"hevc", true, "hevc_nvenc"},
		{"av1", false, "libsvtav1"},
		{"av1", true, "av1_nvenc"},
		{"h264", false, "libx264"},
		{"h264", true, "libx264"},
		{"", false, "libx264"},
		{"vp9", true, "libx264"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, EncoderName(tt.codec, tt.useGPU),
			"codec=%q gpu=%v", tt.codec, tt.useGPU)
	}
}

func TestBuildEncodeArgs(t *testing.T) {
	opts := EncodeOptions{Codec: "hevc", CRF: 20, Preset: "medium"}
	geom := Geometry{Width: 720, Height: 576, FPSNum: 25, FPSDen: 1}

	args := BuildEncodeArgs(opts, geom, "/tmp/out.mp4")

	assert.Equal(t, []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-s", "720x576",
		"-r", "25/1",
		"-i", "-",
		"-c:v", "libx265",
		"-crf", "20",
		"-preset", "medium",
		"-pix_fmt", "yuv420p",
		"/tmp/out.mp4",
	}, args)
}

func TestBuildEncodeArgsFractionalRate(t *testing.T) {
	opts := EncodeOptions{Codec: "av1", CRF: 30, Preset: "fast", UseGPU: true, OutputPixelFormat: "yuv420p10le"}
	geom := Geometry{Width: 720, Height: 480, FPSNum: 30000, FPSDen: 1001}

	args := BuildEncodeArgs(opts, geom, "out.mp4")

	assert.Contains(t, args, "30000/1001")
	assert.Contains(t, args, "av1_nvenc")
	assert.Contains(t, args, "yuv420p10le")
	assert.Equal(t, "out.mp4", args[len(args)-1])
}
