package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Properties describes a probed input file: everything downstream stages
// need to decide deinterlacing, geometry, and frame count.
type Properties struct {
	Container   string  `json:"container"`
	Codec       string  `json:"codec"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	FPS         float64 `json:"fps"`
	FPSNum      int     `json:"fps_num"`
	FPSDen      int     `json:"fps_den"`
	Interlaced  bool    `json:"interlaced"`
	FieldOrder  string  `json:"field_order,omitempty"` // tff or bff when interlaced
	Duration    float64 `json:"duration"`              // seconds
	PixelFormat string  `json:"pixel_format,omitempty"`
	NumFrames   int     `json:"num_frames,omitempty"` // 0 when the container does not record it
}

// FrameCount returns the container-recorded frame count, or an estimate
// from duration and rate when the container does not record one.
func (p *Properties) FrameCount() int {
	if p.NumFrames > 0 {
		return p.NumFrames
	}
	if p.Duration > 0 && p.FPS > 0 {
		return int(p.Duration*p.FPS + 0.5)
	}
	return 0
}

// probeOutput mirrors the subset of ffprobe's JSON output we consume.
type probeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
	Streams []probeStream `json:"streams"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	PixFmt       string `json:"pix_fmt"`
	FieldOrder   string `json:"field_order"`
	AvgFrameRate string `json:"avg_frame_rate"`
	RFrameRate   string `json:"r_frame_rate"`
	NumFrames    string `json:"nb_frames"`
	Duration     string `json:"duration"`
}

// Detector probes input files with ffprobe.
type Detector struct {
	ffprobePath string
	timeout     time.Duration
	logger      *slog.Logger
	runner      commandRunner
}

// NewDetector creates a detector using the given ffprobe binary
// (empty = "ffprobe" from $PATH).
func NewDetector(ffprobePath string, logger *slog.Logger) *Detector {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		ffprobePath: ffprobePath,
		timeout:     30 * time.Second,
		logger:      logger,
		runner:      execRunner{},
	}
}

// WithTimeout sets the probe timeout.
func (d *Detector) WithTimeout(timeout time.Duration) *Detector {
	d.timeout = timeout
	return d
}

// Detect probes a video file and returns its properties. It fails with
// ErrFileNotFound if the path does not exist and with a FormatError if the
// properties cannot be determined.
func (d *Detector) Detect(ctx context.Context, path string) (*Properties, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}
	out, err := d.runner.Output(ctx, d.ffprobePath, args...)
	if err != nil {
		return nil, &FormatError{Path: path, Reason: "ffprobe failed", Err: err}
	}

	props, err := parseProbeOutput(path, out)
	if err != nil {
		return nil, err
	}

	d.logger.Debug("detected video properties",
		slog.String("path", path),
		slog.String("container", props.Container),
		slog.String("codec", props.Codec),
		slog.Int("width", props.Width),
		slog.Int("height", props.Height),
		slog.Float64("fps", props.FPS),
		slog.Bool("interlaced", props.Interlaced),
	)
	return props, nil
}

// ValidateFile reports whether the path is a readable file with at least
// one video stream.
func (d *Detector) ValidateFile(ctx context.Context, path string) bool {
	_, err := d.Detect(ctx, path)
	return err == nil
}

// parseProbeOutput extracts Properties from raw ffprobe JSON.
func parseProbeOutput(path string, raw []byte) (*Properties, error) {
	var out probeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &FormatError{Path: path, Reason: "unparsable probe output", Err: err}
	}

	var video *probeStream
	for i := range out.Streams {
		if out.Streams[i].CodecType == "video" {
			video = &out.Streams[i]
			break
		}
	}
	if video == nil {
		return nil, &FormatError{Path: path, Reason: "no video stream"}
	}
	if video.Width <= 0 || video.Height <= 0 {
		return nil, &FormatError{Path: path, Reason: "stream has no usable dimensions"}
	}

	num, den, fps := parseRate(video.AvgFrameRate)
	if fps <= 0 {
		num, den, fps = parseRate(video.RFrameRate)
	}
	if fps <= 0 {
		// Probe could not determine a rate; assume PAL like the classic SD
		// sources this tool targets.
		num, den, fps = 25, 1, 25.0
	}

	interlaced, fieldOrder := parseFieldOrder(video.FieldOrder)

	duration, _ := strconv.ParseFloat(out.Format.Duration, 64)
	if duration == 0 {
		duration, _ = strconv.ParseFloat(video.Duration, 64)
	}
	numFrames, _ := strconv.Atoi(video.NumFrames)

	return &Properties{
		Container:   out.Format.FormatName,
		Codec:       video.CodecName,
		Width:       video.Width,
		Height:      video.Height,
		FPS:         fps,
		FPSNum:      num,
		FPSDen:      den,
		Interlaced:  interlaced,
		FieldOrder:  fieldOrder,
		Duration:    duration,
		PixelFormat: video.PixFmt,
		NumFrames:   numFrames,
	}, nil
}

// parseRate parses an ffprobe rational like "30000/1001" or "25".
func parseRate(s string) (num, den int, fps float64) {
	if s == "" || s == "0/0" {
		return 0, 0, 0
	}
	if n, d, ok := strings.Cut(s, "/"); ok {
		numV, err1 := strconv.Atoi(n)
		denV, err2 := strconv.Atoi(d)
		if err1 != nil || err2 != nil || numV <= 0 || denV <= 0 {
			return 0, 0, 0
		}
		return numV, denV, float64(numV) / float64(denV)
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return 0, 0, 0
	}
	return v, 1, float64(v)
}

// parseFieldOrder maps ffprobe field_order values to an interlaced flag and
// a tff/bff label. Progressive or unknown orders report progressive.
func parseFieldOrder(order string) (bool, string) {
	switch order {
	case "tt", "tb":
		return true, "tff"
	case "bt", "bb":
		return true, "bff"
	default:
		return false, ""
	}
}

// IsSDResolution reports whether the dimensions are standard definition
// (720x480 NTSC, 720x576 PAL, 640x480 and smaller).
func IsSDResolution(width, height int) bool {
	return width <= 720 && height <= 576
}
