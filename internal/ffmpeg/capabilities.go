package ffmpeg

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Capabilities reports which optional encode features the host supports.
// Components that need a capability take a provider instead of consulting
// process-wide state, so tests can substitute a fixed answer.
type Capabilities interface {
	// HasNVENC reports whether NVIDIA hardware encoders are usable.
	HasNVENC(ctx context.Context) bool

	// HasEncoder reports whether the named ffmpeg encoder is compiled in.
	HasEncoder(ctx context.Context, name string) bool
}

// HostCapabilities probes the local ffmpeg build once and caches the answer
// for the process lifetime. Safe for concurrent use.
type HostCapabilities struct {
	ffmpegPath string
	timeout    time.Duration
	logger     *slog.Logger
	runner     commandRunner

	once     sync.Once
	encoders map[string]bool
}

// NewHostCapabilities creates a provider backed by the given ffmpeg binary
// (empty = "ffmpeg" from $PATH).
func NewHostCapabilities(ffmpegPath string, logger *slog.Logger) *HostCapabilities {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HostCapabilities{
		ffmpegPath: ffmpegPath,
		timeout:    10 * time.Second,
		logger:     logger,
		runner:     execRunner{},
	}
}

func (c *HostCapabilities) HasNVENC(ctx context.Context) bool {
	return c.HasEncoder(ctx, "hevc_nvenc") || c.HasEncoder(ctx, "h264_nvenc")
}

func (c *HostCapabilities) HasEncoder(ctx context.Context, name string) bool {
	c.probe(ctx)
	return c.encoders[name]
}

func (c *HostCapabilities) probe(ctx context.Context) {
	c.once.Do(func() {
		c.encoders = map[string]bool{}

		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		out, err := c.runner.Output(ctx, c.ffmpegPath, "-hide_banner", "-encoders")
		if err != nil {
			c.logger.Warn("encoder capability probe failed, assuming software only",
				slog.String("error", err.Error()))
			return
		}
		c.encoders = parseEncoderList(out)
		c.logger.Debug("probed encoder capabilities",
			slog.Int("encoders", len(c.encoders)),
			slog.Bool("nvenc", c.encoders["hevc_nvenc"] || c.encoders["h264_nvenc"]),
		)
	})
}

// parseEncoderList extracts encoder names from `ffmpeg -encoders` output.
// Lines look like " V....D libx264    libx264 H.264 / AVC ...".
func parseEncoderList(out []byte) map[string]bool {
	encoders := map[string]bool{}
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		flags := fields[0]
		if len(flags) != 6 || (flags[0] != 'V' && flags[0] != 'A' && flags[0] != 'S') {
			continue
		}
		encoders[fields[1]] = true
	}
	return encoders
}

// StaticCapabilities is a fixed-answer provider for tests and forced
// configuration overrides.
type StaticCapabilities struct {
	NVENC    bool
	Encoders map[string]bool
}

func (s StaticCapabilities) HasNVENC(context.Context) bool { return s.NVENC }

func (s StaticCapabilities) HasEncoder(_ context.Context, name string) bool {
	if s.Encoders == nil {
		return false
	}
	return s.Encoders[name]
}
