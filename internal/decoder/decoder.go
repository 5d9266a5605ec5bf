// Package decoder turns input files into frame.Clip streams. Several opener
// strategies exist with different host requirements; a Chain walks them in
// preference order and uses the first one available.
package decoder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/retroscale/retroscale/internal/ffmpeg"
	"github.com/retroscale/retroscale/internal/frame"
)

// Opener is one strategy for opening a video file as a clip.
type Opener interface {
	// Name identifies the strategy in logs and errors.
	Name() string

	// Available reports whether the strategy can run on this host. The
	// answer may be cached; it does not depend on any particular input.
	Available(ctx context.Context) bool

	// Open opens the file as a clip. The probed properties are authoritative
	// for geometry and frame rate.
	Open(ctx context.Context, path string, props *ffmpeg.Properties) (frame.Clip, error)
}

// UnavailableError indicates no opener in the chain was usable on this host.
// It is a configuration problem, not an input problem.
type UnavailableError struct {
	Tried []string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("no usable decoder on this host (tried %s)", strings.Join(e.Tried, ", "))
}

// Chain tries openers in order and opens with the first available one.
// Availability is a host property, so a strategy that is available but fails
// on a given file does not fall through to the next one; that failure is the
// file's problem.
type Chain struct {
	openers []Opener
	logger  *slog.Logger
}

// NewChain builds a chain over the given openers in preference order.
func NewChain(logger *slog.Logger, openers ...Opener) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{openers: openers, logger: logger}
}

// Open opens path with the first available strategy.
func (c *Chain) Open(ctx context.Context, path string, props *ffmpeg.Properties) (frame.Clip, error) {
	tried := make([]string, 0, len(c.openers))
	for _, o := range c.openers {
		if !o.Available(ctx) {
			tried = append(tried, o.Name())
			c.logger.Debug("decoder unavailable, trying next", slog.String("decoder", o.Name()))
			continue
		}
		c.logger.Debug("opening input", slog.String("decoder", o.Name()), slog.String("path", path))
		return o.Open(ctx, path, props)
	}
	return nil, &UnavailableError{Tried: tried}
}
