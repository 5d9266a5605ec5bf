package decoder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/retroscale/retroscale/internal/ffmpeg"
	"github.com/retroscale/retroscale/internal/frame"
)

// PipeOpener decodes through an ffmpeg subprocess emitting packed RGB frames
// on stdout. It is the portable strategy: anything ffmpeg can demux works.
type PipeOpener struct {
	binary  string
	hwaccel string // extra input flag, e.g. "cuda"; empty for software
	caps    ffmpeg.Capabilities
	logger  *slog.Logger
	availMu sync.Mutex
	avail   *bool
}

// NewPipeOpener creates the software decode strategy (empty binary =
// "ffmpeg" from $PATH).
func NewPipeOpener(binary string, logger *slog.Logger) *PipeOpener {
	if binary == "" {
		binary = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PipeOpener{binary: binary, logger: logger}
}

// NewHardwarePipeOpener creates a CUDA-accelerated decode strategy. It is
// available only when the capability provider reports NVIDIA support.
func NewHardwarePipeOpener(binary string, caps ffmpeg.Capabilities, logger *slog.Logger) *PipeOpener {
	o := NewPipeOpener(binary, logger)
	o.hwaccel = "cuda"
	o.caps = caps
	return o
}

func (o *PipeOpener) Name() string {
	if o.hwaccel != "" {
		return "ffmpeg-pipe-" + o.hwaccel
	}
	return "ffmpeg-pipe"
}

func (o *PipeOpener) Available(ctx context.Context) bool {
	o.availMu.Lock()
	defer o.availMu.Unlock()

	if o.avail == nil {
		_, err := exec.LookPath(o.binary)
		ok := err == nil
		o.avail = &ok
	}
	if !*o.avail {
		return false
	}
	if o.hwaccel != "" && o.caps != nil && !o.caps.HasNVENC(ctx) {
		return false
	}
	return true
}

func (o *PipeOpener) Open(ctx context.Context, path string, props *ffmpeg.Properties) (frame.Clip, error) {
	if props == nil || props.Width <= 0 || props.Height <= 0 {
		return nil, fmt.Errorf("decoder needs probed geometry for %s", path)
	}

	args := []string{"-hide_banner", "-loglevel", "error"}
	if o.hwaccel != "" {
		args = append(args, "-hwaccel", o.hwaccel)
	}
	args = append(args,
		"-i", path,
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	)

	cmd := exec.CommandContext(ctx, o.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("opening decoder stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting decoder %s: %w", o.binary, err)
	}

	return &pipeClip{
		cmd:    cmd,
		r:      bufio.NewReaderSize(stdout, props.Width*props.Height*3),
		width:  props.Width,
		height: props.Height,
		fpsNum: props.FPSNum,
		fpsDen: props.FPSDen,
		frames: props.FrameCount(),
		logger: o.logger,
	}, nil
}

// pipeClip reads packed RGB frames off a decoder subprocess. Access is
// strictly sequential; requesting an earlier index fails.
type pipeClip struct {
	cmd    *exec.Cmd
	r      *bufio.Reader
	width  int
	height int
	fpsNum int
	fpsDen int
	frames int
	next   int
	closed bool
	logger *slog.Logger
}

func (c *pipeClip) NumFrames() int { return c.frames }
func (c *pipeClip) Width() int     { return c.width }
func (c *pipeClip) Height() int    { return c.height }

func (c *pipeClip) FPS() (int, int) {
	den := c.fpsDen
	if den <= 0 {
		den = 1
	}
	return c.fpsNum, den
}

func (c *pipeClip) GetFrame(ctx context.Context, index int) (*frame.Frame, error) {
	if c.closed {
		return nil, fmt.Errorf("clip is closed")
	}
	if index < c.next {
		return nil, fmt.Errorf("frame %d already consumed (stream position %d)", index, c.next)
	}

	buf := make([]byte, c.width*c.height*3)
	for c.next <= index {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(c.r, buf); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil, fmt.Errorf("decoder stream ended at frame %d of %d: %w", c.next, c.frames, io.EOF)
			}
			return nil, fmt.Errorf("reading frame %d: %w", c.next, err)
		}
		c.next++
	}
	return frame.NewRGB8(c.width, c.height, buf)
}

func (c *pipeClip) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	// The decoder may still be mid-stream; kill it rather than drain it.
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	err := c.cmd.Wait()
	if err != nil {
		// Expected when we killed it.
		c.logger.Debug("decoder subprocess terminated", slog.String("result", err.Error()))
	}
	return nil
}
