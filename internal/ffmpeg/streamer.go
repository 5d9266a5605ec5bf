package ffmpeg

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// DefaultWriteBuffer sizes the stdin transport buffer when the caller does
// not supply one. Frame-sized writes should not degenerate into many small
// syscalls.
const DefaultWriteBuffer = 4 * 1024 * 1024

// Streamer owns one encoder subprocess for the lifetime of one export. It
// writes normalized frame bytes to the encoder's stdin in order, monitors
// the process exit status, and reports byte-level write failures.
//
// The subprocess's stdout is discarded and its stderr is drained into a
// bounded in-memory tail; neither is ever left as a blocking pipe, which
// would deadlock the export once the kernel buffer fills.
//
// A Streamer is not safe for concurrent use; exactly one export session
// drives it.
type Streamer struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	bw     *bufio.Writer
	stderr *stderrTail
	logger *slog.Logger

	waitCh  chan struct{}
	waitErr error

	finished bool
}

// NewStreamer launches the encoder subprocess for one export and returns a
// Streamer connected to its stdin. bufSize <= 0 selects DefaultWriteBuffer.
func NewStreamer(binary string, opts EncodeOptions, geom Geometry, outputPath string, bufSize int, logger *slog.Logger) (*Streamer, error) {
	if geom.Width <= 0 || geom.Height <= 0 {
		return nil, fmt.Errorf("invalid frame geometry %dx%d", geom.Width, geom.Height)
	}
	if geom.FPSNum <= 0 {
		return nil, fmt.Errorf("invalid frame rate %d/%d", geom.FPSNum, geom.FPSDen)
	}
	if binary == "" {
		binary = "ffmpeg"
	}
	if bufSize <= 0 {
		bufSize = DefaultWriteBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}

	args := BuildEncodeArgs(opts, geom, outputPath)
	tail := newStderrTail(64)

	cmd := exec.Command(binary, args...)
	cmd.Stderr = tail
	// Stdout stays nil: exec connects it to the null device. The encoder
	// writes its file directly; anything on stdout must not back up while
	// the parent is only driving stdin.

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("opening encoder stdin: %w", err)
	}

	logger.Debug("starting encoder",
		slog.String("binary", binary),
		slog.String("output", outputPath),
		slog.String("encoder", EncoderName(opts.Codec, opts.UseGPU)),
		slog.String("size", fmt.Sprintf("%dx%d", geom.Width, geom.Height)),
	)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting encoder %s: %w", binary, err)
	}

	s := &Streamer{
		cmd:    cmd,
		stdin:  stdin,
		bw:     bufio.NewWriterSize(stdin, bufSize),
		stderr: tail,
		logger: logger,
		waitCh: make(chan struct{}),
	}

	// Reap the process as soon as it exits so a premature death is
	// observable from Write instead of hanging a full transport buffer.
	go func() {
		s.waitErr = cmd.Wait()
		close(s.waitCh)
	}()

	return s, nil
}

// Write appends one normalized frame's raw bytes to the encoder's input
// stream, in frame order. It fails with a StreamBrokenError if the
// subprocess has already terminated; it never hangs on a dead encoder.
func (s *Streamer) Write(buf []byte) error {
	if s.finished {
		return ErrAlreadyFinished
	}

	select {
	case <-s.waitCh:
		return s.broken(errors.New("encoder exited before end of stream"))
	default:
	}

	if _, err := s.bw.Write(buf); err != nil {
		return s.broken(err)
	}
	return nil
}

// Finish closes the input stream to signal end-of-stream, blocks until the
// subprocess exits, and fails with an EncodeFailedError if the exit code is
// non-zero. Finish must be called at most once; Write after Finish fails.
func (s *Streamer) Finish() error {
	if s.finished {
		return ErrAlreadyFinished
	}
	s.finished = true

	flushErr := s.bw.Flush()
	// The exec package closes our end of the pipe once it sees the process
	// exit, so a close error here only matters if the flush succeeded.
	if err := s.stdin.Close(); err != nil && flushErr == nil && !errors.Is(err, os.ErrClosed) {
		flushErr = err
	}

	<-s.waitCh

	if s.waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(s.waitErr, &exitErr) {
			return &EncodeFailedError{ExitCode: exitErr.ExitCode(), Stderr: s.stderr.Text()}
		}
		return fmt.Errorf("waiting for encoder: %w", s.waitErr)
	}

	if flushErr != nil {
		return &StreamBrokenError{Stderr: s.stderr.Text(), Err: flushErr}
	}

	s.logger.Debug("encoder finished")
	return nil
}

// broken tears the streamer down after a mid-write failure: closes the
// input, waits for the exit so stderr is fully drained, and surfaces the
// diagnostic text.
func (s *Streamer) broken(cause error) error {
	s.finished = true
	_ = s.stdin.Close()
	<-s.waitCh
	return &StreamBrokenError{Stderr: s.stderr.Text(), Err: cause}
}

// stderrTail is an io.Writer retaining the last maxLines lines written to
// it. It is the discard sink for the encoder's stderr: it never blocks the
// pipe, and the retained tail is surfaced on failure.
type stderrTail struct {
	mu       sync.Mutex
	lines    []string
	partial  strings.Builder
	maxLines int
}

func newStderrTail(maxLines int) *stderrTail {
	return &stderrTail{maxLines: maxLines}
}

func (t *stderrTail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, b := range p {
		if b == '\n' {
			t.push(t.partial.String())
			t.partial.Reset()
			continue
		}
		t.partial.WriteByte(b)
	}
	return len(p), nil
}

func (t *stderrTail) push(line string) {
	if len(t.lines) >= t.maxLines {
		t.lines = t.lines[1:]
	}
	t.lines = append(t.lines, line)
}

// Text returns the retained stderr tail as a single string.
func (t *stderrTail) Text() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	lines := t.lines
	if t.partial.Len() > 0 {
		lines = append(append([]string{}, lines...), t.partial.String())
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
