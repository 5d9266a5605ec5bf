package ffmpeg

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript materializes an executable shell script standing in for the
// encoder binary.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-encoder")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func testGeometry() Geometry {
	return Geometry{Width: 4, Height: 4, FPSNum: 25, FPSDen: 1}
}

func TestStreamerHappyPath(t *testing.T) {
	// Consume all of stdin, then succeed.
	bin := writeScript(t, "cat > /dev/null\nexit 0\n")

	s, err := NewStreamer(bin, EncodeOptions{Codec: "hevc", CRF: 20, Preset: "medium"}, testGeometry(), "/dev/null", 0, nil)
	require.NoError(t, err)

	frame := make([]byte, 4*4*3)
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Write(frame))
	}
	assert.NoError(t, s.Finish())

	// Further use is rejected.
	assert.ErrorIs(t, s.Write(frame), ErrAlreadyFinished)
	assert.ErrorIs(t, s.Finish(), ErrAlreadyFinished)
}

func TestStreamerEncodeFailed(t *testing.T) {
	bin := writeScript(t, "cat > /dev/null\necho 'no space left on device' >&2\nexit 1\n")

	s, err := NewStreamer(bin, EncodeOptions{CRF: 20, Preset: "fast"}, testGeometry(), "/dev/null", 0, nil)
	require.NoError(t, err)

	require.NoError(t, s.Write(make([]byte, 48)))

	err = s.Finish()
	var encodeErr *EncodeFailedError
	require.ErrorAs(t, err, &encodeErr)
	assert.Equal(t, 1, encodeErr.ExitCode)
	assert.Contains(t, encodeErr.Stderr, "no space left on device")
}

func TestStreamerBrokenMidStream(t *testing.T) {
	// Encoder dies without reading its input.
	bin := writeScript(t, "echo 'invalid data on input' >&2\nexit 2\n")

	s, err := NewStreamer(bin, EncodeOptions{CRF: 20, Preset: "fast"}, testGeometry(), "/dev/null", 64, nil)
	require.NoError(t, err)

	// Writes must start failing once the process is gone, and must never
	// hang. The small transport buffer forces real pipe writes quickly.
	frame := make([]byte, 48)
	deadline := time.Now().Add(10 * time.Second)
	for {
		require.True(t, time.Now().Before(deadline), "write never failed after encoder death")
		if err = s.Write(frame); err != nil {
			break
		}
	}

	var brokenErr *StreamBrokenError
	require.ErrorAs(t, err, &brokenErr)
	assert.Contains(t, brokenErr.Stderr, "invalid data on input")

	// The streamer is dead after a break.
	assert.ErrorIs(t, s.Write(frame), ErrAlreadyFinished)
}

func TestStreamerFinishAfterEarlyExit(t *testing.T) {
	bin := writeScript(t, "exit 0\n")

	s, err := NewStreamer(bin, EncodeOptions{CRF: 20, Preset: "fast"}, testGeometry(), "/dev/null", 0, nil)
	require.NoError(t, err)

	// A successful exit before end-of-stream still resolves: frames buffered
	// but never delivered surface as a stream break, not a hang.
	for i := 0; i < 1024 && err == nil; i++ {
		err = s.Write(make([]byte, 4096))
	}
	if err == nil {
		err = s.Finish()
	}
	if err != nil {
		var brokenErr *StreamBrokenError
		assert.True(t, errors.As(err, &brokenErr), "unexpected error type: %v", err)
	}
}

func TestNewStreamerRejectsBadGeometry(t *testing.T) {
	_, err := NewStreamer("ffmpeg", EncodeOptions{}, Geometry{Width: 0, Height: 4, FPSNum: 25}, "out.mp4", 0, nil)
	assert.Error(t, err)

	_, err = NewStreamer("ffmpeg", EncodeOptions{}, Geometry{Width: 4, Height: 4, FPSNum: 0}, "out.mp4", 0, nil)
	assert.Error(t, err)
}

func TestNewStreamerMissingBinary(t *testing.T) {
	_, err := NewStreamer(filepath.Join(t.TempDir(), "nonexistent"), EncodeOptions{CRF: 20, Preset: "fast"}, testGeometry(), "out.mp4", 0, nil)
	assert.Error(t, err)
}

func TestStderrTail(t *testing.T) {
	tail := newStderrTail(3)

	_, err := tail.Write([]byte("one\ntwo\n"))
	require.NoError(t, err)
	_, err = tail.Write([]byte("three\nfour\npart"))
	require.NoError(t, err)

	// Oldest line evicted, unterminated partial retained.
	assert.Equal(t, "two\nthree\nfour\npart", tail.Text())
}
