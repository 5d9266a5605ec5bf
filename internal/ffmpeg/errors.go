package ffmpeg

import (
	"errors"
	"fmt"
)

// Sentinel errors for boundary conditions.
var (
	// ErrFileNotFound indicates the input path does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrAlreadyFinished indicates a write or finish after Finish returned.
	ErrAlreadyFinished = errors.New("streamer already finished")
)

// FormatError indicates detection could not determine usable properties for
// a file. It is fatal to the job that references the file.
type FormatError struct {
	Path   string
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot detect video format of %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("cannot detect video format of %s: %s", e.Path, e.Reason)
}

func (e *FormatError) Unwrap() error { return e.Err }

// StreamBrokenError indicates the encoder subprocess terminated while frames
// were still being written. Fatal to the current export; Stderr carries the
// drained diagnostic output.
type StreamBrokenError struct {
	Stderr string
	Err    error
}

func (e *StreamBrokenError) Error() string {
	msg := "encoder pipe closed mid-write"
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Stderr != "" {
		msg = fmt.Sprintf("%s (encoder output: %s)", msg, e.Stderr)
	}
	return msg
}

func (e *StreamBrokenError) Unwrap() error { return e.Err }

// EncodeFailedError indicates the encoder subprocess exited non-zero after
// end-of-stream. Fatal; diagnostic text attached.
type EncodeFailedError struct {
	ExitCode int
	Stderr   string
}

func (e *EncodeFailedError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("encoder exited with code %d: %s", e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("encoder exited with code %d", e.ExitCode)
}
