package ffmpeg

import (
	"context"
	"os/exec"
)

// commandRunner abstracts subprocess invocation so probing code can be
// tested against canned output.
type commandRunner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}
