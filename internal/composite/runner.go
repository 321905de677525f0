package composite

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"echvid/internal/textutil"
)

// Runner executes one ffmpeg invocation.
type Runner interface {
	Run(ctx context.Context, binary string, args []string) error
}

// ExecRunner runs the binary as a child process.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, binary string, args []string) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stderr strings.Builder
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", binary, err, textutil.Truncate(strings.TrimSpace(stderr.String()), 400))
	}
	return nil
}
