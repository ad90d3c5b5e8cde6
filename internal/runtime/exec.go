package runtime

import (
	"context"
	"fmt"
	"io"
	"os/exec"
)

// execTarStream runs `tar` inside the container's mount namespace via
// nsenter and streams its stdout, the same os/exec + nsenter pattern the
// teacher uses to read a running container's network namespace.
func execTarStream(ctx context.Context, pid uint32, path string) (io.ReadCloser, error) {
	if pid == 0 {
		return nil, fmt.Errorf("container task has no PID")
	}

	cmd := exec.CommandContext(ctx, "nsenter",
		"-t", fmt.Sprintf("%d", pid), "-m", "-u", "-i", "-n", "-p",
		"tar", "-cf", "-", "-C", "/", path)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pipe stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start tar stream: %w", err)
	}

	return &cmdReadCloser{ReadCloser: stdout, cmd: cmd}, nil
}

// cmdReadCloser waits for the underlying command to exit when closed, so
// callers don't leak the nsenter/tar process.
type cmdReadCloser struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (c *cmdReadCloser) Close() error {
	closeErr := c.ReadCloser.Close()
	waitErr := c.cmd.Wait()
	if closeErr != nil {
		return closeErr
	}
	return waitErr
}
