// Package git is the source-control collaborator (spec §6): it shells out
// to the git binary to materialise a repository working tree, following
// the same os/exec-subprocess idiom internal/runtime uses for nsenter.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/cuemby/temps/internal/paaserr"
)

// RepositoryInfo is the resolved identity of a cloned working tree.
type RepositoryInfo struct {
	WorkspacePath string
	ResolvedRef   string
}

// Client clones and archives git repositories into workflow-scoped
// temporary directories.
type Client struct{}

// NewClient returns a git Client.
func NewClient() *Client {
	return &Client{}
}

// CloneRepository shallow-clones cloneURL at ref (a branch or tag name, as
// `git clone --branch` accepts; a bare commit SHA is not accepted; empty
// means the default branch) into destDir, then resolves the checked-out
// commit. destDir must not already exist.
func (c *Client) CloneRepository(ctx context.Context, cloneURL, ref, destDir string) (*RepositoryInfo, error) {
	args := []string{"clone", "--depth", "1"}
	if ref != "" {
		args = append(args, "--branch", ref)
	}
	args = append(args, cloneURL, destDir)

	if err := c.run(ctx, "", args...); err != nil {
		return nil, paaserr.Wrap(paaserr.KindSourceUnavailable, "git clone failed", err)
	}

	resolved, err := c.resolveHead(ctx, destDir)
	if err != nil {
		return nil, paaserr.Wrap(paaserr.KindSourceUnavailable, "resolving cloned HEAD failed", err)
	}

	return &RepositoryInfo{WorkspacePath: destDir, ResolvedRef: resolved}, nil
}

// DownloadArchive obtains ref by delegating to CloneRepository (a shallow
// clone); it does not attempt a provider archive/tarball download.
func (c *Client) DownloadArchive(ctx context.Context, cloneURL, ref, destDir string) (*RepositoryInfo, error) {
	info, err := c.CloneRepository(ctx, cloneURL, ref, destDir)
	if err != nil {
		return nil, err
	}
	return info, nil
}

func (c *Client) resolveHead(ctx context.Context, repoDir string) (string, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", "-C", repoDir, "rev-parse", "HEAD")
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git rev-parse HEAD: %w", err)
	}
	return strings.TrimSpace(out.String()), nil
}

func (c *Client) run(ctx context.Context, dir string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, stderr.String())
	}
	return nil
}
