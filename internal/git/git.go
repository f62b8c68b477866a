// Package git shells out to git for the repository facts the reviewer
// needs: diff text and basic ref metadata.
package git

import (
	"fmt"
	"os/exec"
	"strings"
)

// Client defines the git operations the review pipeline consumes. All
// methods take a path because cr reviews arbitrary repos.
type Client interface {
	RepoRoot(path string) (string, error)
	CurrentBranch(path string) (string, error)
	LastCommitHash(path string) (string, error)
	// Diff returns the unified diff for ref: a "BASE..HEAD" range, a
	// single commit, or "" for uncommitted changes against HEAD.
	Diff(path, ref string) (string, error)
}

// RealClient implements Client using real git commands.
type RealClient struct{}

// NewClient returns a new RealClient.
func NewClient() *RealClient {
	return &RealClient{}
}

func gitCmd(path string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", path}, args...)
	out, err := exec.Command("git", fullArgs...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return string(out), nil
}

func (c *RealClient) RepoRoot(path string) (string, error) {
	out, err := gitCmd(path, "rev-parse", "--show-toplevel")
	return strings.TrimSpace(out), err
}

func (c *RealClient) CurrentBranch(path string) (string, error) {
	out, err := gitCmd(path, "rev-parse", "--abbrev-ref", "HEAD")
	return strings.TrimSpace(out), err
}

func (c *RealClient) LastCommitHash(path string) (string, error) {
	out, err := gitCmd(path, "log", "-1", "--format=%h")
	return strings.TrimSpace(out), err
}

func (c *RealClient) Diff(path, ref string) (string, error) {
	args := []string{"diff", "--no-color", "--no-ext-diff"}
	switch {
	case ref == "":
		args = append(args, "HEAD")
	case strings.Contains(ref, ".."):
		args = append(args, ref)
	default:
		// Single commit: diff against its parent.
		args = append(args, ref+"^", ref)
	}
	return gitCmd(path, args...)
}
