// Package gitops is the outward port to git. The engine never shells
// out directly; commands go through Port so tests substitute fakes and
// the hook stays optional when git is absent.
package gitops

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/specdeck/specdeck/internal/debug"
	"github.com/specdeck/specdeck/internal/spec"
)

// Event classifies what just finished, for cadence matching.
type Event string

const (
	EventTaskCompleted  Event = "task_completed"
	EventPhaseCompleted Event = "phase_completed"
	EventSpecCompleted  Event = "spec_completed"
)

// ShouldOfferCommit reports whether the configured cadence wants a
// commit offered for this event. Manual cadence never auto-offers;
// spec completion always qualifies for non-manual cadences.
func ShouldOfferCommit(cadence spec.CommitCadence, event Event) bool {
	switch cadence {
	case spec.CadenceTask:
		return true
	case spec.CadencePhase:
		return event == EventPhaseCompleted || event == EventSpecCompleted
	default:
		return false
	}
}

// PR describes a created pull request.
type PR struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
}

// Port is the git surface the engine uses.
type Port interface {
	HasChanges(repoRoot string) (bool, error)
	Commit(repoRoot, message string) (sha string, err error)
	Push(repoRoot, branch string) error
	CreatePR(repoRoot, title, body, base string) (PR, error)
}

// CLI runs real git (and gh for PRs) as subprocesses.
type CLI struct{}

var _ Port = CLI{}

// HasChanges reports whether the working tree has staged or unstaged
// changes.
func (CLI) HasChanges(repoRoot string) (bool, error) {
	cmd := exec.Command("git", "status", "--porcelain")
	cmd.Dir = repoRoot
	output, err := cmd.CombinedOutput()
	if err != nil {
		return false, gitError(err, output, "git status")
	}
	return strings.TrimSpace(string(output)) != "", nil
}

// Commit stages everything and commits, returning the new HEAD sha.
func (CLI) Commit(repoRoot, message string) (string, error) {
	addCmd := exec.Command("git", "add", "-A")
	addCmd.Dir = repoRoot
	if output, err := addCmd.CombinedOutput(); err != nil {
		return "", gitError(err, output, "git add")
	}
	commitCmd := exec.Command("git", "commit", "-m", message)
	commitCmd.Dir = repoRoot
	if output, err := commitCmd.CombinedOutput(); err != nil {
		return "", gitError(err, output, "git commit")
	}
	revCmd := exec.Command("git", "rev-parse", "HEAD")
	revCmd.Dir = repoRoot
	output, err := revCmd.CombinedOutput()
	if err != nil {
		return "", gitError(err, output, "git rev-parse")
	}
	sha := strings.TrimSpace(string(output))
	debug.Logf("gitops: committed %s", sha)
	return sha, nil
}

// Push pushes the branch to origin.
func (CLI) Push(repoRoot, branch string) error {
	cmd := exec.Command("git", "push", "origin", branch)
	cmd.Dir = repoRoot
	if output, err := cmd.CombinedOutput(); err != nil {
		return gitError(err, output, "git push")
	}
	return nil
}

// CreatePR creates a pull request through the gh CLI.
func (CLI) CreatePR(repoRoot, title, body, base string) (PR, error) {
	if _, err := exec.LookPath("gh"); err != nil {
		return PR{}, spec.E(spec.KindToolNotFound,
			"gh is not installed; install it from https://cli.github.com or create the PR manually")
	}
	args := []string{"pr", "create", "--title", title, "--body", body}
	if base != "" {
		args = append(args, "--base", base)
	}
	cmd := exec.Command("gh", args...)
	cmd.Dir = repoRoot
	output, err := cmd.CombinedOutput()
	if err != nil {
		return PR{}, gitError(err, output, "gh pr create")
	}
	url := strings.TrimSpace(string(output))
	return PR{URL: url}, nil
}

func gitError(err error, output []byte, what string) error {
	msg := strings.TrimSpace(string(output))
	if msg == "" {
		return spec.Wrap(spec.KindIO, err, "%s failed", what)
	}
	return spec.Wrap(spec.KindIO, fmt.Errorf("%w: %s", err, msg), "%s failed", what)
}

// CurrentBranch returns the checked-out branch name, or "" for a
// detached HEAD.
func CurrentBranch(repoRoot string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = repoRoot
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", gitError(err, output, "git rev-parse")
	}
	branch := strings.TrimSpace(string(output))
	if branch == "HEAD" {
		return "", nil
	}
	return branch, nil
}
