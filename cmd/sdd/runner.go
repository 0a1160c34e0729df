package main

import (
	"context"
	"os/exec"
	"syscall"
	"time"

	"github.com/specdeck/specdeck/internal/spec"
)

// verifyTimeout caps a single verification command run.
const verifyTimeout = 10 * time.Minute

// shellRunner executes verify commands through the shell. Exit zero
// is PASSED, anything else FAILED; output is captured for the
// verification record.
type shellRunner struct{}

func (shellRunner) Run(ctx context.Context, command string, node *spec.Node) (spec.VerificationResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = 2 * time.Second
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}

	start := time.Now()
	output, err := cmd.CombinedOutput()
	result := spec.VerificationResult{
		Date:   start.UTC().Format(time.RFC3339),
		Output: truncate(string(output), 16*1024),
	}
	switch {
	case runCtx.Err() != nil:
		result.Status = spec.VerifyFailed
		result.Notes = "verification timed out"
	case err != nil:
		result.Status = spec.VerifyFailed
		result.Notes = err.Error()
	default:
		result.Status = spec.VerifyPassed
	}
	return result, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
