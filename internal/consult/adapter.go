package consult

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/specdeck/specdeck/internal/debug"
)

// stderrTailLimit bounds how much stderr is kept for failure reports.
const stderrTailLimit = 64 * 1024

// killGrace is the window between SIGTERM and SIGKILL on timeout.
const killGrace = 2 * time.Second

// streamLine is one NDJSON record on a provider's stdout.
type streamLine struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Message string `json:"message"`
}

// runner executes one provider subprocess. It is a var so tests swap
// in fakes without spawning processes.
type runner func(ctx context.Context, p Provider, model, prompt string, sub Subscriber) (ToolResponse, *Failure)

// runProvider spawns the provider, streams stdout and normalizes the
// outcome. The returned Failure is nil on success.
func runProvider(ctx context.Context, p Provider, model, prompt string, sub Subscriber) (ToolResponse, *Failure) {
	resp := ToolResponse{Tool: p.Tool, Model: model}
	if _, err := exec.LookPath(p.Command); err != nil {
		return resp, &Failure{Tool: p.Tool, Category: FailNotInstalled}
	}

	runCtx, cancel := context.WithTimeout(ctx, p.Timeout())
	defer cancel()

	args := append([]string(nil), p.Flags...)
	if model != "" {
		args = append(args, "--model", model)
	}
	if !p.PromptViaStdin {
		args = append(args, prompt)
	}
	cmd := exec.Command(p.Command, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if p.PromptViaStdin {
		cmd.Stdin = strings.NewReader(prompt)
	}
	var stderr tailBuffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return resp, &Failure{Tool: p.Tool, Category: FailMalformedOutput, StderrTail: err.Error()}
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return resp, &Failure{Tool: p.Tool, Category: FailNotInstalled, StderrTail: err.Error()}
	}
	sub.Started(p.Tool)

	// The reaper kills the group on timeout or cancellation so the
	// stdout scanner below sees EOF instead of blocking forever.
	reaperDone := make(chan struct{})
	go func() {
		select {
		case <-runCtx.Done():
			terminateGroup(cmd)
		case <-reaperDone:
		}
	}()

	var text strings.Builder
	var streamErr string
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}
		if trimmed[0] == '{' {
			var sl streamLine
			if err := json.Unmarshal(trimmed, &sl); err == nil && sl.Type != "" {
				switch sl.Type {
				case "chunk":
					text.WriteString(sl.Text)
					sub.TokenChunk(p.Tool, sl.Text)
				case "done":
					if sl.Text != "" {
						text.WriteString(sl.Text)
					}
				case "error":
					streamErr = sl.Message
				}
				continue
			}
		}
		// Opaque text line.
		text.Write(trimmed)
		text.WriteByte('\n')
	}

	waitErr := cmd.Wait()
	close(reaperDone)
	resp.ElapsedS = time.Since(start).Seconds()

	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return resp, &Failure{Tool: p.Tool, Category: FailTimeout, StderrTail: stderr.Tail()}
	case ctx.Err() != nil:
		return resp, &Failure{Tool: p.Tool, Category: FailCancelled, StderrTail: stderr.Tail()}
	case waitErr != nil:
		return resp, &Failure{Tool: p.Tool, Category: FailNonzeroExit, StderrTail: stderr.Tail()}
	case streamErr != "":
		return resp, &Failure{Tool: p.Tool, Category: FailMalformedOutput, StderrTail: streamErr}
	case strings.TrimSpace(text.String()) == "":
		return resp, &Failure{Tool: p.Tool, Category: FailMalformedOutput, StderrTail: stderr.Tail()}
	}

	resp.Text = strings.TrimRight(text.String(), "\n")
	resp.Success = true
	return resp, nil
}

// terminateGroup sends SIGTERM to the process group, then SIGKILL
// after the grace window.
func terminateGroup(cmd *exec.Cmd) {
	if err := killGroup(cmd, syscall.SIGTERM); err != nil {
		debug.Logf("consult: SIGTERM failed: %v", err)
	}
	time.Sleep(killGrace)
	if err := killGroup(cmd, syscall.SIGKILL); err != nil {
		debug.Logf("consult: SIGKILL failed: %v", err)
	}
}

// killGroup signals the whole process group, so tool-spawned children
// die too.
func killGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return err
	}
	if err := syscall.Kill(-pgid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}

// tailBuffer keeps only the last stderrTailLimit bytes written.
type tailBuffer struct {
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > stderrTailLimit {
		t.buf = t.buf[len(t.buf)-stderrTailLimit:]
	}
	return len(p), nil
}

func (t *tailBuffer) Tail() string {
	return strings.TrimSpace(string(t.buf))
}
