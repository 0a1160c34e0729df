package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/specdeck/specdeck/internal/spec"
)

// outputResult prints a command result. In --json mode it is exactly
// one JSON document on stdout; otherwise the caller-provided text
// renderer runs.
func outputResult(v any, text func()) {
	if jsonOutput {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: encoding output: %v\n", err)
			os.Exit(2)
		}
		fmt.Println(string(data))
		return
	}
	if text != nil {
		text()
	}
}

// jsonError is the --json error envelope.
type jsonError struct {
	Error struct {
		Kind    string         `json:"kind"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	} `json:"error"`
}

// renderError prints err in the active output mode and returns the
// exit code.
func renderError(err error) int {
	var se *spec.Error
	if !errors.As(err, &se) {
		se = spec.Wrap(spec.KindInternal, err, "unexpected error")
	}
	if jsonOutput {
		var payload jsonError
		payload.Error.Kind = string(se.Kind)
		payload.Error.Message = se.Message
		payload.Error.Details = se.Details
		data, mErr := json.Marshal(payload)
		if mErr != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		} else {
			fmt.Println(string(data))
		}
		return se.Kind.ExitCode()
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", se.Error())
	if hint := remediation(se); hint != "" {
		fmt.Fprintln(os.Stderr, hint)
	}
	return se.Kind.ExitCode()
}

// remediation suggests the follow-up command for common failures.
func remediation(se *spec.Error) string {
	switch se.Kind {
	case spec.KindValidationFailed:
		if specID, ok := se.Details["spec_id"].(string); ok {
			return fmt.Sprintf("Run 'sdd fix %s' to auto-repair.", specID)
		}
		return "Run 'sdd fix <spec>' to auto-repair."
	case spec.KindLockContention:
		return "Another sdd process holds the lock; retry shortly."
	case spec.KindToolNotFound:
		return "Run 'sdd list-review-tools' to see which tools are installed."
	}
	return ""
}

// fatal renders err and exits immediately. Use only where returning
// an error is impractical (watch loops, interactive forms).
func fatal(err error) {
	os.Exit(renderError(err))
}
