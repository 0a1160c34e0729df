// Package consult asks external AI CLI tools structured questions and
// aggregates their responses. Providers are subprocesses; the
// orchestrator fans out, caches successes and tolerates per-tool
// failure.
package consult

import "time"

// Provider is one configured external tool.
type Provider struct {
	Tool           string   `toml:"-" json:"tool"`
	Command        string   `toml:"command" json:"command"`
	DefaultModel   string   `toml:"default_model" json:"default_model"`
	Flags          []string `toml:"flags" json:"flags,omitempty"`
	TimeoutSeconds int      `toml:"timeout_seconds" json:"timeout_seconds"`
	Enabled        bool     `toml:"enabled" json:"enabled"`
	// PromptViaStdin feeds the prompt on stdin instead of argv, for
	// tools that read it that way.
	PromptViaStdin bool `toml:"prompt_via_stdin" json:"prompt_via_stdin,omitempty"`
}

// Timeout returns the per-provider timeout, defaulting to 90s.
func (p Provider) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 90 * time.Second
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// ToolResponse is the normalized answer from one provider.
type ToolResponse struct {
	Tool      string  `json:"tool"`
	Model     string  `json:"model"`
	Text      string  `json:"text"`
	ElapsedS  float64 `json:"elapsed_s"`
	Success   bool    `json:"success"`
	Error     string  `json:"error,omitempty"`
	FromCache bool    `json:"from_cache,omitempty"`
}

// FailureCategory classifies why a provider produced no usable answer.
type FailureCategory string

const (
	FailNotInstalled    FailureCategory = "not_installed"
	FailTimeout         FailureCategory = "timeout"
	FailNonzeroExit     FailureCategory = "nonzero_exit"
	FailMalformedOutput FailureCategory = "malformed_output"
	FailCancelled       FailureCategory = "cancelled"
)

// Failure records one provider's failure for batch reporting.
type Failure struct {
	Tool       string          `json:"tool"`
	Category   FailureCategory `json:"category"`
	StderrTail string          `json:"stderr_tail,omitempty"`
}

// MultiToolResponse aggregates a parallel batch. Success means at
// least one tool answered.
type MultiToolResponse struct {
	Success   bool           `json:"success"`
	Responses []ToolResponse `json:"responses"`
	Failures  []Failure      `json:"failures,omitempty"`
}

// Subscriber receives lifecycle events for UI rendering. All methods
// may be called from multiple goroutines.
type Subscriber interface {
	Started(tool string)
	TokenChunk(tool, text string)
	Completed(tool string, resp ToolResponse)
	Failed(tool string, reason Failure)
}

type nopSubscriber struct{}

func (nopSubscriber) Started(string)                 {}
func (nopSubscriber) TokenChunk(string, string)      {}
func (nopSubscriber) Completed(string, ToolResponse) {}
func (nopSubscriber) Failed(string, Failure)         {}
