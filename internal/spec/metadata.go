package spec

import (
	"encoding/json"
	"time"
)

// Metadata is the free-form metadata mapping carried by nodes and
// journal entries. The engine recognizes a fixed set of keys (below);
// everything else is preserved opaquely.
type Metadata map[string]any

// Recognized metadata keys. Unknown keys are legal and round-trip
// untouched; validators report them at info severity only.
const (
	MetaFilePath           = "file_path"
	MetaTaskCategory       = "task_category"
	MetaEstimatedHours     = "estimated_hours"
	MetaActualHours        = "actual_hours"
	MetaSkill              = "skill"
	MetaCommand            = "command"
	MetaOnFailure          = "on_failure"
	MetaVerificationResult = "verification_result"
	MetaNeedsJournaling    = "needs_journaling"
	MetaCommits            = "commits"
	MetaStartedAt          = "started_at"
	MetaCompletedAt        = "completed_at"
)

// TaskCategory values for the task_category key.
const (
	CategoryImplementation = "implementation"
	CategoryTest           = "test"
	CategoryDoc            = "doc"
	CategoryResearch       = "research"
	CategoryVerification   = "verification"
)

// ValidTaskCategory reports whether c is a known task_category value.
func ValidTaskCategory(c string) bool {
	switch c {
	case CategoryImplementation, CategoryTest, CategoryDoc, CategoryResearch, CategoryVerification:
		return true
	}
	return false
}

// VerificationStatus values for verification_result.status.
const (
	VerifyPassed  = "PASSED"
	VerifyFailed  = "FAILED"
	VerifyPartial = "PARTIAL"
)

// ValidVerificationStatus reports whether s is PASSED, FAILED or PARTIAL.
func ValidVerificationStatus(s string) bool {
	return s == VerifyPassed || s == VerifyFailed || s == VerifyPartial
}

// OnFailure is the parsed form of the on_failure metadata mapping,
// controlling how a FAILED verification is handled.
type OnFailure struct {
	RevertStatus      string `json:"revert_status,omitempty"`
	MaxRetries        int    `json:"max_retries,omitempty"`
	ContinueOnFailure bool   `json:"continue_on_failure,omitempty"`
	Consult           bool   `json:"consult,omitempty"`
}

// VerificationResult is the parsed form of the verification_result
// metadata mapping.
type VerificationResult struct {
	Date   string `json:"date"`
	Status string `json:"status"`
	Output string `json:"output,omitempty"`
	Notes  string `json:"notes,omitempty"`
}

// Commit is one entry of the commits metadata list.
type Commit struct {
	SHA       string `json:"sha"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message,omitempty"`
}

// GetString returns the string value for key, or "" when absent or not
// a string.
func (m Metadata) GetString(key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// GetBool returns the bool value for key, false when absent.
func (m Metadata) GetBool(key string) bool {
	if m == nil {
		return false
	}
	b, _ := m[key].(bool)
	return b
}

// GetFloat returns the numeric value for key. JSON numbers decode as
// float64.
func (m Metadata) GetFloat(key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	f, ok := m[key].(float64)
	return f, ok
}

// GetTime parses the RFC3339 value stored under key.
func (m Metadata) GetTime(key string) (time.Time, bool) {
	s := m.GetString(key)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SetTime stores t under key in the canonical UTC RFC3339 format.
func (m Metadata) SetTime(key string, t time.Time) {
	m[key] = t.UTC().Format(time.RFC3339)
}

// remarshal round-trips an arbitrary metadata value through JSON into
// the target struct. Metadata decodes as map[string]any, so typed views
// are reconstructed on demand.
func remarshal(v any, target any) bool {
	if v == nil {
		return false
	}
	b, err := json.Marshal(v)
	if err != nil {
		return false
	}
	return json.Unmarshal(b, target) == nil
}

// OnFailure returns the parsed on_failure policy, or the zero policy
// when absent or malformed.
func (m Metadata) OnFailure() (OnFailure, bool) {
	var of OnFailure
	if m == nil {
		return of, false
	}
	ok := remarshal(m[MetaOnFailure], &of)
	return of, ok
}

// VerificationResult returns the parsed verification_result mapping.
func (m Metadata) VerificationResult() (VerificationResult, bool) {
	var vr VerificationResult
	if m == nil {
		return vr, false
	}
	v, present := m[MetaVerificationResult]
	if !present {
		return vr, false
	}
	return vr, remarshal(v, &vr)
}

// SetVerificationResult stores vr under verification_result.
func (m Metadata) SetVerificationResult(vr VerificationResult) {
	m[MetaVerificationResult] = map[string]any{
		"date":   vr.Date,
		"status": vr.Status,
		"output": vr.Output,
		"notes":  vr.Notes,
	}
}

// Commits returns the parsed commits list.
func (m Metadata) Commits() []Commit {
	var cs []Commit
	if m == nil {
		return nil
	}
	remarshal(m[MetaCommits], &cs)
	return cs
}

// AppendCommit adds a commit record to the commits list.
func (m Metadata) AppendCommit(c Commit) {
	cs := m.Commits()
	cs = append(cs, c)
	out := make([]any, 0, len(cs))
	for _, x := range cs {
		out = append(out, map[string]any{
			"sha":       x.SHA,
			"timestamp": x.Timestamp,
			"message":   x.Message,
		})
	}
	m[MetaCommits] = out
}

// Clone returns a deep copy of the metadata mapping.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return Metadata{}
	}
	var out Metadata
	if err := json.Unmarshal(b, &out); err != nil {
		return Metadata{}
	}
	return out
}
