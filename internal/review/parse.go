// Package review bridges AI review output and the modification
// pipeline: it builds review prompts, parses Markdown review reports
// into op batches, and writes validation reports.
package review

import (
	"bufio"
	"regexp"
	"strings"

	"github.com/specdeck/specdeck/internal/spec"
	"github.com/specdeck/specdeck/internal/txn"
)

// Section headers recognized in review reports, matched
// case-insensitively on H2 lines. Order inside each section is
// preserved in the resulting batch.
const (
	sectionStatus     = "status changes"
	sectionCompleted  = "completed tasks"
	sectionBlocked    = "blocked tasks"
	sectionUnblocked  = "unblocked tasks"
	sectionJournal    = "journal"
	sectionDecisions  = "decisions"
	sectionDeviations = "deviations"
	sectionVerify     = "verification results"
)

var (
	bulletRe = regexp.MustCompile(`^[-*]\s+(.*)$`)
	// `task-1-2: completed — note` or `task-1-2: completed - note`
	statusLineRe = regexp.MustCompile(`^([a-z0-9-]+):\s*([a-z_]+)(?:\s+[—-]\s+(.*))?$`)
	// `task-1-2: some text`
	taskLineRe = regexp.MustCompile(`^([a-z0-9-]+):\s*(.*)$`)
	// `verify-1-2: PASSED — notes`
	verifyLineRe = regexp.MustCompile(`^([a-z0-9-]+):\s*(PASSED|FAILED|PARTIAL)(?:\s+[—-]\s+(.*))?$`)
	// `[decision] title: content`
	journalLineRe = regexp.MustCompile(`^(?:\[([a-z_]+)\]\s+)?([^:]+?)(?::\s*(.*))?$`)
)

// Parse turns a Markdown review report into an op batch. Unknown
// sections are skipped; a recognized section with an unparsable bullet
// is an error so silent drops cannot lose review findings.
func Parse(markdown string) ([]txn.Op, error) {
	var ops []txn.Op
	section := ""
	lineNo := 0
	scanner := bufio.NewScanner(strings.NewReader(markdown))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "## ") {
			section = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, "## ")))
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		m := bulletRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		item := strings.TrimSpace(m[1])
		op, err := parseItem(section, item, lineNo)
		if err != nil {
			return nil, err
		}
		if op != nil {
			ops = append(ops, op)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, spec.Wrap(spec.KindUser, err, "reading review report")
	}
	if len(ops) == 0 {
		return nil, spec.E(spec.KindUser, "review report contains no actionable items; expected sections like \"## Status Changes\"")
	}
	return ops, nil
}

func parseItem(section, item string, lineNo int) (txn.Op, error) {
	switch section {
	case sectionStatus:
		m := statusLineRe.FindStringSubmatch(item)
		if m == nil {
			return nil, badLine(section, item, lineNo)
		}
		status := spec.Status(m[2])
		if !status.IsValid() {
			return nil, spec.E(spec.KindUser, "review line %d: unknown status %q", lineNo, m[2])
		}
		return txn.SetStatus{NodeID: m[1], Status: status, Note: m[3]}, nil
	case sectionCompleted:
		m := taskLineRe.FindStringSubmatch(item)
		if m == nil {
			return nil, badLine(section, item, lineNo)
		}
		return txn.CompleteTask{NodeID: m[1], JournalTitle: "Completed in review", JournalContent: m[2]}, nil
	case sectionBlocked:
		m := taskLineRe.FindStringSubmatch(item)
		if m == nil {
			return nil, badLine(section, item, lineNo)
		}
		return txn.MarkBlocked{NodeID: m[1], Reason: m[2], Type: "review"}, nil
	case sectionUnblocked:
		m := taskLineRe.FindStringSubmatch(item)
		if m == nil {
			return nil, badLine(section, item, lineNo)
		}
		return txn.Unblock{NodeID: m[1], Resolution: m[2]}, nil
	case sectionJournal, sectionDecisions, sectionDeviations:
		m := journalLineRe.FindStringSubmatch(item)
		if m == nil {
			return nil, badLine(section, item, lineNo)
		}
		entryType := spec.EntryType(m[1])
		if m[1] == "" {
			switch section {
			case sectionDecisions:
				entryType = spec.EntryDecision
			case sectionDeviations:
				entryType = spec.EntryDeviation
			default:
				entryType = spec.EntryNote
			}
		}
		if !entryType.IsValid() {
			return nil, spec.E(spec.KindUser, "review line %d: unknown journal entry type %q", lineNo, m[1])
		}
		return txn.AddJournal{Entry: spec.JournalEntry{
			EntryType: entryType,
			Title:     strings.TrimSpace(m[2]),
			Content:   strings.TrimSpace(m[3]),
		}}, nil
	case sectionVerify:
		m := verifyLineRe.FindStringSubmatch(item)
		if m == nil {
			return nil, badLine(section, item, lineNo)
		}
		return txn.AddVerification{VerifyID: m[1], Result: spec.VerificationResult{
			Status: m[2],
			Notes:  m[3],
		}}, nil
	}
	return nil, nil
}

func badLine(section, item string, lineNo int) error {
	return spec.E(spec.KindUser, "review line %d: cannot parse %q in section %q", lineNo, item, section)
}
