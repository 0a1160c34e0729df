package review

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/specdeck/specdeck/internal/spec"
	"github.com/specdeck/specdeck/internal/store"
	"github.com/specdeck/specdeck/internal/validate"
)

// WriteValidationReport renders the validation outcome as Markdown
// under specs/.reports/ and returns the report path.
func WriteValidationReport(st *store.Store, doc *spec.Document, issues []validate.Issue, now time.Time) (string, error) {
	dir := st.ReportsDir()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", spec.Wrap(spec.KindIO, err, "creating reports directory")
	}
	path := filepath.Join(dir, doc.SpecID+"-validation-report.md")
	content := RenderValidationReport(doc, issues, now)
	if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
		return "", spec.Wrap(spec.KindIO, err, "writing validation report")
	}
	return path, nil
}

// RenderValidationReport builds the Markdown body of a validation
// report.
func RenderValidationReport(doc *spec.Document, issues []validate.Issue, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Validation Report: %s\n\n", doc.SpecID)
	fmt.Fprintf(&b, "Generated: %s\n\n", now.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Title: %s\n\n", doc.Metadata.Title)

	counts := validate.CountBySeverity(issues)
	fmt.Fprintf(&b, "## Summary\n\n")
	fmt.Fprintf(&b, "- Errors: %d\n- Warnings: %d\n- Info: %d\n",
		counts[validate.SeverityError], counts[validate.SeverityWarning], counts[validate.SeverityInfo])
	fmt.Fprintf(&b, "- Tasks: %d total, %d completed (%d%%)\n\n",
		doc.Counts.Total, doc.Counts.Completed, doc.Counts.Percent)

	if len(issues) == 0 {
		b.WriteString("No issues found.\n")
		return b.String()
	}

	for _, sev := range []validate.Severity{validate.SeverityError, validate.SeverityWarning, validate.SeverityInfo} {
		var section []validate.Issue
		for _, issue := range issues {
			if issue.Severity == sev {
				section = append(section, issue)
			}
		}
		if len(section) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n", sectionTitle(sev))
		for _, issue := range section {
			if issue.Location != "" {
				fmt.Fprintf(&b, "- `%s` (%s): %s", issue.Code, issue.Location, issue.Message)
			} else {
				fmt.Fprintf(&b, "- `%s`: %s", issue.Code, issue.Message)
			}
			if issue.AutoFixable {
				b.WriteString(" *(auto-fixable)*")
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func sectionTitle(sev validate.Severity) string {
	switch sev {
	case validate.SeverityError:
		return "Errors"
	case validate.SeverityWarning:
		return "Warnings"
	default:
		return "Info"
	}
}

// RenderMarkdown renders markdown for terminal display. Plain mode
// returns the source untouched.
func RenderMarkdown(markdown string, plain bool, width int) (string, error) {
	if plain {
		return markdown, nil
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return markdown, nil
	}
	out, err := r.Render(markdown)
	if err != nil {
		return markdown, nil
	}
	return out, nil
}
