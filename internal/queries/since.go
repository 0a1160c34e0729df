package queries

import (
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/specdeck/specdeck/internal/spec"
)

var whenParser = func() *when.Parser {
	p := when.New(nil)
	p.Add(en.All...)
	p.Add(common.All...)
	return p
}()

// ParseSince turns a --since argument into a cutoff time. It accepts
// RFC 3339, plain dates, Go durations ("36h") and natural phrases
// like "yesterday" or "last monday".
func ParseSince(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	if r, err := whenParser.Parse(s, now); err == nil && r != nil {
		return r.Time, nil
	}
	return time.Time{}, spec.E(spec.KindUser,
		"cannot parse %q as a time; use RFC 3339, YYYY-MM-DD, a duration like 36h, or a phrase like \"yesterday\"", s)
}
