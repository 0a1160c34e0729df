package txn

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/specdeck/specdeck/internal/spec"
	"github.com/specdeck/specdeck/internal/store"
	"github.com/specdeck/specdeck/internal/template"
)

// CreateOptions shape a new spec document.
type CreateOptions struct {
	Title        string
	Description  string
	Priority     string
	TemplatePath string
	Template     string
}

// CreateSpec builds a new pending spec from a template and writes it.
// The spec ID is derived from the title and today's date; collisions
// get a bumped sequence number.
func (t *Transactor) CreateSpec(opts CreateOptions) (*spec.Document, string, error) {
	var tmpl *template.Template
	var err error
	switch {
	case opts.TemplatePath != "":
		tmpl, err = template.Load(opts.TemplatePath)
		if err != nil {
			return nil, "", err
		}
	default:
		tmpl = template.Builtin(opts.Template)
		if tmpl == nil {
			return nil, "", spec.E(spec.KindUser, "unknown template %q", opts.Template)
		}
	}

	now := t.now().UTC()
	specID, err := t.freeSpecID(opts.Title, now)
	if err != nil {
		return nil, "", err
	}

	doc, err := tmpl.Build(specID, opts.Title, now)
	if err != nil {
		return nil, "", err
	}
	if opts.Description != "" {
		doc.Metadata.Description = opts.Description
	}
	if opts.Priority != "" {
		doc.Metadata.Priority = opts.Priority
	}

	path := t.Store.Path(specID, store.BucketPending)
	if err := t.Store.SaveAt(path, doc, store.SaveOptions{}); err != nil {
		return nil, "", err
	}
	return doc, path, nil
}

// freeSpecID finds the first unused per-day counter for the title. A
// collision across buckets bumps the counter rather than overwriting.
func (t *Transactor) freeSpecID(title string, now time.Time) (string, error) {
	for counter := 1; counter <= 999; counter++ {
		id := spec.NewSpecID(title, now, counter)
		if !t.specExists(id) {
			return id, nil
		}
	}
	return "", spec.E(spec.KindInternal, "exhausted spec ID counters for today")
}

func (t *Transactor) specExists(specID string) bool {
	for _, b := range store.Buckets() {
		_, err := os.Stat(t.Store.Path(specID, b))
		if err == nil {
			return true
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return true
		}
	}
	return false
}
