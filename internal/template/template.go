// Package template builds new spec documents from YAML templates. A
// template names phases, their groups and tasks, and optional verify
// steps; Build assigns canonical IDs and pending statuses.
package template

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/specdeck/specdeck/internal/spec"
)

// Template is the YAML shape of a spec template.
type Template struct {
	Title       string  `yaml:"title,omitempty"`
	Description string  `yaml:"description,omitempty"`
	Priority    string  `yaml:"priority,omitempty"`
	Phases      []Phase `yaml:"phases"`
}

// Phase is one top-level phase of a template.
type Phase struct {
	Title  string  `yaml:"title"`
	Groups []Group `yaml:"groups,omitempty"`
	Tasks  []Task  `yaml:"tasks,omitempty"`
	Verify *Verify `yaml:"verify,omitempty"`
}

// Group is a grouping of tasks inside a phase.
type Group struct {
	Title string `yaml:"title"`
	Tasks []Task `yaml:"tasks"`
}

// Task is a unit of work.
type Task struct {
	Title       string   `yaml:"title"`
	Description string   `yaml:"description,omitempty"`
	Category    string   `yaml:"category,omitempty"`
	Skill       string   `yaml:"skill,omitempty"`
	FilePath    string   `yaml:"file_path,omitempty"`
	Hours       float64  `yaml:"estimated_hours,omitempty"`
	Subtasks    []Task   `yaml:"subtasks,omitempty"`
	Verify      *Verify  `yaml:"verify,omitempty"`
	BlockedBy   []string `yaml:"blocked_by,omitempty"`
	SoftDepends []string `yaml:"soft_depends,omitempty"`
}

// Verify is a verification step attached to a task or phase.
type Verify struct {
	Title   string `yaml:"title"`
	Command string `yaml:"command,omitempty"`
}

// Load reads a template from a YAML file.
func Load(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, spec.Wrap(spec.KindUser, err, "reading template %s", path)
	}
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, spec.Wrap(spec.KindUser, err, "parsing template %s", path)
	}
	if len(t.Phases) == 0 {
		return nil, spec.E(spec.KindUser, "template %s has no phases", path)
	}
	return &t, nil
}

// Builtin returns a named built-in template, or nil.
func Builtin(name string) *Template {
	switch name {
	case "", "basic":
		return &Template{
			Phases: []Phase{
				{Title: "Design", Tasks: []Task{
					{Title: "Write design notes", Category: spec.CategoryDoc},
					{Title: "Review design", Category: spec.CategoryResearch},
				}},
				{Title: "Implementation", Tasks: []Task{
					{Title: "Implement", Category: spec.CategoryImplementation},
					{Title: "Test", Category: spec.CategoryTest},
				}},
			},
		}
	}
	return nil
}

// Build constructs a pending document from the template.
func (t *Template) Build(specID, title string, now time.Time) (*spec.Document, error) {
	if title == "" {
		title = t.Title
	}
	if title == "" {
		return nil, spec.E(spec.KindUser, "a spec title is required")
	}
	created := now.UTC().Format(time.RFC3339)
	doc := &spec.Document{
		SpecID: specID,
		Metadata: spec.DocMetadata{
			Title:       title,
			Description: t.Description,
			Status:      spec.DocPending,
			CreatedAt:   created,
			LastUpdated: created,
			Priority:    t.Priority,
			Version:     spec.CurrentSchemaVersion,
		},
	}
	for pi, p := range t.Phases {
		phaseID := fmt.Sprintf("phase-%d", pi+1)
		phase := &spec.Node{
			ID:       phaseID,
			Type:     spec.TypePhase,
			Title:    p.Title,
			Status:   spec.StatusPending,
			Metadata: spec.Metadata{},
		}
		seq := 0
		for _, g := range p.Groups {
			seq++
			group := &spec.Node{
				ID:       fmt.Sprintf("group-%d-%d", pi+1, seq),
				Type:     spec.TypeGroup,
				Title:    g.Title,
				Status:   spec.StatusPending,
				Metadata: spec.Metadata{},
			}
			for ti, task := range g.Tasks {
				group.Children = append(group.Children,
					buildTask(task, fmt.Sprintf("task-%d-%d-%d", pi+1, seq, ti+1), fmt.Sprintf("verify-%d-%d-%d", pi+1, seq, ti+1)))
			}
			phase.Children = append(phase.Children, group)
		}
		for _, task := range p.Tasks {
			seq++
			phase.Children = append(phase.Children,
				buildTask(task, fmt.Sprintf("task-%d-%d", pi+1, seq), fmt.Sprintf("verify-%d-%d", pi+1, seq)))
		}
		if p.Verify != nil {
			seq++
			phase.Children = append(phase.Children, buildVerify(*p.Verify, fmt.Sprintf("verify-%d-%d", pi+1, seq)))
		}
		doc.Hierarchy = append(doc.Hierarchy, phase)
	}
	doc.Relink()
	doc.RecomputeAll(now)
	return doc, nil
}

func buildTask(t Task, id, verifyID string) *spec.Node {
	meta := spec.Metadata{}
	if t.Category != "" {
		meta[spec.MetaTaskCategory] = t.Category
	}
	if t.Skill != "" {
		meta[spec.MetaSkill] = t.Skill
	}
	if t.FilePath != "" {
		meta[spec.MetaFilePath] = t.FilePath
	}
	if t.Hours > 0 {
		meta[spec.MetaEstimatedHours] = t.Hours
	}
	n := &spec.Node{
		ID:          id,
		Type:        spec.TypeTask,
		Title:       t.Title,
		Description: t.Description,
		Status:      spec.StatusPending,
		Metadata:    meta,
		Dependencies: spec.Dependencies{
			BlockedBy:   t.BlockedBy,
			SoftDepends: t.SoftDepends,
		},
	}
	for si, sub := range t.Subtasks {
		n.Children = append(n.Children,
			buildTask(sub, fmt.Sprintf("%s-%d", id, si+1), fmt.Sprintf("%s-%d", verifyID, si+1)))
	}
	if t.Verify != nil {
		n.Children = append(n.Children, buildVerify(*t.Verify, verifyID))
	}
	return n
}

func buildVerify(v Verify, id string) *spec.Node {
	meta := spec.Metadata{}
	if v.Command != "" {
		meta[spec.MetaCommand] = v.Command
	}
	title := v.Title
	if title == "" {
		title = "Verify"
	}
	return &spec.Node{
		ID:       id,
		Type:     spec.TypeVerify,
		Title:    title,
		Status:   spec.StatusPending,
		Metadata: meta,
	}
}
