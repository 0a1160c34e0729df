package consult

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/specdeck/specdeck/internal/spec"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	want := []string{"claude", "codex", "gemini"}
	if diff := cmp.Diff(want, cfg.EnabledTools()); diff != "" {
		t.Errorf("enabled tools (-want +got):\n%s", diff)
	}
	p, err := cfg.Provider("claude")
	if err != nil {
		t.Fatal(err)
	}
	if p.Tool != "claude" || p.Command != "claude" || p.DefaultModel == "" {
		t.Errorf("provider = %+v", p)
	}

	// A missing file behaves like no file at all.
	cfg2, err := LoadConfig(filepath.Join(t.TempDir(), "providers.toml"))
	if err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if diff := cmp.Diff(cfg.EnabledTools(), cfg2.EnabledTools()); diff != "" {
		t.Errorf("missing file changed defaults:\n%s", diff)
	}
}

func TestLoadConfigLayering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.toml")
	content := `[providers.claude]
default_model = "opus"
enabled = true

[providers.codex]
enabled = false

[providers.aider]
command = "aider"
default_model = "deepseek"
enabled = true

[skills.backend.models.claude]
priority = ["opus", "sonnet"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	claude, _ := cfg.Provider("claude")
	if claude.DefaultModel != "opus" {
		t.Errorf("override not applied: %q", claude.DefaultModel)
	}
	if claude.Command != "claude" || len(claude.Flags) == 0 {
		t.Errorf("defaults not layered under override: %+v", claude)
	}

	want := []string{"aider", "claude", "gemini"}
	if diff := cmp.Diff(want, cfg.EnabledTools()); diff != "" {
		t.Errorf("enabled tools (-want +got):\n%s", diff)
	}
	all := cfg.AllTools()
	if len(all) != 4 {
		t.Errorf("AllTools = %v", all)
	}

	if _, err := cfg.Provider("ghost"); !spec.IsKind(err, spec.KindUser) {
		t.Errorf("unknown tool error = %v, want UserError", err)
	}
}

func TestLoadConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.toml")
	if err := os.WriteFile(path, []byte("[providers.claude\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); !spec.IsKind(err, spec.KindUser) {
		t.Errorf("error = %v, want UserError", err)
	}
}

func TestResolveModel(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Skills["backend"] = Skill{Models: map[string]ModelPriority{
		"claude": {Priority: []string{"opus"}},
	}}

	tests := []struct {
		name     string
		skill    string
		tool     string
		override string
		want     string
	}{
		{"override wins", "backend", "claude", "haiku", "haiku"},
		{"skill priority", "backend", "claude", "", "opus"},
		{"skill without tool entry", "backend", "codex", "", "gpt-5"},
		{"no skill", "", "claude", "", "sonnet"},
		{"unknown tool", "", "ghost", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.ResolveModel(tt.skill, tt.tool, tt.override); got != tt.want {
				t.Errorf("ResolveModel(%q, %q, %q) = %q, want %q", tt.skill, tt.tool, tt.override, got, tt.want)
			}
		})
	}
}
