package consult

import (
	"errors"
	"io/fs"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/specdeck/specdeck/internal/spec"
)

// Config is the providers.toml shape: a providers table plus optional
// per-skill model priorities.
type Config struct {
	Providers map[string]Provider `toml:"providers"`
	Skills    map[string]Skill    `toml:"skills"`
}

// Skill maps tool names to model priority lists.
type Skill struct {
	Models map[string]ModelPriority `toml:"models"`
}

// ModelPriority orders preferred models for one tool.
type ModelPriority struct {
	Priority []string `toml:"priority"`
}

// builtinDefaults cover the common review CLIs when no providers.toml
// exists. Disabled tools stay listed so list-review-tools can show
// them.
func builtinDefaults() map[string]Provider {
	return map[string]Provider{
		"claude": {
			Command:        "claude",
			DefaultModel:   "sonnet",
			Flags:          []string{"-p", "--output-format", "stream-json"},
			TimeoutSeconds: 90,
			Enabled:        true,
		},
		"codex": {
			Command:        "codex",
			DefaultModel:   "gpt-5",
			Flags:          []string{"exec"},
			TimeoutSeconds: 90,
			Enabled:        true,
		},
		"gemini": {
			Command:        "gemini",
			DefaultModel:   "gemini-2.5-pro",
			Flags:          []string{"-p"},
			TimeoutSeconds: 90,
			Enabled:        true,
		},
	}
}

// LoadConfig reads providers.toml, layering it over the built-in
// defaults. A missing file yields the defaults alone.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{Providers: builtinDefaults(), Skills: map[string]Skill{}}
	if path == "" {
		return cfg, nil
	}
	var parsed Config
	if _, err := toml.DecodeFile(path, &parsed); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, spec.Wrap(spec.KindUser, err, "parsing %s", path)
	}
	for name, p := range parsed.Providers {
		base := cfg.Providers[name]
		if p.Command == "" {
			p.Command = base.Command
		}
		if p.DefaultModel == "" {
			p.DefaultModel = base.DefaultModel
		}
		if p.Flags == nil {
			p.Flags = base.Flags
		}
		if p.TimeoutSeconds == 0 {
			p.TimeoutSeconds = base.TimeoutSeconds
		}
		cfg.Providers[name] = p
	}
	if parsed.Skills != nil {
		cfg.Skills = parsed.Skills
	}
	return cfg, nil
}

// Provider looks up a tool by name, with its Tool field populated.
func (c *Config) Provider(tool string) (Provider, error) {
	p, ok := c.Providers[tool]
	if !ok {
		return Provider{}, spec.E(spec.KindUser, "unknown review tool %q", tool)
	}
	p.Tool = tool
	return p, nil
}

// EnabledTools returns enabled tool names in stable order.
func (c *Config) EnabledTools() []string {
	var tools []string
	for name, p := range c.Providers {
		if p.Enabled {
			tools = append(tools, name)
		}
	}
	sort.Strings(tools)
	return tools
}

// AllTools returns every configured tool name in stable order.
func (c *Config) AllTools() []string {
	tools := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		tools = append(tools, name)
	}
	sort.Strings(tools)
	return tools
}

// ResolveModel picks the model for (skill, tool): explicit override,
// then the skill's priority list, then the provider default.
func (c *Config) ResolveModel(skill, tool, override string) string {
	if override != "" {
		return override
	}
	if s, ok := c.Skills[skill]; ok {
		if mp, ok := s.Models[tool]; ok && len(mp.Priority) > 0 {
			return mp.Priority[0]
		}
	}
	if p, ok := c.Providers[tool]; ok {
		return p.DefaultModel
	}
	return ""
}
