package main

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/specdeck/specdeck/internal/config"
	"github.com/specdeck/specdeck/internal/consult"
	"github.com/specdeck/specdeck/internal/review"
	"github.com/specdeck/specdeck/internal/spec"
	"github.com/specdeck/specdeck/internal/ui"
)

var (
	reviewTools   []string
	reviewModel   string
	reviewSkill   string
	reviewNoCache bool
)

// progressSubscriber streams consultation lifecycle events to stderr
// so stdout stays reserved for the result.
type progressSubscriber struct {
	port ui.Port
}

func (s progressSubscriber) Started(tool string) {
	s.port.Print(ui.Progress{Tool: tool, Phase: "started", Percent: -1})
}

func (s progressSubscriber) TokenChunk(tool, text string) {}

func (s progressSubscriber) Completed(tool string, resp consult.ToolResponse) {
	phase := "completed"
	if resp.FromCache {
		phase = "completed (cached)"
	}
	s.port.Print(ui.Progress{Tool: tool, Phase: phase, Percent: -1})
}

func (s progressSubscriber) Failed(tool string, reason consult.Failure) {
	s.port.Print(ui.Progress{Tool: tool, Phase: "failed: " + string(reason.Category), Percent: -1})
}

func newSubscriber() consult.Subscriber {
	if jsonOutput || quiet {
		return nil
	}
	return progressSubscriber{port: ui.NewPort(os.Stderr, noColor || !ui.ShouldUseColor())}
}

var planReviewCmd = &cobra.Command{
	Use:     "plan-review <spec_id>",
	GroupID: "review",
	Short:   "Ask review tools to critique the plan",
	Long: `Fan the implementation plan out to the configured review tools in
parallel. Partial results are returned when some tools fail; the
responses can be fed back through parse-review.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st := newStore()
		doc, _, err := st.Load(args[0])
		if err != nil {
			return err
		}
		system, prompt := review.PlanReviewPrompt(doc)
		return runConsultation(doc.SpecID, system, prompt, review.ReviewContext(doc))
	},
}

var fidelityReviewCmd = &cobra.Command{
	Use:     "fidelity-review <spec_id> [task_id|phase_id]",
	GroupID: "review",
	Short:   "Audit completed work against the spec",
	Args:    cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st := newStore()
		doc, _, err := st.Load(args[0])
		if err != nil {
			return err
		}
		scope := ""
		if len(args) == 2 {
			scope = args[1]
		}
		system, prompt, err := review.FidelityReviewPrompt(doc, scope)
		if err != nil {
			return err
		}
		return runConsultation(doc.SpecID, system, prompt, review.ReviewContext(doc))
	},
}

func runConsultation(specID, system, prompt string, context []byte) error {
	orch, cache, err := newOrchestrator(newSubscriber())
	if err != nil {
		return err
	}
	defer cache.Close()

	tools := reviewTools
	if len(tools) == 0 {
		tools = orch.Config.EnabledTools()
	}
	if len(tools) == 0 {
		return spec.E(spec.KindConsultation, "no review tools configured")
	}

	batch := orch.Parallel(rootCtx, tools, prompt, consult.Options{
		SystemPrompt: system,
		Model:        reviewModel,
		Skill:        reviewSkill,
		Context:      context,
		NoCache:      reviewNoCache,
	})
	outputResult(batch, func() { printBatch(specID, batch) })
	if !batch.Success {
		return spec.E(spec.KindConsultation, "all review tools failed for %s", specID).
			WithDetails(map[string]any{"failures": batch.Failures})
	}
	return nil
}

func printBatch(specID string, batch consult.MultiToolResponse) {
	port := uiPort()
	for _, resp := range batch.Responses {
		header := fmt.Sprintf("=== %s (%s, %.1fs)", resp.Tool, resp.Model, resp.ElapsedS)
		if resp.FromCache {
			header += " [cached]"
		}
		port.Print(ui.ResultLine{Text: header})
		port.Print(ui.ResultLine{Text: resp.Text})
	}
	for _, f := range batch.Failures {
		msg := fmt.Sprintf("%s failed: %s", f.Tool, f.Category)
		if f.StderrTail != "" {
			tail := f.StderrTail
			if idx := strings.LastIndexByte(tail, '\n'); idx >= 0 && idx < len(tail)-1 {
				tail = tail[idx+1:]
			}
			msg += " (" + tail + ")"
		}
		port.Print(ui.Warning{Text: msg})
	}
	port.Print(ui.ResultLine{Text: fmt.Sprintf("%d/%d tools responded for %s",
		len(batch.Responses), len(batch.Responses)+len(batch.Failures), specID)})
}

var listReviewToolsCmd = &cobra.Command{
	Use:     "list-review-tools",
	GroupID: "review",
	Short:   "Show configured review tools and availability",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := consult.LoadConfig(config.ProvidersFile())
		if err != nil {
			return err
		}
		type toolRow struct {
			Tool      string `json:"tool"`
			Command   string `json:"command"`
			Model     string `json:"default_model"`
			Enabled   bool   `json:"enabled"`
			Installed bool   `json:"installed"`
		}
		var rows []toolRow
		for _, name := range cfg.AllTools() {
			p, _ := cfg.Provider(name)
			_, lookErr := exec.LookPath(p.Command)
			rows = append(rows, toolRow{
				Tool:      name,
				Command:   p.Command,
				Model:     p.DefaultModel,
				Enabled:   p.Enabled,
				Installed: lookErr == nil,
			})
		}
		outputResult(rows, func() {
			port := uiPort()
			tableRows := make([][]string, 0, len(rows))
			for _, r := range rows {
				state := "disabled"
				if r.Enabled && r.Installed {
					state = "ready"
				} else if r.Enabled {
					state = "not installed"
				}
				tableRows = append(tableRows, []string{r.Tool, r.Command, r.Model, state})
			}
			port.Print(ui.Table{Headers: []string{"TOOL", "COMMAND", "MODEL", "STATE"}, Rows: tableRows})
		})
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{planReviewCmd, fidelityReviewCmd} {
		cmd.Flags().StringSliceVar(&reviewTools, "tools", nil, "Tools to consult (default: all enabled)")
		cmd.Flags().StringVar(&reviewModel, "model", "", "Model override for all tools")
		cmd.Flags().StringVar(&reviewSkill, "skill", "", "Skill profile for model resolution")
		cmd.Flags().BoolVar(&reviewNoCache, "no-cache", false, "Bypass the consultation cache")
	}
	rootCmd.AddCommand(planReviewCmd, fidelityReviewCmd, listReviewToolsCmd)
}
