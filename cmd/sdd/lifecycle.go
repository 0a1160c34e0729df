package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/specdeck/specdeck/internal/spec"
	"github.com/specdeck/specdeck/internal/store"
	"github.com/specdeck/specdeck/internal/txn"
	"github.com/specdeck/specdeck/internal/ui"
)

var (
	createTitle        string
	createDescription  string
	createPriority     string
	createTemplate     string
	createTemplateFile string
)

var createCmd = &cobra.Command{
	Use:     "create",
	GroupID: "lifecycle",
	Short:   "Create a new spec in pending/",
	Long: `Create a new spec document from a template.

Without --title, an interactive form collects the fields. The new spec
lands in pending/ with a generated ID like user-auth-2026-08-25-001.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if createTitle == "" {
			if jsonOutput || !ui.IsTerminal() {
				return spec.E(spec.KindUser, "--title is required in non-interactive mode")
			}
			if err := runCreateForm(); err != nil {
				return err
			}
		}
		st := newStore()
		t := newTransactor(st)
		doc, path, err := t.CreateSpec(txn.CreateOptions{
			Title:        createTitle,
			Description:  createDescription,
			Priority:     createPriority,
			Template:     createTemplate,
			TemplatePath: createTemplateFile,
		})
		if err != nil {
			return err
		}
		outputResult(map[string]any{
			"spec_id": doc.SpecID,
			"path":    path,
			"tasks":   doc.Counts.Total,
		}, func() {
			port := uiPort()
			port.Print(ui.ResultLine{Text: fmt.Sprintf("Created %s (%d tasks) at %s", doc.SpecID, doc.Counts.Total, path)})
		})
		return nil
	},
}

func runCreateForm() error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				Description("What is this spec about? (required)").
				Placeholder("e.g., User authentication").
				Value(&createTitle).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("title is required")
					}
					return nil
				}),
			huh.NewText().
				Title("Description").
				Description("Goal and context (optional)").
				CharLimit(5000).
				Value(&createDescription),
			huh.NewSelect[string]().
				Title("Priority").
				Options(
					huh.NewOption("High", "high"),
					huh.NewOption("Medium (default)", "medium"),
					huh.NewOption("Low", "low"),
				).
				Value(&createPriority),
		),
	)
	if err := form.Run(); err != nil {
		return spec.Wrap(spec.KindUser, err, "create form cancelled")
	}
	return nil
}

var activateCmd = &cobra.Command{
	Use:     "activate <spec_id>",
	GroupID: "lifecycle",
	Short:   "Move a spec to active/",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return moveSpec(args[0], store.BucketActive)
	},
}

var moveSpecCmd = &cobra.Command{
	Use:     "move-spec <spec_id> <bucket>",
	GroupID: "lifecycle",
	Short:   "Move a spec between lifecycle buckets",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		bucket, err := store.ParseBucket(args[1])
		if err != nil {
			return err
		}
		return moveSpec(args[0], bucket)
	},
}

var completeSpecCmd = &cobra.Command{
	Use:     "complete-spec <spec_id>",
	GroupID: "lifecycle",
	Short:   "Move a finished spec to completed/",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return moveSpec(args[0], store.BucketCompleted)
	},
}

// moveSpec routes bucket transitions through the transactor so the
// document status, journal and counts stay consistent with the file
// location.
func moveSpec(specID string, bucket store.Bucket) error {
	st := newStore()
	t := newTransactor(st)
	result, err := t.Apply(rootCtx, specID, []txn.Op{txn.MoveSpec{TargetBucket: string(bucket)}}, txnOptions(false))
	if err != nil {
		return err
	}
	outputResult(result, func() {
		uiPort().Print(ui.ResultLine{Text: fmt.Sprintf("Moved %s to %s/", specID, bucket)})
	})
	return nil
}

var listSpecsBucket string

var listSpecsCmd = &cobra.Command{
	Use:     "list-specs",
	GroupID: "lifecycle",
	Short:   "List specs across buckets",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st := newStore()
		var infos []store.SpecInfo
		var err error
		if listSpecsBucket != "" {
			bucket, bErr := store.ParseBucket(listSpecsBucket)
			if bErr != nil {
				return bErr
			}
			infos, err = st.List(bucket)
		} else {
			infos, err = st.ListAll()
		}
		if err != nil {
			return err
		}
		outputResult(infos, func() { printSpecTable(infos) })
		return nil
	},
}

var findSpecsCmd = &cobra.Command{
	Use:     "find-specs <pattern>",
	GroupID: "lifecycle",
	Short:   "Find specs by glob pattern",
	Long: `Find specs whose ID matches a glob pattern, e.g.
"user-*" or "**/auth*". Matching spans all buckets.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st := newStore()
		infos, err := st.Find(args[0])
		if err != nil {
			return err
		}
		outputResult(infos, func() { printSpecTable(infos) })
		return nil
	},
}

func printSpecTable(infos []store.SpecInfo) {
	port := uiPort()
	if len(infos) == 0 {
		port.Print(ui.ResultLine{Text: "No specs found."})
		return
	}
	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		updated := info.ModTime
		if t, err := time.Parse(time.RFC3339, info.ModTime); err == nil {
			updated = humanize.Time(t)
		}
		rows = append(rows, []string{
			info.SpecID,
			string(info.Bucket),
			humanize.Bytes(uint64(info.Size)),
			updated,
		})
	}
	port.Print(ui.Table{
		Headers: []string{"SPEC", "BUCKET", "SIZE", "UPDATED"},
		Rows:    rows,
	})
}

func init() {
	createCmd.Flags().StringVar(&createTitle, "title", "", "Spec title")
	createCmd.Flags().StringVar(&createDescription, "description", "", "Spec description")
	createCmd.Flags().StringVar(&createPriority, "priority", "", "Priority (high, medium, low)")
	createCmd.Flags().StringVar(&createTemplate, "template", "", "Built-in template name (default \"basic\")")
	createCmd.Flags().StringVar(&createTemplateFile, "template-file", "", "Path to a YAML template")

	listSpecsCmd.Flags().StringVar(&listSpecsBucket, "bucket", "", "Limit to one bucket")

	rootCmd.AddCommand(createCmd, activateCmd, moveSpecCmd, completeSpecCmd, listSpecsCmd, findSpecsCmd)
}
