package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/specdeck/specdeck/internal/review"
	"github.com/specdeck/specdeck/internal/spec"
	"github.com/specdeck/specdeck/internal/txn"
	"github.com/specdeck/specdeck/internal/ui"
)

var (
	applyModsFrom   string
	applyModsDryRun bool
)

var applyModificationsCmd = &cobra.Command{
	Use:     "apply-modifications <spec_id>",
	GroupID: "modify",
	Short:   "Apply a modification batch transactionally",
	Long: `Apply a batch of modification operations from a JSON file. All ops
apply in order within one transaction; any failure rolls the whole
batch back. Supported kinds: ` + txn.KindNames() + `.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if applyModsFrom == "" {
			return spec.E(spec.KindUser, "--from <ops.json> is required")
		}
		data, err := os.ReadFile(applyModsFrom)
		if err != nil {
			return spec.Wrap(spec.KindUser, err, "reading %s", applyModsFrom)
		}
		ops, err := txn.DecodeBatch(data)
		if err != nil {
			return err
		}
		return applyAndReport(args[0], ops, applyModsDryRun)
	},
}

var (
	parseReviewFile   string
	parseReviewOut    string
	parseReviewApply  bool
	parseReviewDryRun bool
)

var parseReviewCmd = &cobra.Command{
	Use:     "parse-review <spec_id>",
	GroupID: "modify",
	Short:   "Turn a Markdown review into a modification batch",
	Long: `Parse a Markdown review report into modification operations.
Recognized sections: Status Changes, Completed Tasks, Blocked Tasks,
Unblocked Tasks, Journal, Decisions, Deviations, Verification Results.
By default the batch is printed; --out writes it to a file and --apply
runs it immediately.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if parseReviewFile == "" {
			return spec.E(spec.KindUser, "--review <report.md> is required")
		}
		data, err := os.ReadFile(parseReviewFile)
		if err != nil {
			return spec.Wrap(spec.KindUser, err, "reading %s", parseReviewFile)
		}
		ops, err := review.Parse(string(data))
		if err != nil {
			return err
		}
		if parseReviewApply {
			return applyAndReport(args[0], ops, parseReviewDryRun)
		}
		batch := txn.EncodeBatch(ops)
		if parseReviewOut != "" {
			if err := os.WriteFile(parseReviewOut, batch, 0o640); err != nil {
				return spec.Wrap(spec.KindIO, err, "writing %s", parseReviewOut)
			}
			outputResult(map[string]any{"ops": len(ops), "path": parseReviewOut}, func() {
				uiPort().Print(ui.ResultLine{Text: fmt.Sprintf("Wrote %d ops to %s", len(ops), parseReviewOut)})
			})
			return nil
		}
		fmt.Println(string(batch))
		return nil
	},
}

func init() {
	applyModificationsCmd.Flags().StringVar(&applyModsFrom, "from", "", "Path to the ops JSON file (required)")
	applyModificationsCmd.Flags().BoolVar(&applyModsDryRun, "dry-run", false, "Preview without writing")

	parseReviewCmd.Flags().StringVar(&parseReviewFile, "review", "", "Path to the Markdown review report (required)")
	parseReviewCmd.Flags().StringVar(&parseReviewOut, "out", "", "Write the batch to a file instead of stdout")
	parseReviewCmd.Flags().BoolVar(&parseReviewApply, "apply", false, "Apply the parsed batch immediately")
	parseReviewCmd.Flags().BoolVar(&parseReviewDryRun, "dry-run", false, "With --apply, preview without writing")

	rootCmd.AddCommand(applyModificationsCmd, parseReviewCmd)
}
