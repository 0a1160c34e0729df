package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/specdeck/specdeck/internal/ui"
)

var cacheInfoCmd = &cobra.Command{
	Use:     "cache-info",
	GroupID: "cache",
	Short:   "Show consultation cache usage",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := openCache()
		if err != nil {
			return err
		}
		defer cache.Close()
		stats, err := cache.Info()
		if err != nil {
			return err
		}
		outputResult(stats, func() {
			port := uiPort()
			port.Print(ui.ResultLine{Text: fmt.Sprintf("Cache: %s at %s",
				humanize.Bytes(uint64(stats.TotalBytes)), cache.Dir)})
			port.Print(ui.ResultLine{Text: fmt.Sprintf("%d entries (limit %s, TTL %s)",
				stats.Entries, humanize.Bytes(uint64(cache.MaxBytes)), cache.TTL)})
			if !stats.Oldest.IsZero() {
				port.Print(ui.ResultLine{Text: fmt.Sprintf("Oldest entry %s, newest %s",
					humanize.Time(stats.Oldest), humanize.Time(stats.Newest))})
			}
			if len(stats.PerTool) > 0 {
				rows := make([][]string, 0, len(stats.PerTool))
				for _, t := range stats.PerTool {
					rows = append(rows, []string{t.Tool, fmt.Sprintf("%d", t.Entries), humanize.Bytes(uint64(t.Bytes))})
				}
				port.Print(ui.Table{Headers: []string{"TOOL", "ENTRIES", "SIZE"}, Rows: rows})
			}
		})
		return nil
	},
}

var cacheClearTool string

var cacheClearCmd = &cobra.Command{
	Use:     "cache-clear",
	GroupID: "cache",
	Short:   "Drop cached consultation responses",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := openCache()
		if err != nil {
			return err
		}
		defer cache.Close()
		var dropped int
		if cacheClearTool != "" {
			dropped, err = cache.ClearTool(cacheClearTool)
		} else {
			dropped, err = cache.Clear()
		}
		if err != nil {
			return err
		}
		outputResult(map[string]any{"dropped": dropped}, func() {
			uiPort().Print(ui.ResultLine{Text: fmt.Sprintf("Dropped %d cache entries.", dropped)})
		})
		return nil
	},
}

func init() {
	cacheClearCmd.Flags().StringVar(&cacheClearTool, "tool", "", "Only drop entries for this tool")

	rootCmd.AddCommand(cacheInfoCmd, cacheClearCmd)
}
