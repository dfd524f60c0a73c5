package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"snare/internal/daemon"
	"snare/internal/journal"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var recent int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show agent, ledger and journal state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			status, err := daemon.ReadStatus(cmd.Context(), cfg, recent)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			lines := []string{renderSectionHeader("Agent", colorize)}
			if status.Running {
				lines = append(lines, renderStatusLine("Agent", statusOK, "running", colorize))
			} else {
				lines = append(lines, renderStatusLine("Agent", statusWarn, "not running", colorize))
			}
			lines = append(lines,
				renderStatusLine("Root", statusInfo, status.RootDir, colorize),
				renderStatusLine("Config", statusInfo, ctx.configPath, colorize),
				renderStatusLine("Ledger", statusInfo, fmt.Sprintf("%d entries (%s)", status.LedgerEntries, status.LedgerPath), colorize),
			)
			if status.JournalErr != nil {
				lines = append(lines, renderStatusLine("Journal", statusWarn, "unavailable: "+status.JournalErr.Error(), colorize))
			} else {
				lines = append(lines, renderStatusLine("Journal", statusOK, status.JournalPath, colorize))
				tamper := status.EventCounts[journal.KindTamper]
				kind := statusOK
				if tamper > 0 {
					kind = statusError
				}
				lines = append(lines, renderStatusLine("Tamper events", kind, strconv.Itoa(tamper), colorize))
				lines = append(lines, renderStatusLine("Events", statusInfo, formatCounts(status.EventCounts), colorize))
			}
			fmt.Fprintln(out, strings.Join(lines, "\n"))

			if len(status.Recent) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderSectionHeader("Recent events", colorize))
				fmt.Fprintln(out, renderEvents(status.Recent))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&recent, "recent", "n", 5, "Number of recent journal events to show")
	return cmd
}

func formatCounts(counts map[journal.Kind]int) string {
	var parts []string
	for _, kind := range journal.AllKinds() {
		if n := counts[kind]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", kind, n))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}
