package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"snare/internal/journal"
)

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var kinds []string
	eventsCmd := &cobra.Command{
		Use:   "events",
		Short: "List recent journal events",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseKinds(kinds)
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			store, err := journal.Open(cfg.JournalPath())
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer store.Close()

			events, err := store.Recent(cmd.Context(), limit, filter...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(events) == 0 {
				fmt.Fprintln(out, "No events recorded")
				return nil
			}
			fmt.Fprintln(out, renderEvents(events))
			return nil
		},
	}
	eventsCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum events to show (0 for all)")
	eventsCmd.Flags().StringSliceVarP(&kinds, "kind", "k", nil, "Only show these kinds (created, deleted, deployed, deploy_failed, reconciled, tamper, walk_failed)")
	eventsCmd.AddCommand(newEventsPruneCommand(ctx))
	return eventsCmd
}

func newEventsPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete journal events older than a duration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			store, err := journal.Open(cfg.JournalPath())
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer store.Close()

			removed, err := store.PruneEvents(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d event(s)\n", removed)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Age cutoff")
	return cmd
}

func parseKinds(values []string) ([]journal.Kind, error) {
	var kinds []journal.Kind
	for _, v := range values {
		kind, ok := journal.ParseKind(v)
		if !ok {
			return nil, fmt.Errorf("unknown event kind %q", v)
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

func renderEvents(events []journal.Event) string {
	rows := make([][]string, len(events))
	for i, e := range events {
		rows[i] = []string{
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			string(e.Kind),
			e.Path,
			truncate(e.Detail, 60),
			shortID(e.CycleID),
		}
	}
	return renderTable([]string{"Time", "Kind", "Path", "Detail", "Cycle"}, rows)
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if len(value) <= limit {
		return value
	}
	return value[:limit-3] + "..."
}

func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
