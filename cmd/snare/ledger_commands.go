package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"snare/internal/daemon"
	"snare/internal/ledger"
	"snare/internal/logging"
)

func newLedgerCommand(ctx *commandContext) *cobra.Command {
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and maintain the decoy ledger",
	}
	ledgerCmd.AddCommand(newLedgerListCommand(ctx))
	ledgerCmd.AddCommand(newLedgerPruneCommand(ctx))
	return ledgerCmd
}

func newLedgerListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked decoys",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			entries, err := ledger.Load(cfg.Paths.LedgerPath)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, entries)
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "Ledger is empty")
				return nil
			}
			rows := make([][]string, len(entries))
			for i, e := range entries {
				rows[i] = []string{strconv.Itoa(i + 1), e.FileName(), e.Dir}
			}
			fmt.Fprintln(out, renderTable([]string{"#", "Decoy", "Directory"}, rows, 0))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func newLedgerPruneCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove rows whose directory no longer exists (agent must be stopped)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			removed, err := daemon.PruneLedger(cmd.Context(), cfg, logging.NewNop())
			if err != nil {
				return fmt.Errorf("prune ledger: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(removed) == 0 {
				fmt.Fprintln(out, "Nothing to prune")
				return nil
			}
			for _, e := range removed {
				fmt.Fprintf(out, "removed %s\n", e.Path())
			}
			fmt.Fprintf(out, "Pruned %d ledger row(s)\n", len(removed))
			return nil
		},
	}
}
