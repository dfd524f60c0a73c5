package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"snare/internal/audit"
	"snare/internal/daemon"
	"snare/internal/logging"
)

var errTamperDetected = errors.New("decoy tampering detected")

func newAuditCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Verify every tracked decoy against its recorded digest",
		Long: "Hash every decoy in the ledger and compare it with the digest recorded at deployment.\n" +
			"Exits non-zero when any decoy is modified or missing.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := logging.New(logging.Options{Level: "warn", OutputPaths: []string{"stderr"}})
			if err != nil {
				logger = logging.NewNop()
			}
			report, err := daemon.Audit(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("audit: %w", err)
			}

			if asJSON {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
			} else {
				printAudit(cmd, report)
			}
			if report.Tampered() {
				return errTamperDetected
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func printAudit(cmd *cobra.Command, report audit.Report) {
	out := cmd.OutOrStdout()
	if len(report.Findings) == 0 {
		fmt.Fprintln(out, "No decoys tracked")
		return
	}
	colorize := shouldColorize(out)
	rows := make([][]string, len(report.Findings))
	for i, f := range report.Findings {
		status := string(f.Status)
		if colorize {
			status = kindColor(findingKind(f.Status)) + status + ansiReset
		}
		size := ""
		if f.Size > 0 {
			size = strconv.FormatInt(f.Size, 10)
		}
		rows[i] = []string{status, f.Path, size}
	}
	fmt.Fprintln(out, renderTable([]string{"Status", "Decoy", "Bytes"}, rows, 2))

	counts := report.Counts()
	fmt.Fprintf(out, "intact=%d modified=%d missing=%d untracked=%d\n",
		counts[audit.StatusIntact], counts[audit.StatusModified],
		counts[audit.StatusMissing], counts[audit.StatusUntracked])
}

func findingKind(status audit.Status) statusKind {
	switch status {
	case audit.StatusIntact:
		return statusOK
	case audit.StatusUntracked:
		return statusWarn
	default:
		return statusError
	}
}
