package metrics_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"snare/internal/metrics"
)

func TestWriteTextfileExportsCounters(t *testing.T) {
	rec := metrics.New()
	rec.CycleCompleted(250*time.Millisecond, time.Unix(1700000000, 0))
	rec.CycleCompleted(time.Second, time.Unix(1700000005, 0))
	rec.Deployed()
	rec.DeployFailed("payload")
	rec.Reconciled(3)
	rec.Tamper("watch")
	rec.SetLedgerEntries(7)
	rec.SetPending(1)

	path := filepath.Join(t.TempDir(), "snare.prom")
	require.NoError(t, rec.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	for _, want := range []string{
		"snare_cycles_total 2",
		"snare_decoy_deployed_total 1",
		`snare_decoy_deploy_failures_total{reason="payload"} 1`,
		"snare_ledger_reconciled_total 3",
		`snare_decoy_tamper_events_total{source="watch"} 1`,
		"snare_ledger_entries 7",
		"snare_pending_dirs 1",
		"snare_last_cycle_duration_seconds 1",
		"snare_last_cycle_timestamp_seconds 1.700000005e+09",
	} {
		require.True(t, strings.Contains(text, want), "missing %q in:\n%s", want, text)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var rec *metrics.Recorder
	rec.CycleCompleted(time.Second, time.Now())
	rec.Deployed()
	rec.Tamper("poll")
	require.NoError(t, rec.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
	require.Nil(t, rec.Registry())
}

func TestReconciledIgnoresZero(t *testing.T) {
	rec := metrics.New()
	rec.Reconciled(0)
	families, err := rec.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == "snare_ledger_reconciled_total" {
			require.Zero(t, mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
}
