package ledger_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"snare/internal/ledger"
	"snare/internal/logging"
)

func openLedger(t *testing.T, path string) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(path, logging.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func entry(name, dir string) ledger.Entry {
	return ledger.Entry{Name: name, Extension: ".jpg", Dir: dir}
}

func TestAppendPersistsRows(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "file_info.csv")
	l := openLedger(t, path)

	dirA := filepath.Join(base, "a")
	dirB := filepath.Join(base, "b,with comma")
	require.NoError(t, l.Append(entry("funny_banana_hpot", dirA)))
	require.NoError(t, l.Append(entry("silly_robot_hpot", dirB)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	want := "funny_banana_hpot,.jpg," + dirA + "\n" +
		"silly_robot_hpot,.jpg,\"" + dirB + "\"\n"
	require.Equal(t, want, string(data))

	require.True(t, l.Has(dirA))
	got, ok := l.Lookup(dirB)
	require.True(t, ok)
	require.Equal(t, filepath.Join(dirB, "silly_robot_hpot.jpg"), got.Path())
	require.Equal(t, 2, l.Len())

	require.NoError(t, l.Close())
	reopened := openLedger(t, path)
	if diff := cmp.Diff(l.Entries(), reopened.Entries()); diff != "" {
		t.Fatalf("entries after reopen (-want +got):\n%s", diff)
	}
}

func TestAppendRejectsDuplicateDirectory(t *testing.T) {
	base := t.TempDir()
	l := openLedger(t, filepath.Join(base, "ledger.csv"))
	dir := filepath.Join(base, "a")

	require.NoError(t, l.Append(entry("one", dir)))
	err := l.Append(entry("two", dir+string(filepath.Separator)))
	require.ErrorIs(t, err, ledger.ErrDuplicateDir)
	require.Equal(t, 1, l.Len())
}

func TestAppendValidatesEntry(t *testing.T) {
	base := t.TempDir()
	l := openLedger(t, filepath.Join(base, "ledger.csv"))

	require.Error(t, l.Append(ledger.Entry{Name: "", Extension: ".jpg", Dir: base}))
	require.Error(t, l.Append(ledger.Entry{Name: "x", Extension: "jpg", Dir: base}))
	require.Error(t, l.Append(ledger.Entry{Name: "x", Extension: ".jpg", Dir: "relative"}))
	require.Equal(t, 0, l.Len())
}

func TestReconcileRemovesExactlyDeletedDirectories(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "ledger.csv")
	l := openLedger(t, path)

	dirs := []string{"a", "b", "c", "d", "e"}
	for i, d := range dirs {
		require.NoError(t, l.Append(entry("decoy"+string(rune('0'+i)), filepath.Join(base, d))))
	}
	before, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.SplitAfter(string(before), "\n")

	removed, err := l.Reconcile([]string{filepath.Join(base, "b"), filepath.Join(base, "d"), filepath.Join(base, "unknown")})
	require.NoError(t, err)
	if diff := cmp.Diff([]ledger.Entry{entry("decoy1", filepath.Join(base, "b")), entry("decoy3", filepath.Join(base, "d"))}, removed); diff != "" {
		t.Fatalf("removed mismatch (-want +got):\n%s", diff)
	}

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, lines[0]+lines[2]+lines[4], string(after), "remaining rows must keep bytes and order")
	require.False(t, l.Has(filepath.Join(base, "b")))
	require.True(t, l.Has(filepath.Join(base, "e")))

	// The append handle must follow the rewritten file.
	require.NoError(t, l.Append(entry("late", filepath.Join(base, "f"))))
	final, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(string(final), "late,.jpg,"+filepath.Join(base, "f")+"\n"))
}

func TestReconcileWithoutMatchesLeavesFileUntouched(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "ledger.csv")
	l := openLedger(t, path)
	require.NoError(t, l.Append(entry("keep", filepath.Join(base, "a"))))

	before, err := os.Stat(path)
	require.NoError(t, err)

	removed, err := l.Reconcile([]string{filepath.Join(base, "zzz")})
	require.NoError(t, err)
	require.Empty(t, removed)

	after, err := os.Stat(path)
	require.NoError(t, err)
	require.True(t, os.SameFile(before, after), "file should not be rewritten")
}

func TestOpenDropsTornFinalRow(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "ledger.csv")
	good := "a_b_hpot,.jpg," + filepath.Join(base, "x") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(good+"c_d_hpot,.jp"), 0o644))

	l := openLedger(t, path)
	require.Equal(t, 1, l.Len())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, good, string(data), "torn tail should be removed from disk")

	require.NoError(t, l.Append(entry("next", filepath.Join(base, "y"))))
	entries, err := ledger.Load(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestOpenKeepsCompleteFinalRowWithoutNewline(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "ledger.csv")
	first := "a_b_hpot,.jpg," + filepath.Join(base, "x") + "\n"
	last := "c_d_hpot,.jpg," + filepath.Join(base, "y")
	require.NoError(t, os.WriteFile(path, []byte(first+last), 0o644))

	l := openLedger(t, path)
	require.Equal(t, 2, l.Len())
	_, ok := l.Lookup(filepath.Join(base, "y"))
	require.True(t, ok)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, first+last+"\n", string(data), "final row should be newline-terminated on disk")

	require.NoError(t, l.Append(entry("next", filepath.Join(base, "z"))))
	entries, err := ledger.Load(path)
	require.NoError(t, err)
	require.Len(t, entries, 3)
}

func TestOpenRejectsMalformedInteriorRow(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "ledger.csv")
	content := "only,two\n" + "a,.jpg," + filepath.Join(base, "x") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := ledger.Open(path, logging.NewNop())
	require.Error(t, err)
}

func TestOpenFailsWhenParentMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "ledger.csv")
	_, err := ledger.Open(path, logging.NewNop())
	require.ErrorIs(t, err, ledger.ErrIO)
	var ioErr *ledger.IOError
	require.True(t, errors.As(err, &ioErr))
}

func TestInterruptedRewriteLeavesPriorState(t *testing.T) {
	base := t.TempDir()
	path := filepath.Join(base, "ledger.csv")
	l := openLedger(t, path)
	require.NoError(t, l.Append(entry("one", filepath.Join(base, "a"))))
	require.NoError(t, l.Close())

	// A crash between writing the temp file and renaming it leaves a stray
	// temp sibling; the durable table is the original.
	stray := filepath.Join(base, ".ledger.csv.tmp-123")
	require.NoError(t, os.WriteFile(stray, []byte("garbage"), 0o644))

	entries, err := ledger.Load(path)
	require.NoError(t, err)
	require.Equal(t, []ledger.Entry{entry("one", filepath.Join(base, "a"))}, entries)
}

func TestCloseIsIdempotentAndBlocksMutation(t *testing.T) {
	base := t.TempDir()
	l, err := ledger.Open(filepath.Join(base, "ledger.csv"), logging.NewNop())
	require.NoError(t, err)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	require.ErrorIs(t, l.Append(entry("x", filepath.Join(base, "a"))), ledger.ErrClosed)
	_, err = l.Reconcile([]string{base})
	require.ErrorIs(t, err, ledger.ErrClosed)
}

func TestLoadMissingFile(t *testing.T) {
	entries, err := ledger.Load(filepath.Join(t.TempDir(), "none.csv"))
	require.NoError(t, err)
	require.Empty(t, entries)
}
