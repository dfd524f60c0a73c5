package decoy_test

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"math/rand/v2"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"snare/internal/decoy"
	"snare/internal/ledger"
	"snare/internal/logging"
)

type stubLedger struct {
	seeded    map[string]bool
	appended  []ledger.Entry
	appendErr error
}

func (s *stubLedger) Has(dir string) bool { return s.seeded[dir] }

func (s *stubLedger) Append(e ledger.Entry) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.appended = append(s.appended, e)
	if s.seeded == nil {
		s.seeded = map[string]bool{}
	}
	s.seeded[e.Dir] = true
	return nil
}

func newNamer(t *testing.T, unique bool, seed uint64) *decoy.Namer {
	t.Helper()
	n, err := decoy.NewNamer(decoy.NameOptions{
		Adjectives: []string{"funny", "silly"},
		Nouns:      []string{"banana", "robot"},
		Suffix:     "hpot",
		Unique:     unique,
		Source:     rand.NewPCG(seed, seed),
	})
	require.NoError(t, err)
	return n
}

func writeBytes(content string) decoy.PayloadFunc {
	return func(_ context.Context, path string) error {
		return os.WriteFile(path, []byte(content), 0o644)
	}
}

func newDeployer(t *testing.T, l decoy.Ledger, payload decoy.PayloadCreator, namer *decoy.Namer, hidden bool) *decoy.Deployer {
	t.Helper()
	d, err := decoy.NewDeployer(decoy.Options{
		Ledger:    l,
		Payload:   payload,
		Namer:     namer,
		Extension: ".jpg",
		Hidden:    hidden,
		Logger:    logging.NewNop(),
	})
	require.NoError(t, err)
	return d
}

func TestNamerFormats(t *testing.T) {
	plain := newNamer(t, false, 1)
	require.Regexp(t, regexp.MustCompile(`^(funny|silly)_(banana|robot)_hpot$`), plain.Next())
	require.Equal(t, 4, plain.Combinations())

	tagged := newNamer(t, true, 1)
	require.Regexp(t, regexp.MustCompile(`^(funny|silly)_(banana|robot)_[0-9a-f]{4}_hpot$`), tagged.Next())
	require.Equal(t, 4<<16, tagged.Combinations())
}

func TestNewNamerRejectsEmptyVocabulary(t *testing.T) {
	_, err := decoy.NewNamer(decoy.NameOptions{Nouns: []string{"x"}, Suffix: "hpot"})
	require.Error(t, err)
	_, err = decoy.NewNamer(decoy.NameOptions{Adjectives: []string{"x"}, Nouns: []string{"y"}})
	require.Error(t, err)
}

func TestDeployWritesOneFileAndOneRow(t *testing.T) {
	dir := t.TempDir()
	l := &stubLedger{}
	d := newDeployer(t, l, writeBytes("payload"), newNamer(t, true, 7), false)

	entry, err := d.Deploy(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, dir, entry.Dir)
	require.Equal(t, ".jpg", entry.Extension)
	require.Equal(t, []ledger.Entry{entry}, l.appended)

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, entry.FileName(), files[0].Name())
}

func TestDeploySkipsSeededDirectory(t *testing.T) {
	dir := t.TempDir()
	l := &stubLedger{seeded: map[string]bool{dir: true}}
	calls := 0
	payload := decoy.PayloadFunc(func(context.Context, string) error {
		calls++
		return nil
	})
	d := newDeployer(t, l, payload, newNamer(t, false, 1), false)

	_, err := d.Deploy(context.Background(), dir)
	require.ErrorIs(t, err, decoy.ErrAlreadySeeded)
	require.Zero(t, calls)
	require.Empty(t, l.appended)
}

func TestDeployPayloadFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	l := &stubLedger{}
	boom := errors.New("disk full")
	payload := decoy.PayloadFunc(func(_ context.Context, path string) error {
		_ = os.WriteFile(path, []byte("part"), 0o644)
		return boom
	})
	d := newDeployer(t, l, payload, newNamer(t, false, 1), false)

	_, err := d.Deploy(context.Background(), dir)
	var deployErr *decoy.DeployError
	require.ErrorAs(t, err, &deployErr)
	require.Equal(t, decoy.ReasonPayload, deployErr.Reason)
	require.Equal(t, dir, deployErr.Dir)
	require.ErrorIs(t, err, boom)
	require.Empty(t, l.appended)

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, files, "partial payload must be removed")
}

func TestDeployLedgerFailureRemovesDecoy(t *testing.T) {
	dir := t.TempDir()
	ledgerErr := &ledger.IOError{Op: "append", Path: "x", Err: errors.New("read-only fs")}
	l := &stubLedger{appendErr: ledgerErr}
	d := newDeployer(t, l, writeBytes("payload"), newNamer(t, false, 1), false)

	_, err := d.Deploy(context.Background(), dir)
	require.ErrorIs(t, err, ledger.ErrIO)

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, files, "decoy without a ledger row must not remain")
}

func TestDeployMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "gone")
	d := newDeployer(t, &stubLedger{}, writeBytes("x"), newNamer(t, false, 1), false)

	_, err := d.Deploy(context.Background(), dir)
	var deployErr *decoy.DeployError
	require.ErrorAs(t, err, &deployErr)
	require.Equal(t, decoy.ReasonDirUnavailable, deployErr.Reason)
}

func TestDeployUnsearchableDirectoryIsRetryable(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced")
	}
	dir := filepath.Join(t.TempDir(), "locked")
	require.NoError(t, os.Mkdir(dir, 0o600))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })
	l := &stubLedger{}
	d := newDeployer(t, l, writeBytes("x"), newNamer(t, false, 1), false)

	_, err := d.Deploy(context.Background(), dir)
	var deployErr *decoy.DeployError
	require.ErrorAs(t, err, &deployErr)
	require.Equal(t, decoy.ReasonNameCheck, deployErr.Reason)
	require.ErrorIs(t, err, os.ErrPermission)
	require.Empty(t, l.appended)

	require.NoError(t, os.Chmod(dir, 0o755))
	entry, err := d.Deploy(context.Background(), dir)
	require.NoError(t, err)
	require.FileExists(t, entry.Path())
}

func TestDeployRerollsExistingNames(t *testing.T) {
	dir := t.TempDir()
	// Occupy three of the four possible names.
	for _, name := range []string{"funny_banana_hpot", "funny_robot_hpot", "silly_banana_hpot"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".jpg"), nil, 0o644))
	}
	d := newDeployer(t, &stubLedger{}, writeBytes("x"), newNamer(t, false, 3), false)

	entry, err := d.Deploy(context.Background(), dir)
	if err != nil {
		var deployErr *decoy.DeployError
		require.ErrorAs(t, err, &deployErr)
		require.Equal(t, decoy.ReasonNameExhausted, deployErr.Reason)
		return
	}
	require.Equal(t, "silly_robot_hpot", entry.Name)
}

func TestDeployNameExhausted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"funny_banana_hpot", "funny_robot_hpot", "silly_banana_hpot", "silly_robot_hpot"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".jpg"), nil, 0o644))
	}
	d := newDeployer(t, &stubLedger{}, writeBytes("x"), newNamer(t, false, 3), false)

	_, err := d.Deploy(context.Background(), dir)
	var deployErr *decoy.DeployError
	require.ErrorAs(t, err, &deployErr)
	require.Equal(t, decoy.ReasonNameExhausted, deployErr.Reason)
}

func TestDeployHidden(t *testing.T) {
	dir := t.TempDir()
	d := newDeployer(t, &stubLedger{}, writeBytes("x"), newNamer(t, false, 1), true)

	entry, err := d.Deploy(context.Background(), dir)
	require.NoError(t, err)
	if runtime.GOOS != "windows" {
		require.True(t, strings.HasPrefix(entry.Name, "."), "expected dot-prefixed name, got %q", entry.Name)
	}
	_, err = os.Stat(entry.Path())
	require.NoError(t, err)
}

func TestJPEGPayloadProducesDistinctImages(t *testing.T) {
	dir := t.TempDir()
	payload := decoy.NewJPEGPayload()
	first := filepath.Join(dir, "one.jpg")
	second := filepath.Join(dir, "two.jpg")
	require.NoError(t, payload.Create(context.Background(), first))
	require.NoError(t, payload.Create(context.Background(), second))

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	require.False(t, bytes.Equal(a, b), "decoys should not share content")

	img, err := jpeg.Decode(bytes.NewReader(a))
	require.NoError(t, err)
	require.Equal(t, 200, img.Bounds().Dx())
	require.Equal(t, 200, img.Bounds().Dy())

	err = payload.Create(context.Background(), first)
	require.ErrorIs(t, err, os.ErrExist, "existing files must not be overwritten")
}
