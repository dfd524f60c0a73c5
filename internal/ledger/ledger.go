package ledger

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"snare/internal/fileutil"
	"snare/internal/logging"
)

type row struct {
	entry Entry
	raw   []byte
}

// Ledger is the durable decoy table plus an in-memory index by directory.
type Ledger struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	closed bool
	rows   []row
	byDir  map[string]int
	logger *slog.Logger
}

// Open loads the ledger at path, creating an empty file if none exists. The
// parent directory must already exist. A final row missing its newline is
// kept when it decodes as a valid entry and dropped as torn otherwise; either
// way the file is repaired. Any other malformed row fails the open.
func Open(path string, logger *slog.Logger) (*Ledger, error) {
	logger = logging.NewComponentLogger(logger, "ledger")
	path = filepath.Clean(path)

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}

	rows, valid, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("ledger %s: %w", path, err)
	}
	switch {
	case len(valid) < len(data):
		logging.WarnWithContext(logger, "dropping torn final ledger row", "ledger_torn_row",
			logging.Path(path),
			logging.Int("bytes_dropped", len(data)-len(valid)),
			logging.String(logging.FieldErrorHint, "a previous run stopped mid-append"),
			logging.String(logging.FieldImpact, "the decoy from the interrupted deployment is untracked"),
		)
	case len(valid) > len(data):
		logger.Info("terminating final ledger row", logging.Path(path))
	}
	if !bytes.Equal(valid, data) {
		err := fileutil.WriteFileAtomic(path, 0o644, func(w io.Writer) error {
			_, err := w.Write(valid)
			return err
		})
		if err != nil {
			return nil, &IOError{Op: "repair", Path: path, Err: err}
		}
	}

	l := &Ledger{path: path, logger: logger}
	l.setRows(rows)
	if err := l.ensureFile(); err != nil {
		return nil, err
	}
	logger.Debug("ledger opened", logging.Path(path), logging.Int("entries", len(rows)))
	return l, nil
}

// Load reads the ledger at path without opening it for writing. A missing
// file yields no entries and a torn final row is ignored.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	rows, _, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("ledger %s: %w", path, err)
	}
	entries := make([]Entry, len(rows))
	for i, r := range rows {
		entries[i] = r.entry
	}
	return entries, nil
}

// Path returns the ledger file location.
func (l *Ledger) Path() string {
	return l.path
}

// Append durably records entry. It fails with ErrDuplicateDir if the
// directory is already tracked, and with an *IOError if the row could not be
// written and synced; in that case the file is truncated back so no partial
// row remains.
func (l *Ledger) Append(entry Entry) error {
	if err := entry.validate(); err != nil {
		return fmt.Errorf("ledger append: %w", err)
	}
	entry.Dir = filepath.Clean(entry.Dir)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if _, ok := l.byDir[entry.Dir]; ok {
		return fmt.Errorf("ledger append %s: %w", entry.Dir, ErrDuplicateDir)
	}
	if err := l.ensureFile(); err != nil {
		return err
	}

	info, err := l.file.Stat()
	if err != nil {
		return &IOError{Op: "stat", Path: l.path, Err: err}
	}
	raw := entry.encode()
	if _, err := l.file.Write(raw); err != nil {
		l.rollback(info.Size())
		return &IOError{Op: "append", Path: l.path, Err: err}
	}
	if err := l.file.Sync(); err != nil {
		l.rollback(info.Size())
		return &IOError{Op: "sync", Path: l.path, Err: err}
	}

	l.byDir[entry.Dir] = len(l.rows)
	l.rows = append(l.rows, row{entry: entry, raw: raw})
	return nil
}

// Reconcile removes every entry whose directory is in deleted and returns the
// removed entries in ledger order. Paths are compared after filepath.Clean.
func (l *Ledger) Reconcile(deleted []string) ([]Entry, error) {
	if len(deleted) == 0 {
		return nil, nil
	}
	set := make(map[string]struct{}, len(deleted))
	for _, dir := range deleted {
		set[filepath.Clean(dir)] = struct{}{}
	}
	return l.RemoveWhere(func(e Entry) bool {
		_, ok := set[e.Dir]
		return ok
	})
}

// RemoveWhere removes every entry matching drop by rewriting the full table
// atomically. Remaining rows keep their bytes and relative order. When
// nothing matches the file is left untouched. On failure the ledger, on disk
// and in memory, is unchanged.
func (l *Ledger) RemoveWhere(drop func(Entry) bool) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrClosed
	}

	kept := make([]row, 0, len(l.rows))
	var removed []Entry
	for _, r := range l.rows {
		if drop(r.entry) {
			removed = append(removed, r.entry)
			continue
		}
		kept = append(kept, r)
	}
	if len(removed) == 0 {
		return nil, nil
	}

	err := fileutil.WriteFileAtomic(l.path, 0o644, func(w io.Writer) error {
		for _, r := range kept {
			if _, err := w.Write(r.raw); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, &IOError{Op: "rewrite", Path: l.path, Err: err}
	}

	l.setRows(kept)
	// The rename replaced the file, so the append handle points at the old
	// inode.
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
	if err := l.ensureFile(); err != nil {
		return removed, err
	}
	return removed, nil
}

// Has reports whether dir has a tracked decoy.
func (l *Ledger) Has(dir string) bool {
	_, ok := l.Lookup(dir)
	return ok
}

// Lookup returns the entry tracked for dir.
func (l *Ledger) Lookup(dir string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx, ok := l.byDir[filepath.Clean(dir)]
	if !ok {
		return Entry{}, false
	}
	return l.rows[idx].entry, true
}

// Entries returns a copy of all entries in ledger order.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.rows))
	for i, r := range l.rows {
		out[i] = r.entry
	}
	return out
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.rows)
}

// Close releases the append handle. Closing twice is a no-op.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	if err != nil {
		return &IOError{Op: "close", Path: l.path, Err: err}
	}
	return nil
}

func (l *Ledger) ensureFile() error {
	if l.file != nil {
		return nil
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return &IOError{Op: "open", Path: l.path, Err: err}
	}
	l.file = f
	return nil
}

func (l *Ledger) rollback(size int64) {
	if err := l.file.Truncate(size); err != nil {
		logging.ErrorWithContext(l.logger, "ledger rollback failed", "ledger_rollback_failed",
			logging.Path(l.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the torn row will be dropped on next open"),
		)
	}
}

func (l *Ledger) setRows(rows []row) {
	l.rows = rows
	l.byDir = make(map[string]int, len(rows))
	for i, r := range rows {
		l.byDir[r.entry.Dir] = i
	}
}

// parse decodes the rows in data and returns the bytes the file should hold.
// Bytes after the last newline are kept, newline-terminated, when they decode
// as one valid entry and are excluded as a torn row otherwise.
func parse(data []byte) ([]row, []byte, error) {
	valid := data
	if n := len(data); n > 0 && data[n-1] != '\n' {
		cut := bytes.LastIndexByte(data, '\n') + 1
		valid = data[:cut]
		if completeRow(data[cut:]) {
			valid = append(append(make([]byte, 0, n+1), data...), '\n')
		}
	}

	reader := csv.NewReader(bytes.NewReader(valid))
	reader.FieldsPerRecord = -1
	var rows []row
	var prev int64
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("malformed row: %w", err)
		}
		if len(record) != 3 {
			line, _ := reader.FieldPos(0)
			return nil, nil, fmt.Errorf("line %d: expected 3 fields, got %d", line, len(record))
		}
		offset := reader.InputOffset()
		raw := bytes.TrimLeft(valid[prev:offset], "\r\n")
		prev = offset
		rows = append(rows, row{
			entry: Entry{Name: record[0], Extension: record[1], Dir: filepath.Clean(record[2])},
			raw:   append([]byte(nil), raw...),
		})
	}
	return rows, valid, nil
}

// completeRow reports whether tail holds exactly one well-formed entry.
func completeRow(tail []byte) bool {
	reader := csv.NewReader(bytes.NewReader(tail))
	record, err := reader.Read()
	if err != nil || len(record) != 3 {
		return false
	}
	if _, err := reader.Read(); !errors.Is(err, io.EOF) {
		return false
	}
	e := Entry{Name: record[0], Extension: record[1], Dir: record[2]}
	return e.validate() == nil
}
