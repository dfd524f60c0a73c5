package decoy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"snare/internal/ledger"
	"snare/internal/logging"
)

const maxNameAttempts = 16

// Ledger is the subset of *ledger.Ledger the deployer needs.
type Ledger interface {
	Has(dir string) bool
	Append(entry ledger.Entry) error
}

// Options configures a Deployer.
type Options struct {
	Ledger    Ledger
	Payload   PayloadCreator
	Namer     *Namer
	Extension string
	// Hidden requests best-effort hiding: the hidden attribute on Windows, a
	// leading dot elsewhere.
	Hidden bool
	Logger *slog.Logger
}

// Deployer plants one decoy per directory.
type Deployer struct {
	ledger    Ledger
	payload   PayloadCreator
	namer     *Namer
	extension string
	hidden    bool
	logger    *slog.Logger
}

// NewDeployer validates opts and returns a Deployer.
func NewDeployer(opts Options) (*Deployer, error) {
	switch {
	case opts.Ledger == nil:
		return nil, errors.New("decoy deployer requires a ledger")
	case opts.Payload == nil:
		return nil, errors.New("decoy deployer requires a payload creator")
	case opts.Namer == nil:
		return nil, errors.New("decoy deployer requires a namer")
	}
	return &Deployer{
		ledger:    opts.Ledger,
		payload:   opts.Payload,
		namer:     opts.Namer,
		extension: opts.Extension,
		hidden:    opts.Hidden,
		logger:    logging.NewComponentLogger(opts.Logger, "decoy"),
	}, nil
}

// Deploy writes one decoy into dir (absolute) and records it.
//
// It returns ErrAlreadySeeded without side effects when the ledger already
// tracks dir, and a *DeployError when the directory is unusable or the
// payload cannot be written; neither leaves a ledger row. When the ledger
// append fails the decoy file is removed and the ledger error is returned.
func (d *Deployer) Deploy(ctx context.Context, dir string) (ledger.Entry, error) {
	dir = filepath.Clean(dir)
	if d.ledger.Has(dir) {
		return ledger.Entry{}, fmt.Errorf("%s: %w", dir, ErrAlreadySeeded)
	}

	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return ledger.Entry{}, &DeployError{Dir: dir, Reason: ReasonDirUnavailable, Err: err}
	}
	if err != nil {
		return ledger.Entry{}, &DeployError{Dir: dir, Reason: ReasonNameCheck, Err: err}
	}
	if !info.IsDir() {
		return ledger.Entry{}, &DeployError{Dir: dir, Reason: ReasonDirUnavailable, Err: errors.New("not a directory")}
	}

	entry, path, err := d.pickName(dir)
	if err != nil {
		return ledger.Entry{}, err
	}

	if err := d.payload.Create(ctx, path); err != nil {
		// A file that appeared after the name check belongs to someone else.
		if !errors.Is(err, fs.ErrExist) {
			if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				d.logger.Debug("remove partial decoy failed", logging.Path(path), logging.Error(rmErr))
			}
		}
		return ledger.Entry{}, &DeployError{Dir: dir, Reason: ReasonPayload, Err: err}
	}

	if d.hidden {
		if err := setHidden(path); err != nil {
			logging.WarnWithContext(d.logger, "could not mark decoy hidden", "decoy_hide_failed",
				logging.Path(path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "decoy is visible in default listings"),
			)
		}
	}

	if err := d.ledger.Append(entry); err != nil {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			logging.ErrorWithContext(d.logger, "orphan decoy could not be removed", "decoy_orphaned",
				logging.Path(path),
				logging.Error(rmErr),
				logging.String(logging.FieldErrorHint, "delete the file manually"),
			)
		}
		return ledger.Entry{}, err
	}

	d.logger.Debug("decoy deployed", logging.Path(path))
	return entry, nil
}

// pickName returns a ledger entry whose file does not yet exist in dir.
func (d *Deployer) pickName(dir string) (ledger.Entry, string, error) {
	prefix := ""
	if d.hidden {
		prefix = hiddenPrefix
	}
	for range maxNameAttempts {
		entry := ledger.Entry{Name: prefix + d.namer.Next(), Extension: d.extension, Dir: dir}
		path := entry.Path()
		_, err := os.Lstat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return entry, path, nil
		}
		if err != nil {
			return ledger.Entry{}, "", &DeployError{Dir: dir, Reason: ReasonNameCheck, Err: err}
		}
	}
	return ledger.Entry{}, "", &DeployError{Dir: dir, Reason: ReasonNameExhausted}
}
