package ledger

import (
	"bytes"
	"encoding/csv"
	"errors"
	"path/filepath"
	"strings"
)

// Entry records one deployed decoy. Name excludes the extension; Extension
// includes the leading dot; Dir is absolute.
type Entry struct {
	Name      string `json:"name"`
	Extension string `json:"extension"`
	Dir       string `json:"dir"`
}

// FileName returns the decoy's file name.
func (e Entry) FileName() string {
	return e.Name + e.Extension
}

// Path returns the decoy's absolute path.
func (e Entry) Path() string {
	return filepath.Join(e.Dir, e.FileName())
}

func (e Entry) validate() error {
	switch {
	case strings.TrimSpace(e.Name) == "":
		return errors.New("entry name is empty")
	case strings.ContainsAny(e.Name, `/\`):
		return errors.New("entry name contains a path separator")
	case e.Extension != "" && !strings.HasPrefix(e.Extension, "."):
		return errors.New("entry extension must start with a dot")
	case !filepath.IsAbs(e.Dir):
		return errors.New("entry directory must be absolute")
	}
	return nil
}

// encode renders e as one CSV row including the trailing newline.
func (e Entry) encode() []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{e.Name, e.Extension, e.Dir})
	w.Flush()
	return buf.Bytes()
}
