// Package persist implements the two concrete, swappable persistence
// backends for flag/IOC/cache storage (spec §4.L): an atomic JSON-file
// backend in the teacher's renameio idiom (file/save.go), and an embedded
// SQLite backend grounded on the sqldef pack entry's database/sql usage.
package persist

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/pkg/errors"

	"github.com/rowtriage/rowquery/flagkind"
	"github.com/rowtriage/rowquery/flagstore"
	"github.com/rowtriage/rowquery/ioc"
)

// JSONFileBackend persists one artifact per project under root, one file
// per (kind, project) pair, written via renameio's temp-file-then-rename so
// a crash mid-write never leaves a truncated file (mirrors file.Save).
type JSONFileBackend struct {
	root string
}

// NewJSONFileBackend builds a JSONFileBackend rooted at root. The directory
// is not created here; each write creates the directories it needs.
func NewJSONFileBackend(root string) *JSONFileBackend {
	return &JSONFileBackend{root: root}
}

func (b *JSONFileBackend) path(kind, project string) string {
	return filepath.Join(b.root, kind, project+".json")
}

func writeJSON(path string, value any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "os.MkdirAll")
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errors.Wrap(err, "json.Marshal")
	}
	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(0644), renameio.WithExistingPermissions())
	if err != nil {
		return errors.Wrap(err, "renameio.NewPendingFile")
	}
	defer pf.Cleanup()
	if _, err := pf.Write(data); err != nil {
		return errors.Wrap(err, "pendingFile.Write")
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return errors.Wrap(err, "pendingFile.CloseAtomicallyReplace")
	}
	return nil
}

func readJSON(path string, out any) (exists bool, err error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "os.ReadFile")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, errors.Wrap(err, "json.Unmarshal")
	}
	return true, nil
}

// flagRecord is the JSON-serialised form of one flagstore entry.
type flagRecord struct {
	Row  int    `json:"row"`
	Flag string `json:"flag"`
	Memo string `json:"memo"`
}

func (b *JSONFileBackend) LoadFlags(project string) (map[int]flagstore.Entry, error) {
	var records []flagRecord
	exists, err := readJSON(b.path("flags", project), &records)
	if err != nil || !exists {
		return nil, err
	}
	out := make(map[int]flagstore.Entry, len(records))
	for _, r := range records {
		out[r.Row] = flagstore.Entry{Flag: flagkind.Normalize(r.Flag), Memo: r.Memo}
	}
	return out, nil
}

func (b *JSONFileBackend) SaveFlags(project string, entries map[int]flagstore.Entry) error {
	records := make([]flagRecord, 0, len(entries))
	for row, entry := range entries {
		records = append(records, flagRecord{Row: row, Flag: string(entry.Flag), Memo: entry.Memo})
	}
	return writeJSON(b.path("flags", project), records)
}

func (b *JSONFileBackend) LoadRules(project string) ([]ioc.Rule, error) {
	var rules []ioc.Rule
	_, err := readJSON(b.path("iocs", project), &rules)
	return rules, err
}

func (b *JSONFileBackend) SaveRules(project string, rules []ioc.Rule) error {
	return writeJSON(b.path("iocs", project), rules)
}

func (b *JSONFileBackend) LoadMetrics(project string) (map[string]int, bool, error) {
	var metrics map[string]int
	exists, err := readJSON(b.path("columnmetrics", project), &metrics)
	return metrics, exists, err
}

func (b *JSONFileBackend) SaveMetrics(project string, metrics map[string]int) error {
	return writeJSON(b.path("columnmetrics", project), metrics)
}

type rowTextCacheRecord struct {
	Vec []string `json:"vec"`
}

func (b *JSONFileBackend) LoadRowText(project string) ([]string, bool, error) {
	var rec rowTextCacheRecord
	exists, err := readJSON(b.path("rowtext", project), &rec)
	return rec.Vec, exists, err
}

func (b *JSONFileBackend) SaveRowText(project string, vec []string) error {
	return writeJSON(b.path("rowtext", project), rowTextCacheRecord{Vec: vec})
}

type iocFlagCacheRecord struct {
	Vec []string `json:"vec"`
}

func (b *JSONFileBackend) LoadIocFlags(project string) ([]flagkind.Kind, bool, error) {
	var rec iocFlagCacheRecord
	exists, err := readJSON(b.path("iocflags", project), &rec)
	if err != nil || !exists {
		return nil, exists, err
	}
	out := make([]flagkind.Kind, len(rec.Vec))
	for i, s := range rec.Vec {
		out[i] = flagkind.Normalize(s)
	}
	return out, true, nil
}

func (b *JSONFileBackend) SaveIocFlags(project string, vec []flagkind.Kind) error {
	rec := iocFlagCacheRecord{Vec: make([]string, len(vec))}
	for i, k := range vec {
		rec.Vec[i] = string(k)
	}
	return writeJSON(b.path("iocflags", project), rec)
}
