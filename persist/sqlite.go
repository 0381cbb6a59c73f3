package persist

import (
	"database/sql"
	"strings"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/rowtriage/rowquery/flagkind"
	"github.com/rowtriage/rowquery/flagstore"
	"github.com/rowtriage/rowquery/ioc"
)

// SQLiteBackend implements flagstore.Backend, ioc.Backend,
// rowcache.RowTextBackend and rowcache.IocFlagBackend against a single
// embedded SQLite database (modernc.org/sqlite, pure Go, grounded on the
// sqldef pack entry's driver choice). One table per artifact kind, with a
// project column for isolation, rather than one table per project.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (creating if necessary) the SQLite database at
// path and ensures its schema exists.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "sql.Open")
	}
	b := &SQLiteBackend{db: db}
	if err := b.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *SQLiteBackend) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS flags (
			project TEXT NOT NULL,
			row_index INTEGER NOT NULL,
			flag TEXT NOT NULL,
			memo TEXT NOT NULL,
			PRIMARY KEY (project, row_index)
		)`,
		`CREATE TABLE IF NOT EXISTS ioc_rules (
			project TEXT NOT NULL,
			seq INTEGER NOT NULL,
			flag TEXT NOT NULL,
			tag TEXT NOT NULL,
			query TEXT NOT NULL,
			PRIMARY KEY (project, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS row_text_cache (
			project TEXT PRIMARY KEY,
			vec TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ioc_flag_cache (
			project TEXT PRIMARY KEY,
			vec TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS column_metrics (
			project TEXT NOT NULL,
			column_name TEXT NOT NULL,
			max_chars INTEGER NOT NULL,
			PRIMARY KEY (project, column_name)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := b.db.Exec(stmt); err != nil {
			return errors.Wrapf(err, "exec schema: %s", stmt)
		}
	}
	return nil
}

// Close closes the underlying database handle.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

func (b *SQLiteBackend) LoadFlags(project string) (map[int]flagstore.Entry, error) {
	rows, err := b.db.Query(`SELECT row_index, flag, memo FROM flags WHERE project = ?`, project)
	if err != nil {
		return nil, errors.Wrap(err, "query flags")
	}
	defer rows.Close()

	out := make(map[int]flagstore.Entry)
	for rows.Next() {
		var row int
		var flag, memo string
		if err := rows.Scan(&row, &flag, &memo); err != nil {
			return nil, errors.Wrap(err, "scan flags")
		}
		out[row] = flagstore.Entry{Flag: flagkind.Normalize(flag), Memo: memo}
	}
	return out, rows.Err()
}

func (b *SQLiteBackend) SaveFlags(project string, entries map[int]flagstore.Entry) error {
	tx, err := b.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM flags WHERE project = ?`, project); err != nil {
		return errors.Wrap(err, "delete flags")
	}
	for row, entry := range entries {
		if _, err := tx.Exec(
			`INSERT INTO flags (project, row_index, flag, memo) VALUES (?, ?, ?, ?)`,
			project, row, string(entry.Flag), entry.Memo,
		); err != nil {
			return errors.Wrap(err, "insert flag")
		}
	}
	return errors.Wrap(tx.Commit(), "commit flags")
}

func (b *SQLiteBackend) LoadRules(project string) ([]ioc.Rule, error) {
	rows, err := b.db.Query(
		`SELECT flag, tag, query FROM ioc_rules WHERE project = ? ORDER BY seq`, project,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query ioc_rules")
	}
	defer rows.Close()

	var out []ioc.Rule
	for rows.Next() {
		var r ioc.Rule
		var flag string
		if err := rows.Scan(&flag, &r.Tag, &r.Query); err != nil {
			return nil, errors.Wrap(err, "scan ioc_rules")
		}
		r.Flag = flagkind.Normalize(flag)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (b *SQLiteBackend) SaveRules(project string, rules []ioc.Rule) error {
	tx, err := b.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM ioc_rules WHERE project = ?`, project); err != nil {
		return errors.Wrap(err, "delete ioc_rules")
	}
	for i, r := range rules {
		if _, err := tx.Exec(
			`INSERT INTO ioc_rules (project, seq, flag, tag, query) VALUES (?, ?, ?, ?, ?)`,
			project, i, string(r.Flag), r.Tag, r.Query,
		); err != nil {
			return errors.Wrap(err, "insert ioc_rule")
		}
	}
	return errors.Wrap(tx.Commit(), "commit ioc_rules")
}

func (b *SQLiteBackend) LoadRowText(project string) ([]string, bool, error) {
	var joined string
	err := b.db.QueryRow(`SELECT vec FROM row_text_cache WHERE project = ?`, project).Scan(&joined)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "query row_text_cache")
	}
	if joined == "" {
		return []string{}, true, nil
	}
	return strings.Split(joined, "\x1f"), true, nil
}

func (b *SQLiteBackend) SaveRowText(project string, vec []string) error {
	joined := strings.Join(vec, "\x1f")
	_, err := b.db.Exec(
		`INSERT INTO row_text_cache (project, vec) VALUES (?, ?)
		 ON CONFLICT(project) DO UPDATE SET vec = excluded.vec`,
		project, joined,
	)
	return errors.Wrap(err, "upsert row_text_cache")
}

func (b *SQLiteBackend) LoadIocFlags(project string) ([]flagkind.Kind, bool, error) {
	var joined string
	err := b.db.QueryRow(`SELECT vec FROM ioc_flag_cache WHERE project = ?`, project).Scan(&joined)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "query ioc_flag_cache")
	}
	if joined == "" {
		return []flagkind.Kind{}, true, nil
	}
	parts := strings.Split(joined, "\x1f")
	out := make([]flagkind.Kind, len(parts))
	for i, p := range parts {
		out[i] = flagkind.Normalize(p)
	}
	return out, true, nil
}

func (b *SQLiteBackend) SaveIocFlags(project string, vec []flagkind.Kind) error {
	parts := make([]string, len(vec))
	for i, k := range vec {
		parts[i] = string(k)
	}
	joined := strings.Join(parts, "\x1f")
	_, err := b.db.Exec(
		`INSERT INTO ioc_flag_cache (project, vec) VALUES (?, ?)
		 ON CONFLICT(project) DO UPDATE SET vec = excluded.vec`,
		project, joined,
	)
	return errors.Wrap(err, "upsert ioc_flag_cache")
}

func (b *SQLiteBackend) LoadMetrics(project string) (map[string]int, bool, error) {
	rows, err := b.db.Query(
		`SELECT column_name, max_chars FROM column_metrics WHERE project = ?`, project,
	)
	if err != nil {
		return nil, false, errors.Wrap(err, "query column_metrics")
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var col string
		var maxChars int
		if err := rows.Scan(&col, &maxChars); err != nil {
			return nil, false, errors.Wrap(err, "scan column_metrics")
		}
		out[col] = maxChars
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	if len(out) == 0 {
		return nil, false, nil
	}
	return out, true, nil
}

func (b *SQLiteBackend) SaveMetrics(project string, metrics map[string]int) error {
	tx, err := b.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM column_metrics WHERE project = ?`, project); err != nil {
		return errors.Wrap(err, "delete column_metrics")
	}
	for col, maxChars := range metrics {
		if _, err := tx.Exec(
			`INSERT INTO column_metrics (project, column_name, max_chars) VALUES (?, ?, ?)`,
			project, col, maxChars,
		); err != nil {
			return errors.Wrap(err, "insert column_metrics")
		}
	}
	return errors.Wrap(tx.Commit(), "commit column_metrics")
}
