package dataset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"oncostats/pkg/models"
)

// rowColumn orders rows as they were imported; it is never exposed.
const rowColumn = "_row"

// SQLStore keeps one table per dataset locator in a SQL database (sqlite or
// postgres). Placeholders are rendered per driver.
type SQLStore struct {
	DB     *sql.DB
	Driver string
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{DB: db, Driver: driver}
}

// TableName derives the SQL table name for a locator:
// "2esophageal cancer.csv" -> "ds_2esophageal_cancer".
func TableName(locator string) string {
	base := strings.TrimSuffix(filepath.Base(locator), filepath.Ext(locator))
	var b strings.Builder
	b.WriteString("ds_")
	for _, r := range strings.ToLower(base) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	return b.String()
}

// TableNameCollisionError means two locators would be stored in the same
// SQL table.
type TableNameCollisionError struct {
	Table    string
	Locators [2]string
}

func (e *TableNameCollisionError) Error() string {
	return fmt.Sprintf("locators %q and %q both map to table %s", e.Locators[0], e.Locators[1], e.Table)
}

// CheckTableNames fails if any two locators share a table name.
func CheckTableNames(locators []string) error {
	owner := make(map[string]string, len(locators))
	for _, loc := range locators {
		name := TableName(loc)
		if prev, ok := owner[name]; ok && prev != loc {
			return &TableNameCollisionError{Table: name, Locators: [2]string{prev, loc}}
		}
		owner[name] = loc
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (s *SQLStore) placeholder(n int) string {
	if s.Driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) ReadTable(ctx context.Context, locator string) (*models.Table, error) {
	name := TableName(locator)
	exists, err := s.tableExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("table %s: %w", name, ErrNotFound)
	}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM %s ORDER BY %s`, quoteIdent(name), quoteIdent(rowColumn)))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns %s: %w", name, err)
	}

	skip := -1
	t := &models.Table{Rows: [][]string{}}
	for i, c := range cols {
		if c == rowColumn {
			skip = i
			continue
		}
		t.Columns = append(t.Columns, c)
	}

	for rows.Next() {
		vals := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", name, err)
		}
		row := make([]string, 0, len(t.Columns))
		for i, v := range vals {
			if i == skip {
				continue
			}
			row = append(row, v.String)
		}
		t.Rows = append(t.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows %s: %w", name, err)
	}
	return t, nil
}

func (s *SQLStore) tableExists(ctx context.Context, name string) (bool, error) {
	var q string
	if s.Driver == "postgres" {
		q = `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1`
	} else {
		q = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
	}
	var n int
	if err := s.DB.QueryRowContext(ctx, q, name).Scan(&n); err != nil {
		return false, fmt.Errorf("lookup table %s: %w", name, err)
	}
	return n > 0, nil
}

// WriteTable replaces the stored table for locator with t inside one
// transaction. Every column is stored as TEXT.
func (s *SQLStore) WriteTable(ctx context.Context, locator string, t *models.Table) error {
	name := TableName(locator)
	for _, c := range t.Columns {
		if c == rowColumn {
			return fmt.Errorf("column name %q is reserved", rowColumn)
		}
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var owner string
	err = tx.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT locator FROM dataset_imports WHERE table_name = %s AND locator <> %s LIMIT 1
	`, s.placeholder(1), s.placeholder(2)), name, locator).Scan(&owner)
	switch {
	case err == nil:
		return &TableNameCollisionError{Table: name, Locators: [2]string{owner, locator}}
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("check table owner %s: %w", name, err)
	}

	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+quoteIdent(name)); err != nil {
		return fmt.Errorf("drop %s: %w", name, err)
	}

	defs := []string{quoteIdent(rowColumn) + " INTEGER NOT NULL"}
	names := []string{quoteIdent(rowColumn)}
	marks := []string{s.placeholder(1)}
	for i, c := range t.Columns {
		defs = append(defs, quoteIdent(c)+" TEXT")
		names = append(names, quoteIdent(c))
		marks = append(marks, s.placeholder(i+2))
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE %s (%s)`, quoteIdent(name), strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		quoteIdent(name), strings.Join(names, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range t.Rows {
		args := make([]any, 0, len(t.Columns)+1)
		args = append(args, i)
		for j := range t.Columns {
			if j < len(row) {
				args = append(args, row[j])
			} else {
				args = append(args, nil)
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d into %s: %w", i, name, err)
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO dataset_imports (locator, table_name, row_count, imported_at)
		VALUES (%s, %s, %s, %s)
		ON CONFLICT(locator) DO UPDATE SET
			table_name = excluded.table_name,
			row_count = excluded.row_count,
			imported_at = excluded.imported_at
	`, s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4)),
		locator, name, len(t.Rows), time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("record import of %s: %w", locator, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Import is one row of the import ledger.
type Import struct {
	Locator    string    `json:"locator"`
	Table      string    `json:"table"`
	Rows       int       `json:"rows"`
	ImportedAt time.Time `json:"imported_at"`
}

// Imports lists every locator written through WriteTable, by locator.
func (s *SQLStore) Imports(ctx context.Context) ([]Import, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT locator, table_name, row_count, imported_at
		FROM dataset_imports
		ORDER BY locator ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list imports: %w", err)
	}
	defer rows.Close()

	var out []Import
	for rows.Next() {
		var (
			imp Import
			at  string
		)
		if err := rows.Scan(&imp.Locator, &imp.Table, &imp.Rows, &at); err != nil {
			return nil, fmt.Errorf("imports scan: %w", err)
		}
		imp.ImportedAt, _ = time.Parse(time.RFC3339, at)
		out = append(out, imp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}
