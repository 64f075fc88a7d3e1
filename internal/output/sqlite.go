// internal/output/sqlite.go
package output

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteWriter inserts records into a SQLite table, creating the table
// from the first batch's columns. Extracted values are strings after
// transform, so every data column is TEXT.
type SQLiteWriter struct {
	db       *sql.DB
	table    string
	conflict string
	plan     *columnPlan
}

// NewSQLiteWriter opens the database file and verifies the connection.
func NewSQLiteWriter(path, table, conflict string) (*SQLiteWriter, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite output requires a path")
	}
	if table == "" {
		table = defaultTableName
	}
	if err := ValidateIdentifier(table); err != nil {
		return nil, fmt.Errorf("invalid table name: %w", err)
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	dsn := path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite serializes writers; a single connection avoids lock churn.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}

	return &SQLiteWriter{
		db:       db,
		table:    table,
		conflict: conflict,
	}, nil
}

// Write inserts one row per record inside a single transaction.
func (w *SQLiteWriter) Write(records []map[string]interface{}) error {
	if len(records) == 0 {
		return nil
	}

	if w.plan == nil {
		plan, err := planColumns(columnsOf(records))
		if err != nil {
			return err
		}
		if err := w.createTable(plan); err != nil {
			return err
		}
		w.plan = plan
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(w.insertStatement())
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		args := make([]interface{}, len(w.plan.columns))
		for i, column := range w.plan.columns {
			args[i] = sqlValue(w.plan.valueFor(record, column))
		}
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("failed to insert record: %w", err)
		}
	}

	return tx.Commit()
}

func (w *SQLiteWriter) createTable(plan *columnPlan) error {
	if _, err := w.db.Exec(w.createStatement(plan)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", w.table, err)
	}
	return nil
}

func (w *SQLiteWriter) createStatement(plan *columnPlan) string {
	defs := make([]string, 0, len(plan.columns)+2)
	defs = append(defs, "id INTEGER PRIMARY KEY AUTOINCREMENT")
	for _, column := range plan.columns {
		defs = append(defs, fmt.Sprintf("[%s] TEXT", column))
	}
	defs = append(defs, "created_at DATETIME DEFAULT CURRENT_TIMESTAMP")
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS [%s] (%s)", w.table, strings.Join(defs, ", "))
}

func (w *SQLiteWriter) insertStatement() string {
	columns := make([]string, len(w.plan.columns))
	for i, column := range w.plan.columns {
		columns[i] = "[" + column + "]"
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")

	verb := "INSERT"
	switch w.conflict {
	case ConflictIgnore:
		verb = "INSERT OR IGNORE"
	case ConflictReplace:
		verb = "INSERT OR REPLACE"
	}
	return fmt.Sprintf("%s INTO [%s] (%s) VALUES (%s)",
		verb, w.table, strings.Join(columns, ", "), placeholders)
}

// Flush is a no-op; every Write commits its own transaction.
func (w *SQLiteWriter) Flush() error { return nil }

// Close closes the database connection.
func (w *SQLiteWriter) Close() error {
	return w.db.Close()
}
