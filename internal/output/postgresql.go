// internal/output/postgresql.go
package output

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// PostgresWriter inserts records into a PostgreSQL table, creating the
// table from the first batch's columns.
type PostgresWriter struct {
	db       *sql.DB
	table    string
	conflict string
	plan     *columnPlan
}

// NewPostgresWriter connects with the given DSN and verifies the
// connection. Both URL and key=value DSN forms work.
func NewPostgresWriter(dsn, table, conflict string) (*PostgresWriter, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgresql output requires a dsn")
	}
	if table == "" {
		table = defaultTableName
	}
	if err := ValidateIdentifier(table); err != nil {
		return nil, fmt.Errorf("invalid table name: %w", err)
	}
	if conflict == ConflictReplace {
		// PostgreSQL has no REPLACE; a real upsert needs a conflict
		// target we cannot guess. Callers wanting replacement should
		// manage the table themselves.
		return nil, fmt.Errorf("postgresql does not support the replace conflict strategy")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgresql connection: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgresql: %w", err)
	}

	return &PostgresWriter{
		db:       db,
		table:    table,
		conflict: conflict,
	}, nil
}

// Write inserts one row per record inside a single transaction.
func (w *PostgresWriter) Write(records []map[string]interface{}) error {
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

func (w *PostgresWriter) createTable(plan *columnPlan) error {
	if _, err := w.db.Exec(w.createStatement(plan)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", w.table, err)
	}
	return nil
}

func (w *PostgresWriter) createStatement(plan *columnPlan) string {
	defs := make([]string, 0, len(plan.columns)+2)
	defs = append(defs, "id BIGSERIAL PRIMARY KEY")
	for _, column := range plan.columns {
		defs = append(defs, fmt.Sprintf("%q TEXT", column))
	}
	defs = append(defs, "created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP")
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q (%s)", w.table, strings.Join(defs, ", "))
}

func (w *PostgresWriter) insertStatement() string {
	columns := make([]string, len(w.plan.columns))
	placeholders := make([]string, len(w.plan.columns))
	for i, column := range w.plan.columns {
		columns[i] = fmt.Sprintf("%q", column)
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)",
		w.table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	if w.conflict == ConflictIgnore {
		query += " ON CONFLICT DO NOTHING"
	}
	return query
}

// Flush is a no-op; every Write commits its own transaction.
func (w *PostgresWriter) Flush() error { return nil }

// Close closes the database connection.
func (w *PostgresWriter) Close() error {
	return w.db.Close()
}
