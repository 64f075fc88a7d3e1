// internal/output/mysql.go
package output

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLWriter inserts records into a MySQL table, creating the table
// from the first batch's columns.
type MySQLWriter struct {
	db       *sql.DB
	table    string
	conflict string
	plan     *columnPlan
}

// NewMySQLWriter connects with the given DSN and verifies the
// connection. The DSN follows the go-sql-driver format, for example
// user:pass@tcp(localhost:3306)/scraped.
func NewMySQLWriter(dsn, table, conflict string) (*MySQLWriter, error) {
	if dsn == "" {
		return nil, fmt.Errorf("mysql output requires a dsn")
	}
	if table == "" {
		table = defaultTableName
	}
	if err := ValidateIdentifier(table); err != nil {
		return nil, fmt.Errorf("invalid table name: %w", err)
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql connection: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	// Stay under the server's wait_timeout so pooled connections are
	// never handed out dead.
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to mysql: %w", err)
	}

	return &MySQLWriter{
		db:       db,
		table:    table,
		conflict: conflict,
	}, nil
}

// Write inserts one row per record inside a single transaction.
func (w *MySQLWriter) Write(records []map[string]interface{}) error {
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

func (w *MySQLWriter) createTable(plan *columnPlan) error {
	if _, err := w.db.Exec(w.createStatement(plan)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", w.table, err)
	}
	return nil
}

func (w *MySQLWriter) createStatement(plan *columnPlan) string {
	defs := make([]string, 0, len(plan.columns)+2)
	defs = append(defs, "id BIGINT AUTO_INCREMENT PRIMARY KEY")
	for _, column := range plan.columns {
		defs = append(defs, fmt.Sprintf("`%s` TEXT", column))
	}
	defs = append(defs, "created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP")
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` (%s) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",
		w.table, strings.Join(defs, ", "))
}

func (w *MySQLWriter) insertStatement() string {
	columns := make([]string, len(w.plan.columns))
	for i, column := range w.plan.columns {
		columns[i] = "`" + column + "`"
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")

	verb := "INSERT"
	switch w.conflict {
	case ConflictIgnore:
		verb = "INSERT IGNORE"
	case ConflictReplace:
		// REPLACE needs a unique key to match against; without one it
		// degrades to a plain insert, which is the right fallback.
		verb = "REPLACE"
	}
	return fmt.Sprintf("%s INTO `%s` (%s) VALUES (%s)",
		verb, w.table, strings.Join(columns, ", "), placeholders)
}

// Flush is a no-op; every Write commits its own transaction.
func (w *MySQLWriter) Flush() error { return nil }

// Close closes the database connection.
func (w *MySQLWriter) Close() error {
	return w.db.Close()
}
