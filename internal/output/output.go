// internal/output/output.go

// Package output writes extracted records to files and databases. One
// writer serves one destination; the manager owns the writer's lifecycle
// and feeds the output metrics. The bookkeeping meta keys records carry
// between passes never reach a writer.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/valpere/DeepScrapexter/internal/extractor"
	"github.com/valpere/DeepScrapexter/internal/template"
	"github.com/valpere/DeepScrapexter/internal/utils"
)

// Supported formats. The template loader validates against this same
// set.
const (
	FormatJSON       = "json"
	FormatCSV        = "csv"
	FormatYAML       = "yaml"
	FormatExcel      = "excel"
	FormatSQLite     = "sqlite"
	FormatMySQL      = "mysql"
	FormatPostgreSQL = "postgresql"
	FormatMongoDB    = "mongodb"
)

// Conflict strategies for database formats.
const (
	ConflictIgnore  = "ignore"
	ConflictReplace = "replace"
	ConflictError   = "error"
)

// defaultTableName is used when a template's output block names no table.
const defaultTableName = "records"

// Writer sends record batches to one destination. Document formats
// (json, yaml, excel) buffer and render the whole document on Close;
// the rest write as batches arrive. Flush pushes whatever can be pushed
// early without closing the destination.
type Writer interface {
	Write(records []map[string]interface{}) error
	Flush() error
	Close() error
}

// NewWriter builds the writer an output spec asks for. Database DSNs
// expand ${ENV} references so credentials stay out of template files.
func NewWriter(spec *template.OutputSpec) (Writer, error) {
	if spec == nil {
		return nil, fmt.Errorf("output spec is required")
	}

	conflict := spec.Conflict
	if conflict == "" {
		conflict = ConflictIgnore
	}
	if !validConflict(conflict) {
		return nil, fmt.Errorf("unsupported conflict strategy: %s", conflict)
	}

	switch spec.Format {
	case FormatJSON, "":
		return NewJSONWriter(spec.Path)
	case FormatCSV:
		return NewCSVWriter(spec.Path)
	case FormatYAML:
		return NewYAMLWriter(spec.Path)
	case FormatExcel:
		return NewExcelWriter(spec.Path)
	case FormatSQLite:
		return NewSQLiteWriter(spec.Path, spec.Table, conflict)
	case FormatMySQL:
		return NewMySQLWriter(os.ExpandEnv(spec.DSN), spec.Table, conflict)
	case FormatPostgreSQL:
		return NewPostgresWriter(os.ExpandEnv(spec.DSN), spec.Table, conflict)
	case FormatMongoDB:
		return NewMongoWriter(os.ExpandEnv(spec.DSN), spec.Database, spec.Collection, conflict)
	default:
		return nil, fmt.Errorf("unsupported output format: %s", spec.Format)
	}
}

func validConflict(strategy string) bool {
	switch strategy {
	case ConflictIgnore, ConflictReplace, ConflictError:
		return true
	}
	return false
}

// Clean strips the meta keys off records so writers only see extracted
// fields.
func Clean(records []extractor.Record) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(records))
	for _, record := range records {
		clean := make(map[string]interface{}, len(record))
		for key, value := range record {
			if extractor.IsMetaKey(key) {
				continue
			}
			clean[key] = value
		}
		out = append(out, clean)
	}
	return out
}

// columnsOf returns the sorted union of keys across a batch. Sorting
// keeps headers and column order stable from run to run.
func columnsOf(records []map[string]interface{}) []string {
	seen := make(map[string]struct{})
	for _, record := range records {
		for key := range record {
			seen[key] = struct{}{}
		}
	}
	columns := make([]string, 0, len(seen))
	for key := range seen {
		columns = append(columns, key)
	}
	sort.Strings(columns)
	return columns
}

// cellString renders a value for text formats. Multi-valued fields join
// on a pipe, the same shape the merge pass produces.
func cellString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		return strings.Join(v, "|")
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, cellString(item))
		}
		return strings.Join(parts, "|")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// sqlValue renders a value for a database parameter. Slices and maps go
// in as JSON so nothing is silently lost.
func sqlValue(value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case string, bool, int, int64, float64:
		return v
	case []string, []interface{}, map[string]interface{}:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", v)
	}
}

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// maxIdentifierLength is the PostgreSQL limit, the tightest of the
// shipped dialects.
const maxIdentifierLength = 63

// reservedWords merges the keyword lists of the shipped SQL dialects so
// one conservative check covers them all. A name reserved anywhere is
// rejected everywhere.
var reservedWords = map[string]bool{
	"ABORT": true, "ACTION": true, "ADD": true, "AFTER": true, "ALL": true,
	"ALTER": true, "ANALYSE": true, "ANALYZE": true, "AND": true, "ANY": true,
	"ARRAY": true, "AS": true, "ASC": true, "ASYMMETRIC": true, "ATTACH": true,
	"AUTHORIZATION": true, "AUTOINCREMENT": true, "AUTO_INCREMENT": true,
	"BEFORE": true, "BEGIN": true, "BETWEEN": true, "BINARY": true, "BOTH": true,
	"BY": true, "CASCADE": true, "CASE": true, "CAST": true, "CHECK": true,
	"COLLATE": true, "COLLATION": true, "COLUMN": true, "COMMIT": true,
	"CONCURRENTLY": true, "CONFLICT": true, "CONSTRAINT": true, "CREATE": true,
	"CROSS": true, "CURRENT": true, "CURRENT_CATALOG": true, "CURRENT_DATE": true,
	"CURRENT_ROLE": true, "CURRENT_SCHEMA": true, "CURRENT_TIME": true,
	"CURRENT_TIMESTAMP": true, "CURRENT_USER": true, "DATABASE": true,
	"DEFAULT": true, "DEFERRABLE": true, "DEFERRED": true, "DELETE": true,
	"DESC": true, "DETACH": true, "DISTINCT": true, "DO": true, "DROP": true,
	"EACH": true, "ELSE": true, "END": true, "ESCAPE": true, "EXCEPT": true,
	"EXCLUSIVE": true, "EXISTS": true, "EXPLAIN": true, "FAIL": true,
	"FALSE": true, "FETCH": true, "FOR": true, "FOREIGN": true, "FREEZE": true,
	"FROM": true, "FULL": true, "GLOB": true, "GRANT": true, "GROUP": true,
	"HAVING": true, "IF": true, "IGNORE": true, "ILIKE": true, "IMMEDIATE": true,
	"IN": true, "INDEX": true, "INDEXED": true, "INITIALLY": true, "INNER": true,
	"INSERT": true, "INSTEAD": true, "INTERSECT": true, "INTO": true, "IS": true,
	"ISNULL": true, "JOIN": true, "KEY": true, "LATERAL": true, "LEADING": true,
	"LEFT": true, "LIKE": true, "LIMIT": true, "LOCALTIME": true,
	"LOCALTIMESTAMP": true, "MATCH": true, "NATURAL": true, "NO": true,
	"NOT": true, "NOTNULL": true, "NULL": true, "OF": true, "OFFSET": true,
	"ON": true, "ONLY": true, "OR": true, "ORDER": true, "OUTER": true,
	"OVERLAPS": true, "PLACING": true, "PLAN": true, "PRAGMA": true,
	"PRIMARY": true, "QUERY": true, "RAISE": true, "RECURSIVE": true,
	"REFERENCES": true, "REGEXP": true, "REINDEX": true, "RELEASE": true,
	"RENAME": true, "REPLACE": true, "RESTRICT": true, "RETURNING": true,
	"RIGHT": true, "ROLLBACK": true, "ROW": true, "SAVEPOINT": true,
	"SELECT": true, "SESSION_USER": true, "SET": true, "SIMILAR": true,
	"SOME": true, "SYMMETRIC": true, "TABLE": true, "TABLESAMPLE": true,
	"TEMP": true, "TEMPORARY": true, "THEN": true, "TO": true,
	"TRAILING": true, "TRANSACTION": true, "TRIGGER": true, "TRUE": true,
	"UNION": true, "UNIQUE": true, "UPDATE": true, "USER": true, "USING": true,
	"VACUUM": true, "VALUES": true, "VARIADIC": true, "VERBOSE": true,
	"VIEW": true, "VIRTUAL": true, "WHEN": true, "WHERE": true, "WINDOW": true,
	"WITH": true, "WITHOUT": true,
}

// ValidateIdentifier rejects table and column names that are unsafe to
// interpolate into SQL. Field labels become column names, so a label
// that collides with a keyword has to be renamed in the template.
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > maxIdentifierLength {
		return fmt.Errorf("identifier too long (max %d characters): %s", maxIdentifierLength, name)
	}
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier: %s", name)
	}
	if reservedWords[strings.ToUpper(name)] {
		return fmt.Errorf("identifier is a reserved SQL keyword: %s", name)
	}
	return nil
}

// columnPlan maps sanitized column names back to the record keys they
// came from, in stable column order.
type columnPlan struct {
	columns []string
	keys    map[string]string
}

// planColumns sanitizes record keys into column names and validates
// them. Two keys that sanitize to the same column is an error rather
// than silent data loss.
func planColumns(recordKeys []string) (*columnPlan, error) {
	plan := &columnPlan{keys: make(map[string]string, len(recordKeys))}
	for _, key := range recordKeys {
		column := utils.SanitizeFieldName(key)
		if err := ValidateIdentifier(column); err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		if _, dup := plan.keys[column]; dup {
			return nil, fmt.Errorf("fields %q and %q map to the same column %q", plan.keys[column], key, column)
		}
		plan.columns = append(plan.columns, column)
		plan.keys[column] = key
	}
	return plan, nil
}

// valueFor pulls the record value behind a column.
func (p *columnPlan) valueFor(record map[string]interface{}, column string) interface{} {
	return record[p.keys[column]]
}

// ensureDir creates the parent directory of a file path. Empty and "-"
// paths mean stdout and need nothing.
func ensureDir(path string) error {
	if path == "" || path == "-" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}

// writeDocument writes a rendered document to its path, or stdout when
// the path is empty or "-".
func writeDocument(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
