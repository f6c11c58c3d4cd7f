package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Driver selects the SQL backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Store persists exams, submissions and graded answers.
type Store struct {
	db     *sql.DB
	driver Driver
}

// New opens a SQLite database file. It is the shortcut used by the CLI and tests.
func New(dbPath string) (*Store, error) {
	return Open(context.Background(), DriverSQLite, dbPath)
}

// Open opens a database for the given driver and ensures the schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*Store, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite"
		if dsn == "" {
			dsn = "autograde.db"
		}
		if dsn != ":memory:" && !strings.Contains(dsn, "?") {
			dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
		}
	case DriverPostgres:
		drvName = "pgx"
		if dsn == "" {
			dsn = "postgres://localhost:5432/autograde?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == DriverSQLite {
		// one connection keeps :memory: databases shared and serializes writers
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	schema := schemaSQLite
	if s.driver == DriverPostgres {
		schema = schemaPostgres
	}
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// rebind rewrites ? placeholders into $n for Postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isUniqueViolation reports whether err comes from a UNIQUE constraint.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) {
		switch sqErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
		return strings.Contains(sqErr.Error(), "UNIQUE constraint failed")
	}
	return false
}

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS exams (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1,
	start_time DATETIME,
	end_time DATETIME
);

CREATE TABLE IF NOT EXISTS questions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	exam_id INTEGER NOT NULL,
	position INTEGER NOT NULL,
	type TEXT NOT NULL,
	text TEXT NOT NULL,
	marks INTEGER NOT NULL,
	expected_answer TEXT NOT NULL DEFAULT '',
	choices_json TEXT NOT NULL DEFAULT '[]',
	min_word_count INTEGER,
	keywords_json TEXT NOT NULL DEFAULT '[]',
	FOREIGN KEY (exam_id) REFERENCES exams(id)
);

CREATE TABLE IF NOT EXISTS submissions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	student_id TEXT NOT NULL,
	exam_id INTEGER NOT NULL,
	status TEXT NOT NULL,
	submitted_at DATETIME NOT NULL,
	total_score REAL,
	percentage REAL,
	passed INTEGER,
	graded_at DATETIME,
	UNIQUE (student_id, exam_id),
	FOREIGN KEY (exam_id) REFERENCES exams(id)
);

CREATE TABLE IF NOT EXISTS answers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	submission_id INTEGER NOT NULL,
	question_id INTEGER NOT NULL,
	position INTEGER NOT NULL,
	answer_text TEXT NOT NULL,
	awarded_marks REAL,
	feedback TEXT NOT NULL DEFAULT '',
	grading_json TEXT NOT NULL DEFAULT '',
	UNIQUE (submission_id, question_id),
	FOREIGN KEY (submission_id) REFERENCES submissions(id),
	FOREIGN KEY (question_id) REFERENCES questions(id)
);

CREATE TABLE IF NOT EXISTS imported_files (
	path TEXT PRIMARY KEY,
	hash TEXT NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS exams (
	id BIGSERIAL PRIMARY KEY,
	title TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	start_time TIMESTAMPTZ,
	end_time TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS questions (
	id BIGSERIAL PRIMARY KEY,
	exam_id BIGINT NOT NULL REFERENCES exams(id),
	position INTEGER NOT NULL,
	type TEXT NOT NULL,
	text TEXT NOT NULL,
	marks INTEGER NOT NULL,
	expected_answer TEXT NOT NULL DEFAULT '',
	choices_json TEXT NOT NULL DEFAULT '[]',
	min_word_count INTEGER,
	keywords_json TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS submissions (
	id BIGSERIAL PRIMARY KEY,
	student_id TEXT NOT NULL,
	exam_id BIGINT NOT NULL REFERENCES exams(id),
	status TEXT NOT NULL,
	submitted_at TIMESTAMPTZ NOT NULL,
	total_score DOUBLE PRECISION,
	percentage DOUBLE PRECISION,
	passed BOOLEAN,
	graded_at TIMESTAMPTZ,
	UNIQUE (student_id, exam_id)
);

CREATE TABLE IF NOT EXISTS answers (
	id BIGSERIAL PRIMARY KEY,
	submission_id BIGINT NOT NULL REFERENCES submissions(id),
	question_id BIGINT NOT NULL REFERENCES questions(id),
	position INTEGER NOT NULL,
	answer_text TEXT NOT NULL,
	awarded_marks DOUBLE PRECISION,
	feedback TEXT NOT NULL DEFAULT '',
	grading_json TEXT NOT NULL DEFAULT '',
	UNIQUE (submission_id, question_id)
);

CREATE TABLE IF NOT EXISTS imported_files (
	path TEXT PRIMARY KEY,
	hash TEXT NOT NULL
);
`
