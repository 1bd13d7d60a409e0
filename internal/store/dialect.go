package store

import (
	"fmt"
	"strconv"
	"time"
)

// sqliteTimeLayout is fixed width so text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000000"

// dialect captures what differs between the relational engines. Column
// names are lowercase snake_case and never quoted, so every engine reports
// them the same way.
type dialect struct {
	name        string
	driver      string
	schema      []string
	placeholder func(n int) string
	bindTime    func(t time.Time) any
	bindDate    func(t time.Time) any
}

var dialects = map[string]dialect{
	BackendPostgres: {
		name:   BackendPostgres,
		driver: "pgx",
		schema: []string{`
			CREATE TABLE IF NOT EXISTS registrations (
				id            TEXT PRIMARY KEY,
				first_name    TEXT NOT NULL,
				middle_name   TEXT,
				last_name     TEXT NOT NULL,
				mobile        TEXT NOT NULL,
				email         TEXT NOT NULL,
				dob           DATE NOT NULL,
				address       TEXT NOT NULL,
				photo         TEXT NOT NULL,
				category      TEXT NOT NULL CHECK (category IN ('student', 'employee', 'business')),
				degree        TEXT,
				institution   TEXT,
				emp_degree    TEXT,
				profession    TEXT,
				company       TEXT,
				designation   TEXT,
				bus_degree    TEXT,
				business_type TEXT,
				business_name TEXT,
				created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_registrations_created_at ON registrations (created_at DESC)`,
		},
		placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
		bindTime:    func(t time.Time) any { return t },
		bindDate:    func(t time.Time) any { return t },
	},
	BackendMySQL: {
		name:   BackendMySQL,
		driver: "mysql",
		schema: []string{`
			CREATE TABLE IF NOT EXISTS registrations (
				id            VARCHAR(36) NOT NULL PRIMARY KEY,
				first_name    VARCHAR(255) NOT NULL,
				middle_name   VARCHAR(255) NULL,
				last_name     VARCHAR(255) NOT NULL,
				mobile        VARCHAR(32) NOT NULL,
				email         VARCHAR(255) NOT NULL,
				dob           DATE NOT NULL,
				address       TEXT NOT NULL,
				photo         VARCHAR(512) NOT NULL,
				category      VARCHAR(16) NOT NULL CHECK (category IN ('student', 'employee', 'business')),
				degree        VARCHAR(255) NULL,
				institution   VARCHAR(255) NULL,
				emp_degree    VARCHAR(255) NULL,
				profession    VARCHAR(255) NULL,
				company       VARCHAR(255) NULL,
				designation   VARCHAR(255) NULL,
				bus_degree    VARCHAR(255) NULL,
				business_type VARCHAR(255) NULL,
				business_name VARCHAR(255) NULL,
				created_at    DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
				INDEX idx_registrations_created_at (created_at)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		},
		placeholder: func(int) string { return "?" },
		bindTime:    func(t time.Time) any { return t },
		bindDate:    func(t time.Time) any { return t.Format("2006-01-02") },
	},
	BackendSQLite: {
		name:   BackendSQLite,
		driver: "sqlite3",
		schema: []string{`
			CREATE TABLE IF NOT EXISTS registrations (
				id            TEXT PRIMARY KEY,
				first_name    TEXT NOT NULL,
				middle_name   TEXT,
				last_name     TEXT NOT NULL,
				mobile        TEXT NOT NULL,
				email         TEXT NOT NULL,
				dob           TEXT NOT NULL,
				address       TEXT NOT NULL,
				photo         TEXT NOT NULL,
				category      TEXT NOT NULL CHECK (category IN ('student', 'employee', 'business')),
				degree        TEXT,
				institution   TEXT,
				emp_degree    TEXT,
				profession    TEXT,
				company       TEXT,
				designation   TEXT,
				bus_degree    TEXT,
				business_type TEXT,
				business_name TEXT,
				created_at    TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_registrations_created_at ON registrations (created_at)`,
		},
		placeholder: func(int) string { return "?" },
		bindTime:    func(t time.Time) any { return t.UTC().Format(sqliteTimeLayout) },
		bindDate:    func(t time.Time) any { return t.Format("2006-01-02") },
	},
}

// SQLiteDSN builds a DSN for the ncruces driver with a busy timeout and WAL
// journaling so concurrent requests wait instead of failing.
func SQLiteDSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)", path)
}

var timeLayouts = []string{
	sqliteTimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// timeScanner reads a timestamp whichever representation the driver uses.
type timeScanner struct{ t *time.Time }

func (s timeScanner) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s.t = time.Time{}
		return nil
	case time.Time:
		*s.t = v.UTC()
		return nil
	case []byte:
		return s.parse(string(v))
	case string:
		return s.parse(v)
	}
	return fmt.Errorf("cannot scan %T into time", src)
}

func (s timeScanner) parse(v string) error {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			*s.t = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognized time %q", v)
}
