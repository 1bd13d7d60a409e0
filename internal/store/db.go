package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"registrar/internal/registration"
)

const columns = `id, first_name, middle_name, last_name, mobile, email, dob, address, photo, category,
	degree, institution, emp_degree, profession, company, designation,
	bus_degree, business_type, business_name, created_at`

const columnCount = 20

// SQLStore persists registrations in a single flat relational table.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

// OpenSQL opens a connection pool for backend with sane defaults and checks
// connectivity.
func OpenSQL(ctx context.Context, backend, dsn string) (*SQLStore, error) {
	d, ok := dialects[backend]
	if !ok {
		return nil, fmt.Errorf("unknown sql backend %q", backend)
	}
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", backend, err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", backend, err)
	}
	return &SQLStore{db: db, dialect: d, now: time.Now}, nil
}

// Init creates the registrations table and its index if absent.
func (s *SQLStore) Init(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("provision %s schema: %w", s.dialect.name, err)
		}
	}
	return nil
}

// Reset drops the registrations table and recreates it empty.
func (s *SQLStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS registrations`); err != nil {
		return fmt.Errorf("drop registrations: %w", err)
	}
	return s.Init(ctx)
}

// Insert writes r in one statement. ID and CreatedAt are always assigned
// here, replacing whatever the caller set.
func (s *SQLStore) Insert(ctx context.Context, r registration.Registration) (registration.Registration, error) {
	r.ID = uuid.NewString()
	r.CreatedAt = s.now().UTC().Truncate(time.Microsecond)

	marks := make([]string, columnCount)
	for i := range marks {
		marks[i] = s.dialect.placeholder(i + 1)
	}
	query := `INSERT INTO registrations (` + columns + `) VALUES (` + strings.Join(marks, ", ") + `)`

	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.FirstName, nullable(r.MiddleName), r.LastName, r.Mobile, r.Email,
		s.dialect.bindDate(r.DOB), r.Address, r.Photo, string(r.Category),
		nullable(r.Degree), nullable(r.Institution),
		nullable(r.EmpDegree), nullable(r.Profession), nullable(r.Company), nullable(r.Designation),
		nullable(r.BusDegree), nullable(r.BusinessType), nullable(r.BusinessName),
		s.dialect.bindTime(r.CreatedAt),
	)
	if err != nil {
		return registration.Registration{}, err
	}
	return r, nil
}

// ListAll returns every registration, newest first.
func (s *SQLStore) ListAll(ctx context.Context) ([]registration.Registration, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+columns+` FROM registrations ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []registration.Registration
	for rows.Next() {
		var (
			r        registration.Registration
			category string
		)
		if err := rows.Scan(
			&r.ID, &r.FirstName, &r.MiddleName, &r.LastName, &r.Mobile, &r.Email,
			timeScanner{&r.DOB}, &r.Address, &r.Photo, &category,
			&r.Degree, &r.Institution, &r.EmpDegree, &r.Profession, &r.Company, &r.Designation,
			&r.BusDegree, &r.BusinessType, &r.BusinessName, timeScanner{&r.CreatedAt},
		); err != nil {
			return nil, err
		}
		r.Category = registration.Category(category)
		res = append(res, r)
	}
	return res, rows.Err()
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// Ping verifies connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying pool.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
