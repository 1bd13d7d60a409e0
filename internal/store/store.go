// Package store persists registrations in a pluggable backend: one of the
// relational engines (postgres, mysql, sqlite) or a redis document store.
package store

import (
	"context"
	"fmt"

	"registrar/internal/registration"
)

// Backend names accepted by Open.
const (
	BackendPostgres = "postgres"
	BackendMySQL    = "mysql"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
)

// Store is the registration store contract shared by every backend.
type Store interface {
	registration.Repository

	// Init provisions the table or collection if absent. Safe to repeat.
	Init(ctx context.Context) error
	// Reset drops every registration and provisions an empty schema.
	Reset(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Options selects and parameterizes a backend.
type Options struct {
	Backend string
	// DSN is the connection string of a relational backend.
	DSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// RedisPrefix namespaces keys; defaults to "registrations".
	RedisPrefix string
}

// Open connects to the configured backend. The caller runs Init.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendRedis:
		s := NewRedisStore(opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.RedisPrefix)
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return s, nil
	case BackendPostgres, BackendMySQL, BackendSQLite:
		return OpenSQL(ctx, opts.Backend, opts.DSN)
	}
	return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
}
