// Package datastore resolves storage tier names to stores. The built-in tiers are
// name-only; additional tiers are backed by SQL datasources opened on first use.
package datastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver (pgx)
	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/conduit-lang/metagraph/pkg/metamodel"
)

// Common datastore errors
var (
	// ErrUnavailable is returned when a datasource cannot be reached
	ErrUnavailable = errors.New("datasource unavailable")

	// ErrAuthentication is returned when the datasource rejects the credentials
	ErrAuthentication = errors.New("datasource authentication failed")

	// ErrUnknownDatabase is returned when the configured database does not exist
	ErrUnknownDatabase = errors.New("database does not exist")
)

// Spec declares a SQL-backed storage tier
type Spec struct {
	Name   string
	Driver string
	DSN    string
}

// Opener opens a database handle; sql.Open by default
type Opener func(driver, dsn string) (*sql.DB, error)

type builtinStore string

func (s builtinStore) Name() string { return string(s) }

// SQLStore is a storage tier with a SQL datasource
type SQLStore struct {
	spec   Spec
	opener Opener

	mu sync.Mutex
	db *sql.DB
}

// Name returns the tier name
func (s *SQLStore) Name() string { return s.spec.Name }

// Driver returns the SQL driver name
func (s *SQLStore) Driver() string { return s.spec.Driver }

// DB opens the datasource on first use
func (s *SQLStore) DB() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}
	db, err := s.opener(s.spec.Driver, s.spec.DSN)
	if err != nil {
		return nil, fmt.Errorf("store %s: failed to open %s datasource: %w", s.spec.Name, s.spec.Driver, err)
	}
	s.db = db
	return db, nil
}

// Ping checks that the datasource is reachable
func (s *SQLStore) Ping(ctx context.Context) error {
	db, err := s.DB()
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("store %s: %w", s.spec.Name, classify(err))
	}
	return nil
}

// ServerVersion reports the version string of the database server
func (s *SQLStore) ServerVersion(ctx context.Context) (string, error) {
	db, err := s.DB()
	if err != nil {
		return "", err
	}

	query := "SHOW server_version"
	if s.spec.Driver == "sqlite3" {
		query = "SELECT sqlite_version()"
	}

	var version string
	if err := db.QueryRowContext(ctx, query).Scan(&version); err != nil {
		return "", fmt.Errorf("store %s: failed to read server version: %w", s.spec.Name, classify(err))
	}
	return version, nil
}

// TableExists reports whether a table is present in the datasource
func (s *SQLStore) TableExists(ctx context.Context, table string) (bool, error) {
	db, err := s.DB()
	if err != nil {
		return false, err
	}

	var query string
	switch s.spec.Driver {
	case "sqlite3":
		query = "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
	default:
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_name = $1"
	}

	var n int
	if err := db.QueryRowContext(ctx, query, table).Scan(&n); err != nil {
		return false, fmt.Errorf("store %s: failed to look up table %s: %w", s.spec.Name, pq.QuoteIdentifier(table), classify(err))
	}
	return n > 0, nil
}

// Close closes the datasource if it was opened
func (s *SQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Registry is a metamodel.StoreRegistry with SQL-backed tiers
type Registry struct {
	builtin map[string]metamodel.Store
	sql     map[string]*SQLStore
}

// Option configures a Registry
type Option func(*registryOptions)

type registryOptions struct {
	opener Opener
}

// WithOpener replaces sql.Open, e.g. with a sqlmock connection in tests
func WithOpener(opener Opener) Option {
	return func(o *registryOptions) {
		o.opener = opener
	}
}

// NewRegistry creates a registry with the built-in tiers and one SQL store per spec.
// Datasources are not opened until a store is used.
func NewRegistry(specs []Spec, opts ...Option) (*Registry, error) {
	o := &registryOptions{opener: sql.Open}
	for _, opt := range opts {
		opt(o)
	}

	r := &Registry{
		builtin: map[string]metamodel.Store{
			metamodel.StoreMain:      builtinStore(metamodel.StoreMain),
			metamodel.StoreUndefined: builtinStore(metamodel.StoreUndefined),
			metamodel.StoreNoop:      builtinStore(metamodel.StoreNoop),
		},
		sql: make(map[string]*SQLStore, len(specs)),
	}
	for _, spec := range specs {
		if _, ok := r.builtin[spec.Name]; ok {
			return nil, fmt.Errorf("store %s: name is reserved", spec.Name)
		}
		if _, ok := r.sql[spec.Name]; ok {
			return nil, fmt.Errorf("store %s: declared twice", spec.Name)
		}
		r.sql[spec.Name] = &SQLStore{spec: spec, opener: o.opener}
	}
	return r, nil
}

// Get resolves a tier name
func (r *Registry) Get(name string) (metamodel.Store, error) {
	if s, ok := r.builtin[name]; ok {
		return s, nil
	}
	if s, ok := r.sql[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %s", metamodel.ErrUnknownStore, name)
}

// SQLStores returns the SQL-backed stores sorted by name
func (r *Registry) SQLStores() []*SQLStore {
	out := make([]*SQLStore, 0, len(r.sql))
	for _, s := range r.sql {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].spec.Name < out[j].spec.Name })
	return out
}

// PingAll pings every SQL store and returns the failures keyed by store name
func (r *Registry) PingAll(ctx context.Context) map[string]error {
	failures := make(map[string]error)
	for _, s := range r.SQLStores() {
		if err := s.Ping(ctx); err != nil {
			failures[s.Name()] = err
		}
	}
	return failures
}

// Close closes every opened datasource
func (r *Registry) Close() error {
	var errs []error
	for _, s := range r.SQLStores() {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// TableName derives the table of an entity class from its name:
// "sales_Order" -> "sales_order", "sales_DailyTotal" -> "sales_daily_total",
// "HTTPRequest" -> "http_request"
func TableName(className string) string {
	var b strings.Builder
	runes := []rune(strings.ReplaceAll(className, ".", "_"))

	for i, r := range runes {
		if !unicode.IsUpper(r) {
			b.WriteRune(r)
			continue
		}
		if i > 0 && runes[i-1] != '_' {
			prev := runes[i-1]
			if unicode.IsLower(prev) || unicode.IsDigit(prev) {
				b.WriteRune('_')
			} else if i+1 < len(runes) && unicode.IsLower(runes[i+1]) {
				b.WriteRune('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// classify maps driver errors to datastore errors
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifyCode(pgErr.Code, err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifyCode(string(pqErr.Code), err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func classifyCode(code string, err error) error {
	switch code {
	case "28P01", "28000": // invalid_password, invalid_authorization_specification
		return fmt.Errorf("%w: %v", ErrAuthentication, err)
	case "3D000": // invalid_catalog_name
		return fmt.Errorf("%w: %v", ErrUnknownDatabase, err)
	case "57P03", "08006", "08001": // cannot_connect_now, connection_failure, unable to connect
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
