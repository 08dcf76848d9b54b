package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"netonboard/internal/domain"
	"netonboard/internal/repository"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository implements repository.Inventory using SQLite
type Repository struct {
	db        *sql.DB
	q         querier
	opTimeout time.Duration
}

// Option configures a Repository.
type Option func(*Repository)

// WithOperationTimeout bounds every store call.
func WithOperationTimeout(d time.Duration) Option {
	return func(r *Repository) { r.opTimeout = d }
}

// New opens (and migrates) the SQLite inventory at dbPath. ":memory:" gives
// a private in-memory database.
func New(dbPath string, opts ...Option) (*Repository, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serializes writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	repo := &Repository{db: db, q: db}
	for _, opt := range opts {
		opt(repo)
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		identity_key TEXT NOT NULL,
		data JSON NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (kind, identity_key)
	);

	CREATE INDEX IF NOT EXISTS idx_entities_kind ON entities(kind);
	`

	_, err := r.db.Exec(schema)
	return err
}

// Close releases the database handle
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.opTimeout)
}

// FindOne returns the oldest record matching filter, or nil.
func (r *Repository) FindOne(ctx context.Context, kind domain.EntityKind, filter domain.Filter) (*domain.Entity, error) {
	entities, err := r.find(ctx, kind, filter, 1)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, nil
	}
	return entities[0], nil
}

// FindAll returns all records matching filter in insertion order.
func (r *Repository) FindAll(ctx context.Context, kind domain.EntityKind, filter domain.Filter) ([]*domain.Entity, error) {
	return r.find(ctx, kind, filter, 0)
}

func (r *Repository) find(ctx context.Context, kind domain.EntityKind, filter domain.Filter, limit int) ([]*domain.Entity, error) {
	if !kind.Valid() {
		return nil, domain.Errorf(domain.KindConfig, "unknown entity kind %q", kind)
	}

	where, args, err := filterClause(filter)
	if err != nil {
		return nil, err
	}

	query := "SELECT id, data FROM entities WHERE kind = ?" + where + " ORDER BY rowid"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, query, append([]any{string(kind)}, args...)...)
	if err != nil {
		return nil, classify(fmt.Sprintf("failed to query %s", kind), err)
	}
	defer rows.Close()

	var out []*domain.Entity
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, classify(fmt.Sprintf("failed to scan %s", kind), err)
		}

		fields, err := decodeFields(data)
		if err != nil {
			return nil, err
		}
		out = append(out, &domain.Entity{Kind: kind, ID: id, Fields: fields})
	}

	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Sprintf("failed to iterate %s", kind), err)
	}

	return out, nil
}

// Create inserts a new record with a generated ID.
func (r *Repository) Create(ctx context.Context, kind domain.EntityKind, fields domain.Fields) (*domain.Entity, error) {
	key, err := domain.IdentityKey(kind, fields)
	if err != nil {
		return nil, err
	}

	data, err := encodeFields(fields)
	if err != nil {
		return nil, err
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	id := uuid.NewString()
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO entities (id, kind, identity_key, data)
		VALUES (?, ?, ?, ?)
	`, id, string(kind), key, data)
	if err != nil {
		return nil, classify(fmt.Sprintf("failed to create %s %q", kind, displayKey(key)), err)
	}

	return &domain.Entity{Kind: kind, ID: id, Fields: copyFields(fields)}, nil
}

// Update merges fields into the record with id. A nil value removes a field.
func (r *Repository) Update(ctx context.Context, kind domain.EntityKind, id string, fields domain.Fields) (*domain.Entity, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var data []byte
	err := r.q.QueryRowContext(ctx, `SELECT data FROM entities WHERE id = ? AND kind = ?`, id, string(kind)).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, domain.Errorf(domain.KindConflictingEntity, "%s %s no longer exists", kind, id)
	}
	if err != nil {
		return nil, classify(fmt.Sprintf("failed to load %s %s", kind, id), err)
	}

	current, err := decodeFields(data)
	if err != nil {
		return nil, err
	}

	for k, v := range fields {
		if v == nil {
			delete(current, k)
			continue
		}
		current[k] = v
	}

	key, err := domain.IdentityKey(kind, current)
	if err != nil {
		return nil, err
	}

	encoded, err := encodeFields(current)
	if err != nil {
		return nil, err
	}

	_, err = r.q.ExecContext(ctx, `
		UPDATE entities SET identity_key = ?, data = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, key, encoded, id)
	if err != nil {
		return nil, classify(fmt.Sprintf("failed to update %s %s", kind, id), err)
	}

	return &domain.Entity{Kind: kind, ID: id, Fields: current}, nil
}

// RunAtomic runs fn inside a transaction. Nested calls join the outer transaction.
func (r *Repository) RunAtomic(ctx context.Context, fn func(tx repository.Store) error) error {
	if _, ok := r.q.(*sql.Tx); ok {
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("failed to begin transaction", err)
	}
	defer tx.Rollback()

	txRepo := &Repository{db: r.db, q: tx, opTimeout: r.opTimeout}
	if err := fn(txRepo); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify("failed to commit transaction", err)
	}

	return nil
}

// Count returns the number of records of kind.
func (r *Repository) Count(ctx context.Context, kind domain.EntityKind) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities WHERE kind = ?`, string(kind)).Scan(&n)
	if err != nil {
		return 0, classify(fmt.Sprintf("failed to count %s", kind), err)
	}
	return n, nil
}

func displayKey(key string) string {
	return strings.ReplaceAll(key, "\x1f", "/")
}

func copyFields(f domain.Fields) domain.Fields {
	out := make(domain.Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

func encodeFields(f domain.Fields) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, domain.NewError(domain.KindConfig, "failed to marshal entity fields", err)
	}
	return data, nil
}

func decodeFields(data []byte) (domain.Fields, error) {
	fields := domain.Fields{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, domain.NewError(domain.KindStoreUnavailable, "failed to unmarshal entity data", err)
	}
	return fields, nil
}
