package txlog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/R3E-Network/ledger_client/internal/chain"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Apply runs the embedded migrations in file name order. Every statement is
// idempotent.
func Apply(ctx context.Context, db *sql.DB) error {
	names, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		stmt, err := migrationFS.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, string(stmt)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return nil
}

// Open connects to PostgreSQL at dsn and applies migrations.
func Open(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open txlog db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping txlog db: %w", err)
	}
	if err := Apply(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return NewPostgresStore(db), nil
}

// PostgresStore implements Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Close closes the underlying database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) Append(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	var code sql.NullInt64
	if e.ErrorCode != nil {
		code = sql.NullInt64{Int64: int64(*e.ErrorCode), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_tx_events (id, label, signature, fee_payer, status, error_code, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.Label, e.Signature.String(), e.FeePayer.String(), string(e.Status), code, e.Error, e.CreatedAt)
	return err
}

func (s *PostgresStore) List(ctx context.Context, opts ListOptions) ([]Entry, error) {
	var sig string
	if !opts.Signature.IsZero() {
		sig = opts.Signature.String()
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, signature, fee_payer, status, error_code, error, created_at
		FROM ledger_tx_events
		WHERE ($1 = '' OR label = $1) AND ($2 = '' OR signature = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, opts.Label, sig, opts.limit())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, label, signature, fee_payer, status, error_code, error, created_at
		FROM ledger_tx_events
		WHERE id = $1
	`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return e, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e              Entry
		sig, payer, st string
		code           sql.NullInt64
	)
	if err := row.Scan(&e.ID, &e.Label, &sig, &payer, &st, &code, &e.Error, &e.CreatedAt); err != nil {
		return Entry{}, err
	}
	var err error
	if e.Signature, err = chain.ParseSignature(sig); err != nil {
		return Entry{}, fmt.Errorf("entry %s signature: %w", e.ID, err)
	}
	if e.FeePayer, err = chain.ParseAddress(payer); err != nil {
		return Entry{}, fmt.Errorf("entry %s fee payer: %w", e.ID, err)
	}
	e.Status = chain.TxStatus(st)
	if code.Valid {
		c := uint32(code.Int64)
		e.ErrorCode = &c
	}
	return e, nil
}
