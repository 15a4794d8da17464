package txlog

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/R3E-Network/ledger_client/internal/chain"
)

var entryColumns = []string{"id", "label", "signature", "fee_payer", "status", "error_code", "error", "created_at"}

func TestApplyExecutesAllMigrations(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS ledger_tx_events").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS ledger_tx_events_signature_idx").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := Apply(context.Background(), db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestApplyReportsFailingMigration(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(".*").WillReturnError(errors.New("permission denied"))
	if err := Apply(context.Background(), db); err == nil {
		t.Fatal("Apply() succeeded, want error")
	}
}

func TestPostgresStore_Append(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	payer := chain.Address{1}
	sig := chain.Signature{2}
	code := uint32(6003)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO ledger_tx_events").
		WithArgs("id-1", "username.update_username", sig.String(), payer.String(), "failed", int64(6003), "already assigned", at).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO ledger_tx_events").
		WithArgs(sqlmock.AnyArg(), "counter.increment", sig.String(), payer.String(), "confirmed", nil, "", at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	store := NewPostgresStore(db)
	ctx := context.Background()
	err = store.Append(ctx, Entry{
		ID: "id-1", Label: "username.update_username", Signature: sig, FeePayer: payer,
		Status: chain.TxFailed, ErrorCode: &code, Error: "already assigned", CreatedAt: at,
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	err = store.Append(ctx, Entry{Label: "counter.increment", Signature: sig, FeePayer: payer, Status: chain.TxConfirmed, CreatedAt: at})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresStore_ListAndGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	payer := chain.Address{3}
	sig := chain.Signature{4}
	at := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM ledger_tx_events").
		WithArgs("round.activate_round", "", 10).
		WillReturnRows(sqlmock.NewRows(entryColumns).
			AddRow("b", "round.activate_round", sig.String(), payer.String(), "failed", int64(6004), "too early", at).
			AddRow("a", "round.activate_round", sig.String(), payer.String(), "submitted", nil, "", at))
	mock.ExpectQuery("SELECT (.+) FROM ledger_tx_events WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(entryColumns))

	store := NewPostgresStore(db)
	ctx := context.Background()
	entries, err := store.List(ctx, ListOptions{Label: "round.activate_round", Limit: 10})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].ErrorCode == nil || *entries[0].ErrorCode != 6004 {
		t.Errorf("ErrorCode = %v, want 6004", entries[0].ErrorCode)
	}
	if entries[1].ErrorCode != nil {
		t.Errorf("ErrorCode = %v, want nil", *entries[1].ErrorCode)
	}
	if entries[0].Signature != sig || entries[0].FeePayer != payer || entries[0].Status != chain.TxFailed {
		t.Errorf("entry = %+v", entries[0])
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresStore_Integration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}
	ctx := context.Background()
	store, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	e := Entry{Label: "integration", Signature: chain.Signature{9}, FeePayer: chain.Address{9}, Status: chain.TxConfirmed, CreatedAt: time.Now().UTC()}
	if err := store.Append(ctx, e); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, err := store.List(ctx, ListOptions{Signature: e.Signature, Limit: 1})
	if err != nil || len(got) != 1 {
		t.Fatalf("list = %v, %v", got, err)
	}
	if _, err := store.Get(ctx, got[0].ID); err != nil && !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("get: %v", err)
	}
}
