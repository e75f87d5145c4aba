package postgres

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"github.com/afiqzahari/mida-quota/internal/core/domain"
)

var balanceCols = []string{
	"id", "certificate_id", "certificate_number", "line_no", "hs_code", "item_name",
	"approved_quantity", "uom", "station_split", "warning_threshold",
}

var usageCols = []string{"certificate_item_id", "port", "sum"}

func TestItemBalancesDerivesRemaining(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewLedgerRepository(db)

	mock.ExpectQuery("FROM certificate_items ci").
		WillReturnRows(sqlmock.NewRows(balanceCols).AddRow(
			"item-1", "cert-1", "CDE2/2023/000123", 1, "8407.34.9000", "CRANKCASE COMP",
			"1000", "UNIT", []byte(`{"PORT_KLANG":"600","KLIA":"400","BUKIT_KAYU_HITAM":null}`), nil,
		))
	mock.ExpectQuery("FROM ledger_entries").
		WillReturnRows(sqlmock.NewRows(usageCols).
			AddRow("item-1", "PORT_KLANG", "150").
			AddRow("item-1", "KLIA", "50"))

	balances, err := repo.ItemBalances(context.Background(), []string{"cert-1"})
	if err != nil {
		t.Fatalf("ItemBalances: %v", err)
	}
	if len(balances) != 1 {
		t.Fatalf("got %d balances", len(balances))
	}
	b := balances[0]
	if !b.Remaining.Equal(decimal.RequireFromString("800")) {
		t.Fatalf("remaining = %s, want 800", b.Remaining)
	}
	if !b.RemainingByPort[domain.PortKlang].Equal(decimal.RequireFromString("450")) {
		t.Fatalf("klang remaining = %s", b.RemainingByPort[domain.PortKlang])
	}
	if !b.RemainingByPort[domain.PortKLIA].Equal(decimal.RequireFromString("350")) {
		t.Fatalf("klia remaining = %s", b.RemainingByPort[domain.PortKLIA])
	}
	if _, ok := b.RemainingByPort[domain.PortBukitKayu]; ok {
		t.Fatalf("unallocated station should have no remaining")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestItemBalancesEmptyInput(t *testing.T) {
	db, _, done := newMockDB(t)
	defer done()
	repo := NewLedgerRepository(db)

	balances, err := repo.ItemBalances(context.Background(), nil)
	if err != nil {
		t.Fatalf("ItemBalances: %v", err)
	}
	if balances != nil {
		t.Fatalf("expected no balances, got %v", balances)
	}
}

func TestCommitBatchWritesChain(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewLedgerRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs("item-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM certificate_items ci").
		WillReturnRows(sqlmock.NewRows(balanceCols).AddRow(
			"item-1", "cert-1", "CDE2/2023/000123", 1, "8407.34.9000", "CRANKCASE COMP",
			"1000", "UNIT", []byte(`{}`), nil,
		))
	mock.ExpectQuery("FROM ledger_entries").
		WillReturnRows(sqlmock.NewRows(usageCols).AddRow("item-1", "PORT_KLANG", "100"))
	mock.ExpectExec("INSERT INTO ledger_entries").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO ledger_entries").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	batch := []domain.Deduction{
		{CertificateItemID: "item-1", Port: domain.PortKlang, Quantity: decimal.RequireFromString("200"), InvoiceNumber: "INV-1"},
		{CertificateItemID: "item-1", Port: domain.PortKlang, Quantity: decimal.RequireFromString("300"), InvoiceNumber: "INV-1"},
	}
	entries, err := repo.CommitBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("CommitBatch: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}
	if !entries[0].BalanceBefore.Equal(decimal.RequireFromString("900")) {
		t.Fatalf("first balance before = %s", entries[0].BalanceBefore)
	}
	if !entries[1].BalanceBefore.Equal(decimal.RequireFromString("700")) {
		t.Fatalf("second balance before = %s", entries[1].BalanceBefore)
	}
	if !entries[1].BalanceAfter.Equal(decimal.RequireFromString("400")) {
		t.Fatalf("second balance after = %s", entries[1].BalanceAfter)
	}
	if entries[0].ID == "" || entries[0].ID == entries[1].ID {
		t.Fatalf("entries need distinct ids")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCommitBatchRejectsOverdrawWithoutInsert(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewLedgerRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs("item-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM certificate_items ci").
		WillReturnRows(sqlmock.NewRows(balanceCols).AddRow(
			"item-1", "cert-1", "CDE2/2023/000123", 1, "8407.34.9000", "CRANKCASE COMP",
			"100", "UNIT", []byte(`{}`), nil,
		))
	mock.ExpectQuery("FROM ledger_entries").
		WillReturnRows(sqlmock.NewRows(usageCols))
	mock.ExpectRollback()

	batch := []domain.Deduction{
		{CertificateItemID: "item-1", Port: domain.PortKlang, Quantity: decimal.RequireFromString("150")},
	}
	_, err := repo.CommitBatch(context.Background(), batch)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrOverdrawn) {
		t.Fatalf("expected ErrOverdrawn, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCommitBatchUnknownItem(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewLedgerRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM certificate_items ci").
		WillReturnRows(sqlmock.NewRows(balanceCols))
	mock.ExpectRollback()

	batch := []domain.Deduction{
		{CertificateItemID: "ghost", Port: domain.PortKlang, Quantity: decimal.RequireFromString("1")},
	}
	_, err := repo.CommitBatch(context.Background(), batch)
	if !domain.IsKind(err, domain.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeleteEntryNotFound(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewLedgerRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM ledger_entries").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.DeleteEntry(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeleteEntryShiftsLaterBalances(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewLedgerRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM ledger_entries").
		WithArgs("entry-1").
		WillReturnRows(sqlmock.NewRows([]string{"certificate_item_id", "port", "quantity_imported", "seq"}).
			AddRow("item-1", "PORT_KLANG", "200", int64(7)))
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs("item-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM ledger_entries").
		WithArgs("entry-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE ledger_entries").
		WithArgs("item-1", "PORT_KLANG", int64(7), "200").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	if err := repo.DeleteEntry(context.Background(), "entry-1"); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeleteEntryRecomputesBySequenceNotTimestamp(t *testing.T) {
	// Entries of one batch share a created_at; the recompute must key on
	// the insert sequence so same-timestamp siblings still shift.
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewLedgerRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT certificate_item_id, port, quantity_imported, seq`).
		WithArgs("entry-mid").
		WillReturnRows(sqlmock.NewRows([]string{"certificate_item_id", "port", "quantity_imported", "seq"}).
			AddRow("item-1", "PORT_KLANG", "150", int64(12)))
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs("item-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM ledger_entries").
		WithArgs("entry-mid").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`seq > \$3`).
		WithArgs("item-1", "PORT_KLANG", int64(12), "150").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.DeleteEntry(context.Background(), "entry-mid"); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCommitBatchRejectsPortOutsideSplit(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	repo := NewLedgerRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").
		WithArgs("item-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FROM certificate_items ci").
		WillReturnRows(sqlmock.NewRows(balanceCols).AddRow(
			"item-1", "cert-1", "CDE2/2023/000123", 1, "8407.34.9000", "CRANKCASE COMP",
			"1000", "UNIT", []byte(`{"PORT_KLANG":"1000","KLIA":null,"BUKIT_KAYU_HITAM":null}`), nil,
		))
	mock.ExpectQuery("FROM ledger_entries").
		WillReturnRows(sqlmock.NewRows(usageCols))
	mock.ExpectRollback()

	batch := []domain.Deduction{
		{CertificateItemID: "item-1", Port: domain.PortKLIA, Quantity: decimal.RequireFromString("10")},
	}
	_, err := repo.CommitBatch(context.Background(), batch)
	if !domain.IsKind(err, domain.ErrOverdrawn) {
		t.Fatalf("a station without an allocation has no balance to draw from, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
