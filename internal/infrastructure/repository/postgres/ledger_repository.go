package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/afiqzahari/mida-quota/internal/core/domain"
)

// LedgerRepository stores committed deductions. Balances are derived, never
// stored: remaining quantity is the approved quantity minus the sum of
// committed entries, so a deleted entry self-heals the chain.
type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func (r *LedgerRepository) ItemBalances(ctx context.Context, certificateIDs []string) ([]domain.ItemBalance, error) {
	if len(certificateIDs) == 0 {
		return nil, nil
	}
	return queryBalances(ctx, r.db, `ci.certificate_id = ANY($1)`, certificateIDs)
}

func (r *LedgerRepository) BalancesByItemIDs(ctx context.Context, itemIDs []string) (map[string]domain.ItemBalance, error) {
	if len(itemIDs) == 0 {
		return map[string]domain.ItemBalance{}, nil
	}
	balances, err := queryBalances(ctx, r.db, `ci.id = ANY($1)`, itemIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.ItemBalance, len(balances))
	for _, b := range balances {
		out[b.Item.ID] = b
	}
	return out, nil
}

// CommitBatch writes the whole batch or nothing. Per-item advisory locks
// serialize concurrent commits touching the same item, and every deduction is
// re-validated against balances read inside the transaction.
func (r *LedgerRepository) CommitBatch(ctx context.Context, batch []domain.Deduction) ([]domain.LedgerEntry, error) {
	if len(batch) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "commit batch", errors.New("empty batch"))
	}

	itemIDs := uniqueItemIDs(batch)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin commit tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Sorted lock order prevents deadlock between overlapping batches.
	for _, id := range itemIDs {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, id); err != nil {
			return nil, fmt.Errorf("lock item %s: %w", id, err)
		}
	}

	balances, err := queryBalances(ctx, tx, `ci.id = ANY($1)`, itemIDs)
	if err != nil {
		return nil, err
	}
	byItem := make(map[string]domain.ItemBalance, len(balances))
	for _, b := range balances {
		byItem[b.Item.ID] = b
	}

	running := make(map[string]decimal.Decimal)
	entries := make([]domain.LedgerEntry, 0, len(batch))
	now := time.Now().UTC()

	for _, d := range batch {
		bal, ok := byItem[d.CertificateItemID]
		if !ok {
			return nil, domain.WrapError(domain.ErrItemNotFound, "commit batch", fmt.Errorf("item %s", d.CertificateItemID))
		}

		key := d.CertificateItemID + "|" + string(d.Port)
		before, seen := running[key]
		if !seen {
			before = portBalance(bal, d.Port)
		}
		after := before.Sub(d.Quantity)
		if after.IsNegative() {
			return nil, domain.WrapError(domain.ErrOverdrawn, "commit batch",
				fmt.Errorf("item %s port %s: balance %s, deduction %s",
					d.CertificateItemID, d.Port, before.String(), d.Quantity.String()))
		}
		running[key] = after

		importDate := d.ImportDate
		if importDate.IsZero() {
			importDate = now
		}
		entry := domain.LedgerEntry{
			ID:                uuid.NewString(),
			CertificateItemID: d.CertificateItemID,
			Port:              d.Port,
			InvoiceNumber:     d.InvoiceNumber,
			InvoiceLine:       d.InvoiceLine,
			QuantityImported:  d.Quantity,
			BalanceBefore:     before,
			BalanceAfter:      after,
			ImportDate:        importDate,
			Remarks:           d.Remarks,
			CreatedAt:         now,
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO ledger_entries (
	id, certificate_item_id, port, invoice_number, invoice_line,
	quantity_imported, balance_before, balance_after, import_date, remarks, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`, entry.ID, entry.CertificateItemID, string(entry.Port), entry.InvoiceNumber, entry.InvoiceLine,
			entry.QuantityImported.String(), entry.BalanceBefore.String(), entry.BalanceAfter.String(),
			entry.ImportDate, entry.Remarks, entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("insert ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit ledger tx: %w", err)
	}
	return entries, nil
}

func (r *LedgerRepository) ListEntries(ctx context.Context, itemID string, port domain.Port) ([]domain.LedgerEntry, error) {
	query := `
SELECT id, certificate_item_id, port, invoice_number, invoice_line,
	quantity_imported, balance_before, balance_after, import_date, remarks, created_at
FROM ledger_entries
WHERE certificate_item_id = $1`
	args := []interface{}{itemID}
	if port != "" {
		query += ` AND port = $2`
		args = append(args, string(port))
	}
	query += ` ORDER BY seq`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}
	return entries, nil
}

// DeleteEntry removes one entry and shifts the recorded balances of every
// later entry in the same (item, port) chain by the freed quantity. Chain
// order is the insert sequence, which stays stable when a batch stamps
// several entries with the same created_at.
func (r *LedgerRepository) DeleteEntry(ctx context.Context, entryID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, `
SELECT certificate_item_id, port, quantity_imported, seq
FROM ledger_entries
WHERE id = $1
`, entryID)

	var itemID, port, qtyRaw string
	var seq int64
	if err := row.Scan(&itemID, &port, &qtyRaw, &seq); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WrapError(domain.ErrEntryNotFound, "delete ledger entry", fmt.Errorf("id %s", entryID))
		}
		return fmt.Errorf("load ledger entry: %w", err)
	}
	qty, err := decimal.NewFromString(qtyRaw)
	if err != nil {
		return fmt.Errorf("parse entry quantity %q: %w", qtyRaw, err)
	}

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, itemID); err != nil {
		return fmt.Errorf("lock item %s: %w", itemID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_entries WHERE id = $1`, entryID); err != nil {
		return fmt.Errorf("delete ledger entry: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
UPDATE ledger_entries
SET balance_before = balance_before + $4, balance_after = balance_after + $4
WHERE certificate_item_id = $1 AND port = $2 AND seq > $3
`, itemID, port, seq, qty.String())
	if err != nil {
		return fmt.Errorf("recompute later balances: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete tx: %w", err)
	}
	return nil
}

func scanEntry(rows *sql.Rows) (domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	var port, qtyRaw, beforeRaw, afterRaw string

	err := rows.Scan(&entry.ID, &entry.CertificateItemID, &port, &entry.InvoiceNumber, &entry.InvoiceLine,
		&qtyRaw, &beforeRaw, &afterRaw, &entry.ImportDate, &entry.Remarks, &entry.CreatedAt)
	if err != nil {
		return entry, fmt.Errorf("scan ledger entry: %w", err)
	}
	entry.Port = domain.Port(port)

	if entry.QuantityImported, err = decimal.NewFromString(qtyRaw); err != nil {
		return entry, fmt.Errorf("parse quantity %q: %w", qtyRaw, err)
	}
	if entry.BalanceBefore, err = decimal.NewFromString(beforeRaw); err != nil {
		return entry, fmt.Errorf("parse balance before %q: %w", beforeRaw, err)
	}
	if entry.BalanceAfter, err = decimal.NewFromString(afterRaw); err != nil {
		return entry, fmt.Errorf("parse balance after %q: %w", afterRaw, err)
	}
	return entry, nil
}

// queryBalances loads items (with their certificate) matching filter and
// derives remaining quantities from the committed entries.
func queryBalances(ctx context.Context, q querier, filter string, ids []string) ([]domain.ItemBalance, error) {
	rows, err := q.QueryContext(ctx, `
SELECT ci.id, ci.certificate_id, c.certificate_number, ci.line_no, ci.hs_code, ci.item_name,
	ci.approved_quantity, ci.uom, ci.station_split, ci.warning_threshold
FROM certificate_items ci
JOIN certificates c ON c.id = ci.certificate_id
WHERE `+filter+`
ORDER BY ci.certificate_id, ci.line_no
`, ids)
	if err != nil {
		return nil, fmt.Errorf("query item balances: %w", err)
	}

	var balances []domain.ItemBalance
	var itemIDs []string
	for rows.Next() {
		var b domain.ItemBalance
		err := scanBalanceItem(rows, &b)
		if err != nil {
			rows.Close()
			return nil, err
		}
		balances = append(balances, b)
		itemIDs = append(itemIDs, b.Item.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate item balances: %w", err)
	}
	rows.Close()

	if len(balances) == 0 {
		return nil, nil
	}

	used, usedByPort, err := queryUsage(ctx, q, itemIDs)
	if err != nil {
		return nil, err
	}

	for i := range balances {
		b := &balances[i]
		b.Remaining = b.Item.ApprovedQuantity.Sub(used[b.Item.ID])

		if _, hasSplit := b.Item.StationSplit.Sum(); !hasSplit {
			continue
		}
		b.RemainingByPort = make(map[domain.Port]decimal.Decimal)
		for _, p := range domain.AllPorts() {
			alloc := b.Item.StationSplit.Get(p)
			if alloc == nil {
				continue
			}
			b.RemainingByPort[p] = alloc.Sub(usedByPort[b.Item.ID+"|"+string(p)])
		}
	}
	return balances, nil
}

func queryUsage(ctx context.Context, q querier, itemIDs []string) (map[string]decimal.Decimal, map[string]decimal.Decimal, error) {
	rows, err := q.QueryContext(ctx, `
SELECT certificate_item_id, port, COALESCE(SUM(quantity_imported), 0)
FROM ledger_entries
WHERE certificate_item_id = ANY($1)
GROUP BY certificate_item_id, port
`, itemIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("query ledger usage: %w", err)
	}
	defer rows.Close()

	used := make(map[string]decimal.Decimal)
	usedByPort := make(map[string]decimal.Decimal)
	for rows.Next() {
		var itemID, port, sumRaw string
		if err := rows.Scan(&itemID, &port, &sumRaw); err != nil {
			return nil, nil, fmt.Errorf("scan ledger usage: %w", err)
		}
		sum, err := decimal.NewFromString(sumRaw)
		if err != nil {
			return nil, nil, fmt.Errorf("parse ledger usage %q: %w", sumRaw, err)
		}
		used[itemID] = used[itemID].Add(sum)
		usedByPort[itemID+"|"+port] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate ledger usage: %w", err)
	}
	return used, usedByPort, nil
}

func scanBalanceItem(rows *sql.Rows, b *domain.ItemBalance) error {
	var qtyRaw string
	var splitRaw []byte
	var thresholdRaw sql.NullString

	err := rows.Scan(&b.Item.ID, &b.CertificateID, &b.CertificateNumber,
		&b.Item.LineNo, &b.Item.HSCode, &b.Item.ItemName,
		&qtyRaw, &b.Item.UOM, &splitRaw, &thresholdRaw)
	if err != nil {
		return fmt.Errorf("scan item balance: %w", err)
	}

	b.Item.ApprovedQuantity, err = decimal.NewFromString(qtyRaw)
	if err != nil {
		return fmt.Errorf("parse approved quantity %q: %w", qtyRaw, err)
	}
	if err := json.Unmarshal(splitRaw, &b.Item.StationSplit); err != nil {
		return fmt.Errorf("unmarshal station split: %w", err)
	}
	if thresholdRaw.Valid {
		v, err := decimal.NewFromString(thresholdRaw.String)
		if err != nil {
			return fmt.Errorf("parse warning threshold %q: %w", thresholdRaw.String, err)
		}
		b.Item.WarningThreshold = &v
	}
	return nil
}

// portBalance mirrors the preview semantics: when the certificate allocated
// stations, a port missing from the split has nothing to draw from; without
// a split the overall remaining applies.
func portBalance(bal domain.ItemBalance, port domain.Port) decimal.Decimal {
	if len(bal.RemainingByPort) == 0 {
		return bal.Remaining
	}
	return bal.RemainingByPort[port]
}

func uniqueItemIDs(batch []domain.Deduction) []string {
	seen := make(map[string]struct{}, len(batch))
	var ids []string
	for _, d := range batch {
		if _, ok := seen[d.CertificateItemID]; ok {
			continue
		}
		seen[d.CertificateItemID] = struct{}{}
		ids = append(ids, d.CertificateItemID)
	}
	sort.Strings(ids)
	return ids
}
