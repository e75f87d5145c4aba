package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/afiqzahari/mida-quota/internal/core/domain"
	"github.com/afiqzahari/mida-quota/internal/core/ports"
)

type LedgerUseCase struct {
	repo             ports.LedgerRepository
	nearLimitPercent float64
	defaultThreshold decimal.Decimal
}

func NewLedgerUseCase(repo ports.LedgerRepository, nearLimitPercent float64) *LedgerUseCase {
	if nearLimitPercent <= 0 || nearLimitPercent >= 100 {
		nearLimitPercent = 90
	}
	return &LedgerUseCase{repo: repo, nearLimitPercent: nearLimitPercent}
}

// WithDefaultWarningThreshold sets the remaining-quantity floor applied to
// items that carry no threshold of their own. Zero disables it.
func (uc *LedgerUseCase) WithDefaultWarningThreshold(t decimal.Decimal) *LedgerUseCase {
	uc.defaultThreshold = t
	return uc
}

// Preview simulates a batch of deductions against current balances without
// writing anything. Deductions in the same batch against the same
// (item, port) are applied cumulatively, in batch order.
func (uc *LedgerUseCase) Preview(ctx context.Context, batch []domain.Deduction) (*domain.BatchPreview, error) {
	if err := validateBatch(batch); err != nil {
		return nil, err
	}

	balances, err := uc.loadBalances(ctx, batch)
	if err != nil {
		return nil, err
	}

	preview := &domain.BatchPreview{TotalItems: len(batch)}
	running := map[string]decimal.Decimal{}

	for _, d := range batch {
		row := domain.DeductionPreview{
			CertificateItemID: d.CertificateItemID,
			Port:              d.Port,
			Quantity:          d.Quantity,
		}

		bal, found := balances[d.CertificateItemID]
		if !found {
			row.Status = domain.BalanceOverdrawn
			row.Message = "certificate item not found"
			preview.HasOverdrawns = true
			preview.Previews = append(preview.Previews, row)
			continue
		}

		key := d.CertificateItemID + "|" + string(d.Port)
		before, ok := running[key]
		if !ok {
			before, ok = portBalance(bal, d.Port)
			if !ok {
				row.Status = domain.BalanceOverdrawn
				row.Message = fmt.Sprintf("port %s has no allocated quantity on this item", d.Port)
				preview.HasOverdrawns = true
				preview.Previews = append(preview.Previews, row)
				continue
			}
		}

		after := before.Sub(d.Quantity)
		running[key] = after

		row.BalanceBefore = before
		row.BalanceAfter = after
		row.Status = uc.classify(bal, d.Port, after)
		switch row.Status {
		case domain.BalanceOverdrawn:
			row.Message = fmt.Sprintf("deducting %s exceeds remaining %s", d.Quantity, before)
			preview.HasOverdrawns = true
		case domain.BalanceDepleted:
			row.Message = "balance fully depleted"
			preview.HasDepletions = true
		case domain.BalanceNearLimit:
			row.Message = fmt.Sprintf("usage past %.0f%% of allocation", uc.nearLimitPercent)
			preview.HasWarnings = true
		}
		preview.Previews = append(preview.Previews, row)
	}

	return preview, nil
}

// Commit re-runs the preview against current balances and, only when no
// deduction overdraws, hands the batch to the repository for an atomic
// write. A rejected batch writes nothing.
func (uc *LedgerUseCase) Commit(ctx context.Context, batch []domain.Deduction) ([]domain.LedgerEntry, error) {
	preview, err := uc.Preview(ctx, batch)
	if err != nil {
		return nil, err
	}
	if preview.HasOverdrawns {
		var reasons []string
		for _, row := range preview.Previews {
			if row.Status == domain.BalanceOverdrawn {
				reasons = append(reasons, fmt.Sprintf("item %s port %s: %s",
					row.CertificateItemID, row.Port, row.Message))
			}
		}
		return nil, domain.WrapError(domain.ErrOverdrawn, "commit batch",
			errors.New(strings.Join(reasons, "; ")))
	}

	entries, err := uc.repo.CommitBatch(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("commit batch: %w", err)
	}
	return entries, nil
}

func (uc *LedgerUseCase) Entries(ctx context.Context, itemID string, port domain.Port) ([]domain.LedgerEntry, error) {
	if itemID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list entries", errors.New("item id required"))
	}
	if port != "" && !port.Valid() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list entries",
			fmt.Errorf("unknown port %q", port))
	}
	entries, err := uc.repo.ListEntries(ctx, itemID, port)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return entries, nil
}

// DeleteEntry removes one committed entry. The repository recomputes every
// later balance in the same (item, port) chain, balances being cumulative.
func (uc *LedgerUseCase) DeleteEntry(ctx context.Context, entryID string) error {
	if entryID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "delete entry", errors.New("entry id required"))
	}
	if err := uc.repo.DeleteEntry(ctx, entryID); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

func validateBatch(batch []domain.Deduction) error {
	if len(batch) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "validate batch", errors.New("empty batch"))
	}
	for i, d := range batch {
		if d.CertificateItemID == "" {
			return domain.WrapError(domain.ErrInvalidInput, "validate batch",
				fmt.Errorf("deduction %d: certificate item id required", i))
		}
		if !d.Port.Valid() {
			return domain.WrapError(domain.ErrInvalidPort, "validate batch",
				fmt.Errorf("deduction %d: unknown port %q", i, d.Port))
		}
		if !d.Quantity.IsPositive() {
			return domain.WrapError(domain.ErrInvalidInput, "validate batch",
				fmt.Errorf("deduction %d: quantity must be positive", i))
		}
	}
	return nil
}

func (uc *LedgerUseCase) loadBalances(ctx context.Context, batch []domain.Deduction) (map[string]domain.ItemBalance, error) {
	seen := map[string]bool{}
	var ids []string
	for _, d := range batch {
		if !seen[d.CertificateItemID] {
			seen[d.CertificateItemID] = true
			ids = append(ids, d.CertificateItemID)
		}
	}
	balances, err := uc.repo.BalancesByItemIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load balances: %w", err)
	}
	return balances, nil
}

// portBalance resolves the live balance the deduction draws from: the
// per-port remainder when the certificate allocated stations, the overall
// remainder when it did not.
func portBalance(bal domain.ItemBalance, port domain.Port) (decimal.Decimal, bool) {
	if len(bal.RemainingByPort) == 0 {
		return bal.Remaining, true
	}
	v, ok := bal.RemainingByPort[port]
	return v, ok
}

func (uc *LedgerUseCase) classify(bal domain.ItemBalance, port domain.Port, after decimal.Decimal) domain.BalanceStatus {
	if after.IsNegative() {
		return domain.BalanceOverdrawn
	}
	if after.IsZero() {
		return domain.BalanceDepleted
	}

	threshold := uc.defaultThreshold
	if bal.Item.WarningThreshold != nil {
		threshold = *bal.Item.WarningThreshold
	}
	if threshold.IsPositive() && after.LessThanOrEqual(threshold) {
		return domain.BalanceNearLimit
	}

	allocation := bal.Item.ApprovedQuantity
	if v := bal.Item.StationSplit.Get(port); v != nil {
		allocation = *v
	}
	if allocation.IsZero() {
		return domain.BalanceOK
	}

	used := allocation.Sub(after)
	limit := allocation.Mul(decimal.NewFromFloat(uc.nearLimitPercent)).Div(decimal.NewFromInt(100))
	if used.GreaterThanOrEqual(limit) {
		return domain.BalanceNearLimit
	}
	return domain.BalanceOK
}
