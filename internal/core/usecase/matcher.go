package usecase

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/afiqzahari/mida-quota/internal/config"
	"github.com/afiqzahari/mida-quota/internal/core/domain"
)

const (
	hsWeight       = 0.6
	descWeight     = 0.4
	nearLimitRatio = 0.9
)

// Matcher assigns invoice line items to certificate items 1-to-1 and
// annotates each assignment with quantity headroom. It only proposes; the
// ledger alone may deduct.
type Matcher struct {
	vocab     config.Vocabulary
	threshold float64
}

func NewMatcher(vocab config.Vocabulary, threshold float64) *Matcher {
	return &Matcher{vocab: vocab, threshold: threshold}
}

type candidate struct {
	invIdx  int
	balIdx  int
	score   float64
	kind    domain.MatchKind
	descSim float64
}

// Match scores every invoice item against every certificate item balance
// and resolves a deterministic 1-to-1 assignment. balances must be in the
// caller's certificate request order; that order is the final tie-break
// when two certificate items are indistinguishable on score, kind and
// line number.
func (m *Matcher) Match(items []domain.InvoiceItem, balances []domain.ItemBalance, mode domain.MatchMode, threshold float64) *domain.MatchReport {
	if threshold <= 0 {
		threshold = m.threshold
	}

	var candidates []candidate
	for i, item := range items {
		for b, bal := range balances {
			if c, ok := m.score(item, bal, mode, threshold); ok {
				c.invIdx, c.balIdx = i, b
				candidates = append(candidates, c)
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.kind != b.kind {
			return a.kind == domain.MatchExact
		}
		if la, lb := balances[a.balIdx].Item.LineNo, balances[b.balIdx].Item.LineNo; la != lb {
			return la < lb
		}
		if a.balIdx != b.balIdx {
			return a.balIdx < b.balIdx
		}
		return items[a.invIdx].LineNo < items[b.invIdx].LineNo
	})

	assigned := make(map[int]candidate, len(items))
	usedBal := make(map[int]bool, len(balances))
	for _, c := range candidates {
		if _, taken := assigned[c.invIdx]; taken || usedBal[c.balIdx] {
			continue
		}
		assigned[c.invIdx] = c
		usedBal[c.balIdx] = true
	}

	report := &domain.MatchReport{TotalItems: len(items)}
	for i, item := range items {
		c, ok := assigned[i]
		if !ok {
			result := domain.MatchResult{InvoiceItem: item, Kind: domain.MatchNone}
			w := domain.MatchWarning{
				InvoiceItem: invoiceLabel(item),
				Reason:      "no matching certificate item",
				Severity:    domain.SeverityWarning,
			}
			result.Warnings = append(result.Warnings, w)
			report.Warnings = append(report.Warnings, w)
			report.Results = append(report.Results, result)
			report.UnmatchedCount++
			continue
		}
		result := m.buildResult(item, balances[c.balIdx], c)
		report.Warnings = append(report.Warnings, result.Warnings...)
		report.Results = append(report.Results, result)
		report.MatchedCount++
	}
	return report
}

func (m *Matcher) score(item domain.InvoiceItem, bal domain.ItemBalance, mode domain.MatchMode, threshold float64) (candidate, bool) {
	invHS := normalizeHSCode(item.HSCode)
	certHS := normalizeHSCode(bal.Item.HSCode)
	descSim := textSimilarity(normalizeText(item.Description), normalizeText(bal.Item.ItemName))

	if invHS != "" && invHS == certHS {
		return candidate{
			score:   hsWeight + descWeight*descSim,
			kind:    domain.MatchExact,
			descSim: descSim,
		}, true
	}
	if mode == domain.MatchModeExact {
		return candidate{}, false
	}

	if invHS == "" {
		// Description-only fallback for invoices without an HS column.
		if descSim >= threshold {
			return candidate{score: descSim, kind: domain.MatchFuzzy, descSim: descSim}, true
		}
		return candidate{}, false
	}

	score := hsWeight*hsPrefixScore(invHS, certHS) + descWeight*descSim
	if score < threshold {
		return candidate{}, false
	}
	return candidate{score: score, kind: domain.MatchFuzzy, descSim: descSim}, true
}

// hsPrefixScore is the shared leading-digit fraction of two normalized HS
// codes. The tariff hierarchy is left-to-right, so prefix agreement means
// same chapter/heading even when the national subdivision differs.
func hsPrefixScore(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	common := 0
	for common < n && a[common] == b[common] {
		common++
	}
	longer := len(a)
	if len(b) > longer {
		longer = len(b)
	}
	return float64(common) / float64(longer)
}

func (m *Matcher) buildResult(item domain.InvoiceItem, bal domain.ItemBalance, c candidate) domain.MatchResult {
	result := domain.MatchResult{
		InvoiceItem: item,
		Score:       c.score,
		Kind:        c.kind,
		Matched: &domain.MatchedRef{
			CertificateID:     bal.CertificateID,
			CertificateNumber: bal.CertificateNumber,
			ItemID:            bal.Item.ID,
			LineNo:            bal.Item.LineNo,
			HSCode:            bal.Item.HSCode,
			ItemName:          bal.Item.ItemName,
			UOM:               bal.Item.UOM,
			ApprovedQuantity:  bal.Item.ApprovedQuantity,
		},
	}

	qty := m.effectiveQuantity(item, bal.Item)
	result.RemainingAfter = bal.Remaining.Sub(qty)
	if len(bal.RemainingByPort) > 0 {
		result.RemainingByPort = make(map[domain.Port]decimal.Decimal, len(bal.RemainingByPort))
		for p, v := range bal.RemainingByPort {
			result.RemainingByPort[p] = v
		}
	}

	warn := func(reason string, severity domain.Severity, details string) {
		result.Warnings = append(result.Warnings, domain.MatchWarning{
			InvoiceItem:     invoiceLabel(item),
			CertificateItem: bal.Item.HSCode,
			Reason:          reason,
			Severity:        severity,
			Details:         details,
		})
	}

	if invUOM := normalizeUOM(m.vocab, item.UOM); invUOM != "" && bal.Item.UOM != "" && invUOM != bal.Item.UOM {
		warn("unit of measure mismatch", domain.SeverityWarning,
			fmt.Sprintf("invoice %s vs certificate %s", item.UOM, bal.Item.UOM))
	}

	if result.RemainingAfter.IsNegative() {
		warn("quantity exceeds remaining balance", domain.SeverityError,
			fmt.Sprintf("deducting %s from remaining %s", qty.String(), bal.Remaining.String()))
	} else if !bal.Item.ApprovedQuantity.IsZero() {
		used := bal.Item.ApprovedQuantity.Sub(result.RemainingAfter)
		if used.GreaterThanOrEqual(bal.Item.ApprovedQuantity.Mul(decimal.NewFromFloat(nearLimitRatio))) {
			warn("near quota limit", domain.SeverityInfo,
				fmt.Sprintf("projected usage %s of %s", used.String(), bal.Item.ApprovedQuantity.String()))
		}
	}
	return result
}

// effectiveQuantity is what the match would deduct: the net weight for
// weight-based certificate items when the invoice carries one, the plain
// quantity otherwise.
func (m *Matcher) effectiveQuantity(item domain.InvoiceItem, certItem domain.CertificateItem) decimal.Decimal {
	if certItem.UOM == "KGM" && item.NetWeightKG != nil {
		return *item.NetWeightKG
	}
	return item.Quantity
}

func invoiceLabel(item domain.InvoiceItem) string {
	if item.PartsNo != "" {
		return fmt.Sprintf("line %d (%s)", item.LineNo, item.PartsNo)
	}
	if item.Description != "" {
		desc := item.Description
		if r := []rune(desc); len(r) > 40 {
			desc = strings.TrimSpace(string(r[:40])) + "…"
		}
		return fmt.Sprintf("line %d (%s)", item.LineNo, desc)
	}
	return fmt.Sprintf("line %d", item.LineNo)
}
