package usecase

import (
	"testing"

	"github.com/shopspring/decimal"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	v, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return v
}

func decimalPtr(t *testing.T, s string) *decimal.Decimal {
	t.Helper()
	v := mustDecimal(t, s)
	return &v
}
