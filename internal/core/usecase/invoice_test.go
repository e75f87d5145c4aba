package usecase

import (
	"errors"
	"testing"

	"github.com/afiqzahari/mida-quota/internal/core/domain"
)

func TestInvoiceLoaderResolvesSynonymColumns(t *testing.T) {
	rows := [][]string{
		{"HLYM INVOICE LISTING", "", "", "", "", ""},
		{"NO", "PARTS NO", "DESCRIPTION", "QTY", "UOM", "N.W", "AMOUNT"},
		{"1", "B65-E1234-00", "CYLINDER HEAD", "200", "PCS", "450.50", "12,000.00"},
		{"2", "B65-E5678-00", "PISTON SET", "100", "PCS", "80.00", "3,500.00"},
	}

	parsed, err := NewInvoiceLoader().Load(rows)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(parsed.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(parsed.Items))
	}

	first := parsed.Items[0]
	if first.PartsNo != "B65-E1234-00" || first.Description != "CYLINDER HEAD" {
		t.Fatalf("first item: %+v", first)
	}
	if !first.Quantity.Equal(mustDecimal(t, "200")) || first.UOM != "PCS" {
		t.Fatalf("first item quantity: %+v", first)
	}
	if first.NetWeightKG == nil || !first.NetWeightKG.Equal(mustDecimal(t, "450.50")) {
		t.Fatalf("net weight not parsed: %+v", first)
	}
	if first.Amount == nil || !first.Amount.Equal(mustDecimal(t, "12000.00")) {
		t.Fatalf("amount not parsed: %+v", first)
	}
}

func TestInvoiceLoaderNoHeaderRow(t *testing.T) {
	rows := [][]string{
		{"just", "random", "cells"},
		{"1", "2", "3"},
	}
	_, err := NewInvoiceLoader().Load(rows)
	if err == nil {
		t.Fatalf("expected error for missing header")
	}
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestInvoiceLoaderTotalRowCapturedNotParsed(t *testing.T) {
	rows := [][]string{
		{"NO", "DESCRIPTION", "QTY", "AMOUNT"},
		{"1", "CYLINDER HEAD", "200", "100.00"},
		{"2", "PISTON SET", "100", "50.00"},
		{"", "TOTAL", "300", "150.00"},
	}

	parsed, err := NewInvoiceLoader().Load(rows)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(parsed.Items) != 2 {
		t.Fatalf("total row leaked into items: %d", len(parsed.Items))
	}
	if !parsed.Totals.HasTotalRow {
		t.Fatalf("total row not detected")
	}
	if parsed.Totals.DetectedQuantity == nil || !parsed.Totals.DetectedQuantity.Equal(mustDecimal(t, "300")) {
		t.Fatalf("detected totals: %+v", parsed.Totals)
	}
	if !parsed.Totals.CalculatedQuantity.Equal(mustDecimal(t, "300")) {
		t.Fatalf("calculated totals: %+v", parsed.Totals)
	}
	if len(parsed.Warnings) != 0 {
		t.Fatalf("matching totals must not warn: %v", parsed.Warnings)
	}
}

func TestInvoiceLoaderTotalMismatchWarns(t *testing.T) {
	rows := [][]string{
		{"NO", "DESCRIPTION", "QTY"},
		{"1", "CYLINDER HEAD", "200"},
		{"", "TOTAL", "999"},
	}

	parsed, err := NewInvoiceLoader().Load(rows)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(parsed.Warnings) != 1 {
		t.Fatalf("expected 1 totals warning, got %v", parsed.Warnings)
	}
	if parsed.Warnings[0].Severity != domain.SeverityWarning {
		t.Fatalf("totals mismatch severity: %+v", parsed.Warnings[0])
	}
}

func TestInvoiceLoaderFormDRowsExcluded(t *testing.T) {
	rows := [][]string{
		{"NO", "DESCRIPTION", "QTY", "FORM D"},
		{"1", "CYLINDER HEAD", "200", ""},
		{"2", "PISTON SET", "100", "FORM D"},
	}

	parsed, err := NewInvoiceLoader().Load(rows)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(parsed.Items) != 1 || parsed.Items[0].Description != "CYLINDER HEAD" {
		t.Fatalf("items: %+v", parsed.Items)
	}
	if len(parsed.Excluded) != 1 || !parsed.Excluded[0].Excluded {
		t.Fatalf("excluded: %+v", parsed.Excluded)
	}
	if !parsed.Totals.CalculatedQuantity.Equal(mustDecimal(t, "200")) {
		t.Fatalf("excluded rows must not count into totals: %+v", parsed.Totals)
	}
}

func TestInvoiceLoaderSkipsBlankRows(t *testing.T) {
	rows := [][]string{
		{"NO", "DESCRIPTION", "QTY"},
		{"", "", ""},
		{"1", "CYLINDER HEAD", "200"},
		{},
	}

	parsed, err := NewInvoiceLoader().Load(rows)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(parsed.Items) != 1 {
		t.Fatalf("expected blank rows skipped, got %d items", len(parsed.Items))
	}
}
