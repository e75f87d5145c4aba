package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CertificateStatus string

const (
	CertificateUploaded   CertificateStatus = "uploaded"
	CertificateProcessing CertificateStatus = "processing"
	CertificateReady      CertificateStatus = "ready"
	CertificateFailed     CertificateStatus = "failed"
	CertificateExpired    CertificateStatus = "expired"
)

type ParsingMode string

const (
	ParsingModeTable        ParsingMode = "table"
	ParsingModeTextFallback ParsingMode = "text_fallback"
	ParsingModeNone         ParsingMode = "none"
)

// Port is one of the three fixed import stations on a quota certificate.
type Port string

const (
	PortKlang     Port = "PORT_KLANG"
	PortKLIA      Port = "KLIA"
	PortBukitKayu Port = "BUKIT_KAYU_HITAM"
)

func AllPorts() []Port {
	return []Port{PortKlang, PortKLIA, PortBukitKayu}
}

func (p Port) Valid() bool {
	switch p {
	case PortKlang, PortKLIA, PortBukitKayu:
		return true
	}
	return false
}

// StationSplit is the per-port breakdown of an item's approved quantity.
// A nil value means the document did not allocate that station, which is
// distinct from an explicit zero.
type StationSplit struct {
	PortKlang      *decimal.Decimal `json:"PORT_KLANG"`
	KLIA           *decimal.Decimal `json:"KLIA"`
	BukitKayuHitam *decimal.Decimal `json:"BUKIT_KAYU_HITAM"`
}

func (s StationSplit) Get(p Port) *decimal.Decimal {
	switch p {
	case PortKlang:
		return s.PortKlang
	case PortKLIA:
		return s.KLIA
	case PortBukitKayu:
		return s.BukitKayuHitam
	}
	return nil
}

func (s *StationSplit) Set(p Port, v *decimal.Decimal) {
	switch p {
	case PortKlang:
		s.PortKlang = v
	case PortKLIA:
		s.KLIA = v
	case PortBukitKayu:
		s.BukitKayuHitam = v
	}
}

// Sum adds the present station values; ok reports whether at least one
// station carried a value.
func (s StationSplit) Sum() (sum decimal.Decimal, ok bool) {
	for _, p := range AllPorts() {
		if v := s.Get(p); v != nil {
			sum = sum.Add(*v)
			ok = true
		}
	}
	return sum, ok
}

type CertificateItem struct {
	ID               string           `json:"id"`
	LineNo           int              `json:"line_no"`
	HSCode           string           `json:"hs_code"`
	ItemName         string           `json:"item_name"`
	ApprovedQuantity decimal.Decimal  `json:"approved_quantity"`
	UOM              string           `json:"uom"`
	StationSplit     StationSplit     `json:"station_split"`
	WarningThreshold *decimal.Decimal `json:"warning_threshold,omitempty"`
}

// TableStat records how one detected table contributed to extraction.
type TableStat struct {
	Index      int     `json:"index"`
	PageNumber int     `json:"page_number"`
	Score      float64 `json:"score"`
	HasHeader  bool    `json:"has_header"`
	ItemsFound int     `json:"items_found"`
}

type PageItemCount struct {
	PageNumber int `json:"page_number"`
	Items      int `json:"items"`
}

// Diagnostics is operator-facing debug output from one extraction run.
// Nothing here affects correctness of the extracted record.
type Diagnostics struct {
	ParsingMode      ParsingMode     `json:"parsing_mode"`
	PagesCount       int             `json:"pages_count"`
	TablesFound      int             `json:"tables_found"`
	TablesSelected   int             `json:"tables_selected"`
	TableStats       []TableStat     `json:"table_stats,omitempty"`
	PageItemCounts   []PageItemCount `json:"page_item_counts,omitempty"`
	ItemsAfterMerge  int             `json:"items_after_merge"`
	QtyParseFailures int             `json:"qty_parse_failures"`
	QtyAmbiguous     int             `json:"qty_ambiguous"`
	QtyFailSamples   []string        `json:"qty_fail_samples,omitempty"`
	HandwrittenSpans int             `json:"handwritten_spans"`
}

type Certificate struct {
	ID                string            `json:"id"`
	CertificateNumber string            `json:"certificate_number"`
	CompanyName       string            `json:"company_name"`
	ModelNumber       string            `json:"model_number,omitempty"`
	ExemptionStart    string            `json:"exemption_start,omitempty"`
	ExemptionEnd      string            `json:"exemption_end,omitempty"`
	Items             []CertificateItem `json:"items"`
	Warnings          []string          `json:"warnings"`
	Diagnostics       Diagnostics       `json:"diagnostics"`
	Filename          string            `json:"filename"`
	StoragePath       string            `json:"storage_path"`
	PageCount         int               `json:"page_count"`
	Status            CertificateStatus `json:"status"`
	Error             string            `json:"error,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}
