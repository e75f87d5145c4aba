package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/afiqzahari/mida-quota/internal/core/domain"
)

type fakeIngestor struct {
	err error
}

func (f fakeIngestor) Upload(_ context.Context, filename string, body io.Reader) (*domain.Certificate, error) {
	if f.err != nil {
		return nil, f.err
	}
	if _, err := io.ReadAll(body); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &domain.Certificate{
		ID:        "cert-1",
		Filename:  filename,
		Status:    domain.CertificateUploaded,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

type fakeReader struct {
	err error
}

func (f fakeReader) GetByID(_ context.Context, id string) (*domain.Certificate, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Certificate{ID: id, Status: domain.CertificateReady}, nil
}

type fakeMatcher struct {
	gotMode      domain.MatchMode
	gotThreshold float64
	gotIDs       []string
	err          error
}

func (f *fakeMatcher) MatchFile(_ context.Context, _ []byte, certificateIDs []string, mode domain.MatchMode, threshold float64) (*domain.MatchReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.gotMode = mode
	f.gotThreshold = threshold
	f.gotIDs = certificateIDs
	return &domain.MatchReport{TotalItems: 1, MatchedCount: 1}, nil
}

type fakeLedger struct {
	previewErr error
	commitErr  error
	deleted    []string
}

func (f *fakeLedger) Preview(_ context.Context, batch []domain.Deduction) (*domain.BatchPreview, error) {
	if f.previewErr != nil {
		return nil, f.previewErr
	}
	return &domain.BatchPreview{TotalItems: len(batch)}, nil
}

func (f *fakeLedger) Commit(_ context.Context, batch []domain.Deduction) ([]domain.LedgerEntry, error) {
	if f.commitErr != nil {
		return nil, f.commitErr
	}
	entries := make([]domain.LedgerEntry, len(batch))
	for i, d := range batch {
		entries[i] = domain.LedgerEntry{ID: "entry-1", CertificateItemID: d.CertificateItemID, Port: d.Port, QuantityImported: d.Quantity}
	}
	return entries, nil
}

func (f *fakeLedger) Entries(_ context.Context, itemID string, _ domain.Port) ([]domain.LedgerEntry, error) {
	if itemID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list entries", errors.New("item id required"))
	}
	return nil, nil
}

func (f *fakeLedger) DeleteEntry(_ context.Context, entryID string) error {
	if entryID == "ghost" {
		return domain.WrapError(domain.ErrEntryNotFound, "delete ledger entry", errors.New("ghost"))
	}
	f.deleted = append(f.deleted, entryID)
	return nil
}

func newTestRouter(matcher *fakeMatcher, ledger *fakeLedger) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(fakeIngestor{}, fakeReader{}, matcher, ledger, logger, nil).Handler()
}

func multipartBody(t *testing.T, fields map[string]string, fileField, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(fileField, filename)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("WriteField() error = %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return &body, writer.FormDataContentType()
}

func TestHealthzEndpoint(t *testing.T) {
	handler := newTestRouter(&fakeMatcher{}, &fakeLedger{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("request id header missing")
	}
}

func TestUploadCertificateSuccess(t *testing.T) {
	handler := newTestRouter(&fakeMatcher{}, &fakeLedger{})

	body, contentType := multipartBody(t, nil, "file", "quota.pdf", []byte("%PDF-1.4 stub"))
	req := httptest.NewRequest(http.MethodPost, "/v1/certificates", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	var resp map[string]any
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["id"] != "cert-1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestUploadCertificateMissingFile(t *testing.T) {
	handler := newTestRouter(&fakeMatcher{}, &fakeLedger{})

	req := httptest.NewRequest(http.MethodPost, "/v1/certificates", strings.NewReader("plain"))
	req.Header.Set("Content-Type", "text/plain")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestGetCertificateNotFoundMapsTo404(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	notFound := domain.WrapError(domain.ErrCertificateNotFound, "get certificate", errors.New("missing"))
	handler := NewRouter(fakeIngestor{}, fakeReader{err: notFound}, &fakeMatcher{}, &fakeLedger{}, logger, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/certificates/missing", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestMatchInvoicePassesOptions(t *testing.T) {
	matcher := &fakeMatcher{}
	handler := newTestRouter(matcher, &fakeLedger{})

	fields := map[string]string{
		"certificate_ids": "cert-1, cert-2",
		"mode":            "exact",
		"threshold":       "0.92",
	}
	body, contentType := multipartBody(t, fields, "file", "invoice.xlsx", []byte("PK\x03\x04stub"))
	req := httptest.NewRequest(http.MethodPost, "/v1/match", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if matcher.gotMode != domain.MatchModeExact {
		t.Fatalf("mode = %q", matcher.gotMode)
	}
	if matcher.gotThreshold != 0.92 {
		t.Fatalf("threshold = %v", matcher.gotThreshold)
	}
	if len(matcher.gotIDs) != 2 || matcher.gotIDs[1] != "cert-2" {
		t.Fatalf("certificate ids = %v", matcher.gotIDs)
	}
}

func TestMatchInvoiceRejectsBadThreshold(t *testing.T) {
	handler := newTestRouter(&fakeMatcher{}, &fakeLedger{})

	body, contentType := multipartBody(t, map[string]string{"threshold": "1.5"}, "file", "invoice.csv", []byte("a,b"))
	req := httptest.NewRequest(http.MethodPost, "/v1/match", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestPreviewBatch(t *testing.T) {
	handler := newTestRouter(&fakeMatcher{}, &fakeLedger{})

	payload := `{"deductions":[{"certificate_item_id":"item-1","port":"PORT_KLANG","quantity":"100"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/ledger/preview", strings.NewReader(payload))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var preview domain.BatchPreview
	if err := json.NewDecoder(res.Body).Decode(&preview); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if preview.TotalItems != 1 {
		t.Fatalf("total items = %d", preview.TotalItems)
	}
}

func TestPreviewBatchRequiresDeductions(t *testing.T) {
	handler := newTestRouter(&fakeMatcher{}, &fakeLedger{})

	req := httptest.NewRequest(http.MethodPost, "/v1/ledger/preview", strings.NewReader(`{"deductions":[]}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestCommitBatchOverdrawMapsTo409(t *testing.T) {
	overdrawn := domain.WrapError(domain.ErrOverdrawn, "commit batch", errors.New("item-1 short by 50"))
	handler := newTestRouter(&fakeMatcher{}, &fakeLedger{commitErr: overdrawn})

	payload := `{"deductions":[{"certificate_item_id":"item-1","port":"KLIA","quantity":"500"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/ledger/commit", strings.NewReader(payload))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", res.Code)
	}
}

func TestCommitBatchSuccess(t *testing.T) {
	handler := newTestRouter(&fakeMatcher{}, &fakeLedger{})

	payload := `{"deductions":[{"certificate_item_id":"item-1","port":"PORT_KLANG","quantity":"250.5"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/ledger/commit", strings.NewReader(payload))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	var resp struct {
		Entries []domain.LedgerEntry `json:"entries"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Entries) != 1 {
		t.Fatalf("got %d entries", len(resp.Entries))
	}
	if !resp.Entries[0].QuantityImported.Equal(decimal.RequireFromString("250.5")) {
		t.Fatalf("quantity = %s", resp.Entries[0].QuantityImported)
	}
}

func TestListEntriesRequiresItemID(t *testing.T) {
	handler := newTestRouter(&fakeMatcher{}, &fakeLedger{})

	req := httptest.NewRequest(http.MethodGet, "/v1/ledger/entries", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestDeleteEntryNotFoundMapsTo404(t *testing.T) {
	handler := newTestRouter(&fakeMatcher{}, &fakeLedger{})

	req := httptest.NewRequest(http.MethodDelete, "/v1/ledger/entries/ghost", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestDeleteEntrySuccess(t *testing.T) {
	ledger := &fakeLedger{}
	handler := newTestRouter(&fakeMatcher{}, ledger)

	req := httptest.NewRequest(http.MethodDelete, "/v1/ledger/entries/entry-1", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if len(ledger.deleted) != 1 || ledger.deleted[0] != "entry-1" {
		t.Fatalf("deleted = %v", ledger.deleted)
	}
}
