package httpadapter

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/afiqzahari/mida-quota/internal/core/domain"
	"github.com/afiqzahari/mida-quota/internal/core/ports"
	"github.com/afiqzahari/mida-quota/internal/observability/metrics"
)

const serviceName = "api"

type Router struct {
	ingestor ports.CertificateIngestor
	reader   ports.CertificateReader
	matcher  ports.InvoiceMatcher
	ledger   ports.QuotaLedger
	logger   *slog.Logger
	metrics  *metrics.HTTPServerMetrics
}

func NewRouter(
	ingestor ports.CertificateIngestor,
	reader ports.CertificateReader,
	matcher ports.InvoiceMatcher,
	ledger ports.QuotaLedger,
	logger *slog.Logger,
	m *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		ingestor: ingestor,
		reader:   reader,
		matcher:  matcher,
		ledger:   ledger,
		logger:   logger,
		metrics:  m,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/certificates", rt.uploadCertificate)
	mux.HandleFunc("/v1/certificates/", rt.getCertificateByID)
	mux.HandleFunc("/v1/match", rt.matchInvoice)
	mux.HandleFunc("/v1/ledger/preview", rt.previewBatch)
	mux.HandleFunc("/v1/ledger/commit", rt.commitBatch)
	mux.HandleFunc("/v1/ledger/entries", rt.listEntries)
	mux.HandleFunc("/v1/ledger/entries/", rt.deleteEntry)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(rt.logger, handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadCertificate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	cert, err := rt.ingestor.Upload(r.Context(), fileHeader.Filename, file)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, cert)
}

func (rt *Router) getCertificateByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/certificates/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "certificate id is required"})
		return
	}

	cert, err := rt.reader.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cert)
}

func (rt *Router) matchInvoice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	fileData, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable file"})
		return
	}

	certificateIDs := splitIDs(r.FormValue("certificate_ids"))
	mode := domain.MatchMode(r.FormValue("mode"))

	var threshold float64
	if raw := strings.TrimSpace(r.FormValue("threshold")); raw != "" {
		threshold, err = strconv.ParseFloat(raw, 64)
		if err != nil || threshold <= 0 || threshold > 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "threshold must be a number in (0, 1]"})
			return
		}
	}

	report, err := rt.matcher.MatchFile(r.Context(), fileData, certificateIDs, mode, threshold)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordMatchRequest(serviceName, string(mode), report.UnmatchedCount)
	}
	writeJSON(w, http.StatusOK, report)
}

func (rt *Router) previewBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	batch, ok := decodeBatch(w, r)
	if !ok {
		return
	}

	preview, err := rt.ledger.Preview(r.Context(), batch)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordLedgerPreview(serviceName)
	}
	writeJSON(w, http.StatusOK, preview)
}

func (rt *Router) commitBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	batch, ok := decodeBatch(w, r)
	if !ok {
		return
	}

	entries, err := rt.ledger.Commit(r.Context(), batch)
	if rt.metrics != nil {
		rt.metrics.RecordLedgerCommit(serviceName, len(entries), err)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"entries": entries})
}

func (rt *Router) listEntries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	itemID := strings.TrimSpace(r.URL.Query().Get("item_id"))
	port := domain.Port(strings.TrimSpace(r.URL.Query().Get("port")))

	entries, err := rt.ledger.Entries(r.Context(), itemID, port)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (rt *Router) deleteEntry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/ledger/entries/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "entry id is required"})
		return
	}

	if err := rt.ledger.DeleteEntry(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func decodeBatch(w http.ResponseWriter, r *http.Request) ([]domain.Deduction, bool) {
	var req struct {
		Deductions []domain.Deduction `json:"deductions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return nil, false
	}
	if len(req.Deductions) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "deductions are required"})
		return nil, false
	}
	return req.Deductions, true
}

func splitIDs(raw string) []string {
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ids = append(ids, part)
		}
	}
	return ids
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
