package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/afiqzahari/mida-quota/internal/core/domain"
)

type CertificateRepository struct {
	db *sql.DB
}

func NewCertificateRepository(db *sql.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

func (r *CertificateRepository) Create(ctx context.Context, cert *domain.Certificate) error {
	warnings, diagnostics, err := marshalCertJSON(cert)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO certificates (
	id, certificate_number, company_name, model_number, exemption_start, exemption_end,
	filename, storage_path, page_count, warnings, diagnostics, status, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`,
		cert.ID, cert.CertificateNumber, cert.CompanyName, cert.ModelNumber,
		cert.ExemptionStart, cert.ExemptionEnd, cert.Filename, cert.StoragePath,
		cert.PageCount, warnings, diagnostics, string(cert.Status), cert.Error,
		cert.CreatedAt, cert.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert certificate: %w", err)
	}
	return nil
}

func (r *CertificateRepository) GetByID(ctx context.Context, id string) (*domain.Certificate, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, certificate_number, company_name, model_number, exemption_start, exemption_end,
	filename, storage_path, page_count, warnings, diagnostics, status, error_message, created_at, updated_at
FROM certificates
WHERE id = $1
`, id)

	cert, err := scanCertificate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrCertificateNotFound, "get certificate", fmt.Errorf("id %s", id))
		}
		return nil, err
	}

	items, err := r.loadItems(ctx, id)
	if err != nil {
		return nil, err
	}
	cert.Items = items
	return cert, nil
}

func (r *CertificateRepository) UpdateStatus(ctx context.Context, id string, status domain.CertificateStatus, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE certificates
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update certificate status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.WrapError(domain.ErrCertificateNotFound, "update certificate status", fmt.Errorf("id %s", id))
	}
	return nil
}

// SaveExtraction replaces the certificate's extracted fields and items in one
// transaction. Item rows are rewritten wholesale; a re-run of extraction must
// not leave stale items behind.
func (r *CertificateRepository) SaveExtraction(ctx context.Context, cert *domain.Certificate) error {
	warnings, diagnostics, err := marshalCertJSON(cert)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin extraction tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `
UPDATE certificates
SET certificate_number = $2, company_name = $3, model_number = $4,
	exemption_start = $5, exemption_end = $6, page_count = $7,
	warnings = $8, diagnostics = $9, updated_at = $10
WHERE id = $1
`, cert.ID, cert.CertificateNumber, cert.CompanyName, cert.ModelNumber,
		cert.ExemptionStart, cert.ExemptionEnd, cert.PageCount,
		warnings, diagnostics, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update certificate extraction: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.WrapError(domain.ErrCertificateNotFound, "save extraction", fmt.Errorf("id %s", cert.ID))
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM certificate_items WHERE certificate_id = $1`, cert.ID); err != nil {
		return fmt.Errorf("clear certificate items: %w", err)
	}

	for i := range cert.Items {
		item := &cert.Items[i]
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		split, err := json.Marshal(item.StationSplit)
		if err != nil {
			return fmt.Errorf("marshal station split: %w", err)
		}
		var threshold interface{}
		if item.WarningThreshold != nil {
			threshold = item.WarningThreshold.String()
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO certificate_items (
	id, certificate_id, line_no, hs_code, item_name, approved_quantity, uom, station_split, warning_threshold
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`, item.ID, cert.ID, item.LineNo, item.HSCode, item.ItemName,
			item.ApprovedQuantity.String(), item.UOM, split, threshold)
		if err != nil {
			return fmt.Errorf("insert certificate item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit extraction tx: %w", err)
	}
	return nil
}

// ListExpiring returns ready certificates whose exemption period ended before
// asOf. Dates are stored as ISO strings so the comparison is lexicographic.
func (r *CertificateRepository) ListExpiring(ctx context.Context, asOf time.Time) ([]domain.Certificate, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, certificate_number, company_name, model_number, exemption_start, exemption_end,
	filename, storage_path, page_count, warnings, diagnostics, status, error_message, created_at, updated_at
FROM certificates
WHERE status = $1 AND exemption_end <> '' AND exemption_end < $2
ORDER BY exemption_end
`, string(domain.CertificateReady), asOf.UTC().Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("list expiring certificates: %w", err)
	}
	defer rows.Close()

	var certs []domain.Certificate
	for rows.Next() {
		cert, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		certs = append(certs, *cert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expiring certificates: %w", err)
	}
	return certs, nil
}

func (r *CertificateRepository) loadItems(ctx context.Context, certificateID string) ([]domain.CertificateItem, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, line_no, hs_code, item_name, approved_quantity, uom, station_split, warning_threshold
FROM certificate_items
WHERE certificate_id = $1
ORDER BY line_no
`, certificateID)
	if err != nil {
		return nil, fmt.Errorf("query certificate items: %w", err)
	}
	defer rows.Close()

	var items []domain.CertificateItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate certificate items: %w", err)
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCertificate(row rowScanner) (*domain.Certificate, error) {
	var cert domain.Certificate
	var warningsRaw, diagnosticsRaw []byte
	var status string

	err := row.Scan(
		&cert.ID, &cert.CertificateNumber, &cert.CompanyName, &cert.ModelNumber,
		&cert.ExemptionStart, &cert.ExemptionEnd, &cert.Filename, &cert.StoragePath,
		&cert.PageCount, &warningsRaw, &diagnosticsRaw, &status, &cert.Error,
		&cert.CreatedAt, &cert.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan certificate: %w", err)
	}

	if err := json.Unmarshal(warningsRaw, &cert.Warnings); err != nil {
		return nil, fmt.Errorf("unmarshal warnings: %w", err)
	}
	if err := json.Unmarshal(diagnosticsRaw, &cert.Diagnostics); err != nil {
		return nil, fmt.Errorf("unmarshal diagnostics: %w", err)
	}
	cert.Status = domain.CertificateStatus(status)
	return &cert, nil
}

func scanItem(row rowScanner) (domain.CertificateItem, error) {
	var item domain.CertificateItem
	var qtyRaw string
	var splitRaw []byte
	var thresholdRaw sql.NullString

	err := row.Scan(&item.ID, &item.LineNo, &item.HSCode, &item.ItemName,
		&qtyRaw, &item.UOM, &splitRaw, &thresholdRaw)
	if err != nil {
		return item, fmt.Errorf("scan certificate item: %w", err)
	}

	item.ApprovedQuantity, err = decimal.NewFromString(qtyRaw)
	if err != nil {
		return item, fmt.Errorf("parse approved quantity %q: %w", qtyRaw, err)
	}
	if err := json.Unmarshal(splitRaw, &item.StationSplit); err != nil {
		return item, fmt.Errorf("unmarshal station split: %w", err)
	}
	if thresholdRaw.Valid {
		v, err := decimal.NewFromString(thresholdRaw.String)
		if err != nil {
			return item, fmt.Errorf("parse warning threshold %q: %w", thresholdRaw.String, err)
		}
		item.WarningThreshold = &v
	}
	return item, nil
}

func marshalCertJSON(cert *domain.Certificate) (warnings, diagnostics []byte, err error) {
	w := cert.Warnings
	if w == nil {
		w = []string{}
	}
	warnings, err = json.Marshal(w)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal warnings: %w", err)
	}
	diagnostics, err = json.Marshal(cert.Diagnostics)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal diagnostics: %w", err)
	}
	return warnings, diagnostics, nil
}
