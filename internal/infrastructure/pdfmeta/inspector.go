// Package pdfmeta inspects uploaded PDF files before they are queued for
// document analysis, so obviously broken or oversized uploads fail fast.
package pdfmeta

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"
)

type Inspector struct {
	maxPages int
}

// NewInspector builds an inspector. maxPages of zero or less disables the
// page ceiling.
func NewInspector(maxPages int) *Inspector {
	return &Inspector{maxPages: maxPages}
}

func (i *Inspector) PageCount(data []byte) (int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pdf: %w", err)
	}
	pages := reader.NumPage()
	if pages < 1 {
		return 0, errors.New("pdf has no pages")
	}
	if i.maxPages > 0 && pages > i.maxPages {
		return pages, fmt.Errorf("pdf has %d pages, limit is %d", pages, i.maxPages)
	}
	return pages, nil
}
