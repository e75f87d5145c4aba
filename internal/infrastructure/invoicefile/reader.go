package invoicefile

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"

	"github.com/shakinm/xlsReader/xls"
	"github.com/xuri/excelize/v2"
)

var (
	zipMagic = []byte{'P', 'K', 0x03, 0x04}
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// Reader decodes uploaded invoice files into raw rows. Suppliers send
// whatever their ERP exports: modern XLSX, legacy XLS, or CSV. The format is
// sniffed from magic bytes, never from the filename.
type Reader struct{}

func New() *Reader { return &Reader{} }

func (r *Reader) Rows(data []byte) ([][]string, error) {
	switch {
	case len(data) == 0:
		return nil, errors.New("empty file")
	case bytes.HasPrefix(data, zipMagic):
		return readXLSX(data)
	case bytes.HasPrefix(data, oleMagic):
		return readXLS(data)
	default:
		return readCSV(data)
	}
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, errors.New("xlsx has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read xlsx rows: %w", err)
	}
	return rows, nil
}

// readXLS goes through a temp file: the legacy reader only opens paths.
func readXLS(data []byte) ([][]string, error) {
	tmp, err := os.CreateTemp("", "invoice-*.xls")
	if err != nil {
		return nil, fmt.Errorf("temp file for xls: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp xls: %w", err)
	}
	tmp.Close()

	book, err := xls.OpenFile(tmp.Name())
	if err != nil {
		return nil, fmt.Errorf("open xls: %w", err)
	}
	sheet, err := book.GetSheet(0)
	if err != nil || sheet == nil {
		return nil, errors.New("xls has no sheets")
	}

	var rows [][]string
	for _, xlsRow := range sheet.GetRows() {
		var row []string
		for _, col := range xlsRow.GetCols() {
			row = append(row, col.GetString())
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func readCSV(data []byte) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return rows, nil
}
