package usecase

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/afiqzahari/mida-quota/internal/config"
	"github.com/afiqzahari/mida-quota/internal/core/domain"
)

var hsCodeRe = regexp.MustCompile(`\d{4}\.\d{2}\.\d{4}`)

// colMap records which column carries which logical field. -1 means the
// table does not have that column.
type colMap struct {
	lineNo   int
	hsCode   int
	itemName int
	qty      int
	uom      int
	stations map[domain.Port]int
}

func newColMap() colMap {
	return colMap{lineNo: -1, hsCode: -1, itemName: -1, qty: -1, uom: -1, stations: map[domain.Port]int{}}
}

// tableStrategy extracts items from the layout provider's detected tables.
// It is the primary strategy: the TE01 quota table is a real table on the
// form and the provider recovers it on most scans.
type tableStrategy struct {
	vocab config.Vocabulary
}

func (s *tableStrategy) mode() domain.ParsingMode { return domain.ParsingModeTable }

func (s *tableStrategy) attempt(doc *domain.RawDocument) strategyOutcome {
	out := strategyOutcome{}

	matrices := make([][][]string, len(doc.Tables))
	for i, t := range doc.Tables {
		matrices[i] = buildMatrix(t)
	}

	// First pass: locate headers. The best header's column map doubles as
	// the fallback map for continuation tables, which carry data rows but
	// no header of their own after a page break.
	type tableInfo struct {
		headerRow int
		cm        colMap
		score     float64
		hasHeader bool
	}
	infos := make([]tableInfo, len(doc.Tables))
	var fallback colMap
	fallbackScore := -1.0
	for i, matrix := range matrices {
		row, cm, score, ok := s.findHeader(matrix)
		infos[i] = tableInfo{headerRow: row, cm: cm, score: score, hasHeader: ok}
		if ok && score > fallbackScore {
			fallback = cm
			fallbackScore = score
		}
	}

	for i, matrix := range matrices {
		info := infos[i]
		stat := domain.TableStat{
			Index:      i,
			PageNumber: doc.Tables[i].PageNumber,
			Score:      info.score,
			HasHeader:  info.hasHeader,
		}

		var items []rawItem
		switch {
		case info.hasHeader:
			cm, dataStart := s.resolveStations(matrix, info.headerRow, info.cm)
			items = s.parseRows(matrix, dataStart, cm, &out)
			out.tablesSelected++
		case fallbackScore >= 0 && looksLikeContinuation(matrix):
			items = s.parseRows(matrix, 0, fallback, &out)
			out.tablesSelected++
		case fallbackScore < 0 && containsHSCode(matrix):
			// No table on the scan recovered a header row. A table that
			// still carries HS codes is the quota table with its header
			// lost, so read it with the form's fixed column order.
			items = s.parseRows(matrix, 0, inferredColMap(), &out)
			out.tablesSelected++
		}

		stat.ItemsFound = len(items)
		out.tableStats = append(out.tableStats, stat)
		out.items = append(out.items, items...)
	}

	return out
}

func buildMatrix(t domain.DetectedTable) [][]string {
	rows, cols := 0, 0
	for _, c := range t.Cells {
		if c.Row+1 > rows {
			rows = c.Row + 1
		}
		if c.Col+1 > cols {
			cols = c.Col + 1
		}
	}
	matrix := make([][]string, rows)
	for i := range matrix {
		matrix[i] = make([]string, cols)
	}
	for _, c := range t.Cells {
		if c.Row >= 0 && c.Col >= 0 {
			matrix[c.Row][c.Col] = stripSelectionMarkers(c.Content)
		}
	}
	return matrix
}

const headerScanRows = 8

// findHeader scores the first rows of the table against the expected quota
// column names and returns the best row meeting the vocabulary threshold.
func (s *tableStrategy) findHeader(matrix [][]string) (int, colMap, float64, bool) {
	bestRow, bestScore := -1, 0.0
	bestMap := newColMap()

	limit := len(matrix)
	if limit > headerScanRows {
		limit = headerScanRows
	}
	for r := 0; r < limit; r++ {
		score, cm := scoreHeaderRow(matrix[r])
		if score > bestScore {
			bestRow, bestScore, bestMap = r, score, cm
		}
	}
	if bestRow < 0 || bestScore < s.vocab.TableScoreThreshold {
		return -1, newColMap(), bestScore, false
	}
	return bestRow, bestMap, bestScore, true
}

// scoreHeaderRow weighs each cell against the expected column names. The
// three signature columns of the quota table score 3 each so that a single
// one surviving a degraded scan still clears the threshold; secondary
// columns score 1.
func scoreHeaderRow(row []string) (float64, colMap) {
	cm := newColMap()
	score := 0.0
	for col, cell := range row {
		text := strings.ToUpper(strings.TrimSpace(cell))
		if text == "" {
			continue
		}
		switch {
		case strings.Contains(text, "KOD HS") || strings.Contains(text, "HS CODE"):
			if cm.hsCode < 0 {
				cm.hsCode = col
				score += 3
			}
		case strings.Contains(text, "KUANTITI") || strings.Contains(text, "QUANTITY"):
			// Prefer the approved-quantity column over per-station
			// quantity columns when both headers use the word.
			approved := strings.Contains(text, "DILULUSKAN") || strings.Contains(text, "APPROVED")
			switch {
			case cm.qty < 0:
				cm.qty = col
				if approved {
					score += 3
				} else {
					score++
				}
			case approved:
				cm.qty = col
			}
		case strings.Contains(text, "NAMA DAGANGAN") || strings.Contains(text, "NAME OF GOOD"):
			if cm.itemName < 0 {
				cm.itemName = col
				score += 3
			}
		case strings.Contains(text, "DESCRIPTION"):
			if cm.itemName < 0 {
				cm.itemName = col
				score++
			}
		case text == "BIL" || text == "BIL." || text == "NO" || text == "NO.":
			if cm.lineNo < 0 {
				cm.lineNo = col
				score++
			}
		case strings.Contains(text, "UNIT") || strings.Contains(text, "UOM"):
			if cm.uom < 0 {
				cm.uom = col
				score++
			}
		}
	}
	return score, cm
}

// resolveStations scans the 1-2 rows below the header for the three station
// names and returns the column map plus the first data row. Stations found
// in the header row itself are also honored.
func (s *tableStrategy) resolveStations(matrix [][]string, headerRow int, cm colMap) (colMap, int) {
	for col, cell := range matrix[headerRow] {
		if port, ok := stationForCell(cell); ok {
			cm.stations[port] = col
		}
	}

	dataStart := headerRow + 1
	for r := headerRow + 1; r <= headerRow+2 && r < len(matrix); r++ {
		found := false
		for col, cell := range matrix[r] {
			if port, ok := stationForCell(cell); ok {
				cm.stations[port] = col
				found = true
			}
		}
		if !found {
			break
		}
		dataStart = r + 1
	}
	return cm, dataStart
}

func stationForCell(cell string) (domain.Port, bool) {
	text := strings.ToUpper(cell)
	switch {
	case strings.Contains(text, "KLANG"):
		return domain.PortKlang, true
	case strings.Contains(text, "KLIA"):
		return domain.PortKLIA, true
	case strings.Contains(text, "KAYU"):
		return domain.PortBukitKayu, true
	}
	return "", false
}

// inferredColMap is the TE01 form's fixed column order, used when the
// header row was lost on every table of the scan: line number, HS code,
// goods name, approved quantity.
func inferredColMap() colMap {
	cm := newColMap()
	cm.lineNo, cm.hsCode, cm.itemName, cm.qty = 0, 1, 2, 3
	return cm
}

func containsHSCode(matrix [][]string) bool {
	for _, row := range matrix {
		for _, cell := range row {
			if hsCodeRe.MatchString(cell) {
				return true
			}
		}
	}
	return false
}

// looksLikeContinuation reports whether a headerless table carries quota
// data rows: at least one row opening with a line number and containing an
// HS code somewhere.
func looksLikeContinuation(matrix [][]string) bool {
	for _, row := range matrix {
		if len(row) == 0 {
			continue
		}
		if _, ok := parseLineNo(row[0]); !ok {
			continue
		}
		for _, cell := range row {
			if hsCodeRe.MatchString(cell) {
				return true
			}
		}
	}
	return false
}

func (s *tableStrategy) isDeclarationRow(row []string) bool {
	joined := strings.ToUpper(strings.Join(row, " "))
	for _, kw := range s.vocab.DeclarationKeywords {
		if strings.Contains(joined, strings.ToUpper(kw)) {
			return true
		}
	}
	return false
}

func cellAt(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// parseRows walks the data rows of one table. A row opening with a line
// number starts a new item; a row without one but with data in quota
// columns continues the previous item.
func (s *tableStrategy) parseRows(matrix [][]string, dataStart int, cm colMap, out *strategyOutcome) []rawItem {
	var items []rawItem

	lineCol := cm.lineNo
	if lineCol < 0 {
		lineCol = 0
	}

	for r := dataStart; r < len(matrix); r++ {
		row := matrix[r]
		if rowEmpty(row) || s.isDeclarationRow(row) {
			continue
		}

		lineCell := cellAt(row, lineCol)
		if _, isNew := parseLineNo(lineCell); isNew {
			items = append(items, s.parseItemRow(row, lineCell, cm, out))
			continue
		}
		if len(items) == 0 {
			continue
		}
		cont := s.parseItemRow(row, "", cm, out)
		if rawItemEmpty(cont) {
			continue
		}
		mergeInto(&items[len(items)-1], cont)
	}
	return items
}

func (s *tableStrategy) parseItemRow(row []string, lineNo string, cm colMap, out *strategyOutcome) rawItem {
	item := rawItem{lineNo: strings.TrimSpace(lineNo)}

	if hs := cellAt(row, cm.hsCode); hs != "" {
		if m := hsCodeRe.FindString(hs); m != "" {
			item.hsCode = m
		} else {
			item.hsCode = hs
		}
	}
	item.itemName = cellAt(row, cm.itemName)

	if qtyText := cellAt(row, cm.qty); qtyText != "" {
		qty, ok, ambiguous, uom := s.parseQuantityCell(qtyText, cellAt(row, cm.uom))
		switch {
		case ambiguous:
			out.qtyAmbiguous++
			out.addFailSample(qtyText)
			item.warnings = append(item.warnings, "ambiguous amended quantity left empty: "+qtyText)
		case !ok:
			out.qtyParseFailures++
			out.addFailSample(qtyText)
		default:
			item.qty, item.qtySet = qty, true
		}
		if uom != "" {
			item.uom = uom
		}
	}
	if item.uom == "" {
		item.uom = normalizeUOM(s.vocab, cellAt(row, cm.uom))
	}

	for _, port := range domain.AllPorts() {
		col, mapped := cm.stations[port]
		if !mapped {
			continue
		}
		text := cellAt(row, col)
		if text == "" {
			continue
		}
		v, ok, ambiguous := extractAmendedNumber(text)
		if ambiguous {
			out.qtyAmbiguous++
			out.addFailSample(text)
			item.warnings = append(item.warnings, "ambiguous station value for "+string(port)+" left empty: "+text)
			continue
		}
		if ok {
			val := v
			item.split.Set(port, &val)
		}
	}
	return item
}

// parseQuantityCell reads an approved-quantity cell that may carry a UOM
// suffix and a handwritten amendment over a stale OCR reading.
func (s *tableStrategy) parseQuantityCell(qtyText, uomText string) (decimal.Decimal, bool, bool, string) {
	uom := normalizeUOM(s.vocab, uomText)
	if uom == "" {
		if m := uomTokenRe.FindString(qtyText); m != "" {
			uom = normalizeUOM(s.vocab, m)
			qtyText = strings.TrimSpace(uomTokenRe.ReplaceAllString(qtyText, ""))
		}
	}
	v, ok, ambiguous := extractAmendedNumber(qtyText)
	return v, ok, ambiguous, uom
}

func rowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func rawItemEmpty(it rawItem) bool {
	if it.hsCode != "" || it.itemName != "" || it.qtySet || it.uom != "" {
		return false
	}
	for _, p := range domain.AllPorts() {
		if it.split.Get(p) != nil {
			return false
		}
	}
	return true
}
