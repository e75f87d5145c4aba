package usecase

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/afiqzahari/mida-quota/internal/config"
	"github.com/afiqzahari/mida-quota/internal/core/domain"
)

var (
	headingLineRe = regexp.MustCompile(`^\d{1,2}\.\s*$`)
	lineNoTokenRe = regexp.MustCompile(`^(\d{1,3})\.?\s+(.*)$`)
)

// textStrategy is the fallback parser for scans where the provider found no
// usable table. It anchors on HS code occurrences and reads the surrounding
// lines of one page at a time; pages are never parsed together because
// repeated form headers would merge unrelated lines across the break.
type textStrategy struct {
	vocab config.Vocabulary
}

func (s *textStrategy) mode() domain.ParsingMode { return domain.ParsingModeTextFallback }

func (s *textStrategy) attempt(doc *domain.RawDocument) strategyOutcome {
	out := strategyOutcome{}
	for _, page := range segmentPages(doc) {
		items := s.parsePage(page.text, &out)
		out.pageItemCounts = append(out.pageItemCounts, domain.PageItemCount{
			PageNumber: page.number,
			Items:      len(items),
		})
		out.items = append(out.items, items...)
	}
	return out
}

func (s *textStrategy) parsePage(text string, out *strategyOutcome) []rawItem {
	rawLines := strings.Split(text, "\n")
	lines := make([]string, len(rawLines))
	for i, l := range rawLines {
		lines[i] = stripSelectionMarkers(l)
	}

	var anchors []int
	for i, l := range lines {
		if hsCodeRe.MatchString(l) {
			anchors = append(anchors, i)
		}
	}

	var items []rawItem
	for n, anchor := range anchors {
		end := len(lines)
		if n+1 < len(anchors) {
			end = anchors[n+1]
		}
		items = append(items, s.parseAnchor(lines, anchor, end, out))
	}
	return items
}

// parseAnchor builds one item from the HS line at anchor and the lines up
// to the next anchor. The line number and item name usually sit on the HS
// line itself or just above it; quantity, UOM and up to three station
// values follow below.
func (s *textStrategy) parseAnchor(lines []string, anchor, end int, out *strategyOutcome) rawItem {
	item := rawItem{hsCode: hsCodeRe.FindString(lines[anchor])}

	before, after := splitAround(lines[anchor], item.hsCode)
	if m := lineNoTokenRe.FindStringSubmatch(before); m != nil {
		item.lineNo = m[1]
		item.itemName = strings.TrimSpace(m[2])
	} else if strings.TrimSpace(before) != "" && hasLetterRe.MatchString(before) {
		item.itemName = strings.TrimSpace(before)
	}
	if item.itemName == "" && hasLetterRe.MatchString(after) && !uomTokenRe.MatchString(after) {
		item.itemName = strings.TrimSpace(after)
	}

	// Backward scan: the form often puts "9." and the goods name on their
	// own lines above the HS code.
	for back := anchor - 1; back >= 0 && back >= anchor-3; back-- {
		line := strings.TrimSpace(lines[back])
		if line == "" {
			continue
		}
		if item.lineNo == "" {
			if m := lineNoTokenRe.FindStringSubmatch(line); m != nil {
				item.lineNo = m[1]
				if item.itemName == "" && strings.TrimSpace(m[2]) != "" {
					item.itemName = strings.TrimSpace(m[2])
				}
				break
			}
			if headingLineRe.MatchString(line) {
				item.lineNo = strings.TrimSuffix(line, ".")
				break
			}
		}
		if item.itemName == "" && hasLetterRe.MatchString(line) && !s.isDeclarationLine(line) {
			item.itemName = line
			continue
		}
		break
	}

	s.scanQuantities(lines, anchor, end, &item, out)
	return item
}

// scanQuantities walks the lines after the anchor for the approved
// quantity, then up to three station values. The form prints the values
// without station labels, so they are collected first and mapped by count:
// one value belongs to Port Klang, two to Port Klang and Bukit Kayu Hitam,
// and only a full block of three includes KLIA. A bare small integer is a
// section heading, not a station value, and ends the scan.
func (s *textStrategy) scanQuantities(lines []string, anchor, end int, item *rawItem, out *strategyOutcome) {
	type stationValue struct {
		amount *decimal.Decimal
		source string
	}
	var stations []stationValue
	defer func() {
		var order []domain.Port
		switch len(stations) {
		case 1:
			order = []domain.Port{domain.PortKlang}
		case 2:
			order = []domain.Port{domain.PortKlang, domain.PortBukitKayu}
		default:
			order = domain.AllPorts()
		}
		for i, sv := range stations {
			if sv.amount == nil {
				item.warnings = append(item.warnings,
					"ambiguous station value for "+string(order[i])+" left empty: "+sv.source)
				continue
			}
			item.split.Set(order[i], sv.amount)
		}
	}()

	maxStations := len(domain.AllPorts())
	smallIntCeiling := decimal.NewFromInt(100)

	for i := anchor; i < end; i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" || s.isDeclarationLine(line) {
			if s.isDeclarationLine(line) {
				return
			}
			continue
		}
		if i > anchor && headingLineRe.MatchString(line) {
			return
		}

		text := line
		if i == anchor {
			_, text = splitAround(line, item.hsCode)
		}
		if !numericTokenRe.MatchString(text) {
			if item.itemName == "" && hasLetterRe.MatchString(text) {
				item.itemName = strings.TrimSpace(text)
			}
			continue
		}

		hasUOM := uomTokenRe.MatchString(text)
		value, ok, ambiguous := s.readAmount(text, item, out)

		if !item.qtySet {
			// A number with a UOM suffix is the approved quantity even
			// when an earlier bare number was a plausible read.
			if ambiguous {
				return
			}
			if ok {
				item.qty, item.qtySet = value, true
				if hasUOM {
					if m := uomTokenRe.FindString(text); m != "" {
						item.uom = normalizeUOM(s.vocab, m)
					}
				}
			}
			continue
		}

		if len(stations) >= maxStations {
			return
		}
		if ambiguous || !ok {
			if ambiguous {
				stations = append(stations, stationValue{source: text})
			}
			continue
		}
		if !strings.Contains(text, ",") && !strings.Contains(text, ".") &&
			value.LessThanOrEqual(smallIntCeiling) {
			// Bare small integer after the quantity block: a numbered
			// heading or list marker, not a station allocation.
			return
		}
		v := value
		stations = append(stations, stationValue{amount: &v})
	}
}

func (s *textStrategy) readAmount(text string, item *rawItem, out *strategyOutcome) (decimal.Decimal, bool, bool) {
	cleaned := uomTokenRe.ReplaceAllString(text, " ")
	v, ok, ambiguous := extractAmendedNumber(cleaned)
	if ambiguous {
		out.qtyAmbiguous++
		out.addFailSample(text)
		item.warnings = append(item.warnings, "ambiguous amended value left empty: "+text)
	} else if !ok && numericTokenRe.MatchString(cleaned) {
		out.qtyParseFailures++
		out.addFailSample(text)
	}
	return v, ok, ambiguous
}

func (s *textStrategy) isDeclarationLine(line string) bool {
	upper := strings.ToUpper(line)
	for _, kw := range s.vocab.DeclarationKeywords {
		if strings.Contains(upper, strings.ToUpper(kw)) {
			return true
		}
	}
	return false
}

func splitAround(line, needle string) (before, after string) {
	if needle == "" {
		return line, ""
	}
	idx := strings.Index(line, needle)
	if idx < 0 {
		return line, ""
	}
	return line[:idx], line[idx+len(needle):]
}
