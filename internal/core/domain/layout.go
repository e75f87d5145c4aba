package domain

// Span addresses a slice of the document's full OCR text.
type Span struct {
	Offset int `json:"offset"`
	Length int `json:"length"`
}

type Page struct {
	Number int    `json:"number"`
	Spans  []Span `json:"spans"`
}

type TableCell struct {
	Row     int    `json:"row"`
	Col     int    `json:"col"`
	Content string `json:"content"`
}

type DetectedTable struct {
	PageNumber int         `json:"page_number"`
	Cells      []TableCell `json:"cells"`
}

// RawDocument is the layout provider's view of one scanned certificate.
// It lives only for the duration of an extraction run.
type RawDocument struct {
	Content          string          `json:"content"`
	Pages            []Page          `json:"pages"`
	Tables           []DetectedTable `json:"tables"`
	HandwrittenSpans []Span          `json:"handwritten_spans"`
}

// Text resolves a span against the full document content, clamping
// out-of-range spans to empty rather than panicking on provider quirks.
func (d *RawDocument) Text(s Span) string {
	if s.Offset < 0 || s.Length <= 0 || s.Offset+s.Length > len(d.Content) {
		return ""
	}
	return d.Content[s.Offset : s.Offset+s.Length]
}
