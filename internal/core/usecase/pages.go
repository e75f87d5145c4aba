package usecase

import (
	"strings"

	"github.com/afiqzahari/mida-quota/internal/core/domain"
)

type pageText struct {
	number int
	text   string
}

// segmentPages isolates each page's text block from the provider's span
// offsets, preserving page order. Repeated header/footer boilerplate stays
// confined to its page instead of being re-parsed as duplicate items. A
// page with no resolvable spans yields an empty block.
func segmentPages(doc *domain.RawDocument) []pageText {
	if len(doc.Pages) == 0 {
		return []pageText{{number: 1, text: doc.Content}}
	}

	out := make([]pageText, 0, len(doc.Pages))
	any := false
	for i, page := range doc.Pages {
		number := page.Number
		if number == 0 {
			number = i + 1
		}

		var sb strings.Builder
		for _, span := range page.Spans {
			sb.WriteString(doc.Text(span))
		}
		text := sb.String()
		if text != "" {
			any = true
		}
		out = append(out, pageText{number: number, text: text})
	}

	if !any {
		return []pageText{{number: 1, text: doc.Content}}
	}
	return out
}
