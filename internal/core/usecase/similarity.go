package usecase

import (
	"regexp"
	"strings"
)

var (
	nonWordRe    = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	nonDigitRe   = regexp.MustCompile(`\D`)
)

// normalizeText prepares free text for comparison: lowercase, punctuation
// replaced by spaces, whitespace collapsed.
func normalizeText(s string) string {
	s = strings.ToLower(s)
	s = nonWordRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// normalizeHSCode reduces an HS code to digits only, so "1234.56.7890",
// "1234 56 7890" and "1234-56-7890" compare equal.
func normalizeHSCode(s string) string {
	return nonDigitRe.ReplaceAllString(s, "")
}

// textSimilarity scores two normalized strings in [0,1], blending token
// overlap (handles reordered words) with a sequence ratio (handles partial
// matches).
func textSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	return 0.4*tokenJaccard(a, b) + 0.6*sequenceRatio(a, b)
}

func tokenJaccard(a, b string) float64 {
	setA := map[string]struct{}{}
	for _, t := range strings.Fields(a) {
		setA[t] = struct{}{}
	}
	setB := map[string]struct{}{}
	for _, t := range strings.Fields(b) {
		setB[t] = struct{}{}
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

// sequenceRatio is 2*M/(len(a)+len(b)) where M counts characters covered by
// recursively taking the longest common block, the classic difflib measure.
func sequenceRatio(a, b string) float64 {
	la, lb := len(a), len(b)
	if la == 0 && lb == 0 {
		return 1
	}
	if la == 0 || lb == 0 {
		return 0
	}
	m := matchingChars(a, b)
	return 2 * float64(m) / float64(la+lb)
}

func matchingChars(a, b string) int {
	ai, bi, size := longestCommonBlock(a, b)
	if size == 0 {
		return 0
	}
	total := size
	total += matchingChars(a[:ai], b[:bi])
	total += matchingChars(a[ai+size:], b[bi+size:])
	return total
}

func longestCommonBlock(a, b string) (ai, bi, size int) {
	// row[j] holds the length of the common suffix ending at a[i-1], b[j-1].
	row := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		prev := 0
		for j := 1; j <= len(b); j++ {
			cur := row[j]
			if a[i-1] == b[j-1] {
				row[j] = prev + 1
				if row[j] > size {
					size = row[j]
					ai = i - size
					bi = j - size
				}
			} else {
				row[j] = 0
			}
			prev = cur
		}
	}
	return ai, bi, size
}

// levenshtein is used only for snapping noisy company names onto the
// configured canonical list.
func levenshtein(a, b string) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min3(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
