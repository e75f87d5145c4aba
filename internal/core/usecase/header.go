package usecase

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/afiqzahari/mida-quota/internal/config"
)

var (
	certificateNumberRe = regexp.MustCompile(`(?i)\bCDE\d?/\d{4}/\d+\b`)
	exemptionPeriodRe   = regexp.MustCompile(`(?i)(\d{2}/\d{2}/\d{4})\s*(?:hingga|to)\s*(\d{2}/\d{2}/\d{4})`)
	companyLabelRe      = regexp.MustCompile(`(?i)(Nama\s+Syarikat|Company'?s\s+Name)`)
	junkLineRe          = regexp.MustCompile(`^[\s:.\-]*$`)
	hasLetterRe         = regexp.MustCompile(`[A-Za-z]`)
)

// HeaderFields is the best-effort result of header extraction. Fields not
// confidently found stay empty and are explained in Warnings.
type HeaderFields struct {
	CertificateNumber string
	CompanyName       string
	ExemptionStart    string
	ExemptionEnd      string
	Warnings          []string
}

// HeaderParser pulls the certificate number, company name and exemption
// period out of the full document text. Certificates vary by issuing office
// and scan quality, so every field is optional.
type HeaderParser struct {
	knownCompanies []string
	skipRe         *regexp.Regexp
}

func NewHeaderParser(vocab config.Vocabulary) *HeaderParser {
	patterns := []string{`Nama\s+Syarikat`, `Company'?s\s+Name`}
	for _, line := range vocab.SkipHeaderLines {
		patterns = append(patterns, regexp.QuoteMeta(line))
	}
	return &HeaderParser{
		knownCompanies: vocab.KnownCompanies,
		skipRe:         regexp.MustCompile("(?i)" + strings.Join(patterns, "|")),
	}
}

func (p *HeaderParser) Parse(fullText string) HeaderFields {
	var out HeaderFields
	lines := strings.Split(fullText, "\n")

	if m := certificateNumberRe.FindString(fullText); m != "" {
		out.CertificateNumber = strings.ToUpper(m)
	} else {
		out.Warnings = append(out.Warnings, "certificate number not found")
	}

	if m := exemptionPeriodRe.FindStringSubmatch(fullText); m != nil {
		out.ExemptionStart = toISODate(m[1])
		out.ExemptionEnd = toISODate(m[2])
	} else {
		out.Warnings = append(out.Warnings, "exemption period not found")
	}

	name := p.findCompanyName(lines)
	if name == "" {
		out.Warnings = append(out.Warnings, "company name not found")
	} else {
		canonical, matched := p.canonicalCompany(name)
		out.CompanyName = canonical
		if !matched {
			out.Warnings = append(out.Warnings, fmt.Sprintf("company name %q not in known company list", name))
		}
	}

	return out
}

// findCompanyName scans forward from each company label line: first the
// remainder of the label line itself, then the next few non-empty lines,
// skipping known boilerplate. As a last resort any "SDN BHD" line is taken.
func (p *HeaderParser) findCompanyName(lines []string) string {
	for idx, line := range lines {
		if !companyLabelRe.MatchString(line) {
			continue
		}

		candidate := ""
		if colon := strings.LastIndex(line, ":"); colon != -1 {
			candidate = strings.TrimSpace(line[colon+1:])
		} else {
			candidate = strings.TrimSpace(companyLabelRe.ReplaceAllString(line, ""))
		}
		candidate = strings.TrimSpace(strings.TrimLeft(candidate, ":-"))
		if p.plausibleCompanyLine(candidate) && len(candidate) > 3 {
			return candidate
		}

		seen := 0
		for offset := 1; idx+offset < len(lines) && seen < 5; offset++ {
			next := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(lines[idx+offset]), ":-"))
			if next == "" {
				continue
			}
			seen++
			if p.plausibleCompanyLine(next) {
				return next
			}
		}
	}

	for _, line := range lines {
		if strings.Contains(strings.ToUpper(line), "SDN BHD") {
			return strings.TrimSpace(line)
		}
	}
	return ""
}

func (p *HeaderParser) plausibleCompanyLine(s string) bool {
	if s == "" || junkLineRe.MatchString(s) {
		return false
	}
	if !hasLetterRe.MatchString(s) {
		return false
	}
	return !p.skipRe.MatchString(s)
}

// canonicalCompany snaps the OCR reading onto the configured company list:
// exact, then substring either way, then closest Levenshtein distance within
// half the canonical name's length. Names that snap to nothing are kept
// verbatim so a reviewer sees exactly what the scan said.
func (p *HeaderParser) canonicalCompany(ocrName string) (string, bool) {
	upper := strings.ToUpper(strings.TrimSpace(ocrName))
	for _, known := range p.knownCompanies {
		if upper == known {
			return known, true
		}
	}
	for _, known := range p.knownCompanies {
		if strings.Contains(upper, known) || strings.Contains(known, upper) {
			return known, true
		}
	}

	best := ""
	bestDist := -1
	for _, known := range p.knownCompanies {
		d := levenshtein(upper, known)
		if bestDist == -1 || d < bestDist {
			best = known
			bestDist = d
		}
	}
	if best != "" && bestDist*2 <= len(best) {
		return best, true
	}
	return ocrName, false
}

func toISODate(ddmmyyyy string) string {
	t, err := time.Parse("02/01/2006", ddmmyyyy)
	if err != nil {
		return ddmmyyyy
	}
	return t.Format("2006-01-02")
}
