package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Vocabulary holds the fixed lookup tables the parsers and matcher are
// constructed with. Defaults cover the TE01 exemption form as issued; a YAML
// file can extend them for new issuing offices without a rebuild.
type Vocabulary struct {
	// UOMAliases maps lowercase unit tokens to the normalized enum
	// (KGM or UNIT).
	UOMAliases map[string]string `yaml:"uom_aliases"`

	// KnownCompanies are the canonical company names certificates are
	// issued to; extracted names are snapped to the closest entry.
	KnownCompanies []string `yaml:"known_companies"`

	// SkipHeaderLines are boilerplate lines skipped when scanning for the
	// company name after its label.
	SkipHeaderLines []string `yaml:"skip_header_lines"`

	// DeclarationKeywords mark signature/declaration rows that must never
	// become items.
	DeclarationKeywords []string `yaml:"declaration_keywords"`

	// TableScoreThreshold is the minimum header-row score for a detected
	// table to be parsed as a quota table.
	TableScoreThreshold float64 `yaml:"table_score_threshold"`
}

func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		UOMAliases: map[string]string{
			"kg": "KGM", "k.g": "KGM", "kgs": "KGM", "kgm": "KGM",
			"u": "UNIT", "unit": "UNIT", "units": "UNIT", "pcs": "UNIT", "pc": "UNIT",
		},
		KnownCompanies: []string{
			"HONG LEONG YAMAHA MOTOR SDN BHD",
			"HICOM YAMAHA MOTOR SDN BHD",
		},
		SkipHeaderLines: []string{
			"UNTUK KEGUNAAN RASMI",
			"FOR OFFICIAL USE",
			"BORANG TE01",
			"FORM TE01",
		},
		DeclarationKeywords: []string{
			"NAMA / NAME", "NAMA/NAME",
			"JAWATAN", "DESIGNATION",
			"TARIKH", "PERAKUAN SYARIKAT",
			"COMPANY'S DECLARATION", "COMPANYS DECLARATION",
		},
		TableScoreThreshold: 2,
	}
}

// LoadVocabulary merges an optional YAML file over the defaults. An empty
// path returns the defaults unchanged.
func LoadVocabulary(path string) (Vocabulary, error) {
	vocab := DefaultVocabulary()
	if path == "" {
		return vocab, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return vocab, fmt.Errorf("read vocabulary file: %w", err)
	}

	var override Vocabulary
	if err := yaml.Unmarshal(data, &override); err != nil {
		return vocab, fmt.Errorf("parse vocabulary yaml: %w", err)
	}

	if len(override.UOMAliases) > 0 {
		for k, v := range override.UOMAliases {
			vocab.UOMAliases[k] = v
		}
	}
	if len(override.KnownCompanies) > 0 {
		vocab.KnownCompanies = override.KnownCompanies
	}
	if len(override.SkipHeaderLines) > 0 {
		vocab.SkipHeaderLines = override.SkipHeaderLines
	}
	if len(override.DeclarationKeywords) > 0 {
		vocab.DeclarationKeywords = override.DeclarationKeywords
	}
	if override.TableScoreThreshold > 0 {
		vocab.TableScoreThreshold = override.TableScoreThreshold
	}
	return vocab, nil
}
