// Package taxonomy classifies a filing's declared taxonomy and picks the
// reference taxonomy workbook that best matches it.
package taxonomy

import (
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/jonathan/filing-validator/internal/types"
)

// Taxonomy name lookup in Filing Information rows
const (
	FilerNameColumn   = "Filer Name"
	TaxonomyNameLabel = "Taxonomy Name"
)

// Reference file markers per jurisdiction
const (
	MarkerIreland = "ireland-frs-2023"
	MarkerUK      = "frc-2023"
)

const (
	substringBonus = 5
	maxFuzzyBonus  = 5
)

// Classify maps a declared taxonomy name to a taxonomy type and jurisdiction.
// When no keyword applies, the lowercase name is returned in that position.
func Classify(name string) (taxonomyType, jurisdiction string) {
	lower := strings.ToLower(name)

	switch {
	case strings.Contains(lower, "frs 101"):
		taxonomyType = types.TaxonomyFRS101
	case strings.Contains(lower, "frs 102"):
		taxonomyType = types.TaxonomyFRS102
	case strings.Contains(lower, "ifrs"):
		taxonomyType = types.TaxonomyIFRS
	default:
		taxonomyType = lower
	}

	switch {
	case containsAny(lower, "ireland", "irish"):
		jurisdiction = types.JurisdictionIreland
	case containsAny(lower, "uk", "frc", "united kingdom"):
		jurisdiction = types.JurisdictionUK
	default:
		jurisdiction = lower
	}
	return taxonomyType, jurisdiction
}

// JurisdictionMarker returns the substring a reference file name must contain
// to serve a jurisdiction, or "" when the jurisdiction has no reference files.
func JurisdictionMarker(jurisdiction string) string {
	switch strings.ToLower(jurisdiction) {
	case types.JurisdictionIreland, "irish":
		return MarkerIreland
	case types.JurisdictionUK, "frc", "united kingdom":
		return MarkerUK
	default:
		return ""
	}
}

// Score rates a reference file name against a taxonomy type: a bonus when the
// name contains the type, plus up to five points for a small edit distance.
func Score(taxonomyType, filename string) int {
	lower := strings.ToLower(filename)
	score := 0
	if strings.Contains(lower, taxonomyType) {
		score += substringBonus
	}
	score += maxFuzzyBonus - min(levenshtein.ComputeDistance(taxonomyType, lower), maxFuzzyBonus)
	return score
}

// SelectBest picks the highest-scoring candidate that carries the jurisdiction's
// marker. Ties keep the earliest candidate. ok is false when no candidate qualifies.
func SelectBest(candidates []string, taxonomyType, jurisdiction string) (best string, score int, ok bool) {
	marker := JurisdictionMarker(jurisdiction)
	if marker == "" {
		return "", 0, false
	}

	score = -1
	for _, c := range candidates {
		if !strings.Contains(strings.ToLower(c), marker) {
			continue
		}
		if s := Score(taxonomyType, c); s > score {
			best, score, ok = c, s, true
		}
	}
	if !ok {
		return "", 0, false
	}
	return best, score, true
}

// ExtractName finds the first row whose Filer Name is "Taxonomy Name" and returns
// the value of the row's first other column.
func ExtractName(rows []types.Row) (string, bool) {
	for _, row := range rows {
		if row.GetString(FilerNameColumn) != TaxonomyNameLabel {
			continue
		}
		for _, key := range row.Keys() {
			if key == FilerNameColumn {
				continue
			}
			name := strings.TrimSpace(row.GetString(key))
			return name, name != ""
		}
		return "", false
	}
	return "", false
}

// Match classifies name and selects the best reference file from candidates
func Match(name string, candidates []string) types.TaxonomyMatch {
	taxonomyType, jurisdiction := Classify(name)
	m := types.TaxonomyMatch{
		TaxonomyName: name,
		TaxonomyType: taxonomyType,
		Jurisdiction: jurisdiction,
	}
	if file, score, ok := SelectBest(candidates, taxonomyType, jurisdiction); ok {
		m.MatchedFile = file
		m.Score = score
	}
	return m
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
