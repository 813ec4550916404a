// Package classify tags article text with market categories and instrument
// codes from a keyword taxonomy.
//
// Matching is substring-based over the lower-cased text, not tokenized. That
// accepts the occasional false positive (a keyword hiding inside an unrelated
// word) in exchange for a trivial, language-agnostic matcher.
package classify

import (
	"strings"

	"finfeed/internal/taxonomy"
)

// GeneralCategory is assigned when no taxonomy keyword matches.
const GeneralCategory = "general"

// Classification is the result of categorizing one piece of content.
type Classification struct {
	// Primary is the category with the most matched instruments, or
	// GeneralCategory when nothing matched. Equal counts break
	// lexicographically by category name.
	Primary string
	// PrimaryAssets are the instruments matched in the primary category.
	PrimaryAssets []string
	// All maps every category with at least one match to its instruments,
	// including categories not chosen as primary.
	All map[string][]string
}

// ExtractAssets scans text for taxonomy keywords and returns the matched
// instrument codes per category. Each instrument appears at most once no
// matter how many of its keywords hit. Categories without a match are absent
// from the result.
func ExtractAssets(tax *taxonomy.Taxonomy, text string) map[string][]string {
	lowered := strings.ToLower(text)
	out := make(map[string][]string)
	for _, category := range tax.Categories() {
		var matched []string
		for _, code := range tax.Instruments(category) {
			for _, keyword := range tax.Keywords(category, code) {
				if strings.Contains(lowered, strings.ToLower(keyword)) {
					matched = append(matched, code)
					break
				}
			}
		}
		if len(matched) > 0 {
			out[category] = matched
		}
	}
	return out
}

// CategorizeByAsset classifies title and content together. The primary
// category is the one with the largest instrument set; ties keep the
// lexicographically first category because iteration follows the sorted
// category order and a later category only wins on a strictly larger count.
func CategorizeByAsset(tax *taxonomy.Taxonomy, title, content string) Classification {
	all := ExtractAssets(tax, title+" "+content)

	c := Classification{Primary: GeneralCategory, All: all}
	best := 0
	for _, category := range tax.Categories() {
		if n := len(all[category]); n > best {
			best = n
			c.Primary = category
			c.PrimaryAssets = all[category]
		}
	}
	return c
}
