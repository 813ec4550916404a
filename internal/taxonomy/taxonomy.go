// Package taxonomy holds the keyword table that maps market categories to
// instrument codes and their detection keywords. The table is immutable once
// loaded; classification iterates it in sorted order so results never depend
// on map iteration.
package taxonomy

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Table is the raw shape of a taxonomy: category -> instrument -> keywords.
type Table map[string]map[string][]string

// Taxonomy is an immutable, iteration-order-stable view over a Table.
type Taxonomy struct {
	table       Table
	categories  []string
	instruments map[string][]string
}

// New validates and freezes a table. Every category needs at least one
// instrument and every instrument at least one keyword.
func New(table Table) (*Taxonomy, error) {
	if len(table) == 0 {
		return nil, fmt.Errorf("taxonomy is empty")
	}

	t := &Taxonomy{
		table:       make(Table, len(table)),
		instruments: make(map[string][]string, len(table)),
	}
	for category, codes := range table {
		if category == "" {
			return nil, fmt.Errorf("taxonomy has an unnamed category")
		}
		if len(codes) == 0 {
			return nil, fmt.Errorf("category %q has no instruments", category)
		}
		frozen := make(map[string][]string, len(codes))
		names := make([]string, 0, len(codes))
		for code, keywords := range codes {
			if code == "" {
				return nil, fmt.Errorf("category %q has an unnamed instrument", category)
			}
			if len(keywords) == 0 {
				return nil, fmt.Errorf("instrument %q in category %q has no keywords", code, category)
			}
			frozen[code] = append([]string(nil), keywords...)
			names = append(names, code)
		}
		sort.Strings(names)
		t.table[category] = frozen
		t.instruments[category] = names
		t.categories = append(t.categories, category)
	}
	sort.Strings(t.categories)
	return t, nil
}

// LoadFile reads a taxonomy table from a JSON file. This exists so
// deployments can carry their own keyword list and tests can substitute a
// small one.
func LoadFile(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy file: %w", err)
	}
	var table Table
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse taxonomy file: %w", err)
	}
	return New(table)
}

// Categories returns category names in lexicographic order, the canonical
// iteration and tie-break order of the classifier.
func (t *Taxonomy) Categories() []string {
	return append([]string(nil), t.categories...)
}

// Instruments returns the instrument codes of a category in lexicographic
// order. Unknown categories yield nil.
func (t *Taxonomy) Instruments(category string) []string {
	return append([]string(nil), t.instruments[category]...)
}

// Keywords returns the detection keywords of one instrument.
func (t *Taxonomy) Keywords(category, code string) []string {
	return append([]string(nil), t.table[category][code]...)
}
