// Package catalog maps free-text vehicle names onto the site's internal
// manufacturer and model ids and builds search URLs from them.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
)

// ErrNoMatch is returned when free text resolves to no known manufacturer.
var ErrNoMatch = errors.New("no manufacturer matched")

// Model is one model entry under a manufacturer.
type Model struct {
	ID     string `json:"id"`
	NameHe string `json:"name_he"`
	NameEn string `json:"name_en"`
}

// Manufacturer is one make with its known models.
type Manufacturer struct {
	ID     string  `json:"id"`
	NameHe string  `json:"name_he"`
	NameEn string  `json:"name_en"`
	Models []Model `json:"models"`
}

// Catalog holds the full manufacturer/model mapping in a stable order.
type Catalog struct {
	baseURL       string
	manufacturers []Manufacturer
}

// Match is a resolved search intent.
type Match struct {
	Manufacturer Manufacturer
	Model        *Model
	Hybrid       bool
	URL          string
}

const defaultBaseURL = "https://www.yad2.co.il/vehicles/cars"

// New builds a Catalog over the given manufacturers. The slice order is the
// tie-break order for ambiguous matches, so callers should pass a stable
// ordering.
func New(manufacturers []Manufacturer) *Catalog {
	return &Catalog{baseURL: defaultBaseURL, manufacturers: manufacturers}
}

// mappingDocument mirrors the persisted mapping file, which keys both
// manufacturers and models by id.
type mappingDocument struct {
	Manufacturers map[string]struct {
		ID     string           `json:"id"`
		NameHe string           `json:"name_he"`
		NameEn string           `json:"name_en"`
		Models map[string]Model `json:"models"`
	} `json:"manufacturers"`
}

// Load reads the mapping file. Map keys carry no order in the file, so
// entries are sorted by numeric id to keep resolution deterministic.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog mapping %s: %w", path, err)
	}
	var doc mappingDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog mapping %s: %w", path, err)
	}

	manufacturers := make([]Manufacturer, 0, len(doc.Manufacturers))
	for _, m := range doc.Manufacturers {
		models := make([]Model, 0, len(m.Models))
		for _, mdl := range m.Models {
			models = append(models, mdl)
		}
		sortByID(models, func(mdl Model) string { return mdl.ID })
		manufacturers = append(manufacturers, Manufacturer{
			ID:     m.ID,
			NameHe: m.NameHe,
			NameEn: m.NameEn,
			Models: models,
		})
	}
	sortByID(manufacturers, func(m Manufacturer) string { return m.ID })
	return New(manufacturers), nil
}

// Manufacturers returns the catalog's entries in resolution order.
func (c *Catalog) Manufacturers() []Manufacturer {
	return c.manufacturers
}

// Resolve maps free text like "toyota corolla hybrid" or its Hebrew
// equivalent onto a manufacturer, optionally a model, and a ready search
// URL. The longest name found inside the text wins; ties keep the earlier
// catalog entry.
func (c *Catalog) Resolve(freeText string) (Match, error) {
	text := strings.ToLower(strings.TrimSpace(freeText))
	if text == "" {
		return Match{}, ErrNoMatch
	}

	var (
		best      *Manufacturer
		bestScore int
	)
	for i := range c.manufacturers {
		m := &c.manufacturers[i]
		if score := nameScore(text, m.NameHe, m.NameEn); score > bestScore {
			best, bestScore = m, score
		}
	}
	if best == nil {
		return Match{}, fmt.Errorf("%q: %w", freeText, ErrNoMatch)
	}

	match := Match{
		Manufacturer: *best,
		Hybrid:       strings.Contains(text, "hybrid") || strings.Contains(text, "היבריד"),
	}

	var modelScore int
	for i := range best.Models {
		mdl := &best.Models[i]
		if score := nameScore(text, mdl.NameHe, mdl.NameEn); score > modelScore {
			match.Model, modelScore = mdl, score
		}
	}

	match.URL = c.searchURL(match)
	return match, nil
}

// searchURL builds the feed URL for a resolved match.
func (c *Catalog) searchURL(m Match) string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL
	}
	q := url.Values{}
	q.Set("manufacturer", m.Manufacturer.ID)
	if m.Model != nil {
		q.Set("model", m.Model.ID)
	}
	if m.Hybrid {
		q.Set("carTag", "5")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// nameScore is the length of the longest of the entry's names that appears
// inside the search text, or zero when neither does. Longer matched names
// rank higher so "corolla cross" beats "corolla" when both fit.
func nameScore(text, nameHe, nameEn string) int {
	score := 0
	for _, name := range []string{nameHe, nameEn} {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if strings.Contains(text, name) && len(name) > score {
			score = len(name)
		}
	}
	return score
}

func sortByID[T any](items []T, id func(T) string) {
	sort.SliceStable(items, func(i, j int) bool {
		a, errA := strconv.Atoi(id(items[i]))
		b, errB := strconv.Atoi(id(items[j]))
		if errA != nil || errB != nil {
			return id(items[i]) < id(items[j])
		}
		return a < b
	})
}
