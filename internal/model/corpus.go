package model

import (
	"fmt"
	"sync"
)

// Corpus is the owned aggregate holding every extracted record plus the
// durable consolidation state (locks, rejection log, batch counter).
//
// All mutation goes through Corpus methods. Begin/End serialize the two
// long-running operations (extraction and consolidation) so they can never
// interleave against the same record set; neither takes finer locks.
type Corpus struct {
	mu   sync.Mutex
	busy string

	Topic          string
	SpeciesEnabled bool
	Records        []Record
	Locks          LockSet
	Rejections     RejectionLog

	// BatchSeq strictly increases across resumed and manually fixed batches,
	// so record identifiers never collide even when a logical batch is
	// retried with edited text.
	BatchSeq int
}

// NewCorpus creates an empty corpus for the given topic
func NewCorpus(topic string, species bool) *Corpus {
	return &Corpus{Topic: topic, SpeciesEnabled: species}
}

// Begin claims the corpus for a named long-running operation. It fails if
// another operation is already active.
func (c *Corpus) Begin(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy != "" {
		return fmt.Errorf("corpus busy: %s already running", c.busy)
	}
	c.busy = op
	return nil
}

// End releases the operation claim taken by Begin
func (c *Corpus) End() {
	c.mu.Lock()
	c.busy = ""
	c.mu.Unlock()
}

// NextBatch increments and returns the batch sequence counter
func (c *Corpus) NextBatch() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.BatchSeq++
	return c.BatchSeq
}

// Append adds merged records to the corpus
func (c *Corpus) Append(recs []Record) {
	c.mu.Lock()
	c.Records = append(c.Records, recs...)
	c.mu.Unlock()
}

// Len returns the number of records
func (c *Corpus) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Records)
}

// Taxonomy derives the current (category, theme) pairs in first-appearance
// order, carrying up to sampleSize record titles per theme as evidence
// context. sampleSize <= 0 means no samples.
func (c *Corpus) Taxonomy(sampleSize int) Taxonomy {
	c.mu.Lock()
	defer c.mu.Unlock()

	var tax Taxonomy
	catIdx := make(map[string]int)
	themeIdx := make(map[string]map[string]int)

	for _, r := range c.Records {
		ci, ok := catIdx[r.Category]
		if !ok {
			ci = len(tax.Categories)
			catIdx[r.Category] = ci
			themeIdx[r.Category] = make(map[string]int)
			tax.Categories = append(tax.Categories, TaxCategory{Name: r.Category})
		}
		ti, ok := themeIdx[r.Category][r.Theme]
		if !ok {
			ti = len(tax.Categories[ci].Themes)
			themeIdx[r.Category][r.Theme] = ti
			tax.Categories[ci].Themes = append(tax.Categories[ci].Themes, TaxTheme{Name: r.Theme})
		}
		th := &tax.Categories[ci].Themes[ti]
		th.Count++
		if sampleSize > 0 && len(th.Samples) < sampleSize && r.Title != Unspecified {
			th.Samples = append(th.Samples, r.Title)
		}
	}
	return tax
}

// TitlesFor returns up to max record titles under the given (category, theme)
// pair; used for move verification with a larger evidence sample.
func (c *Corpus) TitlesFor(category, theme string, max int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var titles []string
	for _, r := range c.Records {
		if r.Category == category && r.Theme == theme && r.Title != Unspecified {
			titles = append(titles, r.Title)
			if max > 0 && len(titles) >= max {
				break
			}
		}
	}
	return titles
}

// RewritePair is the single mutation primitive for taxonomy edits: every
// record matching (oldCat, oldTheme) is rewritten to (newCat, newTheme).
// An empty oldTheme matches every theme in oldCat; an empty newTheme keeps
// the record's current theme. Returns the number of records touched.
func (c *Corpus) RewritePair(oldCat, oldTheme, newCat, newTheme string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for i := range c.Records {
		r := &c.Records[i]
		if r.Category != oldCat {
			continue
		}
		if oldTheme != "" && r.Theme != oldTheme {
			continue
		}
		r.Category = newCat
		if newTheme != "" {
			r.Theme = newTheme
		}
		n++
	}
	return n
}

// RenameCategory rewrites every record in old to carry the new category name
func (c *Corpus) RenameCategory(old, new string) int {
	return c.RewritePair(old, "", new, "")
}

// MergeCategories folds every record of source into target
func (c *Corpus) MergeCategories(source, target string) int {
	return c.RewritePair(source, "", target, "")
}

// MergeThemes rewrites the given themes within category to newName
func (c *Corpus) MergeThemes(category string, themes []string, newName string) int {
	n := 0
	for _, t := range themes {
		n += c.RewritePair(category, t, category, newName)
	}
	return n
}

// MoveTheme relocates a theme from category to target, keeping its name
func (c *Corpus) MoveTheme(category, theme, target string) int {
	return c.RewritePair(category, theme, target, theme)
}

// TermMapping carries canonical replacements for one record's free-text
// metadata. Empty fields leave the current value untouched.
type TermMapping struct {
	Driver        string `json:"driver,omitempty"`
	DriverGroup   string `json:"driver_group,omitempty"`
	Response      string `json:"response,omitempty"`
	ResponseGroup string `json:"response_group,omitempty"`
	Location      string `json:"location,omitempty"`
	Species       string `json:"species,omitempty"`
}

// ApplyTerms applies normalization mappings keyed by record identifier as a
// single corpus rewrite. Records with no mapping are left untouched.
// Returns the number of records whose fields actually changed.
func (c *Corpus) ApplyTerms(mappings map[string]TermMapping) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := 0
	for i := range c.Records {
		m, ok := mappings[c.Records[i].ID]
		if !ok {
			continue
		}
		if applyTerm(&c.Records[i], m) {
			changed++
		}
	}
	return changed
}

func applyTerm(r *Record, m TermMapping) bool {
	changed := false
	set := func(dst *string, v string) {
		if v != "" && v != *dst {
			*dst = v
			changed = true
		}
	}
	set(&r.Driver, m.Driver)
	set(&r.DriverGroup, m.DriverGroup)
	set(&r.Response, m.Response)
	set(&r.ResponseGroup, m.ResponseGroup)
	set(&r.Location, m.Location)
	set(&r.Species, m.Species)
	return changed
}

// Reset discards every record and counter; locks and rejections survive only
// an explicit zeroing by the caller.
func (c *Corpus) Reset() {
	c.mu.Lock()
	c.Records = nil
	c.BatchSeq = 0
	c.mu.Unlock()
}
