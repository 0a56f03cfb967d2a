package model

import (
	"fmt"
	"strings"
)

// TaxTheme is one theme within a category, with evidence context
type TaxTheme struct {
	Name    string   `json:"name"`
	Count   int      `json:"count"`             // Number of records under the theme
	Samples []string `json:"samples,omitempty"` // Sample record titles
}

// TaxCategory is one top-level taxonomy entry
type TaxCategory struct {
	Name   string     `json:"name"`
	Themes []TaxTheme `json:"themes"`
}

// Taxonomy is the derived set of (category, theme) pairs present in the
// corpus at a point in time. It is never stored; rebuild it from records.
type Taxonomy struct {
	Categories []TaxCategory `json:"categories"`
}

// Pairs flattens the taxonomy to "category ||| theme" strings, the wire
// format of the audit contract.
func (t Taxonomy) Pairs() []string {
	var out []string
	for _, c := range t.Categories {
		for _, th := range c.Themes {
			out = append(out, c.Name+" ||| "+th.Name)
		}
	}
	return out
}

// Hint renders the taxonomy as a compact context block for extraction
// prompts, so the service reuses existing names instead of inventing
// near-duplicates batch over batch.
func (t Taxonomy) Hint() string {
	if len(t.Categories) == 0 {
		return ""
	}
	var b strings.Builder
	for _, c := range t.Categories {
		names := make([]string, len(c.Themes))
		for i, th := range c.Themes {
			names[i] = th.Name
		}
		fmt.Fprintf(&b, "- %s: %s\n", c.Name, strings.Join(names, "; "))
	}
	return b.String()
}

// ThemeRef addresses one (category, theme) pair
type ThemeRef struct {
	Category string `json:"category"`
	Theme    string `json:"theme"`
}

// LockSet holds user-placed exclusion markers. A locked category or theme
// must not appear as source, target, or member of any newly generated
// proposal; a move *into* a locked category remains allowed.
type LockSet struct {
	Categories []string   `json:"categories,omitempty"`
	Themes     []ThemeRef `json:"themes,omitempty"`
}

// LockCategory adds a category lock (idempotent)
func (l *LockSet) LockCategory(name string) {
	for _, c := range l.Categories {
		if sameName(c, name) {
			return
		}
	}
	l.Categories = append(l.Categories, name)
}

// LockTheme adds a (category, theme) lock (idempotent)
func (l *LockSet) LockTheme(category, theme string) {
	for _, t := range l.Themes {
		if sameName(t.Category, category) && sameName(t.Theme, theme) {
			return
		}
	}
	l.Themes = append(l.Themes, ThemeRef{Category: category, Theme: theme})
}

// CategoryLocked reports whether the category carries a lock
func (l *LockSet) CategoryLocked(name string) bool {
	for _, c := range l.Categories {
		if sameName(c, name) {
			return true
		}
	}
	return false
}

// ThemeLocked reports whether the (category, theme) pair carries a lock
func (l *LockSet) ThemeLocked(category, theme string) bool {
	for _, t := range l.Themes {
		if sameName(t.Category, category) && sameName(t.Theme, theme) {
			return true
		}
	}
	return false
}

func sameName(a, b string) bool {
	return normalizeName(a) == normalizeName(b)
}

// RejectionLog is the persistent set of proposal signatures the user has
// rejected. A logged signature must never be regenerated.
type RejectionLog struct {
	Signatures []string `json:"signatures,omitempty"`
}

// Add records a signature (idempotent)
func (r *RejectionLog) Add(sig string) {
	if r.Contains(sig) {
		return
	}
	r.Signatures = append(r.Signatures, sig)
}

// Contains reports whether the signature was rejected before
func (r *RejectionLog) Contains(sig string) bool {
	for _, s := range r.Signatures {
		if s == sig {
			return true
		}
	}
	return false
}
