package model

import (
	"sort"
	"strings"
)

// ProposalKind identifies the shape of a structural edit
type ProposalKind string

const (
	KindMergeThemes     ProposalKind = "merge_themes"     // Combine N themes within one category
	KindMoveTheme       ProposalKind = "move_theme"       // Relocate a theme to another category
	KindMergeCategories ProposalKind = "merge_categories" // Fold one category entirely into another
	KindRenameCategory  ProposalKind = "rename_category"  // Rename a category
)

// Proposal is one suggested structural edit to the taxonomy.
// Proposals are run-local: created by one consolidation pass and consumed
// by accept/reject, never persisted independently of the corpus.
type Proposal struct {
	ID   int          `json:"id"` // Run-local identifier
	Kind ProposalKind `json:"kind"`

	// merge_themes: Category + Themes → NewName
	// move_theme: Theme moves Category → TargetCategory
	// merge_categories: Category folds into TargetCategory
	// rename_category: Category → NewName
	Category       string   `json:"category"`
	Themes         []string `json:"themes,omitempty"`
	Theme          string   `json:"theme,omitempty"`
	TargetCategory string   `json:"target_category,omitempty"`
	NewName        string   `json:"new_name,omitempty"`

	Justification string `json:"justification"`
	Verified      bool   `json:"verified,omitempty"`
}

// Signature returns the canonical identity of the proposal: kind plus the
// normalized, order-independent names of every entity involved. Two proposals
// with the same semantic content always produce the same signature, so a
// rejection logged for one suppresses the other.
func (p Proposal) Signature() string {
	parts := []string{string(p.Kind)}
	switch p.Kind {
	case KindMergeThemes:
		members := make([]string, 0, len(p.Themes))
		for _, t := range p.Themes {
			members = append(members, normalizeName(t))
		}
		sort.Strings(members)
		parts = append(parts, normalizeName(p.Category), strings.Join(members, "+"), normalizeName(p.NewName))
	case KindMoveTheme:
		parts = append(parts, normalizeName(p.Category), normalizeName(p.Theme), normalizeName(p.TargetCategory))
	case KindMergeCategories:
		parts = append(parts, normalizeName(p.Category), normalizeName(p.TargetCategory))
	case KindRenameCategory:
		parts = append(parts, normalizeName(p.Category), normalizeName(p.NewName))
	}
	return strings.Join(parts, "|")
}

func normalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
