package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pmorozova/litsort/internal/cache"
	"github.com/pmorozova/litsort/internal/model"
)

// Consolidation response statuses
const (
	StatusSuggestionsMade = "suggestions_made"
	StatusNoChanges       = "no_changes"
)

// Service wraps a Provider with the typed request/response contracts of the
// extraction, consolidation, audit and normalization calls. All decoding goes
// through the best-effort repair pass; a payload that still cannot be decoded
// surfaces as a KindParseFailure ServiceError.
type Service struct {
	provider  Provider
	cache     cache.Cache // Optional; extraction calls bypass it
	maxTokens int
}

// NewService creates a Service around the given provider. The cache may be
// nil to disable response caching.
func NewService(p Provider, c cache.Cache, maxTokens int) *Service {
	return &Service{provider: p, cache: c, maxTokens: maxTokens}
}

// ProviderName returns the underlying provider's name
func (s *Service) ProviderName() string {
	if s.provider == nil {
		return ""
	}
	return s.provider.Name()
}

// IsAvailable reports whether the underlying provider is reachable
func (s *Service) IsAvailable(ctx context.Context) bool {
	return s.provider != nil && s.provider.IsAvailable(ctx)
}

// ExtractRequest carries one batch of raw text to the extraction service
type ExtractRequest struct {
	Topic        string
	Text         string
	TaxonomyHint string
	Species      bool
}

// ExtractEntry is one structured finding in a batch response. A single
// source document may yield several entries when it reports multiple
// independent driver-response findings.
type ExtractEntry struct {
	Title    string   `json:"title"`
	Authors  string   `json:"authors"`
	Year     string   `json:"year"`
	Journal  string   `json:"journal"`
	Finding  string   `json:"finding"`
	Category string   `json:"category"`
	Theme    string   `json:"theme"`
	Driver   string   `json:"driver"`
	Response string   `json:"response"`
	Effect   string   `json:"effect"`
	Location string   `json:"location"`
	Species  string   `json:"species,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
	Citation string   `json:"citation"`
}

// ExtractResponse is the decoded batch extraction result
type ExtractResponse struct {
	Entries []ExtractEntry `json:"entries"`
}

// ExtractRecords submits one batch for structured extraction. Never cached:
// a retried or manually fixed batch must hit the live service.
func (s *Service) ExtractRecords(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	raw, err := s.provider.Complete(ctx, extractSystem, extractPrompt(req), s.maxTokens)
	if err != nil {
		return nil, err
	}
	return decode[ExtractResponse](raw)
}

// ConsolidateRequest carries the full taxonomy plus the exclusion context
type ConsolidateRequest struct {
	Taxonomy model.Taxonomy
	Locks    model.LockSet
	Rejected []string // Canonical signatures the user already rejected
}

// ThemeMergeSuggestion combines several themes within one category
type ThemeMergeSuggestion struct {
	Category      string   `json:"category"`
	Themes        []string `json:"themes"`
	NewName       string   `json:"new_name"`
	Justification string   `json:"justification"`
}

// ThemeMoveSuggestion relocates a theme to a different category
type ThemeMoveSuggestion struct {
	Theme         string `json:"theme"`
	FromCategory  string `json:"from_category"`
	ToCategory    string `json:"to_category"`
	Justification string `json:"justification"`
}

// CategoryMergeSuggestion folds one category entirely into another
type CategoryMergeSuggestion struct {
	Source        string `json:"source"`
	Target        string `json:"target"`
	Justification string `json:"justification"`
}

// CategoryRenameSuggestion renames a category
type CategoryRenameSuggestion struct {
	Category      string `json:"category"`
	NewName       string `json:"new_name"`
	Justification string `json:"justification"`
}

// ConsolidateResponse holds the service's structural analysis. Any of the
// four lists may be empty.
type ConsolidateResponse struct {
	Status          string                    `json:"status"`
	ThemeMerges     []ThemeMergeSuggestion    `json:"theme_merges,omitempty"`
	ThemeMoves      []ThemeMoveSuggestion     `json:"theme_moves,omitempty"`
	CategoryMerges  []CategoryMergeSuggestion `json:"category_merges,omitempty"`
	CategoryRenames []CategoryRenameSuggestion `json:"category_renames,omitempty"`
}

// Consolidate requests a structural analysis of the taxonomy
func (s *Service) Consolidate(ctx context.Context, req ConsolidateRequest) (*ConsolidateResponse, error) {
	raw, err := s.cachedComplete(ctx, consolidateSystem, consolidatePrompt(req))
	if err != nil {
		return nil, err
	}
	return decode[ConsolidateResponse](raw)
}

// AuditFix is one duplicate/redundancy repair returned by the audit call
type AuditFix struct {
	OriginalCategory string `json:"original_category"`
	OriginalTheme    string `json:"original_theme"`
	NewCategory      string `json:"new_category"`
	NewTheme         string `json:"new_theme"`
	Reason           string `json:"reason"`
}

// AuditResponse is the decoded audit result
type AuditResponse struct {
	Fixes []AuditFix `json:"fixes"`
}

// AuditTaxonomy asks the service to identify duplicate sub-themes spread
// across categories and hierarchical redundancies between categories.
// pairs is the flat "category ||| theme" list.
func (s *Service) AuditTaxonomy(ctx context.Context, pairs []string) (*AuditResponse, error) {
	raw, err := s.cachedComplete(ctx, auditSystem, auditPrompt(pairs))
	if err != nil {
		return nil, err
	}
	return decode[AuditResponse](raw)
}

// TermEntry is one record's current free-text metadata sent for normalization
type TermEntry struct {
	ID       string `json:"id"`
	Driver   string `json:"driver"`
	Response string `json:"response"`
	Location string `json:"location"`
	Species  string `json:"species,omitempty"`
}

// TermFix maps one record to canonical metadata values
type TermFix struct {
	ID string `json:"id"`
	model.TermMapping
}

// NormalizeResponse is the decoded normalization result
type NormalizeResponse struct {
	Mappings []TermFix `json:"mappings"`
}

// NormalizeTerms requests canonical values plus coarser driver/response
// group labels for the given records
func (s *Service) NormalizeTerms(ctx context.Context, entries []TermEntry) (*NormalizeResponse, error) {
	raw, err := s.cachedComplete(ctx, normalizeSystem, normalizePrompt(entries))
	if err != nil {
		return nil, err
	}
	return decode[NormalizeResponse](raw)
}

// VerifyResult is the service's judgment on a proposed theme move
type VerifyResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason"`
}

// VerifyMove re-checks a move proposal against a larger title sample from
// the theme being moved
func (s *Service) VerifyMove(ctx context.Context, theme, from, to string, titles []string) (*VerifyResult, error) {
	raw, err := s.cachedComplete(ctx, verifySystem, verifyPrompt(theme, from, to, titles))
	if err != nil {
		return nil, err
	}
	return decode[VerifyResult](raw)
}

// JustifyMerge requests a fresh justification for merging source into
// target; used when a proposal is reversed
func (s *Service) JustifyMerge(ctx context.Context, source, target string) (string, error) {
	raw, err := s.cachedComplete(ctx, justifySystem, justifyPrompt(source, target))
	if err != nil {
		return "", err
	}
	out, err := decode[struct {
		Justification string `json:"justification"`
	}](raw)
	if err != nil {
		return "", err
	}
	return out.Justification, nil
}

// cachedComplete routes a call through the response cache when one is
// configured
func (s *Service) cachedComplete(ctx context.Context, system, prompt string) (string, error) {
	var key string
	if s.cache != nil {
		key = cache.Key(system + "\x00" + prompt)
		if data, found := s.cache.Get(key); found {
			return string(data), nil
		}
	}

	out, err := s.provider.Complete(ctx, system, prompt, s.maxTokens)
	if err != nil {
		return "", err
	}

	if s.cache != nil {
		if cerr := s.cache.Set(key, []byte(out), 0); cerr != nil {
			// Cache trouble never fails the call
			fmt.Printf("Warning: response cache write failed: %v\n", cerr)
		}
	}
	return out, nil
}

// decode unmarshals service output, falling back to the repair pass. A
// payload that fails both attempts is a parse failure, not a retryable error.
func decode[T any](raw string) (*T, error) {
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return &v, nil
	}

	repaired := Repair(raw)
	var v2 T
	if err := json.Unmarshal([]byte(repaired), &v2); err != nil {
		return nil, parseFailure(err, raw)
	}
	return &v2, nil
}
