package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pmorozova/litsort/internal/cache"
	"github.com/pmorozova/litsort/internal/model"
)

// MockProvider implements the Provider interface for testing
type MockProvider struct {
	name      string
	available bool
	response  string
	err       error
	calls     int
	lastPrompt string
}

func (m *MockProvider) Name() string {
	return m.name
}

func (m *MockProvider) Complete(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	m.calls++
	m.lastPrompt = prompt
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *MockProvider) IsAvailable(ctx context.Context) bool {
	return m.available
}

func TestService_ExtractRecords(t *testing.T) {
	mock := &MockProvider{
		name: "mock",
		response: `{"entries": [{"title": "Heat effects on coral", "authors": "Smith et al.", "year": "2020",
			"journal": "Mar Biol", "finding": "Bleaching increased", "category": "Thermal Stress",
			"theme": "Bleaching", "driver": "Temperature", "response": "Bleaching rate",
			"effect": "Negative", "location": "Great Barrier Reef", "citation": "Smith et al. (2020)"}]}`,
	}
	svc := NewService(mock, nil, 0)

	resp, err := svc.ExtractRecords(context.Background(), ExtractRequest{
		Topic:        "coral reefs",
		Text:         "Smith et al. 2020 ...",
		TaxonomyHint: "- Thermal Stress: Bleaching\n",
	})
	if err != nil {
		t.Fatalf("ExtractRecords() error: %v", err)
	}
	if len(resp.Entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(resp.Entries))
	}
	if resp.Entries[0].Category != "Thermal Stress" {
		t.Errorf("Category = %q", resp.Entries[0].Category)
	}
	if !strings.Contains(mock.lastPrompt, "Thermal Stress: Bleaching") {
		t.Error("Taxonomy hint missing from extraction prompt")
	}
}

func TestService_ExtractRecords_ParseFailure(t *testing.T) {
	mock := &MockProvider{name: "mock", response: "I am unable to comply with that request."}
	svc := NewService(mock, nil, 0)

	_, err := svc.ExtractRecords(context.Background(), ExtractRequest{Text: "x"})
	if err == nil {
		t.Fatal("Expected parse failure")
	}
	if Classify(err) != KindParseFailure {
		t.Errorf("Classify() = %v, want KindParseFailure", Classify(err))
	}
}

func TestService_Consolidate_PromptCarriesExclusions(t *testing.T) {
	mock := &MockProvider{name: "mock", response: `{"status": "no_changes"}`}
	svc := NewService(mock, nil, 0)

	var locks model.LockSet
	locks.LockCategory("Heat Stress")
	locks.LockTheme("Abiotic Stress", "Drought")

	resp, err := svc.Consolidate(context.Background(), ConsolidateRequest{
		Taxonomy: model.Taxonomy{Categories: []model.TaxCategory{
			{Name: "Heat Stress", Themes: []model.TaxTheme{{Name: "Bleaching", Count: 2}}},
		}},
		Locks:    locks,
		Rejected: []string{"merge_categories|heat stress|abiotic stress"},
	})
	if err != nil {
		t.Fatalf("Consolidate() error: %v", err)
	}
	if resp.Status != StatusNoChanges {
		t.Errorf("Status = %q", resp.Status)
	}
	for _, want := range []string{"Heat Stress", "Abiotic Stress / Drought", "merge_categories|heat stress|abiotic stress"} {
		if !strings.Contains(mock.lastPrompt, want) {
			t.Errorf("Prompt missing %q", want)
		}
	}
}

func TestService_CachedCallsSkipProvider(t *testing.T) {
	mock := &MockProvider{name: "mock", response: `{"fixes": []}`}
	mem := cache.NewMemoryCache(time.Minute, time.Minute)
	svc := NewService(mock, mem, 0)

	pairs := []string{"Heat Stress ||| Bleaching"}
	ctx := context.Background()

	if _, err := svc.AuditTaxonomy(ctx, pairs); err != nil {
		t.Fatalf("AuditTaxonomy() error: %v", err)
	}
	if _, err := svc.AuditTaxonomy(ctx, pairs); err != nil {
		t.Fatalf("AuditTaxonomy() second call error: %v", err)
	}
	if mock.calls != 1 {
		t.Errorf("Expected 1 provider call (second served from cache), got %d", mock.calls)
	}
}

func TestService_ExtractionNeverCached(t *testing.T) {
	mock := &MockProvider{name: "mock", response: `{"entries": []}`}
	mem := cache.NewMemoryCache(time.Minute, time.Minute)
	svc := NewService(mock, mem, 0)

	req := ExtractRequest{Text: "same batch text"}
	ctx := context.Background()
	if _, err := svc.ExtractRecords(ctx, req); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ExtractRecords(ctx, req); err != nil {
		t.Fatal(err)
	}
	if mock.calls != 2 {
		t.Errorf("Extraction must hit the live service every time, got %d calls", mock.calls)
	}
}

func TestService_ProviderErrorPropagates(t *testing.T) {
	wantErr := errors.New("boom")
	mock := &MockProvider{name: "mock", err: wantErr}
	svc := NewService(mock, nil, 0)

	_, err := svc.NormalizeTerms(context.Background(), []TermEntry{{ID: "r1", Driver: "heat"}})
	if !errors.Is(err, wantErr) {
		t.Errorf("Expected provider error to propagate, got %v", err)
	}
}

func TestService_JustifyMerge(t *testing.T) {
	mock := &MockProvider{name: "mock", response: `{"justification": "Target subsumes source."}`}
	svc := NewService(mock, nil, 0)

	got, err := svc.JustifyMerge(context.Background(), "Heat Stress", "Abiotic Stress")
	if err != nil {
		t.Fatalf("JustifyMerge() error: %v", err)
	}
	if got != "Target subsumes source." {
		t.Errorf("JustifyMerge() = %q", got)
	}
}
