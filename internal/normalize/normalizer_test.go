package normalize

import (
	"context"
	"testing"
	"time"

	"github.com/pmorozova/litsort/internal/llm"
	"github.com/pmorozova/litsort/internal/model"
)

// mockTermService replays a canned mapping response
type mockTermService struct {
	resp  *llm.NormalizeResponse
	err   error
	calls int
	seen  []llm.TermEntry
}

func (m *mockTermService) NormalizeTerms(ctx context.Context, entries []llm.TermEntry) (*llm.NormalizeResponse, error) {
	m.calls++
	m.seen = entries
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

func termCorpus() *model.Corpus {
	c := model.NewCorpus("t", true)
	c.Records = []model.Record{
		{ID: "r1", Driver: "warming temp.", Response: "growth", Location: "GBR", Species: "A. millepora"},
		{ID: "r2", Driver: "Temperature increase", Response: "Growth rate", Location: "Great Barrier Reef"},
		{ID: "r3", Driver: "salinity", Response: "survival", Location: "Unspecified"},
	}
	return c
}

func newTestNormalizer(c *model.Corpus, m *mockTermService) *Normalizer {
	n := New(m, c, nil)
	n.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return n
}

func TestRun_AppliesMappingsByID(t *testing.T) {
	corpus := termCorpus()
	mock := &mockTermService{resp: &llm.NormalizeResponse{Mappings: []llm.TermFix{
		{ID: "r1", TermMapping: model.TermMapping{
			Driver: "Temperature", DriverGroup: "Climate", Response: "Growth",
			ResponseGroup: "Physiology", Location: "Great Barrier Reef", Species: "Acropora millepora",
		}},
		{ID: "r2", TermMapping: model.TermMapping{
			Driver: "Temperature", DriverGroup: "Climate", Response: "Growth", ResponseGroup: "Physiology",
		}},
	}}}
	n := newTestNormalizer(corpus, mock)

	changed, err := n.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if changed != 2 {
		t.Errorf("Changed %d records, want 2", changed)
	}
	if len(mock.seen) != 3 {
		t.Errorf("All %d records should be submitted, saw %d", 3, len(mock.seen))
	}

	r1 := corpus.Records[0]
	if r1.Driver != "Temperature" || r1.DriverGroup != "Climate" || r1.Species != "Acropora millepora" {
		t.Errorf("r1 not normalized: %+v", r1)
	}
	// r3 had no mapping: untouched
	r3 := corpus.Records[2]
	if r3.Driver != "salinity" || r3.Response != "survival" {
		t.Errorf("Unmapped record mutated: %+v", r3)
	}
}

func TestRun_Idempotent(t *testing.T) {
	corpus := termCorpus()
	mock := &mockTermService{resp: &llm.NormalizeResponse{Mappings: []llm.TermFix{
		{ID: "r1", TermMapping: model.TermMapping{Driver: "Temperature", Response: "Growth"}},
	}}}
	n := newTestNormalizer(corpus, mock)

	first, err := n.Run(context.Background())
	if err != nil || first != 1 {
		t.Fatalf("First run = (%d, %v), want 1 change", first, err)
	}

	// Re-running with the same mapping set is a no-op on the corpus
	second, err := n.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if second != 0 {
		t.Errorf("Second run changed %d records, want 0 (idempotence)", second)
	}
}

func TestRun_DegradesToZeroChangesOnFailure(t *testing.T) {
	mock := &mockTermService{err: &llm.ServiceError{Kind: llm.KindOverloaded, Message: "overloaded"}}
	n := newTestNormalizer(termCorpus(), mock)
	n.MaxRetries = 1

	changed, err := n.Run(context.Background())
	if err != nil {
		t.Fatalf("Degraded run must not error: %v", err)
	}
	if changed != 0 {
		t.Errorf("Changed = %d, want 0", changed)
	}
	if mock.calls != 2 { // Initial + 1 bounded retry
		t.Errorf("Service called %d times, want 2", mock.calls)
	}
}

func TestRun_EmptyCorpusSkipsService(t *testing.T) {
	mock := &mockTermService{}
	n := newTestNormalizer(model.NewCorpus("t", false), mock)

	changed, err := n.Run(context.Background())
	if err != nil || changed != 0 {
		t.Fatalf("Run() = (%d, %v)", changed, err)
	}
	if mock.calls != 0 {
		t.Errorf("Empty corpus should not hit the service")
	}
}

func TestRun_BlockedWhileExtractionActive(t *testing.T) {
	corpus := termCorpus()
	if err := corpus.Begin("extraction"); err != nil {
		t.Fatal(err)
	}
	defer corpus.End()

	n := newTestNormalizer(corpus, &mockTermService{})
	if _, err := n.Run(context.Background()); err == nil {
		t.Error("Normalization must not run concurrently with extraction")
	}
}
