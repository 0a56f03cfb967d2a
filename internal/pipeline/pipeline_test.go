package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/pmorozova/litsort/internal/llm"
	"github.com/pmorozova/litsort/internal/model"
)

// scriptedService returns queued responses/errors in order, recording the
// requests it saw
type scriptedService struct {
	responses []*llm.ExtractResponse
	errs      []error
	calls     int
	hints     []string

	auditResp  *llm.AuditResponse
	auditErr   error
	auditCalls int
}

func (s *scriptedService) ExtractRecords(ctx context.Context, req llm.ExtractRequest) (*llm.ExtractResponse, error) {
	i := s.calls
	s.calls++
	s.hints = append(s.hints, req.TaxonomyHint)
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i < len(s.responses) && s.responses[i] != nil {
		return s.responses[i], nil
	}
	return &llm.ExtractResponse{}, nil
}

func (s *scriptedService) AuditTaxonomy(ctx context.Context, pairs []string) (*llm.AuditResponse, error) {
	s.auditCalls++
	if s.auditErr != nil {
		return nil, s.auditErr
	}
	if s.auditResp != nil {
		return s.auditResp, nil
	}
	return &llm.AuditResponse{}, nil
}

func entryResp(category, theme string, titles ...string) *llm.ExtractResponse {
	resp := &llm.ExtractResponse{}
	for _, t := range titles {
		resp.Entries = append(resp.Entries, llm.ExtractEntry{
			Title: t, Category: category, Theme: theme,
			Driver: "Temperature", Response: "Growth", Effect: "Negative",
		})
	}
	return resp
}

func testConfig() model.PipelineConfig {
	return model.PipelineConfig{
		ChunkSize:  0, // One batch per explicit paragraph via small inputs
		MaxRetries: 5,
		BaseDelay:  time.Millisecond,
	}
}

func newTestPipeline(t *testing.T, svc *scriptedService, text string, chunkSize int) (*Pipeline, *model.Corpus, *[]time.Duration) {
	t.Helper()
	corpus := model.NewCorpus("test topic", false)
	cfg := testConfig()
	cfg.ChunkSize = chunkSize
	p := New(svc, corpus, cfg, nil)

	var delays []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	if err := p.LoadText(text); err != nil {
		t.Fatalf("LoadText() error: %v", err)
	}
	return p, corpus, &delays
}

func TestRun_AllBatchesSucceed(t *testing.T) {
	svc := &scriptedService{
		responses: []*llm.ExtractResponse{
			entryResp("Heat", "Bleaching", "P1"),
			entryResp("Drought", "Roots", "P2"),
		},
	}
	p, corpus, _ := newTestPipeline(t, svc, "Paper1\nabstract1\n\nPaper2\nabstract2", 25)

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.State != StateDone {
		t.Errorf("State = %v, want done", res.State)
	}
	if corpus.Len() != 2 {
		t.Errorf("Corpus has %d records, want 2", corpus.Len())
	}
	if svc.auditCalls != 1 {
		t.Errorf("Audit ran %d times, want 1", svc.auditCalls)
	}
}

func TestRun_TaxonomyHintFeedsForward(t *testing.T) {
	svc := &scriptedService{
		responses: []*llm.ExtractResponse{
			entryResp("Thermal Stress", "Bleaching", "P1"),
			entryResp("Thermal Stress", "Bleaching", "P2"),
		},
	}
	p, _, _ := newTestPipeline(t, svc, "Paper1\nabstract1\n\nPaper2\nabstract2", 25)

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if svc.hints[0] != "" {
		t.Errorf("First batch should see an empty hint, got %q", svc.hints[0])
	}
	if !strings.Contains(svc.hints[1], "Thermal Stress") {
		t.Errorf("Second batch hint should carry first batch's taxonomy, got %q", svc.hints[1])
	}
}

func TestRun_RetriesTransientErrors(t *testing.T) {
	// Three Overloaded responses, then success
	overloaded := &llm.ServiceError{Kind: llm.KindOverloaded, Status: 503, Message: "overloaded"}
	svc := &scriptedService{
		errs:      []error{overloaded, overloaded, overloaded, nil},
		responses: []*llm.ExtractResponse{nil, nil, nil, entryResp("Heat", "Bleaching", "P1", "P1b")},
	}
	p, corpus, delays := newTestPipeline(t, svc, "Paper1\nabstract1", 100)

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(*delays) != 3 {
		t.Errorf("Recorded %d retry delays, want 3", len(*delays))
	}
	if res.Retries != 3 {
		t.Errorf("Retries = %d, want 3", res.Retries)
	}
	if corpus.Len() != 2 {
		t.Errorf("Corpus has %d records, want 2 (no duplicates from retries)", corpus.Len())
	}
	ids := map[string]bool{}
	for _, r := range corpus.Records {
		if ids[r.ID] {
			t.Errorf("Duplicate record ID %s", r.ID)
		}
		ids[r.ID] = true
	}
}

func TestRun_BackoffGrows(t *testing.T) {
	overloaded := &llm.ServiceError{Kind: llm.KindOverloaded, Message: "overloaded"}
	svc := &scriptedService{
		errs:      []error{overloaded, overloaded, overloaded, nil},
		responses: []*llm.ExtractResponse{nil, nil, nil, entryResp("H", "T", "P")},
	}
	p, _, delays := newTestPipeline(t, svc, "text", 100)

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	d := *delays
	// Base doubles each attempt; jitter adds at most 50%, so attempt k+1's
	// floor always exceeds attempt k's ceiling at these parameters
	if !(d[0] < d[1] && d[1] < d[2]) {
		t.Errorf("Delays not growing: %v", d)
	}
}

func TestRun_RetryCeilingEscalatesToFatal(t *testing.T) {
	rl := &llm.ServiceError{Kind: llm.KindRateLimited, Status: 429, Message: "rate limit"}
	svc := &scriptedService{errs: []error{rl, rl, rl, rl, rl, rl, rl, rl}}
	p, _, _ := newTestPipeline(t, svc, "text", 100)

	res, err := p.Run(context.Background())
	if err == nil {
		t.Fatal("Expected fatal error after retry ceiling")
	}
	if res.State != StateFailed {
		t.Errorf("State = %v, want failed", res.State)
	}
	if svc.calls != 6 { // Initial attempt + 5 retries
		t.Errorf("Service called %d times, want 6", svc.calls)
	}
}

func TestRun_AuthErrorFatalWithoutRetry(t *testing.T) {
	svc := &scriptedService{errs: []error{&llm.ServiceError{Kind: llm.KindAuth, Status: 401, Message: "bad key"}}}
	p, _, delays := newTestPipeline(t, svc, "text", 100)

	res, err := p.Run(context.Background())
	if err == nil {
		t.Fatal("Expected error")
	}
	if res.FailKind != llm.KindAuth {
		t.Errorf("FailKind = %v, want auth", res.FailKind)
	}
	if len(*delays) != 0 {
		t.Errorf("Auth errors must not be retried, saw %d delays", len(*delays))
	}
	if svc.calls != 1 {
		t.Errorf("Service called %d times, want 1", svc.calls)
	}
}

func TestRun_QuotaErrorFatalWithoutRetry(t *testing.T) {
	svc := &scriptedService{errs: []error{&llm.ServiceError{Kind: llm.KindQuota, Status: 429, Message: "quota exhausted"}}}
	p, _, _ := newTestPipeline(t, svc, "text", 100)

	res, err := p.Run(context.Background())
	if err == nil {
		t.Fatal("Expected error")
	}
	if res.FailKind != llm.KindQuota {
		t.Errorf("FailKind = %v, want quota", res.FailKind)
	}
	if svc.calls != 1 {
		t.Errorf("Service called %d times, want 1", svc.calls)
	}
}

func TestRun_ParseFailurePausesAndResumes(t *testing.T) {
	// Parse failure on batch 2 of 5
	parseFail := &llm.ServiceError{Kind: llm.KindParseFailure, Message: "undecodable"}
	svc := &scriptedService{
		errs: []error{nil, nil, parseFail, nil, nil, nil},
		responses: []*llm.ExtractResponse{
			entryResp("C0", "T0", "P0"),
			entryResp("C1", "T1", "P1"),
			nil,
			entryResp("C2", "T2", "P2"),
			entryResp("C3", "T3", "P3"),
			entryResp("C4", "T4", "P4"),
		},
	}
	text := "b0\n\nb1\n\nb2\n\nb3\n\nb4"
	p, corpus, _ := newTestPipeline(t, svc, text, 3)

	if len(p.Batches()) != 5 {
		t.Fatalf("Expected 5 batches, got %d", len(p.Batches()))
	}

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("AwaitingFix pause must not be an error, got %v", err)
	}
	if res.State != StateAwaitingFix {
		t.Fatalf("State = %v, want awaiting_fix", res.State)
	}

	idx, raw, ok := p.AwaitingFix()
	if !ok || idx != 2 {
		t.Fatalf("AwaitingFix() = (%d, %v), want index 2", idx, ok)
	}
	if raw != "b2" {
		t.Errorf("Paused batch carries %q, want the original batch text", raw)
	}

	// Snapshot batch 0-1 records before resuming
	beforeIDs := make([]string, 0, corpus.Len())
	for _, r := range corpus.Records {
		beforeIDs = append(beforeIDs, r.ID)
	}
	if len(beforeIDs) != 2 {
		t.Fatalf("Expected 2 records before resume, got %d", len(beforeIDs))
	}

	res, err = p.ResumeWithFix(context.Background(), "b2 corrected")
	if err != nil {
		t.Fatalf("ResumeWithFix() error: %v", err)
	}
	if res.State != StateDone {
		t.Errorf("State = %v, want done", res.State)
	}
	if corpus.Len() != 5 {
		t.Errorf("Corpus has %d records, want 5", corpus.Len())
	}
	for i, id := range beforeIDs {
		if corpus.Records[i].ID != id {
			t.Errorf("Pre-pause record %d changed identifier: %s -> %s", i, id, corpus.Records[i].ID)
		}
	}
	if svc.calls != 6 { // 2 ok + 1 parse failure + 3 remaining
		t.Errorf("Service called %d times, want 6 (batches k..N-1 exactly once)", svc.calls)
	}
}

func TestRun_ResumeRejectsEmptyFix(t *testing.T) {
	parseFail := &llm.ServiceError{Kind: llm.KindParseFailure, Message: "undecodable"}
	svc := &scriptedService{errs: []error{parseFail}}
	p, _, _ := newTestPipeline(t, svc, "text", 100)

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := p.ResumeWithFix(context.Background(), "   "); err == nil {
		t.Error("Expected error for blank corrected text")
	}
}

func TestRun_CooperativeStop(t *testing.T) {
	svc := &scriptedService{
		responses: []*llm.ExtractResponse{entryResp("C0", "T0", "P0")},
	}
	text := "b0\n\nb1\n\nb2"
	p, corpus, _ := newTestPipeline(t, svc, text, 3)

	// Stop is requested while batch 0 is in flight: the flag is only checked
	// at the top of each iteration, so batch 0 still merges
	svc.responses = append(svc.responses, entryResp("C1", "T1", "P1"))
	p.svc = &stopAfter{inner: svc, p: p, after: 1}

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.State != StateStopped {
		t.Errorf("State = %v, want stopped", res.State)
	}
	if corpus.Len() != 1 {
		t.Errorf("In-flight batch must complete before stopping; corpus has %d records", corpus.Len())
	}
}

// stopAfter sets the pipeline's stop flag after n successful extract calls
type stopAfter struct {
	inner Extractor
	p     *Pipeline
	after int
	count int
}

func (s *stopAfter) ExtractRecords(ctx context.Context, req llm.ExtractRequest) (*llm.ExtractResponse, error) {
	resp, err := s.inner.ExtractRecords(ctx, req)
	s.count++
	if s.count >= s.after {
		s.p.Stop()
	}
	return resp, err
}

func (s *stopAfter) AuditTaxonomy(ctx context.Context, pairs []string) (*llm.AuditResponse, error) {
	return s.inner.AuditTaxonomy(ctx, pairs)
}

func TestRun_UnclassifiedErrorPropagatesVerbatim(t *testing.T) {
	boom := errors.New("disk on fire")
	svc := &scriptedService{errs: []error{boom}}
	p, _, _ := newTestPipeline(t, svc, "text", 100)

	_, err := p.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("Expected verbatim propagation, got %v", err)
	}
}

func TestAudit_AppliesFixesByExactMatch(t *testing.T) {
	svc := &scriptedService{
		responses: []*llm.ExtractResponse{entryResp("Heat Stress", "Bleaching", "P0", "P1")},
		auditResp: &llm.AuditResponse{Fixes: []llm.AuditFix{
			{OriginalCategory: "Heat Stress", OriginalTheme: "Bleaching", NewCategory: "Thermal Stress", NewTheme: "Coral Bleaching", Reason: "duplicate"},
			{OriginalCategory: "Nope", OriginalTheme: "Missing", NewCategory: "X", NewTheme: "Y", Reason: "no match"},
		}},
	}
	p, corpus, _ := newTestPipeline(t, svc, "text", 100)

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.AuditFixes != 2 {
		t.Errorf("AuditFixes = %d, want 2 records rewritten", res.AuditFixes)
	}
	for _, r := range corpus.Records {
		if r.Category != "Thermal Stress" || r.Theme != "Coral Bleaching" {
			t.Errorf("Record %s not rewritten: %s/%s", r.ID, r.Category, r.Theme)
		}
	}
}

func TestAudit_FailureIsNonFatal(t *testing.T) {
	svc := &scriptedService{
		responses: []*llm.ExtractResponse{entryResp("C", "T", "P")},
		auditErr:  fmt.Errorf("audit exploded"),
	}
	p, _, _ := newTestPipeline(t, svc, "text", 100)

	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Audit failure must not fail the run: %v", err)
	}
	if res.State != StateDone {
		t.Errorf("State = %v, want done", res.State)
	}
}

func TestMerge_DefaultsAndIdentifiers(t *testing.T) {
	corpus := model.NewCorpus("t", false)
	resp := &llm.ExtractResponse{Entries: []llm.ExtractEntry{
		{Title: "A", Category: "C", Theme: "T", Effect: "Negative"},
		{}, // Everything missing
	}}

	recs := Merge(corpus, resp)
	if len(recs) != 2 {
		t.Fatalf("Merged %d records, want 2", len(recs))
	}
	if recs[0].ID == recs[1].ID {
		t.Error("Record IDs must be unique within a batch")
	}
	blank := recs[1]
	if blank.Category != model.Unspecified || blank.Driver != model.Unspecified || blank.Location != model.Unspecified {
		t.Errorf("Missing fields must default to Unspecified: %+v", blank)
	}
	if blank.Effect != model.EffectUnclear {
		t.Errorf("Invalid effect must clamp to Unclear, got %q", blank.Effect)
	}
}

func TestMerge_CounterSurvivesRetriedBatches(t *testing.T) {
	corpus := model.NewCorpus("t", false)
	first := Merge(corpus, entryResp("C", "T", "P1"))
	second := Merge(corpus, entryResp("C", "T", "P1 edited"))

	if first[0].ID == second[0].ID {
		t.Errorf("Retried logical batch reused identifier %s", first[0].ID)
	}
	if second[0].Batch <= first[0].Batch {
		t.Errorf("Batch counter must strictly increase: %d then %d", first[0].Batch, second[0].Batch)
	}
}

func TestLoadText_RejectsEmptyInput(t *testing.T) {
	p := New(&scriptedService{}, model.NewCorpus("t", false), testConfig(), nil)
	if err := p.LoadText("  \n \n "); err == nil {
		t.Error("Expected error for empty input")
	}
}
