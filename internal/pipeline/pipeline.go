// Package pipeline drives the resumable batch-extraction state machine:
// it feeds segmented batches to the external service, applies retry policy,
// and suspends for human correction on unrecoverable parse failures.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/pmorozova/litsort/internal/llm"
	"github.com/pmorozova/litsort/internal/model"
	"github.com/pmorozova/litsort/internal/segment"
)

// Extractor is the slice of the service layer the pipeline needs
type Extractor interface {
	ExtractRecords(ctx context.Context, req llm.ExtractRequest) (*llm.ExtractResponse, error)
	AuditTaxonomy(ctx context.Context, pairs []string) (*llm.AuditResponse, error)
}

// State is the pipeline's position in its lifecycle
type State int

const (
	StateIdle State = iota
	StateRunning
	StateAwaitingFix // Paused for human correction of one batch's text
	StateStopped     // User-requested cooperative stop
	StateFailed      // Fatal service error
	StateDone        // Every batch succeeded
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateAwaitingFix:
		return "awaiting_fix"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	case StateDone:
		return "done"
	}
	return "idle"
}

// BatchStatus tracks one batch through the run
type BatchStatus string

const (
	BatchPending     BatchStatus = "pending"
	BatchInFlight    BatchStatus = "in_flight"
	BatchSucceeded   BatchStatus = "succeeded"
	BatchAwaitingFix BatchStatus = "awaiting_fix"
	BatchFailed      BatchStatus = "failed"
)

// BatchState is one batch's ordinal position and status
type BatchState struct {
	Index  int
	Status BatchStatus
	Text   string
}

// RunResult summarizes a pipeline run (or partial run)
type RunResult struct {
	State         State
	BatchesDone   int
	RecordsMerged int
	Retries       int
	AuditFixes    int
	FailKind      llm.Kind
}

// Pipeline is the sequential extraction state machine. It is driven from a
// single cooperative thread; only Stop may be called concurrently.
type Pipeline struct {
	svc    Extractor
	corpus *model.Corpus
	cfg    model.PipelineConfig

	batches []BatchState
	next    int
	state   State

	stop atomic.Bool

	pacer *rate.Limiter // Courtesy pacing between successive batches
	sleep func(context.Context, time.Duration) error
	rng   *rand.Rand

	log io.Writer // nil disables progress output

	retries       int
	recordsMerged int
	auditFixes    int
}

// New creates a pipeline over the given corpus
func New(svc Extractor, corpus *model.Corpus, cfg model.PipelineConfig, log io.Writer) *Pipeline {
	p := &Pipeline{
		svc:    svc,
		corpus: corpus,
		cfg:    cfg,
		state:  StateIdle,
		sleep:  sleepCtx,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		log:    log,
	}
	if cfg.CourtesyDelay > 0 {
		p.pacer = rate.NewLimiter(rate.Every(cfg.CourtesyDelay), 1)
	}
	return p
}

// LoadText segments the raw input into batches. Fails on empty input.
func (p *Pipeline) LoadText(raw string) error {
	chunks := segment.Split(raw, p.cfg.ChunkSize)
	if len(chunks) == 0 {
		return fmt.Errorf("input text is empty")
	}
	p.batches = make([]BatchState, len(chunks))
	for i, c := range chunks {
		p.batches[i] = BatchState{Index: i, Status: BatchPending, Text: c}
	}
	p.next = 0
	p.state = StateIdle
	return nil
}

// State returns the pipeline's current state
func (p *Pipeline) State() State {
	return p.state
}

// Batches returns the batch states (read-only view for progress display)
func (p *Pipeline) Batches() []BatchState {
	return p.batches
}

// AwaitingFix returns the paused batch's index and original text when the
// pipeline is suspended for manual correction
func (p *Pipeline) AwaitingFix() (int, string, bool) {
	if p.state != StateAwaitingFix {
		return 0, "", false
	}
	return p.next, p.batches[p.next].Text, true
}

// Stop requests a cooperative stop. The in-flight batch completes; the loop
// exits before submitting the next one. Safe to call from another goroutine.
func (p *Pipeline) Stop() {
	p.stop.Store(true)
}

// Run processes batches strictly in index order, merging each batch's output
// before submitting the next. Returns the summary; the error is non-nil only
// for fatal failures.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	if len(p.batches) == 0 {
		return nil, fmt.Errorf("no batches loaded")
	}
	if err := p.corpus.Begin("extraction"); err != nil {
		return nil, err
	}
	defer p.corpus.End()
	return p.run(ctx)
}

// ResumeWithFix re-enters the pipeline at the paused batch index with
// human-edited text, then continues with the remaining batches.
func (p *Pipeline) ResumeWithFix(ctx context.Context, edited string) (*RunResult, error) {
	if p.state != StateAwaitingFix {
		return nil, fmt.Errorf("pipeline is not awaiting a fix (state: %s)", p.state)
	}
	cleaned := segment.Clean(edited)
	if cleaned == "" {
		return nil, fmt.Errorf("corrected text is empty")
	}
	if err := p.corpus.Begin("extraction"); err != nil {
		return nil, err
	}
	defer p.corpus.End()

	p.batches[p.next].Text = cleaned
	p.batches[p.next].Status = BatchPending
	p.stop.Store(false)
	return p.run(ctx)
}

func (p *Pipeline) run(ctx context.Context) (*RunResult, error) {
	p.state = StateRunning

	for p.next < len(p.batches) {
		// Cooperative stop, checked only between batches
		if p.stop.Load() {
			p.state = StateStopped
			return p.result(), nil
		}

		// Courtesy pacing: stay under service-side limits proactively
		if p.pacer != nil && p.next > 0 {
			if err := p.pacer.Wait(ctx); err != nil {
				p.state = StateStopped
				return p.result(), nil
			}
		}

		b := &p.batches[p.next]
		if err := p.processBatch(ctx, b); err != nil {
			kind := llm.Classify(err)
			if kind == llm.KindParseFailure {
				// Not a processing error: pause for human correction of the
				// original batch text and resume at this same index
				b.Status = BatchAwaitingFix
				p.state = StateAwaitingFix
				p.logf("⏸ Batch %d needs manual correction: %v\n", b.Index, err)
				return p.result(), nil
			}
			b.Status = BatchFailed
			p.state = StateFailed
			return p.resultWithKind(kind), err
		}

		b.Status = BatchSucceeded
		p.next++
	}

	p.state = StateDone

	// One-shot audit over the completed taxonomy. An audit failure degrades
	// to zero fixes rather than failing already-durable data.
	if n, err := p.runAudit(ctx); err != nil {
		p.logf("Warning: taxonomy audit failed: %v\n", err)
	} else {
		p.auditFixes = n
	}

	return p.result(), nil
}

// processBatch submits one batch with retry policy: exponential backoff plus
// jitter for retryable kinds up to the ceiling, immediate escalation for
// everything else. Parse failures never consume a retry slot.
func (p *Pipeline) processBatch(ctx context.Context, b *BatchState) error {
	b.Status = BatchInFlight
	req := llm.ExtractRequest{
		Topic:        p.corpus.Topic,
		Text:         b.Text,
		TaxonomyHint: p.corpus.Taxonomy(0).Hint(),
		Species:      p.corpus.SpeciesEnabled,
	}

	for attempt := 0; ; attempt++ {
		resp, err := p.svc.ExtractRecords(ctx, req)
		if err == nil {
			merged := Merge(p.corpus, resp)
			p.recordsMerged += len(merged)
			p.logf("✓ Batch %d/%d: %d records\n", b.Index+1, len(p.batches), len(merged))
			return nil
		}

		kind := llm.Classify(err)
		if !kind.Retryable() {
			return err
		}
		if attempt >= p.cfg.MaxRetries {
			return fmt.Errorf("retry ceiling (%d) exceeded on batch %d: %w", p.cfg.MaxRetries, b.Index, err)
		}

		delay := p.backoff(attempt)
		p.retries++
		p.logf("… Batch %d hit %s, retrying in %v (attempt %d/%d)\n", b.Index, kind, delay.Round(time.Millisecond), attempt+1, p.cfg.MaxRetries)
		if serr := p.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
}

// backoff computes the exponentially growing, jittered retry delay
func (p *Pipeline) backoff(attempt int) time.Duration {
	base := p.cfg.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	d := base << uint(attempt)
	jitter := time.Duration(p.rng.Int63n(int64(d)/2 + 1))
	return d + jitter
}

func (p *Pipeline) result() *RunResult {
	return p.resultWithKind(llm.KindUnclassified)
}

func (p *Pipeline) resultWithKind(kind llm.Kind) *RunResult {
	return &RunResult{
		State:         p.state,
		BatchesDone:   p.next,
		RecordsMerged: p.recordsMerged,
		Retries:       p.retries,
		AuditFixes:    p.auditFixes,
		FailKind:      kind,
	}
}

func (p *Pipeline) logf(format string, args ...interface{}) {
	if p.log != nil {
		fmt.Fprintf(p.log, format, args...)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
