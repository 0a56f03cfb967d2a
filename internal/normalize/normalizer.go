// Package normalize canonicalizes free-text metadata fields across the
// whole corpus in one bulk service call.
package normalize

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pmorozova/litsort/internal/llm"
	"github.com/pmorozova/litsort/internal/model"
)

// TermService is the slice of the service layer the normalizer needs
type TermService interface {
	NormalizeTerms(ctx context.Context, entries []llm.TermEntry) (*llm.NormalizeResponse, error)
}

// Normalizer maps driver/response/location/species values to canonical forms
// and assigns coarser driver/response group labels
type Normalizer struct {
	svc    TermService
	corpus *model.Corpus

	MaxRetries int

	sleep func(context.Context, time.Duration) error
	log   io.Writer
}

// New creates a normalizer over the given corpus
func New(svc TermService, corpus *model.Corpus, log io.Writer) *Normalizer {
	return &Normalizer{
		svc:        svc,
		corpus:     corpus,
		MaxRetries: 2,
		sleep:      sleepCtx,
		log:        log,
	}
}

// Run requests canonical mappings for every record and applies them as one
// corpus rewrite keyed by record identifier. Records without a returned
// mapping are left untouched. Re-running on an already-normalized corpus
// applies zero changes. Failures degrade to zero changes: normalization is
// an enhancement pass over already-durable data.
func (n *Normalizer) Run(ctx context.Context) (int, error) {
	if err := n.corpus.Begin("normalization"); err != nil {
		return 0, err
	}
	defer n.corpus.End()

	if len(n.corpus.Records) == 0 {
		return 0, nil
	}

	entries := make([]llm.TermEntry, 0, len(n.corpus.Records))
	for _, r := range n.corpus.Records {
		entries = append(entries, llm.TermEntry{
			ID:       r.ID,
			Driver:   r.Driver,
			Response: r.Response,
			Location: r.Location,
			Species:  r.Species,
		})
	}

	resp, err := n.callWithRetry(ctx, entries)
	if err != nil {
		n.logf("Warning: normalization degraded to no changes: %v\n", err)
		return 0, nil
	}

	mappings := make(map[string]model.TermMapping, len(resp.Mappings))
	for _, fix := range resp.Mappings {
		mappings[fix.ID] = fix.TermMapping
	}

	return n.corpus.ApplyTerms(mappings), nil
}

func (n *Normalizer) callWithRetry(ctx context.Context, entries []llm.TermEntry) (*llm.NormalizeResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= n.MaxRetries; attempt++ {
		resp, err := n.svc.NormalizeTerms(ctx, entries)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !llm.Classify(err).Retryable() {
			break
		}
		if serr := n.sleep(ctx, time.Second<<uint(attempt)); serr != nil {
			return nil, serr
		}
	}
	return nil, lastErr
}

func (n *Normalizer) logf(format string, args ...interface{}) {
	if n.log != nil {
		fmt.Fprintf(n.log, format, args...)
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
