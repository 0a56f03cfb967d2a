// Package consolidate generates, filters, and applies structural change
// proposals against the corpus taxonomy, respecting user-placed locks and
// never re-proposing something the user already rejected.
package consolidate

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pmorozova/litsort/internal/llm"
	"github.com/pmorozova/litsort/internal/model"
)

// Consolidator is the slice of the service layer the engine needs
type Consolidator interface {
	Consolidate(ctx context.Context, req llm.ConsolidateRequest) (*llm.ConsolidateResponse, error)
	VerifyMove(ctx context.Context, theme, from, to string, titles []string) (*llm.VerifyResult, error)
	JustifyMerge(ctx context.Context, source, target string) (string, error)
}

// Engine analyzes the corpus taxonomy and manages the pending proposal list
// for one consolidation run. Proposals are run-local: a new Generate call
// supersedes whatever was pending.
type Engine struct {
	svc    Consolidator
	corpus *model.Corpus

	SampleTitles int // Titles per theme in the generation context
	VerifyTitles int // Larger sample for move verification
	MaxRetries   int // Bounded retries before degrading to no changes

	pending []model.Proposal
	nextID  int

	sleep func(context.Context, time.Duration) error
	log   io.Writer
}

// NewEngine creates a consolidation engine over the given corpus
func NewEngine(svc Consolidator, corpus *model.Corpus, log io.Writer) *Engine {
	return &Engine{
		svc:          svc,
		corpus:       corpus,
		SampleTitles: 3,
		VerifyTitles: 10,
		MaxRetries:   2,
		sleep:        sleepCtx,
		log:          log,
	}
}

// Pending returns the still-pending proposals of the current run
func (e *Engine) Pending() []model.Proposal {
	return e.pending
}

// Get returns the pending proposal with the given run-local ID
func (e *Engine) Get(id int) (*model.Proposal, bool) {
	for i := range e.pending {
		if e.pending[i].ID == id {
			return &e.pending[i], true
		}
	}
	return nil, false
}

// Generate requests a structural analysis and fills the pending list with
// filtered proposals. Failures degrade to an empty pending list rather than
// an error: consolidation is an enhancement pass over already-durable data.
// Returns the response status (suggestions_made or no_changes).
func (e *Engine) Generate(ctx context.Context) (string, error) {
	if err := e.corpus.Begin("consolidation"); err != nil {
		return "", err
	}
	defer e.corpus.End()

	e.pending = nil
	e.nextID = 0

	req := llm.ConsolidateRequest{
		Taxonomy: e.corpus.Taxonomy(e.SampleTitles),
		Locks:    e.corpus.Locks,
		Rejected: e.corpus.Rejections.Signatures,
	}

	resp, err := e.callWithRetry(ctx, req)
	if err != nil {
		e.logf("Warning: consolidation degraded to no changes: %v\n", err)
		return llm.StatusNoChanges, nil
	}

	for _, s := range resp.ThemeMerges {
		e.admit(model.Proposal{
			Kind: model.KindMergeThemes, Category: s.Category, Themes: s.Themes,
			NewName: s.NewName, Justification: s.Justification,
		})
	}
	for _, s := range resp.ThemeMoves {
		e.admit(model.Proposal{
			Kind: model.KindMoveTheme, Category: s.FromCategory, Theme: s.Theme,
			TargetCategory: s.ToCategory, Justification: s.Justification,
		})
	}
	for _, s := range resp.CategoryMerges {
		e.admit(model.Proposal{
			Kind: model.KindMergeCategories, Category: s.Source,
			TargetCategory: s.Target, Justification: s.Justification,
		})
	}
	for _, s := range resp.CategoryRenames {
		e.admit(model.Proposal{
			Kind: model.KindRenameCategory, Category: s.Category,
			NewName: s.NewName, Justification: s.Justification,
		})
	}

	if len(e.pending) == 0 {
		return llm.StatusNoChanges, nil
	}
	return llm.StatusSuggestionsMade, nil
}

// callWithRetry applies the engine's own bounded retry policy to the
// generation call
func (e *Engine) callWithRetry(ctx context.Context, req llm.ConsolidateRequest) (*llm.ConsolidateResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= e.MaxRetries; attempt++ {
		resp, err := e.svc.Consolidate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !llm.Classify(err).Retryable() {
			break
		}
		if serr := e.sleep(ctx, time.Second<<uint(attempt)); serr != nil {
			return nil, serr
		}
	}
	return nil, lastErr
}

// admit filters one candidate before it reaches the user: locked entities,
// self-merges, no-op moves, and already-rejected signatures are discarded.
func (e *Engine) admit(p model.Proposal) {
	if !e.meaningful(p) || e.lockedOut(p) {
		return
	}
	if e.corpus.Rejections.Contains(p.Signature()) {
		return
	}
	e.nextID++
	p.ID = e.nextID
	e.pending = append(e.pending, p)
}

// meaningful discards self-merges and no-op moves
func (e *Engine) meaningful(p model.Proposal) bool {
	switch p.Kind {
	case model.KindMergeThemes:
		if len(p.Themes) == 0 || p.NewName == "" {
			return false
		}
		// A merge whose only member already carries the target name
		if len(p.Themes) == 1 && strings.EqualFold(p.Themes[0], p.NewName) {
			return false
		}
	case model.KindMoveTheme:
		if p.Theme == "" || strings.EqualFold(p.Category, p.TargetCategory) {
			return false
		}
	case model.KindMergeCategories:
		if strings.EqualFold(p.Category, p.TargetCategory) {
			return false
		}
	case model.KindRenameCategory:
		if p.NewName == "" || strings.EqualFold(p.Category, p.NewName) {
			return false
		}
	}
	return true
}

// lockedOut applies the lock policy: a locked category or theme never
// appears as source, member, or rename subject of a new proposal. A move
// *into* a locked category stays allowed.
func (e *Engine) lockedOut(p model.Proposal) bool {
	locks := &e.corpus.Locks
	switch p.Kind {
	case model.KindMergeThemes:
		if locks.CategoryLocked(p.Category) {
			return true
		}
		for _, t := range p.Themes {
			if locks.ThemeLocked(p.Category, t) {
				return true
			}
		}
	case model.KindMoveTheme:
		// Source side only: the target category may be locked
		if locks.CategoryLocked(p.Category) || locks.ThemeLocked(p.Category, p.Theme) {
			return true
		}
	case model.KindMergeCategories:
		if locks.CategoryLocked(p.Category) || locks.CategoryLocked(p.TargetCategory) {
			return true
		}
	case model.KindRenameCategory:
		if locks.CategoryLocked(p.Category) {
			return true
		}
	}
	return false
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.log != nil {
		fmt.Fprintf(e.log, format, args...)
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
