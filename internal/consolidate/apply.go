package consolidate

import (
	"context"
	"fmt"

	"github.com/pmorozova/litsort/internal/model"
)

// Accept applies the identified proposal to the corpus, drops it from the
// pending list, and propagates any category renaming into every other
// still-pending proposal so none of them is left referencing a name that no
// longer exists. Returns the number of records rewritten.
func (e *Engine) Accept(id int) (int, error) {
	p, ok := e.Get(id)
	if !ok {
		return 0, fmt.Errorf("no pending proposal %d", id)
	}
	accepted := *p

	var touched int
	switch accepted.Kind {
	case model.KindMergeThemes:
		touched = e.corpus.MergeThemes(accepted.Category, accepted.Themes, accepted.NewName)
	case model.KindMoveTheme:
		touched = e.corpus.MoveTheme(accepted.Category, accepted.Theme, accepted.TargetCategory)
	case model.KindMergeCategories:
		touched = e.corpus.MergeCategories(accepted.Category, accepted.TargetCategory)
	case model.KindRenameCategory:
		touched = e.corpus.RenameCategory(accepted.Category, accepted.NewName)
	default:
		return 0, fmt.Errorf("unknown proposal kind %q", accepted.Kind)
	}

	e.remove(id)

	// Category renames and merges retire the old category name; every other
	// pending proposal that referenced it must follow, or it would later
	// operate on a now-nonexistent category.
	switch accepted.Kind {
	case model.KindRenameCategory:
		e.propagateCategory(accepted.Category, accepted.NewName)
	case model.KindMergeCategories:
		e.propagateCategory(accepted.Category, accepted.TargetCategory)
	}

	return touched, nil
}

// propagateCategory substitutes old for new in the category references of
// every pending proposal. Theme merges need no cross-proposal handling
// beyond this: theme names are scoped to one category.
func (e *Engine) propagateCategory(old, new string) {
	for i := range e.pending {
		p := &e.pending[i]
		if p.Category == old {
			p.Category = new
		}
		if p.TargetCategory == old {
			p.TargetCategory = new
		}
	}
}

// Reject logs the proposal's canonical signature in the corpus rejection
// log, so no later consolidation run regenerates it, and drops it from the
// pending list.
func (e *Engine) Reject(id int) error {
	p, ok := e.Get(id)
	if !ok {
		return fmt.Errorf("no pending proposal %d", id)
	}
	e.corpus.Rejections.Add(p.Signature())
	e.remove(id)
	return nil
}

// Verify re-queries the service about a move proposal with a larger title
// sample from the theme. An invalid judgment discards the proposal rather
// than accepting it. Returns whether the proposal survived.
func (e *Engine) Verify(ctx context.Context, id int) (bool, string, error) {
	p, ok := e.Get(id)
	if !ok {
		return false, "", fmt.Errorf("no pending proposal %d", id)
	}
	if p.Kind != model.KindMoveTheme {
		return false, "", fmt.Errorf("only move proposals can be verified")
	}

	titles := e.corpus.TitlesFor(p.Category, p.Theme, e.VerifyTitles)
	res, err := e.svc.VerifyMove(ctx, p.Theme, p.Category, p.TargetCategory, titles)
	if err != nil {
		return false, "", err
	}

	if !res.Valid {
		e.remove(id)
		return false, res.Reason, nil
	}
	p.Verified = true
	return true, res.Reason, nil
}

// Reverse flips a proposal's direction in place. A category merge swaps
// source and target with a fresh justification for the inverse direction. A
// move becomes a category merge folding the move's target category into the
// theme's current category: the user is rejecting the narrow move in favor
// of the broader inverse consolidation.
func (e *Engine) Reverse(ctx context.Context, id int) (*model.Proposal, error) {
	p, ok := e.Get(id)
	if !ok {
		return nil, fmt.Errorf("no pending proposal %d", id)
	}

	switch p.Kind {
	case model.KindMergeCategories:
		source, target := p.TargetCategory, p.Category
		just, err := e.svc.JustifyMerge(ctx, source, target)
		if err != nil {
			return nil, err
		}
		p.Category = source
		p.TargetCategory = target
		p.Justification = just
		p.Verified = false
		return p, nil

	case model.KindMoveTheme:
		source, target := p.TargetCategory, p.Category
		just, err := e.svc.JustifyMerge(ctx, source, target)
		if err != nil {
			return nil, err
		}
		p.Kind = model.KindMergeCategories
		p.Category = source
		p.TargetCategory = target
		p.Theme = ""
		p.Justification = just
		p.Verified = false
		return p, nil
	}

	return nil, fmt.Errorf("proposal kind %q cannot be reversed", p.Kind)
}

func (e *Engine) remove(id int) {
	for i := range e.pending {
		if e.pending[i].ID == id {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			return
		}
	}
}
