package pipeline

import (
	"context"

	"github.com/pmorozova/litsort/internal/model"
)

// Audit runs the taxonomy audit on its own, outside an extraction run
func Audit(ctx context.Context, svc Extractor, corpus *model.Corpus) (int, error) {
	if err := corpus.Begin("audit"); err != nil {
		return 0, err
	}
	defer corpus.End()

	p := &Pipeline{svc: svc, corpus: corpus}
	return p.runAudit(ctx)
}

// runAudit is the one-shot pass after all batches succeed: it flattens the
// taxonomy to distinct (category, theme) pairs, asks the service for
// duplicate sub-themes spread across categories and hierarchical
// redundancies between categories, and applies returned fixes to matching
// records by exact pair match. Returns the number of records rewritten.
func (p *Pipeline) runAudit(ctx context.Context) (int, error) {
	pairs := p.corpus.Taxonomy(0).Pairs()
	if len(pairs) == 0 {
		return 0, nil
	}

	resp, err := p.svc.AuditTaxonomy(ctx, pairs)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, f := range resp.Fixes {
		if f.NewCategory == "" {
			continue
		}
		n += p.corpus.RewritePair(f.OriginalCategory, f.OriginalTheme, f.NewCategory, f.NewTheme)
	}
	return n, nil
}
