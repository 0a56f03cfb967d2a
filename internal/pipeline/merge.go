package pipeline

import (
	"fmt"

	"github.com/pmorozova/litsort/internal/llm"
	"github.com/pmorozova/litsort/internal/model"
)

// Merge converts one successful batch response into uniquely identified
// records and appends them to the corpus. Identifiers derive from the
// corpus batch sequence, which strictly increases even across resumed and
// manually fixed batches, so IDs never collide when a logical batch is
// retried with edited text.
//
// Appending also grows the taxonomy the next batch receives as contextual
// hint - the feedback loop that steers the service toward reusing existing
// category names.
func Merge(corpus *model.Corpus, resp *llm.ExtractResponse) []model.Record {
	if resp == nil || len(resp.Entries) == 0 {
		return nil
	}

	seq := corpus.NextBatch()
	recs := make([]model.Record, 0, len(resp.Entries))
	for i, e := range resp.Entries {
		r := model.Record{
			ID:       fmt.Sprintf("rec-%d-%d", seq, i+1),
			Category: e.Category,
			Theme:    e.Theme,
			Driver:   e.Driver,
			Response: e.Response,
			Effect:   model.EffectDirection(e.Effect),
			Title:    e.Title,
			Authors:  e.Authors,
			Year:     e.Year,
			Journal:  e.Journal,
			Finding:  e.Finding,
			Keywords: e.Keywords,
			Location: e.Location,
			Species:  e.Species,
			Citation: e.Citation,
			Batch:    seq,
		}
		// No field is ever left empty: downstream grouping must never
		// silently drop records
		r.FillDefaults()
		recs = append(recs, r)
	}

	corpus.Append(recs)
	return recs
}
