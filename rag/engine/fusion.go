package engine

import (
	"sort"

	"github.com/mudler/hybridrecall/rag/types"
)

// ScoreList converts the position of each document into a reciprocal rank
// score: 1 / (rank + priority + 1). A higher priority shifts the whole list
// down, dampening the source.
func ScoreList(hits []types.DocumentRef, priority float64) []types.ScoredHit {
	scored := make([]types.ScoredHit, 0, len(hits))
	for rank, doc := range hits {
		scored = append(scored, types.ScoredHit{
			Doc:   doc,
			Score: 1.0 / (float64(rank) + priority + 1),
		})
	}
	return scored
}

type accumulator struct {
	doc         types.DocumentRef
	vectorScore float64
	textScore   float64
}

// Fuse merges the vector and text hits by document ID, summing the per-source
// scores. Display fields come from the first hit seen for a document, and
// vector hits are folded first. Results are sorted by combined score,
// descending; equal scores keep their insertion order.
func Fuse(vectorHits, textHits []types.ScoredHit) []types.FusedResult {
	byID := make(map[string]*accumulator, len(vectorHits)+len(textHits))
	order := make([]*accumulator, 0, len(vectorHits)+len(textHits))

	lookup := func(doc types.DocumentRef) *accumulator {
		acc, exists := byID[doc.ID]
		if !exists {
			acc = &accumulator{doc: doc}
			byID[doc.ID] = acc
			order = append(order, acc)
		}
		return acc
	}

	for _, hit := range vectorHits {
		acc := lookup(hit.Doc)
		acc.vectorScore = max(acc.vectorScore, hit.Score)
	}
	for _, hit := range textHits {
		acc := lookup(hit.Doc)
		acc.textScore = max(acc.textScore, hit.Score)
	}

	results := make([]types.FusedResult, 0, len(order))
	for _, acc := range order {
		results = append(results, types.FusedResult{
			ID:            acc.doc.ID,
			Title:         acc.doc.Title,
			Plot:          acc.doc.Plot,
			Year:          acc.doc.Year,
			VectorScore:   acc.vectorScore,
			TextScore:     acc.textScore,
			CombinedScore: acc.vectorScore + acc.textScore,
		})
	}

	SortResults(results)
	return results
}

// SortResults stable-sorts fused results by combined score, descending.
func SortResults(results []types.FusedResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CombinedScore > results[j].CombinedScore
	})
}
