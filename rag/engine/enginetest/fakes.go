// Package enginetest provides in-memory collaborators for testing code that
// depends on the hybrid search engine.
package enginetest

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/mudler/hybridrecall/rag/types"
)

// HashEmbedder is a deterministic bag-of-words embedder: every word is
// hashed into one of Dims buckets.
type HashEmbedder struct {
	Dims int
	Err  error

	mu    sync.Mutex
	calls int
}

func NewHashEmbedder(dims int) *HashEmbedder {
	return &HashEmbedder{Dims: dims}
}

func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if e.Err != nil {
		return nil, e.Err
	}

	vec := make([]float32, e.Dims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(word, ".,;:!?\"'")))
		vec[h.Sum32()%uint32(e.Dims)]++
	}
	// keep the vector non-zero so it can be normalized
	vec[0] += 0.01
	return vec, nil
}

func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embedding, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = embedding
	}
	return embeddings, nil
}

func (e *HashEmbedder) Dimensions(context.Context) (int, error) {
	if e.Err != nil {
		return 0, e.Err
	}
	return e.Dims, nil
}

func (e *HashEmbedder) Model() string {
	return fmt.Sprintf("hash-%d", e.Dims)
}

func (e *HashEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// VectorSource returns a fixed ranking, truncated to the requested limit
type VectorSource struct {
	Docs []types.DocumentRef
	Err  error

	// arguments of the last call
	NumCandidates int
	Limit         int
	Vector        []float32
}

func (s *VectorSource) VectorSearch(ctx context.Context, vector []float32, numCandidates, limit int) ([]types.DocumentRef, error) {
	s.NumCandidates, s.Limit, s.Vector = numCandidates, limit, vector
	if s.Err != nil {
		return nil, s.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return head(s.Docs, limit), nil
}

// TextSource returns a fixed ranking, truncated to the requested limit
type TextSource struct {
	Docs []types.DocumentRef
	Err  error

	// arguments of the last call
	Text  string
	Limit int
}

func (s *TextSource) TextSearch(ctx context.Context, text string, limit int) ([]types.DocumentRef, error) {
	s.Text, s.Limit = text, limit
	if s.Err != nil {
		return nil, s.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return head(s.Docs, limit), nil
}

func head(docs []types.DocumentRef, limit int) []types.DocumentRef {
	if len(docs) > limit {
		return docs[:limit]
	}
	return docs
}

// Docs builds documents with the given IDs and a title derived from the ID
func Docs(ids ...string) []types.DocumentRef {
	docs := make([]types.DocumentRef, len(ids))
	for i, id := range ids {
		docs[i] = types.DocumentRef{ID: id, Title: "Title " + id, Plot: "Plot of " + id, Year: 2000 + i}
	}
	return docs
}

// IDs returns the IDs of fused results, in order
func IDs(results []types.FusedResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids
}

// Movies is a small catalog used by backend tests
var Movies = []types.DocumentRef{
	{ID: "escape", Title: "Escape from Alcatraz", Year: 1979, Plot: "A prisoner plans a daring escape from a maximum security prison island."},
	{ID: "shawshank", Title: "The Shawshank Redemption", Year: 1994, Plot: "A banker sentenced to life in prison befriends a smuggler and slowly plans his freedom."},
	{ID: "heist", Title: "Ocean's Eleven", Year: 2001, Plot: "A charming thief assembles a crew to rob three casinos in one night."},
	{ID: "space", Title: "Gravity", Year: 2013, Plot: "Two astronauts are stranded in space after debris destroys their shuttle."},
	{ID: "cooking", Title: "Chef", Year: 2014, Plot: "A chef starts a food truck and rediscovers his passion for cooking."},
}
