package engine

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/mudler/hybridrecall/rag/interfaces"
	"github.com/mudler/hybridrecall/rag/types"
	"github.com/philippgille/chromem-go"
	"golang.org/x/sync/errgroup"
)

// chromemLengthMismatch is the error chromem returns when a query and a stored
// embedding differ in size
const chromemLengthMismatch = "vectors must have the same length"

// ChromemIndex is a vector index over document plots backed by chromem-go
type ChromemIndex struct {
	collectionName string
	collection     *chromem.Collection
	db             *chromem.DB
	embedder       interfaces.Embedder
	dims           int
	mu             sync.RWMutex
}

func NewChromemIndex(collection, path string, embedder interfaces.Embedder) (*ChromemIndex, error) {
	db, err := chromem.NewPersistentDB(path, true)
	if err != nil {
		return nil, err
	}

	c := &ChromemIndex{
		collectionName: collection,
		db:             db,
		embedder:       embedder,
	}

	col, err := db.GetOrCreateCollection(collection, nil, c.embedding())
	if err != nil {
		return nil, err
	}
	c.collection = col

	return c, nil
}

func (c *ChromemIndex) embedding() chromem.EmbeddingFunc {
	return chromem.EmbeddingFunc(c.embedder.Embed)
}

func (c *ChromemIndex) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.collection.Count()
}

func (c *ChromemIndex) Reset(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.db.DeleteCollection(c.collectionName); err != nil {
		return fmt.Errorf("error deleting collection: %w", err)
	}
	collection, err := c.db.GetOrCreateCollection(c.collectionName, nil, c.embedding())
	if err != nil {
		return fmt.Errorf("error creating collection: %w", err)
	}
	c.collection = collection
	c.dims = 0

	return nil
}

// Store embeds the plot of each document concurrently and adds it to the collection.
// The title and year are kept as metadata.
func (c *ChromemIndex) Store(ctx context.Context, docs ...types.DocumentRef) error {
	if len(docs) == 0 {
		return nil
	}

	for _, doc := range docs {
		if doc.Plot == "" {
			return fmt.Errorf("document %q has no plot to embed", doc.ID)
		}
	}

	documents := make([]chromem.Document, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, doc := range docs {
		g.Go(func() error {
			embedding, err := c.embedder.Embed(gctx, doc.Plot)
			if err != nil {
				return fmt.Errorf("error embedding document %q: %w", doc.ID, err)
			}
			documents[i] = chromem.Document{
				ID:        doc.ID,
				Content:   doc.Plot,
				Embedding: embedding,
				Metadata: map[string]string{
					"title": doc.Title,
					"year":  strconv.Itoa(doc.Year),
				},
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.collection.AddDocuments(ctx, documents, runtime.NumCPU()); err != nil {
		return err
	}
	c.dims = len(documents[0].Embedding)

	return nil
}

func (c *ChromemIndex) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.collection.Delete(ctx, nil, nil, ids...)
}

// VectorSearch picks the limit nearest plots out of at most numCandidates.
// chromem searches exhaustively, so the candidate pool only bounds the query size.
func (c *ChromemIndex) VectorSearch(ctx context.Context, vector []float32, numCandidates, limit int) ([]types.DocumentRef, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.dims != 0 && len(vector) != c.dims {
		return nil, fmt.Errorf("%w: index has %d, query has %d", types.ErrDimensionMismatch, c.dims, len(vector))
	}

	nResults := min(numCandidates, c.collection.Count())
	if nResults <= 0 {
		return []types.DocumentRef{}, nil
	}

	chromemResults, err := c.collection.QueryEmbedding(ctx, vector, nResults, nil, nil)
	if err != nil {
		// dims is unknown for an index reopened from disk, chromem reports the mismatch itself
		if strings.Contains(err.Error(), chromemLengthMismatch) {
			return nil, fmt.Errorf("%w: %w", types.ErrDimensionMismatch, err)
		}
		return nil, err
	}

	if len(chromemResults) > limit {
		chromemResults = chromemResults[:limit]
	}

	docs := make([]types.DocumentRef, 0, len(chromemResults))
	for _, r := range chromemResults {
		year, _ := strconv.Atoi(r.Metadata["year"])
		docs = append(docs, types.DocumentRef{
			ID:    r.ID,
			Title: r.Metadata["title"],
			Plot:  r.Content,
			Year:  year,
		})
	}

	return docs, nil
}

// GetEmbeddingDimensions returns the size of the stored embeddings, 0 if unknown
func (c *ChromemIndex) GetEmbeddingDimensions() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.dims
}
