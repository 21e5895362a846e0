package interfaces

import (
	"context"

	"github.com/mudler/hybridrecall/rag/types"
)

// Embedder turns a text into a fixed-length vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher returns the documents closest to a query vector, most similar first
type VectorSearcher interface {
	VectorSearch(ctx context.Context, vector []float32, numCandidates, limit int) ([]types.DocumentRef, error)
}

// TextSearcher returns the documents matching a query text, most relevant first
type TextSearcher interface {
	TextSearch(ctx context.Context, text string, limit int) ([]types.DocumentRef, error)
}

// Indexer defines the write side of a search index
type Indexer interface {
	Store(ctx context.Context, docs ...types.DocumentRef) error
	Delete(ctx context.Context, ids ...string) error
	Reset(ctx context.Context) error
	Count() int
}
