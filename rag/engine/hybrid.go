package engine

import (
	"context"
	"time"

	"github.com/mudler/hybridrecall/pkg/metrics"
	"github.com/mudler/hybridrecall/rag/interfaces"
	"github.com/mudler/hybridrecall/rag/types"
	"github.com/mudler/xlog"
	"golang.org/x/sync/errgroup"
)

// HybridSearchEngine combines semantic and full-text search
type HybridSearchEngine struct {
	embedder interfaces.Embedder
	vector   interfaces.VectorSearcher
	text     interfaces.TextSearcher
	defaults Options
}

// NewHybridSearchEngine creates a new hybrid search engine.
// defaults are used by Search and must be valid.
func NewHybridSearchEngine(embedder interfaces.Embedder, vector interfaces.VectorSearcher, text interfaces.TextSearcher, defaults Options) (*HybridSearchEngine, error) {
	if err := defaults.Validate(); err != nil {
		return nil, err
	}

	return &HybridSearchEngine{
		embedder: embedder,
		vector:   vector,
		text:     text,
		defaults: defaults,
	}, nil
}

// Defaults returns the options the engine was configured with
func (h *HybridSearchEngine) Defaults() Options {
	return h.defaults
}

// Search runs a hybrid search with the engine defaults and the given limit
func (h *HybridSearchEngine) Search(ctx context.Context, query string, limit int) ([]types.FusedResult, error) {
	opts := h.defaults
	opts.Limit = limit
	return h.HybridSearch(ctx, query, opts)
}

// HybridSearch queries the vector and text sources concurrently and fuses
// their rankings. If either source fails the whole search fails.
func (h *HybridSearchEngine) HybridSearch(ctx context.Context, query string, opts Options) ([]types.FusedResult, error) {
	if err := opts.Validate(); err != nil {
		metrics.SearchesTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	start := time.Now()
	defer func() {
		metrics.SearchDuration.Observe(time.Since(start).Seconds())
	}()

	numCandidates := opts.NumCandidates()

	var vectorRaw, textRaw []types.DocumentRef
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		embedding, err := h.embedder.Embed(gctx, query)
		if err != nil {
			return &types.SourceError{Source: types.SourceEmbedding, Err: err}
		}
		vectorRaw, err = h.vector.VectorSearch(gctx, embedding, numCandidates, opts.Limit)
		if err != nil {
			return &types.SourceError{Source: types.SourceVector, Err: err}
		}
		return nil
	})

	g.Go(func() error {
		var err error
		textRaw, err = h.text.TextSearch(gctx, query, opts.Limit)
		if err != nil {
			return &types.SourceError{Source: types.SourceText, Err: err}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		if sourceErr, ok := err.(*types.SourceError); ok {
			metrics.SourceFailuresTotal.WithLabelValues(string(sourceErr.Source)).Inc()
		}
		metrics.SearchesTotal.WithLabelValues("error").Inc()
		xlog.Error("Hybrid search failed", "query", query, "error", err)
		return nil, err
	}

	fused := Fuse(
		ScoreList(vectorRaw, opts.VectorPriority),
		ScoreList(textRaw, opts.TextPriority),
	)
	metrics.FusedResults.Observe(float64(len(fused)))
	metrics.SearchesTotal.WithLabelValues("ok").Inc()

	xlog.Debug("Hybrid search",
		"query", query,
		"num_candidates", numCandidates,
		"vector_hits", len(vectorRaw),
		"text_hits", len(textRaw),
		"fused", len(fused))

	if len(fused) > opts.Limit {
		fused = fused[:opts.Limit]
	}

	return fused, nil
}
