package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/mudler/hybridrecall/rag/types"
	"github.com/mudler/xlog"
)

// BleveIndex is an on-disk full-text index over the plot of each document
type BleveIndex struct {
	path     string
	analyzer string
	index    bleve.Index
	mu       sync.RWMutex
}

// NewBleveIndex opens the index at path, creating it if it does not exist
func NewBleveIndex(path, analyzer string) (*BleveIndex, error) {
	if analyzer == "" {
		analyzer = "en"
	}

	b := &BleveIndex{
		path:     path,
		analyzer: analyzer,
	}

	// Try to open existing index, or create new one
	index, err := bleve.Open(path)
	if err != nil {
		index, err = bleve.New(path, b.mapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create bleve index: %w", err)
		}
	}
	b.index = index

	return b, nil
}

func (b *BleveIndex) mapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = b.analyzer

	titleFieldMapping := bleve.NewTextFieldMapping()
	titleFieldMapping.Analyzer = b.analyzer

	yearFieldMapping := bleve.NewNumericFieldMapping()

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("plot", textFieldMapping)
	docMapping.AddFieldMappingsAt("title", titleFieldMapping)
	docMapping.AddFieldMappingsAt("year", yearFieldMapping)

	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = b.analyzer

	return indexMapping
}

func bleveDocument(doc types.DocumentRef) map[string]interface{} {
	return map[string]interface{}{
		"title": doc.Title,
		"plot":  doc.Plot,
		"year":  doc.Year,
	}
}

func (b *BleveIndex) Store(_ context.Context, docs ...types.DocumentRef) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	batch := b.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, bleveDocument(doc)); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
	}
	return b.index.Batch(batch)
}

func (b *BleveIndex) Delete(_ context.Context, ids ...string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return b.index.Batch(batch)
}

// Reset drops the index directory and recreates an empty index
func (b *BleveIndex) Reset(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.index.Close(); err != nil {
		xlog.Warn("Failed to close bleve index", "error", err)
	}

	if err := os.RemoveAll(b.path); err != nil {
		return fmt.Errorf("failed to remove bleve index directory: %w", err)
	}

	index, err := bleve.New(b.path, b.mapping())
	if err != nil {
		return fmt.Errorf("failed to recreate bleve index: %w", err)
	}
	b.index = index

	return nil
}

func (b *BleveIndex) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count, err := b.index.DocCount()
	if err != nil {
		xlog.Error("Failed to count bleve documents", "error", err)
		return 0
	}
	return int(count)
}

// TextSearch runs a match query on the plot, best match first
func (b *BleveIndex) TextSearch(ctx context.Context, text string, limit int) ([]types.DocumentRef, error) {
	if strings.TrimSpace(text) == "" {
		return []types.DocumentRef{}, nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	query := bleve.NewMatchQuery(text)
	query.SetField("plot")

	searchRequest := bleve.NewSearchRequest(query)
	searchRequest.Size = limit
	searchRequest.Fields = []string{"title", "plot", "year"}
	searchRequest.IncludeLocations = false

	result, err := b.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		if errors.Is(err, bleve.ErrorIndexClosed) {
			return nil, fmt.Errorf("%w: %s", types.ErrIndexNotFound, b.path)
		}
		return nil, fmt.Errorf("bleve search failed: %w", err)
	}

	docs := make([]types.DocumentRef, 0, len(result.Hits))
	for _, hit := range result.Hits {
		docs = append(docs, types.DocumentRef{
			ID:    hit.ID,
			Title: stringField(hit.Fields, "title"),
			Plot:  stringField(hit.Fields, "plot"),
			Year:  intField(hit.Fields, "year"),
		})
	}

	return docs, nil
}

func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.index.Close()
}

// stored fields come back either as a value or as a slice of values
func firstField(fields map[string]interface{}, name string) interface{} {
	v, ok := fields[name]
	if !ok {
		return nil
	}
	if arr, ok := v.([]interface{}); ok {
		if len(arr) == 0 {
			return nil
		}
		return arr[0]
	}
	return v
}

func stringField(fields map[string]interface{}, name string) string {
	if s, ok := firstField(fields, name).(string); ok {
		return s
	}
	return ""
}

func intField(fields map[string]interface{}, name string) int {
	if f, ok := firstField(fields, name).(float64); ok {
		return int(f)
	}
	return 0
}
