package rag

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mudler/hybridrecall/rag/engine"
	"github.com/mudler/hybridrecall/rag/engine/localai"
	"github.com/mudler/hybridrecall/rag/types"
)

const collectionPrefix = "collection-"

// collection names end up in file paths, table names and store names
var validCollectionName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateCollectionName accepts names made of letters, digits, '_' and '-'
func ValidateCollectionName(name string) error {
	if !validCollectionName.MatchString(name) {
		return fmt.Errorf("%w: %q", types.ErrInvalidName, name)
	}
	return nil
}

func stateFile(dbPath, collectionName string) string {
	return filepath.Join(dbPath, fmt.Sprintf("%s%s.json", collectionPrefix, collectionName))
}

// NewChromemCollection creates a collection searching plots with chromem (vector) and bleve (text)
func NewChromemCollection(ctx context.Context, embedder engine.ModelEmbedder, collectionName, dbPath, bleveAnalyzer string, defaults engine.Options) (*Collection, error) {
	if err := ValidateCollectionName(collectionName); err != nil {
		return nil, err
	}

	chromemIndex, err := engine.NewChromemIndex(collectionName, filepath.Join(dbPath, "chromem"), embedder)
	if err != nil {
		return nil, fmt.Errorf("failed to create chromem index: %w", err)
	}

	bleveIndex, err := engine.NewBleveIndex(filepath.Join(dbPath, "bleve", collectionName), bleveAnalyzer)
	if err != nil {
		return nil, err
	}

	hybridEngine, err := engine.NewHybridSearchEngine(embedder, chromemIndex, bleveIndex, defaults)
	if err != nil {
		bleveIndex.Close()
		return nil, fmt.Errorf("failed to create hybrid search engine: %w", err)
	}

	return NewCollection(ctx, collectionName, stateFile(dbPath, collectionName), hybridEngine, chromemIndex, bleveIndex)
}

// NewPostgresCollection creates a collection served by pgvector and PostgreSQL full-text search
func NewPostgresCollection(ctx context.Context, embedder engine.ModelEmbedder, collectionName, dbPath, databaseURL string, defaults engine.Options) (*Collection, error) {
	if err := ValidateCollectionName(collectionName); err != nil {
		return nil, err
	}

	pg, err := engine.NewPostgresDBCollection(ctx, collectionName, databaseURL, embedder)
	if err != nil {
		return nil, err
	}

	hybridEngine, err := engine.NewHybridSearchEngine(embedder, pg, pg, defaults)
	if err != nil {
		pg.Close()
		return nil, fmt.Errorf("failed to create hybrid search engine: %w", err)
	}

	return NewCollection(ctx, collectionName, stateFile(dbPath, collectionName), hybridEngine, pg)
}

// NewLocalAICollection creates a collection using the LocalAI stores for vectors and bleve for text.
// LocalAI stores are not persistent, so they are repopulated from the collection state on start.
func NewLocalAICollection(ctx context.Context, embedder engine.ModelEmbedder, storeClient *localai.StoreClient, collectionName, dbPath, bleveAnalyzer string, defaults engine.Options) (*Collection, error) {
	if err := ValidateCollectionName(collectionName); err != nil {
		return nil, err
	}

	store := engine.NewLocalAIStore(storeClient, embedder)

	bleveIndex, err := engine.NewBleveIndex(filepath.Join(dbPath, "bleve", collectionName), bleveAnalyzer)
	if err != nil {
		return nil, err
	}

	hybridEngine, err := engine.NewHybridSearchEngine(embedder, store, bleveIndex, defaults)
	if err != nil {
		bleveIndex.Close()
		return nil, fmt.Errorf("failed to create hybrid search engine: %w", err)
	}

	return NewCollection(ctx, collectionName, stateFile(dbPath, collectionName), hybridEngine, store, bleveIndex)
}

// ListAllCollections lists all collections in the database
func ListAllCollections(dbPath string) []string {
	collections := []string{}
	files, err := os.ReadDir(dbPath)
	if err != nil {
		return nil
	}

	for _, f := range files {
		if f.IsDir() {
			continue
		}
		if strings.HasPrefix(f.Name(), collectionPrefix) {
			collections = append(collections, strings.TrimPrefix(strings.TrimSuffix(f.Name(), ".json"), collectionPrefix))
		}
	}

	return collections
}
