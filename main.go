package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mudler/hybridrecall/pkg/config"
	"github.com/mudler/hybridrecall/rag"
	"github.com/mudler/hybridrecall/rag/engine"
	"github.com/mudler/hybridrecall/rag/engine/localai"
	"github.com/mudler/xlog"
	"github.com/sashabaranov/go-openai"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		xlog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	openaiConfig := openai.DefaultConfig(cfg.OpenAIAPIKey)
	openaiConfig.BaseURL = cfg.OpenAIBaseURL
	embedder := engine.NewOpenAIEmbedder(openai.NewClientWithConfig(openaiConfig), cfg.EmbeddingModel)

	factory := newCollectionFactory(cfg, embedder)

	collections := newCollectionList()
	for _, name := range rag.ListAllCollections(cfg.CollectionDBPath) {
		collection, err := factory(context.Background(), name)
		if err != nil {
			xlog.Error("Failed to load collection", "name", name, "error", err)
			os.Exit(1)
		}
		collections.set(name, collection)
		xlog.Info("Loaded collection", "name", name, "documents", collection.Count())
	}

	xlog.Info("Starting API", "address", cfg.ListenAddress, "engine", cfg.VectorEngine)
	startAPI(cfg.ListenAddress, collections, factory)
}

func newCollectionFactory(cfg *config.Config, embedder *engine.OpenAIEmbedder) collectionFactory {
	defaults := cfg.SearchOptions()

	return func(ctx context.Context, name string) (*rag.Collection, error) {
		switch cfg.VectorEngine {
		case config.EngineChromem:
			return rag.NewChromemCollection(ctx, embedder, name, cfg.CollectionDBPath, cfg.BleveAnalyzer, defaults)
		case config.EnginePostgres:
			return rag.NewPostgresCollection(ctx, embedder, name, cfg.CollectionDBPath, cfg.DatabaseURL, defaults)
		case config.EngineLocalAI:
			storeClient := localai.NewStoreClient(cfg.LocalAIStoreURL, cfg.OpenAIAPIKey)
			storeClient.Store = name
			return rag.NewLocalAICollection(ctx, embedder, storeClient, name, cfg.CollectionDBPath, cfg.BleveAnalyzer, defaults)
		}
		return nil, fmt.Errorf("unknown engine %q", cfg.VectorEngine)
	}
}
