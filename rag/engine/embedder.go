package engine

import (
	"context"
	"fmt"

	"github.com/mudler/hybridrecall/rag/types"
	"github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder computes embeddings with an OpenAI compatible API (e.g. LocalAI)
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

func NewOpenAIEmbedder(client *openai.Client, model string) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		client: client,
		model:  model,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch embeds several texts with a single request, preserving order
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx,
		openai.EmbeddingRequestStrings{
			Input: texts,
			Model: openai.EmbeddingModel(e.model),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrEmbedding, err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", types.ErrEmbedding, len(texts), len(resp.Data))
	}

	embeddings := make([][]float32, len(texts))
	for i, d := range resp.Data {
		embeddings[i] = d.Embedding
	}
	return embeddings, nil
}

// Dimensions probes the model with a test embedding
func (e *OpenAIEmbedder) Dimensions(ctx context.Context) (int, error) {
	embedding, err := e.Embed(ctx, "test")
	if err != nil {
		return 0, fmt.Errorf("failed to get test embedding: %w", err)
	}
	return len(embedding), nil
}

// Model returns the embedding model name
func (e *OpenAIEmbedder) Model() string {
	return e.model
}
