package engine

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder computes query and document embeddings through an
// OpenAI-compatible API (LocalAI, llama.cpp server, OpenAI).
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

func NewOpenAIEmbedder(client *openai.Client, model string) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: client, model: model}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx,
		openai.EmbeddingRequestStrings{
			Input: []string{text},
			Model: openai.EmbeddingModel(e.model),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("error getting embedding: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no response from embeddings API")
	}

	return resp.Data[0].Embedding, nil
}
