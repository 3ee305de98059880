package engine

import (
	"context"
	"fmt"
	"runtime"

	"github.com/mudler/xlog"
	"github.com/philippgille/chromem-go"
	"github.com/ragstack/localrag/rag/types"
	"github.com/sashabaranov/go-openai"
)

// ChromemDB is the dense retriever backend: a persistent chromem-go
// collection with embeddings computed through an OpenAI-compatible API.
type ChromemDB struct {
	collectionName  string
	collection      *chromem.Collection
	index           int
	client          *openai.Client
	db              *chromem.DB
	embeddingsModel string
}

// NewChromemDBCollection opens or creates a persistent chromem collection.
func NewChromemDBCollection(collection, path string, openaiClient *openai.Client, embeddingsModel string) (*ChromemDB, error) {
	db, err := chromem.NewPersistentDB(path, true)
	if err != nil {
		return nil, err
	}

	chromemDB := &ChromemDB{
		collectionName:  collection,
		index:           1,
		db:              db,
		client:          openaiClient,
		embeddingsModel: embeddingsModel,
	}

	c, err := db.GetOrCreateCollection(collection, nil, chromemDB.embedding())
	if err != nil {
		return nil, err
	}
	chromemDB.collection = c

	count := c.Count()
	if count > 0 {
		chromemDB.index = count + 1
	}

	return chromemDB, nil
}

func (c *ChromemDB) Count() int {
	return c.collection.Count()
}

func (c *ChromemDB) Reset() error {
	if err := c.db.DeleteCollection(c.collectionName); err != nil {
		return fmt.Errorf("error deleting collection: %v", err)
	}
	collection, err := c.db.GetOrCreateCollection(c.collectionName, nil, c.embedding())
	if err != nil {
		return fmt.Errorf("error creating collection: %v", err)
	}
	c.collection = collection
	c.index = 1
	return nil
}

// GetEmbeddingDimensions returns the dimensionality of the stored vectors,
// or zero when the collection is still empty.
func (c *ChromemDB) GetEmbeddingDimensions() (int, error) {
	count := c.collection.Count()
	if count == 0 {
		return 0, nil
	}

	doc, err := c.collection.GetByID(context.Background(), fmt.Sprint(count))
	if err != nil {
		return 0, fmt.Errorf("error getting document: %v", err)
	}

	return len(doc.Embedding), nil
}

func (c *ChromemDB) embedding() chromem.EmbeddingFunc {
	return chromem.EmbeddingFunc(
		func(ctx context.Context, text string) ([]float32, error) {
			return NewOpenAIEmbedder(c.client, c.embeddingsModel).Embed(ctx, text)
		},
	)
}

func (c *ChromemDB) Store(s string, metadata map[string]string) (types.Result, error) {
	results, err := c.StoreDocuments([]string{s}, metadata)
	if err != nil {
		return types.Result{}, err
	}
	return results[0], nil
}

func (c *ChromemDB) StoreDocuments(s []string, metadata map[string]string) ([]types.Result, error) {
	if len(s) == 0 {
		return nil, fmt.Errorf("empty string")
	}
	for _, content := range s {
		if content == "" {
			return nil, fmt.Errorf("empty string")
		}
	}

	defer func() {
		c.index += len(s)
	}()

	results := make([]types.Result, len(s))
	documents := make([]chromem.Document, len(s))
	for i, content := range s {
		docID := fmt.Sprint(c.index + i)
		documents[i] = chromem.Document{
			Metadata: metadata,
			Content:  content,
			ID:       docID,
		}
		results[i] = types.Result{
			ID: docID,
		}
	}

	if err := c.collection.AddDocuments(context.Background(), documents, runtime.NumCPU()); err != nil {
		return nil, err
	}

	return results, nil
}

func (c *ChromemDB) Delete(ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return c.collection.Delete(context.Background(), nil, nil, ids...)
}

func (c *ChromemDB) GetByID(id string) (types.Result, error) {
	res, err := c.collection.GetByID(context.Background(), id)
	if err != nil {
		return types.Result{}, err
	}

	return types.Result{ID: res.ID, Metadata: res.Metadata, Content: res.Content}, nil
}

// SearchVectors performs cosine similarity search with a precomputed query
// embedding. The embedding dimensionality must match the collection.
func (c *ChromemDB) SearchVectors(ctx context.Context, embedding []float32, limit int) (types.RankedList, error) {
	list := types.RankedList{Source: types.SourceDense}

	dims, err := c.GetEmbeddingDimensions()
	if err != nil {
		return list, fmt.Errorf("%w: %v", types.ErrRetrievalUnavailable, err)
	}
	if dims > 0 && len(embedding) != dims {
		return list, fmt.Errorf("%w: got %d, index has %d", types.ErrDimensionMismatch, len(embedding), dims)
	}

	count := c.collection.Count()
	if count == 0 {
		return list, nil
	}
	if limit > count {
		limit = count
	}

	results, err := c.collection.QueryEmbedding(ctx, embedding, limit, nil, nil)
	if err != nil {
		return list, fmt.Errorf("%w: %v", types.ErrRetrievalUnavailable, err)
	}

	for _, r := range results {
		list.Results = append(list.Results, types.Result{
			ID:       r.ID,
			Metadata: r.Metadata,
			Content:  r.Content,
			Score:    float64(r.Similarity),
			Source:   types.SourceDense,
		})
	}

	xlog.Debug("Chromem vector search", "results", len(list.Results), "limit", limit)
	return list, nil
}
