package rag

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mudler/xlog"
	"github.com/ragstack/localrag/rag/engine"
	"github.com/ragstack/localrag/rag/interfaces"
	"github.com/ragstack/localrag/rag/types"
	"github.com/sashabaranov/go-openai"
)

const collectionPrefix = "collection-"

// CollectionConfig bundles everything a collection needs besides its name.
type CollectionConfig struct {
	DBPath         string
	AssetDir       string
	EmbeddingModel string
	MaxChunkSize   int
	BleveAnalyzer  string
	Reranker       types.Reranker
	Retrieval      RetrieverConfig
}

// Collection couples a persistent knowledge base with the retrieval
// pipeline that searches it.
type Collection struct {
	*PersistentKB
	Retriever *Retriever
}

// NewPersistentChromeCollection creates a collection backed by a chromem
// vector store plus a bleve full-text index.
func NewPersistentChromeCollection(llmClient *openai.Client, collectionName string, cfg CollectionConfig) (*Collection, error) {
	chromemDB, err := engine.NewChromemDBCollection(collectionName, cfg.DBPath, llmClient, cfg.EmbeddingModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create ChromemDB: %w", err)
	}

	hybridEngine, err := engine.NewHybridEngine(chromemDB, cfg.DBPath, cfg.BleveAnalyzer)
	if err != nil {
		return nil, fmt.Errorf("failed to create hybrid engine: %w", err)
	}

	return newCollection(collectionName, hybridEngine, llmClient, cfg)
}

// NewPersistentPostgresCollection creates a collection backed by Postgres:
// pgvector for the dense signal, tsvector ranking for the sparse one.
func NewPersistentPostgresCollection(llmClient *openai.Client, collectionName, databaseURL string, cfg CollectionConfig) (*Collection, error) {
	pgDB, err := engine.NewPostgresDBCollection(collectionName, databaseURL, llmClient, cfg.EmbeddingModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgresDB: %w", err)
	}

	return newCollection(collectionName, pgDB, llmClient, cfg)
}

func newCollection(collectionName string, store interfaces.Engine, llmClient *openai.Client, cfg CollectionConfig) (*Collection, error) {
	persistentKB, err := NewPersistentCollectionKB(
		filepath.Join(cfg.DBPath, fmt.Sprintf("%s%s.json", collectionPrefix, collectionName)),
		cfg.AssetDir,
		store,
		cfg.MaxChunkSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create PersistentKB: %w", err)
	}

	embedder := engine.NewOpenAIEmbedder(llmClient, cfg.EmbeddingModel)
	retriever := NewRetriever(embedder, store, store, cfg.Reranker, cfg.Retrieval)

	xlog.Info("Collection ready", "name", collectionName, "documents", store.Count())

	return &Collection{
		PersistentKB: persistentKB,
		Retriever:    retriever,
	}, nil
}

// Search runs the hybrid retrieval pipeline against the collection.
func (c *Collection) Search(ctx context.Context, query types.Query) (*types.SearchResponse, error) {
	return c.Retriever.Retrieve(ctx, query)
}

// ListAllCollections lists all collections in the database
func ListAllCollections(dbPath string) []string {
	collections := []string{}
	files, err := os.ReadDir(dbPath)
	if err != nil {
		return nil
	}

	for _, f := range files {
		if strings.HasPrefix(f.Name(), collectionPrefix) {
			collections = append(collections, strings.TrimPrefix(strings.TrimSuffix(f.Name(), ".json"), collectionPrefix))
		}
	}

	return collections
}
