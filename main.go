package main

import (
	"os"
	"strconv"
	"time"

	"github.com/mudler/xlog"
	"github.com/ragstack/localrag/rag"
	"github.com/ragstack/localrag/rag/rerank"
	"github.com/ragstack/localrag/rag/sources"
	"github.com/ragstack/localrag/rag/types"
	"github.com/sashabaranov/go-openai"
)

var (
	listenAddress    = envOr("LISTENING_ADDRESS", ":8080")
	openAIKey        = os.Getenv("OPENAI_API_KEY")
	openAIBaseURL    = envOr("OPENAI_BASE_URL", "http://localhost:8080/v1")
	embeddingModel   = envOr("EMBEDDING_MODEL", "text-embedding-ada-002")
	llmModel         = envOr("LLM_MODEL", "gpt-4o")
	vectorEngine     = envOr("VECTOR_ENGINE", "chromem")
	databaseURL      = os.Getenv("DATABASE_URL")
	collectionDBPath = envOr("COLLECTION_DB_PATH", "collections")
	fileAssets       = envOr("FILE_ASSETS", "assets")
	maxChunkingSize  = envInt("MAX_CHUNKING_SIZE", 2048)
	rrfK             = envFloat("RRF_K", 0)
	topNForRerank    = envInt("TOP_N_RERANK", 0)
	retrieverTimeout = envDuration("RETRIEVER_TIMEOUT", 0)
	bleveAnalyzer    = os.Getenv("BLEVE_ANALYZER")
	rerankerEndpoint = os.Getenv("RERANKER_ENDPOINT")
	rerankerAPIKey   = os.Getenv("RERANKER_API_KEY")
	rerankerModel    = os.Getenv("RERANKER_MODEL")
	gitPrivateKey    = os.Getenv("GIT_PRIVATE_KEY")
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		xlog.Error("Invalid integer in environment", "key", key, "value", v, "error", err)
		os.Exit(1)
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		xlog.Error("Invalid float in environment", "key", key, "value", v, "error", err)
		os.Exit(1)
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		xlog.Error("Invalid duration in environment", "key", key, "value", v, "error", err)
		os.Exit(1)
	}
	return d
}

func collectionConfig(reranker types.Reranker) rag.CollectionConfig {
	return rag.CollectionConfig{
		DBPath:         collectionDBPath,
		AssetDir:       fileAssets,
		EmbeddingModel: embeddingModel,
		MaxChunkSize:   maxChunkingSize,
		BleveAnalyzer:  bleveAnalyzer,
		Reranker:       reranker,
		Retrieval: rag.RetrieverConfig{
			SmoothingK:       rrfK,
			TopNForRerank:    topNForRerank,
			RetrieverTimeout: retrieverTimeout,
		},
	}
}

func main() {
	for _, dir := range []string{collectionDBPath, fileAssets} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			xlog.Error("Failed to create directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	config := openai.DefaultConfig(openAIKey)
	config.BaseURL = openAIBaseURL
	openAIClient := openai.NewClientWithConfig(config)

	var reranker types.Reranker
	if rerankerEndpoint != "" {
		reranker = rerank.NewClient(rerankerEndpoint, rerankerAPIKey, rerankerModel)
		xlog.Info("Reranker enabled", "endpoint", rerankerEndpoint, "model", rerankerModel)
	}

	app := &application{
		openAIClient:  openAIClient,
		generator:     rag.NewGenerator(openAIClient, llmModel),
		reranker:      reranker,
		sourceManager: rag.NewSourceManager(&sources.Config{GitPrivateKey: gitPrivateKey}),
		collections:   map[string]*rag.Collection{},
	}

	// Reopen collections persisted by previous runs.
	for _, name := range rag.ListAllCollections(collectionDBPath) {
		collection, err := app.newCollection(name)
		if err != nil {
			xlog.Error("Failed to load collection", "name", name, "error", err)
			os.Exit(1)
		}
		app.collections[name] = collection
		app.sourceManager.RegisterCollection(name, collection)
	}

	app.sourceManager.Start()

	xlog.Info("Starting API server", "address", listenAddress, "engine", vectorEngine)
	startAPI(app)
}
