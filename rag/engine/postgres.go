package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mudler/xlog"
	"github.com/ragstack/localrag/rag/types"
	"github.com/sashabaranov/go-openai"
)

// PostgresDB is a dense+sparse backend over a single table: pgvector
// cosine search for the dense signal, tsvector ranking for the sparse one.
type PostgresDB struct {
	pool            *pgxpool.Pool
	collectionName  string
	tableName       string
	client          *openai.Client
	embeddingsModel string
	embeddingDims   int
}

// NewPostgresDBCollection creates a new PostgreSQL-based collection.
func NewPostgresDBCollection(collectionName, databaseURL string, openaiClient *openai.Client, embeddingsModel string) (*PostgresDB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for PostgreSQL engine")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Probe the embedding model once to size the vector column.
	testEmbedding, err := NewOpenAIEmbedder(openaiClient, embeddingsModel).Embed(context.Background(), "test")
	if err != nil {
		return nil, fmt.Errorf("failed to get test embedding: %w", err)
	}

	pg := &PostgresDB{
		pool:            pool,
		collectionName:  collectionName,
		tableName:       sanitizeTableName(collectionName),
		client:          openaiClient,
		embeddingsModel: embeddingsModel,
		embeddingDims:   len(testEmbedding),
	}

	if err := pg.setupDatabase(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to setup database: %w", err)
	}

	return pg, nil
}

func sanitizeTableName(name string) string {
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, ".", "_")
	name = strings.ReplaceAll(name, " ", "_")
	// Ensure it starts with a letter
	if len(name) > 0 && (name[0] < 'a' || name[0] > 'z') && (name[0] < 'A' || name[0] > 'Z') {
		name = "col_" + name
	}
	return "documents_" + name
}

func (p *PostgresDB) setupDatabase() error {
	ctx := context.Background()

	_, err := p.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to enable vector extension: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS collection_config (
			collection_name TEXT PRIMARY KEY,
			embedding_model TEXT NOT NULL,
			embedding_dimensions INTEGER NOT NULL,
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create collection_config table: %w", err)
	}

	_, err = p.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id SERIAL PRIMARY KEY,
			title TEXT,
			content TEXT NOT NULL,
			metadata JSONB,
			search_vector TSVECTOR GENERATED ALWAYS AS (to_tsvector('english', COALESCE(title, '') || ' ' || content)) STORED,
			embedding VECTOR(%d)
		)
	`, p.tableName, p.embeddingDims))
	if err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}

	_, err = p.pool.Exec(ctx, fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_search ON %s USING GIN(search_vector)
	`, p.tableName, p.tableName))
	if err != nil {
		xlog.Warn("Failed to create GIN index", "error", err)
	}

	_, err = p.pool.Exec(ctx, fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_embedding ON %s
		USING hnsw(embedding vector_cosine_ops)
	`, p.tableName, p.tableName))
	if err != nil {
		xlog.Warn("Failed to create HNSW index", "error", err)
	}

	return p.registerCollection()
}

func (p *PostgresDB) registerCollection() error {
	ctx := context.Background()

	var storedModel string
	var storedDims int
	err := p.pool.QueryRow(ctx, `
		SELECT embedding_model, embedding_dimensions
		FROM collection_config
		WHERE collection_name = $1
	`, p.collectionName).Scan(&storedModel, &storedDims)

	if err == pgx.ErrNoRows {
		_, err = p.pool.Exec(ctx, `
			INSERT INTO collection_config (collection_name, embedding_model, embedding_dimensions)
			VALUES ($1, $2, $3)
		`, p.collectionName, p.embeddingsModel, p.embeddingDims)
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to query collection config: %w", err)
	}

	if storedModel != p.embeddingsModel || storedDims != p.embeddingDims {
		return fmt.Errorf("collection %s was created with model %s (%d dims), got %s (%d dims); reset the collection to switch models",
			p.collectionName, storedModel, storedDims, p.embeddingsModel, p.embeddingDims)
	}

	return nil
}

func formatVector(vec []float32) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = fmt.Sprintf("%.6f", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func (p *PostgresDB) Count() int {
	ctx := context.Background()
	var count int
	err := p.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", p.tableName)).Scan(&count)
	if err != nil {
		xlog.Error("Failed to count documents", "error", err)
		return 0
	}
	return count
}

func (p *PostgresDB) Reset() error {
	ctx := context.Background()

	_, err := p.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", p.tableName))
	if err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}

	_, err = p.pool.Exec(ctx, "DELETE FROM collection_config WHERE collection_name = $1", p.collectionName)
	if err != nil {
		return fmt.Errorf("failed to delete collection config: %w", err)
	}

	return p.setupDatabase()
}

// GetEmbeddingDimensions returns the vector column dimensionality.
func (p *PostgresDB) GetEmbeddingDimensions() (int, error) {
	return p.embeddingDims, nil
}

func (p *PostgresDB) Store(s string, metadata map[string]string) (types.Result, error) {
	results, err := p.StoreDocuments([]string{s}, metadata)
	if err != nil {
		return types.Result{}, err
	}
	if len(results) == 0 {
		return types.Result{}, fmt.Errorf("no result returned")
	}
	return results[0], nil
}

func (p *PostgresDB) StoreDocuments(s []string, metadata map[string]string) ([]types.Result, error) {
	if len(s) == 0 {
		return nil, fmt.Errorf("empty string")
	}

	ctx := context.Background()

	resp, err := p.client.CreateEmbeddings(ctx,
		openai.EmbeddingRequestStrings{
			Input: s,
			Model: openai.EmbeddingModel(p.embeddingsModel),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("error getting embeddings: %w", err)
	}
	if len(resp.Data) != len(s) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(s), len(resp.Data))
	}

	title := metadata["title"]
	if title == "" {
		title = metadata["source"]
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}

	results := make([]types.Result, 0, len(s))
	for i, content := range s {
		var id int
		err = p.pool.QueryRow(ctx, fmt.Sprintf(`
			INSERT INTO %s (title, content, metadata, embedding)
			VALUES ($1, $2, $3, $4::vector)
			RETURNING id
		`, p.tableName), title, content, metadataJSON, formatVector(resp.Data[i].Embedding)).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to insert document: %w", err)
		}
		results = append(results, types.Result{ID: fmt.Sprint(id)})
	}

	return results, nil
}

func (p *PostgresDB) GetByID(id string) (types.Result, error) {
	ctx := context.Background()

	var title *string
	var content string
	var metadataJSON []byte
	err := p.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT title, content, metadata FROM %s WHERE id = $1
	`, p.tableName), id).Scan(&title, &content, &metadataJSON)
	if err != nil {
		return types.Result{}, fmt.Errorf("document %s not found: %w", id, err)
	}

	metadata := map[string]string{}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
			metadata = map[string]string{}
		}
	}
	if title != nil && *title != "" {
		metadata["title"] = *title
	}

	return types.Result{ID: id, Content: content, Metadata: metadata}, nil
}

func (p *PostgresDB) Delete(ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	ctx := context.Background()
	_, err := p.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ANY($1::int[])", p.tableName), ids)
	return err
}

// SearchVectors performs cosine similarity search over the vector column.
func (p *PostgresDB) SearchVectors(ctx context.Context, embedding []float32, limit int) (types.RankedList, error) {
	list := types.RankedList{Source: types.SourceDense}

	if len(embedding) != p.embeddingDims {
		return list, fmt.Errorf("%w: got %d, index has %d", types.ErrDimensionMismatch, len(embedding), p.embeddingDims)
	}

	rows, err := p.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, title, content, metadata, 1 - (embedding <=> $1::vector) AS similarity
		FROM %s
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1::vector
		LIMIT $2
	`, p.tableName), formatVector(embedding), limit)
	if err != nil {
		return list, fmt.Errorf("%w: %v", types.ErrRetrievalUnavailable, err)
	}
	defer rows.Close()

	results, err := p.scanResults(rows, types.SourceDense)
	if err != nil {
		return list, fmt.Errorf("%w: %v", types.ErrRetrievalUnavailable, err)
	}
	list.Results = results
	return list, nil
}

// SearchKeywords performs full-text search ranked with ts_rank.
func (p *PostgresDB) SearchKeywords(ctx context.Context, query string, limit int) (types.RankedList, error) {
	list := types.RankedList{Source: types.SourceSparse}

	rows, err := p.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, title, content, metadata, ts_rank(search_vector, plainto_tsquery('english', $1)) AS rank
		FROM %s
		WHERE search_vector @@ plainto_tsquery('english', $1)
		ORDER BY rank DESC, id
		LIMIT $2
	`, p.tableName), query, limit)
	if err != nil {
		return list, fmt.Errorf("%w: %v", types.ErrRetrievalUnavailable, err)
	}
	defer rows.Close()

	results, err := p.scanResults(rows, types.SourceSparse)
	if err != nil {
		return list, fmt.Errorf("%w: %v", types.ErrRetrievalUnavailable, err)
	}
	list.Results = results
	return list, nil
}

func (p *PostgresDB) scanResults(rows pgx.Rows, source types.Source) ([]types.Result, error) {
	var results []types.Result
	for rows.Next() {
		var id int
		var title *string
		var content string
		var metadataJSON []byte
		var score float64
		if err := rows.Scan(&id, &title, &content, &metadataJSON, &score); err != nil {
			return nil, err
		}

		metadata := map[string]string{}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
				metadata = map[string]string{}
			}
		}
		if title != nil && *title != "" {
			metadata["title"] = *title
		}

		results = append(results, types.Result{
			ID:       fmt.Sprint(id),
			Content:  content,
			Metadata: metadata,
			Score:    score,
			Source:   source,
		})
	}
	return results, rows.Err()
}
