package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	blevemapping "github.com/blevesearch/bleve/v2/mapping"
	"github.com/mudler/xlog"
	"github.com/ragstack/localrag/rag/types"
)

// FullTextIndex is the sparse retriever backend: a bleve index scoring
// documents with lexical (tf-idf) relevance.
type FullTextIndex struct {
	path     string
	analyzer string
	index    bleve.Index
}

// NewFullTextIndex opens an existing bleve index at path or creates a new
// one with the given analyzer (e.g. "en").
func NewFullTextIndex(path, analyzer string) (*FullTextIndex, error) {
	if analyzer == "" {
		analyzer = "en"
	}

	idx := &FullTextIndex{path: path, analyzer: analyzer}

	bleveIndex, err := bleve.Open(path)
	if err != nil {
		bleveIndex, err = bleve.New(path, idx.mapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create full-text index: %w", err)
		}
	}
	idx.index = bleveIndex

	return idx, nil
}

func (i *FullTextIndex) mapping() blevemapping.IndexMapping {
	mapping := bleve.NewIndexMapping()

	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = i.analyzer

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("title", textFieldMapping)

	metadataMapping := bleve.NewDocumentDisabledMapping()
	docMapping.AddSubDocumentMapping("metadata", metadataMapping)

	mapping.AddDocumentMapping("_default", docMapping)
	mapping.DefaultAnalyzer = i.analyzer

	return mapping
}

// Store indexes a document chunk under the given id.
func (i *FullTextIndex) Store(id, content string, metadata map[string]string) error {
	title := metadata["title"]
	if title == "" {
		title = metadata["source"]
	}

	doc := map[string]interface{}{
		"id":      id,
		"content": content,
		"title":   title,
	}

	if len(metadata) > 0 {
		metadataJSON, err := json.Marshal(metadata)
		if err == nil {
			doc["metadata"] = string(metadataJSON)
		}
	}

	return i.index.Index(id, doc)
}

// Delete removes documents from the index.
func (i *FullTextIndex) Delete(ids ...string) error {
	for _, id := range ids {
		if err := i.index.Delete(id); err != nil {
			return err
		}
	}
	return nil
}

// Reset drops and recreates the index.
func (i *FullTextIndex) Reset() error {
	if err := i.index.Close(); err != nil {
		xlog.Warn("Failed to close full-text index", "error", err)
	}
	if err := os.RemoveAll(i.path); err != nil {
		return err
	}

	bleveIndex, err := bleve.New(i.path, i.mapping())
	if err != nil {
		return fmt.Errorf("failed to recreate full-text index: %w", err)
	}
	i.index = bleveIndex
	return nil
}

// Count returns the number of indexed documents.
func (i *FullTextIndex) Count() int {
	count, err := i.index.DocCount()
	if err != nil {
		return 0
	}
	return int(count)
}

// Close releases the underlying index.
func (i *FullTextIndex) Close() error {
	return i.index.Close()
}

// SearchKeywords performs lexical search and returns candidates ordered by
// descending lexical score.
func (i *FullTextIndex) SearchKeywords(ctx context.Context, query string, limit int) (types.RankedList, error) {
	list := types.RankedList{Source: types.SourceSparse}

	matchQuery := bleve.NewMatchQuery(query)
	searchRequest := bleve.NewSearchRequest(matchQuery)
	searchRequest.Size = limit
	searchRequest.Fields = []string{"content", "title", "metadata"}

	searchResult, err := i.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return list, fmt.Errorf("%w: %v", types.ErrRetrievalUnavailable, err)
	}

	for _, hit := range searchResult.Hits {
		result := types.Result{
			ID:     hit.ID,
			Score:  hit.Score,
			Source: types.SourceSparse,
		}

		if content, ok := hit.Fields["content"].(string); ok {
			result.Content = content
		}

		metadata := map[string]string{}
		if raw, ok := hit.Fields["metadata"].(string); ok {
			if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
				metadata = map[string]string{}
			}
		}
		if title, ok := hit.Fields["title"].(string); ok && title != "" {
			metadata["title"] = title
		}
		if len(metadata) > 0 {
			result.Metadata = metadata
		}

		list.Results = append(list.Results, result)
	}

	return list, nil
}
