package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/ragstack/localrag/rag/types"
	"github.com/sashabaranov/go-openai"
)

// Client is a client for the RAG API
type Client struct {
	BaseURL string
}

// NewClient creates a new RAG API client
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
	}
}

// SearchOptions tunes a search call. The zero value asks for the server
// defaults without reranking.
type SearchOptions struct {
	MaxResults int  `json:"max_results,omitempty"`
	Rerank     bool `json:"rerank,omitempty"`
}

// AskResponse is the output of the ask endpoint: the generated answer plus
// the retrieval output it was grounded on.
type AskResponse struct {
	Answer   string                `json:"answer"`
	Query    string                `json:"query"`
	Response *types.SearchResponse `json:"search"`
}

// CreateCollection creates a new collection
func (c *Client) CreateCollection(name string) error {
	url := fmt.Sprintf("%s/api/collections", c.BaseURL)

	type request struct {
		Name string `json:"name"`
	}

	payload, err := json.Marshal(request{Name: name})
	if err != nil {
		return err
	}

	resp, err := http.Post(url, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return errors.New("failed to create collection")
	}

	return nil
}

// ListCollections lists all collections
func (c *Client) ListCollections() ([]string, error) {
	url := fmt.Sprintf("%s/api/collections", c.BaseURL)

	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("failed to list collections")
	}

	var collections []string
	err = json.NewDecoder(resp.Body).Decode(&collections)
	if err != nil {
		return nil, err
	}

	return collections, nil
}

// ListEntries lists the entries stored in a collection
func (c *Client) ListEntries(collection string) ([]string, error) {
	url := fmt.Sprintf("%s/api/collections/%s/entries", c.BaseURL, collection)

	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("failed to list entries")
	}

	var entries []string
	err = json.NewDecoder(resp.Body).Decode(&entries)
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// Search runs a hybrid search against a collection. The response carries
// the ranked results plus the degradation flags and timings.
func (c *Client) Search(collection, query string, opts SearchOptions) (*types.SearchResponse, error) {
	url := fmt.Sprintf("%s/api/collections/%s/search", c.BaseURL, collection)

	type request struct {
		Query string `json:"query"`
		SearchOptions
	}

	payload, err := json.Marshal(request{Query: query, SearchOptions: opts})
	if err != nil {
		return nil, err
	}

	resp, err := http.Post(url, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to search collection: status %d", resp.StatusCode)
	}

	var result types.SearchResponse
	err = json.NewDecoder(resp.Body).Decode(&result)
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// Ask runs the full pipeline: query rewrite, retrieval, and grounded answer
// generation.
func (c *Client) Ask(collection, query string, history []openai.ChatCompletionMessage, opts SearchOptions) (*AskResponse, error) {
	url := fmt.Sprintf("%s/api/ask", c.BaseURL)

	type request struct {
		Collection string                         `json:"collection"`
		Query      string                         `json:"query"`
		History    []openai.ChatCompletionMessage `json:"history,omitempty"`
		SearchOptions
	}

	payload, err := json.Marshal(request{Collection: collection, Query: query, History: history, SearchOptions: opts})
	if err != nil {
		return nil, err
	}

	resp, err := http.Post(url, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to ask: status %d", resp.StatusCode)
	}

	var result AskResponse
	err = json.NewDecoder(resp.Body).Decode(&result)
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// Reset wipes the content of a collection
func (c *Client) Reset(collection string) error {
	url := fmt.Sprintf("%s/api/collections/%s/reset", c.BaseURL, collection)

	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.New("failed to reset collection")
	}

	return nil
}

// DeleteEntry removes a single entry from a collection
func (c *Client) DeleteEntry(collection, entry string) error {
	url := fmt.Sprintf("%s/api/collections/%s/entry/delete", c.BaseURL, collection)

	type request struct {
		Entry string `json:"entry"`
	}

	payload, err := json.Marshal(request{Entry: entry})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodDelete, url, bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.New("failed to delete entry")
	}

	return nil
}

// AddSource registers an external source with a collection
func (c *Client) AddSource(collection, sourceURL string, updateInterval time.Duration) error {
	url := fmt.Sprintf("%s/api/collections/%s/sources", c.BaseURL, collection)

	type request struct {
		URL            string `json:"url"`
		UpdateInterval string `json:"update_interval"`
	}

	payload, err := json.Marshal(request{URL: sourceURL, UpdateInterval: updateInterval.String()})
	if err != nil {
		return err
	}

	resp, err := http.Post(url, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return errors.New("failed to add source")
	}

	return nil
}

// RemoveSource unregisters an external source from a collection
func (c *Client) RemoveSource(collection, sourceURL string) error {
	url := fmt.Sprintf("%s/api/collections/%s/sources", c.BaseURL, collection)

	type request struct {
		URL string `json:"url"`
	}

	payload, err := json.Marshal(request{URL: sourceURL})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodDelete, url, bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return errors.New("failed to remove source")
	}

	return nil
}

// Store uploads a file to a collection
func (c *Client) Store(collection, filePath string) error {
	url := fmt.Sprintf("%s/api/collections/%s/upload", c.BaseURL, collection)

	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", file.Name())
	if err != nil {
		return err
	}

	_, err = io.Copy(part, file)
	if err != nil {
		return err
	}

	err = writer.Close()
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.New("failed to upload file")
	}

	return nil
}
