package main

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/ragstack/localrag/rag"
	"github.com/ragstack/localrag/rag/types"
	"github.com/sashabaranov/go-openai"
)

type application struct {
	openAIClient  *openai.Client
	generator     *rag.Generator
	reranker      types.Reranker
	sourceManager *rag.SourceManager

	mu          sync.RWMutex
	collections map[string]*rag.Collection
}

func (a *application) newCollection(name string) (*rag.Collection, error) {
	cfg := collectionConfig(a.reranker)
	if vectorEngine == "postgres" {
		return rag.NewPersistentPostgresCollection(a.openAIClient, name, databaseURL, cfg)
	}
	return rag.NewPersistentChromeCollection(a.openAIClient, name, cfg)
}

func (a *application) collection(name string) (*rag.Collection, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	collection, exists := a.collections[name]
	return collection, exists
}

func startAPI(app *application) {
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	registerStaticHandler(e)

	e.POST("/api/collections", createCollection(app))
	e.GET("/api/collections", listCollections)
	e.POST("/api/collections/:name/upload", uploadFile(app))
	e.GET("/api/collections/:name/entries", listFiles(app))
	e.POST("/api/collections/:name/search", search(app))
	e.POST("/api/collections/:name/reset", reset(app))
	e.DELETE("/api/collections/:name/entry/delete", deleteEntry(app))
	e.POST("/api/collections/:name/sources", addSource(app))
	e.DELETE("/api/collections/:name/sources", removeSource(app))
	e.GET("/api/collections/:name/sources", listSources(app))
	e.POST("/api/ask", ask(app))

	e.Logger.Fatal(e.Start(listenAddress))
}

func errorMessage(message string) map[string]string {
	return map[string]string{"error": message}
}

// createCollection handles creating a new collection
func createCollection(app *application) func(c echo.Context) error {
	return func(c echo.Context) error {
		type request struct {
			Name string `json:"name"`
		}

		r := new(request)
		if err := c.Bind(r); err != nil || r.Name == "" {
			return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
		}

		app.mu.Lock()
		defer app.mu.Unlock()

		if _, exists := app.collections[r.Name]; exists {
			return c.JSON(http.StatusConflict, errorMessage("Collection already exists"))
		}

		collection, err := app.newCollection(r.Name)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, errorMessage("Failed to create collection: "+err.Error()))
		}

		app.collections[r.Name] = collection
		app.sourceManager.RegisterCollection(r.Name, collection)

		return c.JSON(http.StatusCreated, collection)
	}
}

// listCollections returns all collections
func listCollections(c echo.Context) error {
	return c.JSON(http.StatusOK, rag.ListAllCollections(collectionDBPath))
}

func listFiles(app *application) func(c echo.Context) error {
	return func(c echo.Context) error {
		collection, exists := app.collection(c.Param("name"))
		if !exists {
			return c.JSON(http.StatusNotFound, errorMessage("Collection not found"))
		}
		return c.JSON(http.StatusOK, collection.ListEntries())
	}
}

func search(app *application) func(c echo.Context) error {
	return func(c echo.Context) error {
		collection, exists := app.collection(c.Param("name"))
		if !exists {
			return c.JSON(http.StatusNotFound, errorMessage("Collection not found"))
		}

		query := new(types.Query)
		if err := c.Bind(query); err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
		}

		resp, err := collection.Search(c.Request().Context(), *query)
		if err != nil {
			if errors.Is(err, types.ErrAllRetrieversUnavailable) {
				return c.JSON(http.StatusServiceUnavailable, errorMessage(err.Error()))
			}
			return c.JSON(http.StatusInternalServerError, errorMessage(err.Error()))
		}

		return c.JSON(http.StatusOK, resp)
	}
}

func reset(app *application) func(c echo.Context) error {
	return func(c echo.Context) error {
		collection, exists := app.collection(c.Param("name"))
		if !exists {
			return c.JSON(http.StatusNotFound, errorMessage("Collection not found"))
		}

		if err := collection.Reset(); err != nil {
			return c.JSON(http.StatusInternalServerError, errorMessage("Failed to reset collection"))
		}

		return c.JSON(http.StatusOK, collection.ListEntries())
	}
}

func deleteEntry(app *application) func(c echo.Context) error {
	return func(c echo.Context) error {
		collection, exists := app.collection(c.Param("name"))
		if !exists {
			return c.JSON(http.StatusNotFound, errorMessage("Collection not found"))
		}

		type request struct {
			Entry string `json:"entry"`
		}

		r := new(request)
		if err := c.Bind(r); err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
		}

		if err := collection.RemoveEntry(r.Entry); err != nil {
			return c.JSON(http.StatusInternalServerError, errorMessage("Failed to remove entry"))
		}

		return c.JSON(http.StatusOK, collection.ListEntries())
	}
}

// uploadFile handles uploading files to a collection
func uploadFile(app *application) func(c echo.Context) error {
	return func(c echo.Context) error {
		collection, exists := app.collection(c.Param("name"))
		if !exists {
			return c.JSON(http.StatusNotFound, errorMessage("Collection not found"))
		}

		file, err := c.FormFile("file")
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Failed to read file: "+err.Error()))
		}

		f, err := file.Open()
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Failed to open file: "+err.Error()))
		}
		defer f.Close()

		filePath := filepath.Join(fileAssets, file.Filename)
		out, err := os.Create(filePath)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, errorMessage("Failed to create file"))
		}
		defer out.Close()

		if _, err := io.Copy(out, f); err != nil {
			return c.JSON(http.StatusInternalServerError, errorMessage("Failed to copy file"))
		}

		if err := collection.Store(filePath, map[string]string{"type": "file"}); err != nil {
			return c.JSON(http.StatusInternalServerError, errorMessage("Failed to store file: "+err.Error()))
		}

		return c.JSON(http.StatusOK, collection)
	}
}

func addSource(app *application) func(c echo.Context) error {
	return func(c echo.Context) error {
		name := c.Param("name")
		if _, exists := app.collection(name); !exists {
			return c.JSON(http.StatusNotFound, errorMessage("Collection not found"))
		}

		type request struct {
			URL            string `json:"url"`
			UpdateInterval string `json:"update_interval"`
		}

		r := new(request)
		if err := c.Bind(r); err != nil || r.URL == "" {
			return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
		}

		interval := time.Hour
		if r.UpdateInterval != "" {
			parsed, err := time.ParseDuration(r.UpdateInterval)
			if err != nil {
				return c.JSON(http.StatusBadRequest, errorMessage("Invalid update interval: "+err.Error()))
			}
			interval = parsed
		}

		if err := app.sourceManager.AddSource(name, r.URL, interval); err != nil {
			return c.JSON(http.StatusInternalServerError, errorMessage("Failed to add source: "+err.Error()))
		}

		return c.JSON(http.StatusCreated, map[string]string{"url": r.URL})
	}
}

func removeSource(app *application) func(c echo.Context) error {
	return func(c echo.Context) error {
		name := c.Param("name")
		if _, exists := app.collection(name); !exists {
			return c.JSON(http.StatusNotFound, errorMessage("Collection not found"))
		}

		type request struct {
			URL string `json:"url"`
		}

		r := new(request)
		if err := c.Bind(r); err != nil || r.URL == "" {
			return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
		}

		if err := app.sourceManager.RemoveSource(name, r.URL); err != nil {
			return c.JSON(http.StatusInternalServerError, errorMessage("Failed to remove source: "+err.Error()))
		}

		return c.NoContent(http.StatusNoContent)
	}
}

func listSources(app *application) func(c echo.Context) error {
	return func(c echo.Context) error {
		collection, exists := app.collection(c.Param("name"))
		if !exists {
			return c.JSON(http.StatusNotFound, errorMessage("Collection not found"))
		}
		return c.JSON(http.StatusOK, collection.GetExternalSources())
	}
}

// ask runs the full pipeline: query rewrite, hybrid retrieval, grounded
// answer generation.
func ask(app *application) func(c echo.Context) error {
	return func(c echo.Context) error {
		type request struct {
			Collection string                         `json:"collection"`
			Query      string                         `json:"query"`
			MaxResults int                            `json:"max_results"`
			Rerank     bool                           `json:"rerank"`
			History    []openai.ChatCompletionMessage `json:"history"`
		}

		r := new(request)
		if err := c.Bind(r); err != nil || r.Collection == "" || r.Query == "" {
			return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
		}

		collection, exists := app.collection(r.Collection)
		if !exists {
			return c.JSON(http.StatusNotFound, errorMessage("Collection not found"))
		}

		ctx := c.Request().Context()

		searchQuery, err := app.generator.RewriteQuery(ctx, r.History, r.Query)
		if err != nil {
			// A failed rewrite is not fatal, retrieval proceeds with the
			// original query.
			searchQuery = r.Query
		}

		resp, err := collection.Search(ctx, types.Query{
			Text:   searchQuery,
			K:      r.MaxResults,
			Rerank: r.Rerank,
		})
		if err != nil {
			if errors.Is(err, types.ErrAllRetrieversUnavailable) {
				return c.JSON(http.StatusServiceUnavailable, errorMessage(err.Error()))
			}
			return c.JSON(http.StatusInternalServerError, errorMessage(err.Error()))
		}

		answer, err := app.generator.Answer(ctx, r.Query, resp.Results)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, errorMessage("Failed to generate answer: "+err.Error()))
		}

		type response struct {
			Answer   string                `json:"answer"`
			Query    string                `json:"query"`
			Response *types.SearchResponse `json:"search"`
		}

		return c.JSON(http.StatusOK, response{
			Answer:   answer,
			Query:    searchQuery,
			Response: resp,
		})
	}
}
