package rag

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mudler/xlog"
	"github.com/ragstack/localrag/rag/sources"
)

// ExternalSource represents a source that needs to be periodically updated
type ExternalSource struct {
	URL            string        `json:"url"`
	UpdateInterval time.Duration `json:"update_interval"`
	LastUpdate     time.Time     `json:"last_update"`
}

// SourceManager manages external sources for collections
type SourceManager struct {
	sources     map[string][]ExternalSource // collection name -> sources
	collections map[string]*Collection      // collection name -> collection
	config      *sources.Config
	mu          sync.RWMutex
	stop        chan struct{}
	stopOnce    sync.Once
}

// NewSourceManager creates a new source manager
func NewSourceManager(config *sources.Config) *SourceManager {
	if config == nil {
		config = &sources.Config{}
	}
	return &SourceManager{
		sources:     make(map[string][]ExternalSource),
		collections: make(map[string]*Collection),
		config:      config,
		stop:        make(chan struct{}),
	}
}

// RegisterCollection registers a collection with the source manager
func (sm *SourceManager) RegisterCollection(name string, collection *Collection) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.collections[name] = collection

	// Load existing sources from the collection
	for _, source := range collection.GetExternalSources() {
		sm.sources[name] = append(sm.sources[name], source)
		go sm.updateSource(name, source, collection)
	}
}

// AddSource adds a new external source to a collection
func (sm *SourceManager) AddSource(collectionName, url string, updateInterval time.Duration) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	collection, exists := sm.collections[collectionName]
	if !exists {
		return fmt.Errorf("collection %s not found", collectionName)
	}

	source := ExternalSource{
		URL:            url,
		UpdateInterval: updateInterval,
		LastUpdate:     time.Now(),
	}

	if err := collection.AddExternalSource(source); err != nil {
		return err
	}

	sm.sources[collectionName] = append(sm.sources[collectionName], source)

	// Trigger an immediate update
	go sm.updateSource(collectionName, source, collection)

	return nil
}

// RemoveSource removes an external source from a collection
func (sm *SourceManager) RemoveSource(collectionName, url string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	collection, exists := sm.collections[collectionName]
	if !exists {
		return fmt.Errorf("collection %s not found", collectionName)
	}

	if err := collection.RemoveExternalSource(url); err != nil {
		return err
	}

	if err := collection.RemoveEntry(fmt.Sprintf("source-%s-%s.txt", collectionName, sanitizeURL(url))); err != nil {
		return err
	}

	sources := sm.sources[collectionName]
	for i, s := range sources {
		if s.URL == url {
			sm.sources[collectionName] = append(sources[:i], sources[i+1:]...)
			break
		}
	}

	return nil
}

// updateSource updates a single source
func (sm *SourceManager) updateSource(collectionName string, source ExternalSource, collection *Collection) {
	xlog.Info("Updating source", "url", source.URL)
	content, err := sources.SourceRouter(source.URL, sm.config)
	if err != nil {
		xlog.Error("Error updating source", "url", source.URL, "error", err)
		return
	}

	// Stage the content as a file so the regular chunking path applies.
	sanitizedURL := sanitizeURL(source.URL)
	tmpFile := filepath.Join(os.TempDir(), fmt.Sprintf("source-%s-%s.txt", collectionName, sanitizedURL))
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		xlog.Error("Error creating temporary file", "error", err)
		return
	}
	defer os.Remove(tmpFile)

	if err := collection.StoreOrReplace(tmpFile, map[string]string{"url": source.URL, "type": "source"}); err != nil {
		xlog.Error("Error storing content in collection", "error", err)
		return
	}

	xlog.Info("Source updated", "url", source.URL, "collection", collectionName)
}

// sanitizeURL converts a URL into a filesystem-safe string
func sanitizeURL(url string) string {
	replacer := strings.NewReplacer(
		"://", "-",
		"/", "-",
		"?", "-",
		"&", "-",
		"=", "-",
		"#", "-",
		"@", "-",
		":", "-",
		".", "-",
		"+", "-",
		" ", "-",
	)

	sanitized := replacer.Replace(strings.ToLower(url))

	for strings.Contains(sanitized, "--") {
		sanitized = strings.ReplaceAll(sanitized, "--", "-")
	}

	sanitized = strings.Trim(sanitized, "-")

	// Common filesystem file name limit
	if len(sanitized) > 255 {
		sanitized = sanitized[:255]
	}

	return sanitized
}

// Start starts the background refresh loop.
func (sm *SourceManager) Start() {
	go func() {
		ticker := time.NewTicker(1 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-sm.stop:
				return
			case <-ticker.C:
			}

			sm.mu.RLock()
			for collectionName, sources := range sm.sources {
				collection := sm.collections[collectionName]
				for _, source := range sources {
					if time.Since(source.LastUpdate) >= source.UpdateInterval {
						go sm.updateSource(collectionName, source, collection)
					}
				}
			}
			sm.mu.RUnlock()
		}
	}()
}

// Stop terminates the background refresh loop.
func (sm *SourceManager) Stop() {
	sm.stopOnce.Do(func() {
		close(sm.stop)
	})
}
