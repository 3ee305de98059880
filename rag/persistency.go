package rag

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"path/filepath"

	"os"
	"sync"
)

// PersistentKB is a knowledge-base collection: an engine feeding both
// retrieval signals, plus a JSON state file tracking the files, content
// hashes and external sources that populate it.
type PersistentKB struct {
	Engine
	sync.Mutex
	state        kbState
	path         string
	assetDir     string
	maxChunkSize int
}

type kbState struct {
	Files []string `json:"files"`
	// Hashes maps file name to the sha256 of its content, so re-uploading
	// unchanged content is a no-op.
	Hashes  map[string]string `json:"hashes"`
	Sources []ExternalSource  `json:"sources"`
}

func loadDB(path string) (kbState, error) {
	state := kbState{Hashes: map[string]string{}}
	data, err := os.ReadFile(path)
	if err != nil {
		return state, err
	}

	err = json.Unmarshal(data, &state)
	if state.Hashes == nil {
		state.Hashes = map[string]string{}
	}
	return state, err
}

func contentHash(content []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(content))
}

func NewPersistentCollectionKB(stateFile, assetDir string, store Engine, maxChunkSize int) (*PersistentKB, error) {
	if err := os.MkdirAll(assetDir, 0755); err != nil {
		return nil, err
	}

	if _, err := os.Stat(stateFile); err != nil {
		persistentKB := &PersistentKB{
			state:        kbState{Hashes: map[string]string{}},
			path:         stateFile,
			Engine:       store,
			assetDir:     assetDir,
			maxChunkSize: maxChunkSize,
		}
		persistentKB.Lock()
		defer persistentKB.Unlock()
		return persistentKB, persistentKB.save()
	}

	state, err := loadDB(stateFile)
	if err != nil {
		return nil, err
	}
	db := &PersistentKB{
		Engine:       store,
		state:        state,
		path:         stateFile,
		maxChunkSize: maxChunkSize,
		assetDir:     assetDir,
	}

	return db, nil
}

func (db *PersistentKB) Reset() error {
	db.Lock()
	for _, f := range db.state.Files {
		os.Remove(filepath.Join(db.assetDir, f))
	}
	db.state.Files = []string{}
	db.state.Hashes = map[string]string{}
	db.save()
	db.Unlock()
	return db.Engine.Reset()
}

func (db *PersistentKB) save() error {
	data, err := json.Marshal(db.state)
	if err != nil {
		return err
	}

	return os.WriteFile(db.path, data, 0644)
}

// repopulate reinitializes the knowledge base from the files already
// copied into the asset directory.
func (db *PersistentKB) repopulate() error {
	db.Lock()
	defer db.Unlock()

	if err := db.Engine.Reset(); err != nil {
		return fmt.Errorf("failed to reset engine: %w", err)
	}

	for _, f := range db.state.Files {
		if err := db.store(filepath.Join(db.assetDir, f), nil); err != nil {
			return fmt.Errorf("failed to store files: %w", err)
		}
	}

	return nil
}

// ListEntries returns the file names stored in the collection.
func (db *PersistentKB) ListEntries() []string {
	db.Lock()
	defer db.Unlock()

	return append([]string{}, db.state.Files...)
}

func (db *PersistentKB) EntryExists(entry string) bool {
	db.Lock()
	defer db.Unlock()

	return db.entryExists(entry)
}

func (db *PersistentKB) entryExists(entry string) bool {
	entry = filepath.Base(entry)
	for _, e := range db.state.Files {
		if e == entry {
			return true
		}
	}
	return false
}

// Store copies a file into the asset dir, chunks it and feeds the chunks
// to the engine. Unchanged content (same sha256) is skipped.
func (db *PersistentKB) Store(entry string, metadata map[string]string) error {
	db.Lock()
	defer db.Unlock()

	content, err := os.ReadFile(entry)
	if err != nil {
		return fmt.Errorf("file does not exist: %s", entry)
	}

	fileName := filepath.Base(entry)
	hash := contentHash(content)
	if db.state.Hashes[fileName] == hash {
		return nil
	}
	if db.entryExists(fileName) {
		return fmt.Errorf("entry already exists: %s", fileName)
	}

	if err := copyFile(entry, db.assetDir); err != nil {
		return fmt.Errorf("failed to copy file: %w", err)
	}

	if err := db.store(filepath.Join(db.assetDir, fileName), metadata); err != nil {
		return fmt.Errorf("failed to store file: %w", err)
	}

	db.state.Files = append(db.state.Files, fileName)
	db.state.Hashes[fileName] = hash
	return db.save()
}

// StoreOrReplace stores an entry, replacing a previous version if the
// content changed.
func (db *PersistentKB) StoreOrReplace(entry string, metadata map[string]string) error {
	content, err := os.ReadFile(entry)
	if err != nil {
		return fmt.Errorf("file does not exist: %s", entry)
	}

	fileName := filepath.Base(entry)

	db.Lock()
	unchanged := db.state.Hashes[fileName] == contentHash(content)
	exists := db.entryExists(fileName)
	db.Unlock()

	if unchanged {
		return nil
	}
	if exists {
		if err := db.RemoveEntry(fileName); err != nil {
			return err
		}
	}

	return db.Store(entry, metadata)
}

func (db *PersistentKB) store(path string, metadata map[string]string) error {
	pieces, err := chunkFile(path, db.maxChunkSize)
	if err != nil {
		return err
	}

	meta := map[string]string{"source": filepath.Base(path), "type": "file"}
	for k, v := range metadata {
		meta[k] = v
	}

	if _, err := db.Engine.StoreDocuments(pieces, meta); err != nil {
		return err
	}

	return nil
}

// RemoveEntry removes an entry from the persistent knowledge base.
func (db *PersistentKB) RemoveEntry(entry string) error {
	db.Lock()
	for i, e := range db.state.Files {
		if e == entry {
			db.state.Files = append(db.state.Files[:i], db.state.Files[i+1:]...)
			delete(db.state.Hashes, entry)
			os.Remove(filepath.Join(db.assetDir, e))
			break
		}
	}
	db.save()
	db.Unlock()

	// chromem does not support deleting by metadata filter, so rebuild the
	// engine from the remaining files.
	return db.repopulate()
}

// AddExternalSource registers an external source with the collection.
func (db *PersistentKB) AddExternalSource(source ExternalSource) error {
	db.Lock()
	defer db.Unlock()

	for _, s := range db.state.Sources {
		if s.URL == source.URL {
			return fmt.Errorf("source already exists: %s", source.URL)
		}
	}

	db.state.Sources = append(db.state.Sources, source)
	return db.save()
}

// RemoveExternalSource unregisters an external source.
func (db *PersistentKB) RemoveExternalSource(url string) error {
	db.Lock()
	defer db.Unlock()

	for i, s := range db.state.Sources {
		if s.URL == url {
			db.state.Sources = append(db.state.Sources[:i], db.state.Sources[i+1:]...)
			return db.save()
		}
	}

	return fmt.Errorf("source not found: %s", url)
}

// GetExternalSources lists the registered external sources.
func (db *PersistentKB) GetExternalSources() []ExternalSource {
	db.Lock()
	defer db.Unlock()

	return append([]ExternalSource{}, db.state.Sources...)
}

func copyFile(src, dst string) error {
	in, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dst, filepath.Base(src)), in, 0644)
}
