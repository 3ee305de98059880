package rag_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	. "github.com/ragstack/localrag/rag"
	"github.com/ragstack/localrag/rag/types"
)

// memoryEngine keeps stored chunks in memory so the knowledge-base logic
// can be tested without a vector backend.
type memoryEngine struct {
	docs   map[string]string
	nextID int
	resets int
}

func newMemoryEngine() *memoryEngine {
	return &memoryEngine{docs: map[string]string{}}
}

func (m *memoryEngine) Store(s string, meta map[string]string) (types.Result, error) {
	m.nextID++
	id := fmt.Sprint(m.nextID)
	m.docs[id] = s
	return types.Result{ID: id, Content: s, Metadata: meta}, nil
}

func (m *memoryEngine) StoreDocuments(s []string, meta map[string]string) ([]types.Result, error) {
	results := make([]types.Result, 0, len(s))
	for _, doc := range s {
		r, err := m.Store(doc, meta)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

func (m *memoryEngine) Delete(ids ...string) error {
	for _, id := range ids {
		delete(m.docs, id)
	}
	return nil
}

func (m *memoryEngine) Reset() error {
	m.docs = map[string]string{}
	m.resets++
	return nil
}

func (m *memoryEngine) Count() int { return len(m.docs) }

func (m *memoryEngine) SearchVectors(ctx context.Context, embedding []float32, limit int) (types.RankedList, error) {
	return types.RankedList{Source: types.SourceDense}, nil
}

func (m *memoryEngine) SearchKeywords(ctx context.Context, query string, limit int) (types.RankedList, error) {
	return types.RankedList{Source: types.SourceSparse}, nil
}

var _ = Describe("PersistentKB", func() {
	var (
		tempDir   string
		stateFile string
		assetDir  string
		engine    *memoryEngine
		kb        *PersistentKB
	)

	writeTestFile := func(name, content string) string {
		path := filepath.Join(tempDir, name)
		Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
		return path
	}

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "persistency_test_*")
		Expect(err).ToNot(HaveOccurred())

		stateFile = filepath.Join(tempDir, "state.json")
		assetDir = filepath.Join(tempDir, "assets")
		engine = newMemoryEngine()

		kb, err = NewPersistentCollectionKB(stateFile, assetDir, engine, 1000)
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		if tempDir != "" {
			os.RemoveAll(tempDir)
		}
	})

	Describe("NewPersistentCollectionKB", func() {
		It("should create the state file", func() {
			Expect(stateFile).To(BeAnExistingFile())
		})

		It("should reload existing state", func() {
			testFile := writeTestFile("doc.txt", "some content")
			Expect(kb.Store(testFile, nil)).To(Succeed())

			reloaded, err := NewPersistentCollectionKB(stateFile, assetDir, engine, 1000)
			Expect(err).ToNot(HaveOccurred())
			Expect(reloaded.ListEntries()).To(ContainElement("doc.txt"))
		})
	})

	Describe("Store", func() {
		It("should copy the file into the asset dir and index its chunks", func() {
			testFile := writeTestFile("doc.txt", "some content")
			Expect(kb.Store(testFile, map[string]string{"type": "test"})).To(Succeed())

			Expect(kb.ListEntries()).To(Equal([]string{"doc.txt"}))
			Expect(filepath.Join(assetDir, "doc.txt")).To(BeAnExistingFile())
			Expect(engine.Count()).To(BeNumerically(">", 0))
		})

		It("should skip unchanged content", func() {
			testFile := writeTestFile("doc.txt", "some content")
			Expect(kb.Store(testFile, nil)).To(Succeed())

			stored := engine.Count()
			Expect(kb.Store(testFile, nil)).To(Succeed())
			Expect(engine.Count()).To(Equal(stored))
			Expect(kb.ListEntries()).To(HaveLen(1))
		})

		It("should reject a changed file with the same name", func() {
			testFile := writeTestFile("doc.txt", "some content")
			Expect(kb.Store(testFile, nil)).To(Succeed())

			writeTestFile("doc.txt", "different content")
			err := kb.Store(testFile, nil)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("already exists"))
		})

		It("should fail for a missing file", func() {
			err := kb.Store(filepath.Join(tempDir, "missing.txt"), nil)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("StoreOrReplace", func() {
		It("should replace a changed entry", func() {
			testFile := writeTestFile("doc.txt", "first version")
			Expect(kb.StoreOrReplace(testFile, nil)).To(Succeed())

			writeTestFile("doc.txt", "second version")
			Expect(kb.StoreOrReplace(testFile, nil)).To(Succeed())

			Expect(kb.ListEntries()).To(Equal([]string{"doc.txt"}))
			content, err := os.ReadFile(filepath.Join(assetDir, "doc.txt"))
			Expect(err).ToNot(HaveOccurred())
			Expect(string(content)).To(Equal("second version"))
		})

		It("should be a no-op for unchanged content", func() {
			testFile := writeTestFile("doc.txt", "same content")
			Expect(kb.StoreOrReplace(testFile, nil)).To(Succeed())

			resets := engine.resets
			Expect(kb.StoreOrReplace(testFile, nil)).To(Succeed())
			Expect(engine.resets).To(Equal(resets))
		})
	})

	Describe("ListEntries", func() {
		It("should return an empty list for a new collection", func() {
			Expect(kb.ListEntries()).To(BeEmpty())
		})
	})

	Describe("EntryExists", func() {
		It("should find stored entries by base name", func() {
			testFile := writeTestFile("doc.txt", "some content")
			Expect(kb.Store(testFile, nil)).To(Succeed())

			Expect(kb.EntryExists("doc.txt")).To(BeTrue())
			Expect(kb.EntryExists(testFile)).To(BeTrue())
			Expect(kb.EntryExists("other.txt")).To(BeFalse())
		})
	})

	Describe("RemoveEntry", func() {
		It("should remove the entry and rebuild the index", func() {
			first := writeTestFile("first.txt", "first content")
			second := writeTestFile("second.txt", "second content")
			Expect(kb.Store(first, nil)).To(Succeed())
			Expect(kb.Store(second, nil)).To(Succeed())

			Expect(kb.RemoveEntry("first.txt")).To(Succeed())

			Expect(kb.ListEntries()).To(Equal([]string{"second.txt"}))
			Expect(filepath.Join(assetDir, "first.txt")).ToNot(BeAnExistingFile())
			Expect(engine.Count()).To(BeNumerically(">", 0))
		})
	})

	Describe("Reset", func() {
		It("should wipe entries, assets and the engine", func() {
			testFile := writeTestFile("doc.txt", "some content")
			Expect(kb.Store(testFile, nil)).To(Succeed())

			Expect(kb.Reset()).To(Succeed())

			Expect(kb.ListEntries()).To(BeEmpty())
			Expect(engine.Count()).To(Equal(0))
			Expect(filepath.Join(assetDir, "doc.txt")).ToNot(BeAnExistingFile())
		})
	})

	Describe("External sources", func() {
		It("should add, list and remove sources", func() {
			source := ExternalSource{URL: "https://example.com"}
			Expect(kb.AddExternalSource(source)).To(Succeed())
			Expect(kb.AddExternalSource(source)).ToNot(Succeed())

			Expect(kb.GetExternalSources()).To(HaveLen(1))

			Expect(kb.RemoveExternalSource("https://example.com")).To(Succeed())
			Expect(kb.GetExternalSources()).To(BeEmpty())
			Expect(kb.RemoveExternalSource("https://example.com")).ToNot(Succeed())
		})
	})
})
