package e2e_test

import (
	"context"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/ragstack/localrag/rag"
	"github.com/ragstack/localrag/rag/sources"
	"github.com/ragstack/localrag/rag/types"
	"github.com/sashabaranov/go-openai"
)

var _ = Describe("SourceManager", func() {
	var (
		tempDir       string
		localAI       *openai.Client
		collection    *rag.Collection
		sourceManager *rag.SourceManager
	)

	BeforeEach(func() {
		if os.Getenv("E2E") != "true" {
			Skip("Skipping E2E tests")
		}

		var err error
		tempDir, err = os.MkdirTemp("", "source-manager-test-*")
		Expect(err).To(BeNil())

		localAI = openai.NewClientWithConfig(NewTestOpenAIConfig())

		collection, err = rag.NewPersistentChromeCollection(localAI, TestCollection, rag.CollectionConfig{
			DBPath:         tempDir,
			AssetDir:       tempDir + "/assets",
			EmbeddingModel: EmbeddingModel,
			MaxChunkSize:   DefaultChunkSize,
		})
		Expect(err).To(BeNil())

		sourceManager = rag.NewSourceManager(&sources.Config{
			GitPrivateKey: os.Getenv("GIT_PRIVATE_KEY"),
		})
	})

	AfterEach(func() {
		sourceManager.Stop()
		os.RemoveAll(tempDir)
	})

	Context("Collection Registration", func() {
		It("should register a collection", func() {
			sourceManager.RegisterCollection(TestCollection, collection)

			err := sourceManager.AddSource(TestCollection, "https://example.com", DefaultUpdateInterval)
			Expect(err).To(BeNil())

			sources := collection.GetExternalSources()
			Expect(sources).To(HaveLen(1))
			Expect(sources[0].URL).To(Equal("https://example.com"))
		})

		It("should load existing sources when registering a collection", func() {
			source := rag.ExternalSource{
				URL:            "https://example.com",
				UpdateInterval: DefaultUpdateInterval,
				LastUpdate:     time.Now(),
			}
			err := collection.AddExternalSource(source)
			Expect(err).To(BeNil())

			sourceManager.RegisterCollection(TestCollection, collection)

			err = sourceManager.AddSource(TestCollection, "https://google.com", DefaultUpdateInterval)
			Expect(err).To(BeNil())

			Expect(collection.GetExternalSources()).To(HaveLen(2))
		})
	})

	Context("Source Management", func() {
		BeforeEach(func() {
			sourceManager.RegisterCollection(TestCollection, collection)
		})

		It("should add and remove sources", func() {
			err := sourceManager.AddSource(TestCollection, "https://example.com", DefaultUpdateInterval)
			Expect(err).To(BeNil())

			sources := collection.GetExternalSources()
			Expect(sources).To(HaveLen(1))
			Expect(sources[0].URL).To(Equal("https://example.com"))

			err = sourceManager.RemoveSource(TestCollection, "https://example.com")
			Expect(err).To(BeNil())

			Expect(collection.GetExternalSources()).To(BeEmpty())
		})

		It("should not add sources to non-existent collections", func() {
			err := sourceManager.AddSource("non-existent", "https://example.com", DefaultUpdateInterval)
			Expect(err).ToNot(BeNil())
			Expect(err.Error()).To(ContainSubstring("collection non-existent not found"))
		})

		It("should not remove sources from non-existent collections", func() {
			err := sourceManager.RemoveSource("non-existent", "https://example.com")
			Expect(err).ToNot(BeNil())
			Expect(err.Error()).To(ContainSubstring("collection non-existent not found"))
		})
	})

	Context("Source Content Verification", func() {
		BeforeEach(func() {
			sourceManager.RegisterCollection(TestCollection, collection)
		})

		It("should fetch and index content from a known URL", func() {
			err := sourceManager.AddSource(TestCollection, "https://raw.githubusercontent.com/golang/go/master/README.md", 2*time.Second)
			Expect(err).To(BeNil())

			sourceManager.Start()

			Eventually(func() []string {
				return collection.ListEntries()
			}, TestTimeout, TestPollingInterval).Should(HaveLen(1))

			Eventually(func() bool {
				resp, err := collection.Search(context.Background(), types.Query{Text: "Go programming language", K: 1})
				if err != nil {
					return false
				}
				return len(resp.Results) > 0
			}, TestTimeout, TestPollingInterval).Should(BeTrue())
		})
	})

	Context("Duplicate Prevention", func() {
		BeforeEach(func() {
			sourceManager.RegisterCollection(TestCollection, collection)
		})

		It("should prevent duplicate content with frequent updates", func() {
			err := sourceManager.AddSource(TestCollection, "https://en.wikipedia.org/wiki/Black-crowned_barwing", 1*time.Second)
			Expect(err).To(BeNil())

			sourceManager.Start()

			Eventually(func() []string {
				return collection.ListEntries()
			}, 2*time.Minute, 5*time.Second).Should(HaveLen(1))

			var count int
			Eventually(func() int {
				count = collection.Count()
				return count
			}, 2*time.Minute, 5*time.Second).Should(BeNumerically(">", 0))

			// Unchanged content must not be re-indexed on refresh.
			Consistently(func() int {
				return collection.Count()
			}, time.Minute, 5*time.Second).Should(Equal(count))
		})
	})

	Context("Git Repository Handling", func() {
		BeforeEach(func() {
			sourceManager.RegisterCollection(TestCollection, collection)
		})

		It("should fetch and index content from a public Git repository", func() {
			err := sourceManager.AddSource(TestCollection, "https://github.com/mahseema/awesome-ai-tools.git", 2*time.Second)
			Expect(err).To(BeNil())

			sourceManager.Start()

			Eventually(func() []string {
				return collection.ListEntries()
			}, TestTimeout, TestPollingInterval).Should(Not(BeEmpty()))

			Eventually(func() bool {
				resp, err := collection.Search(context.Background(), types.Query{Text: "AI tools", K: 1})
				if err != nil {
					return false
				}
				return len(resp.Results) > 0
			}, TestTimeout, TestPollingInterval).Should(BeTrue())
		})
	})
})
