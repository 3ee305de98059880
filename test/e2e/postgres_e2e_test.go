package e2e_test

import (
	"context"
	"fmt"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/ragstack/localrag/pkg/client"
	"github.com/sashabaranov/go-openai"
)

var _ = Describe("PostgreSQL E2E", func() {
	var (
		localAI  *openai.Client
		localRAG *client.Client
	)

	BeforeEach(func() {
		if os.Getenv("E2E") != "true" {
			Skip("Skipping E2E tests")
		}
		if os.Getenv("VECTOR_ENGINE") != "postgres" {
			Skip("Server is not running the postgres engine")
		}

		localAI = openai.NewClientWithConfig(NewTestOpenAIConfig())
		localRAG = client.NewClient(localRAGEndpoint)

		Eventually(func() error {
			res, err := localAI.CreateEmbeddings(context.Background(), openai.EmbeddingRequest{
				Model: EmbeddingModel,
				Input: "foo",
			})
			if len(res.Data) == 0 {
				return fmt.Errorf("no data")
			}
			return err
		}, TestTimeout, TestPollingInterval).Should(Succeed())

		Eventually(func() error {
			_, err := localRAG.ListCollections()
			return err
		}, TestTimeout, TestPollingInterval).Should(Succeed())

		localRAG.Reset(TestCollection)
	})

	It("should create collection with PostgreSQL engine", func() {
		err := localRAG.CreateCollection(TestCollection)
		Expect(err).To(BeNil())

		collections, err := localRAG.ListCollections()
		Expect(err).To(BeNil())
		Expect(collections).To(ContainElement(TestCollection))
	})

	It("should store and search documents with PostgreSQL", func() {
		err := localRAG.CreateCollection(TestCollection)
		Expect(err).ToNot(HaveOccurred())

		tempContent(story1, localRAG)
		tempContent(story2, localRAG)

		expectContent(TestCollection, "spiders", "spider", localRAG)
		expectContent(TestCollection, "heist", "the Great Pigeon Heist", localRAG)
	})
})
