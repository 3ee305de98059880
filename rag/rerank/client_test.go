package rerank_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ragstack/localrag/rag/rerank"
	"github.com/ragstack/localrag/rag/types"
)

type rerankCall struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

func candidates(ids ...string) []types.Result {
	out := make([]types.Result, 0, len(ids))
	for _, id := range ids {
		out = append(out, types.Result{ID: id, Content: "text for " + id})
	}
	return out
}

var _ = Describe("Client", func() {
	var (
		server   *httptest.Server
		handler  http.HandlerFunc
		lastCall *rerankCall
	)

	BeforeEach(func() {
		lastCall = nil
		handler = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			call := &rerankCall{}
			Expect(json.NewDecoder(r.Body).Decode(call)).To(Succeed())
			lastCall = call
			handler(w, r)
		}))
		DeferCleanup(server.Close)
	})

	It("should re-sort candidates by model score", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"model": "test-reranker",
				"results": []map[string]any{
					{"index": 2, "relevance_score": 0.95},
					{"index": 0, "relevance_score": 0.40},
					{"index": 1, "relevance_score": 0.10},
				},
			})
		}

		client := rerank.NewClient(server.URL, "sk-test", "test-reranker")
		reranked, err := client.Rerank(context.Background(), "some query", candidates("A", "B", "C"))
		Expect(err).ToNot(HaveOccurred())
		Expect(reranked).To(HaveLen(3))
		Expect(reranked[0].ID).To(Equal("C"))
		Expect(reranked[1].ID).To(Equal("A"))
		Expect(reranked[2].ID).To(Equal("B"))
		Expect(reranked[0].ModelScore).To(BeNumerically("~", 0.95, 1e-9))
	})

	It("should send the candidate text and request scores for every document", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{"results": []map[string]any{}})
		}

		client := rerank.NewClient(server.URL, "", "test-reranker")
		_, err := client.Rerank(context.Background(), "some query", candidates("A", "B"))
		Expect(err).ToNot(HaveOccurred())
		Expect(lastCall).ToNot(BeNil())
		Expect(lastCall.Query).To(Equal("some query"))
		Expect(lastCall.Documents).To(Equal([]string{"text for A", "text for B"}))
		Expect(lastCall.TopN).To(Equal(2))
		Expect(lastCall.Model).To(Equal("test-reranker"))
	})

	It("should keep exactly the input ids even when the endpoint scores a subset", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{
					{"index": 1, "relevance_score": 0.8},
				},
			})
		}

		client := rerank.NewClient(server.URL, "", "test-reranker")
		reranked, err := client.Rerank(context.Background(), "q", candidates("A", "B", "C"))
		Expect(err).ToNot(HaveOccurred())
		Expect(reranked).To(HaveLen(3))
		Expect(reranked[0].ID).To(Equal("B"))
		// Unscored candidates keep input order behind the scored ones.
		Expect(reranked[1].ID).To(Equal("A"))
		Expect(reranked[2].ID).To(Equal("C"))
	})

	It("should fail with RerankerUnavailable on server errors", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}

		client := rerank.NewClient(server.URL, "", "test-reranker")
		_, err := client.Rerank(context.Background(), "q", candidates("A"))
		Expect(err).To(MatchError(types.ErrRerankerUnavailable))
	})

	It("should fail with RerankerUnavailable when the endpoint is unreachable", func() {
		client := rerank.NewClient("http://localhost:1", "", "test-reranker")
		_, err := client.Rerank(context.Background(), "q", candidates("A"))
		Expect(err).To(MatchError(types.ErrRerankerUnavailable))
	})

	It("should reject out-of-range candidate indexes", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{
					{"index": 9, "relevance_score": 0.8},
				},
			})
		}

		client := rerank.NewClient(server.URL, "", "test-reranker")
		_, err := client.Rerank(context.Background(), "q", candidates("A"))
		Expect(err).To(MatchError(types.ErrRerankerUnavailable))
	})

	It("should return an empty result for empty input without calling the endpoint", func() {
		client := rerank.NewClient(server.URL, "", "test-reranker")
		reranked, err := client.Rerank(context.Background(), "q", nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(reranked).To(BeEmpty())
		Expect(lastCall).To(BeNil())
	})
})
