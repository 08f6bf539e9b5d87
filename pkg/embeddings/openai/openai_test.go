package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/embeddings"
	"github.com/papercomputeco/parley/pkg/embeddings/openai"
)

var _ = Describe("Embedder", func() {
	var (
		server *httptest.Server
		status int
		got    map[string]any
	)

	BeforeEach(func() {
		status = http.StatusOK
		got = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(HaveSuffix("/embeddings"))
			Expect(r.Header.Get("Authorization")).To(Equal("Bearer sk-test"))
			Expect(json.NewDecoder(r.Body).Decode(&got)).To(Succeed())

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			if status != http.StatusOK {
				w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"object": "list",
				"model":  "text-embedding-3-small",
				"data": []map[string]any{
					{"object": "embedding", "index": 0, "embedding": []float64{0.5, -0.25}},
				},
				"usage": map[string]any{"prompt_tokens": 2, "total_tokens": 2},
			})
		}))
		DeferCleanup(server.Close)
	})

	newEmbedder := func(dims uint) *openai.Embedder {
		e, err := openai.NewEmbedder(openai.EmbedderConfig{
			BaseURL:    server.URL + "/v1/",
			APIKey:     "sk-test",
			Dimensions: dims,
		})
		Expect(err).NotTo(HaveOccurred())
		return e
	}

	It("requires an API key for the default endpoint", func() {
		_, err := openai.NewEmbedder(openai.EmbedderConfig{})
		Expect(err).To(MatchError(ContainSubstring("requires an API key")))
	})

	It("converts the float64 response to float32", func() {
		vec, err := newEmbedder(0).Embed(context.Background(), "血壓高怎麼辦")
		Expect(err).NotTo(HaveOccurred())
		Expect(vec).To(Equal([]float32{0.5, -0.25}))
		Expect(got["model"]).To(Equal(openai.DefaultEmbeddingModel))
		Expect(got["input"]).To(Equal([]any{"血壓高怎麼辦"}))
		Expect(got).NotTo(HaveKey("dimensions"))
	})

	It("forwards configured dimensions", func() {
		_, err := newEmbedder(256).Embed(context.Background(), "hello")
		Expect(err).NotTo(HaveOccurred())
		Expect(got["dimensions"]).To(BeNumerically("==", 256))
	})

	It("wraps API errors in ErrEmbedding", func() {
		status = http.StatusUnauthorized
		_, err := newEmbedder(0).Embed(context.Background(), "hello")
		Expect(err).To(MatchError(embeddings.ErrEmbedding))
	})

	It("rejects empty input", func() {
		_, err := newEmbedder(0).Embed(context.Background(), "")
		Expect(err).To(MatchError(embeddings.ErrEmptyInput))
		Expect(got).To(BeNil())
	})
})
