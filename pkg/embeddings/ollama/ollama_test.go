package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/embeddings"
	"github.com/papercomputeco/parley/pkg/embeddings/ollama"
)

var _ = Describe("Embedder", func() {
	var (
		server   *httptest.Server
		embedder *ollama.Embedder
		requests atomic.Int32
		handler  http.HandlerFunc
	)

	BeforeEach(func() {
		requests.Store(0)
		handler = func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.Method).To(Equal(http.MethodPost))
			Expect(r.URL.Path).To(Equal("/api/embed"))

			var body map[string]any
			Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
			Expect(body["model"]).To(Equal("mxbai-embed-large"))
			Expect(body["input"]).To(Equal("你好"))

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"embeddings": [][]float32{{0.1, 0.2, 0.3}},
			})
		}

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests.Add(1)
			handler(w, r)
		}))
		DeferCleanup(server.Close)

		var err error
		embedder, err = ollama.NewEmbedder(ollama.EmbedderConfig{BaseURL: server.URL + "/"})
		Expect(err).NotTo(HaveOccurred())
	})

	It("defaults to mxbai-embed-large", func() {
		Expect(embedder.Model()).To(Equal(ollama.DefaultEmbeddingModel))
	})

	It("returns the first embedding", func() {
		vec, err := embedder.Embed(context.Background(), "你好")
		Expect(err).NotTo(HaveOccurred())
		Expect(vec).To(Equal([]float32{0.1, 0.2, 0.3}))
	})

	It("rejects whitespace without calling the service", func() {
		_, err := embedder.Embed(context.Background(), "  \t")
		Expect(err).To(MatchError(embeddings.ErrEmptyInput))
		Expect(err).To(MatchError(embeddings.ErrEmbedding))
		Expect(requests.Load()).To(BeZero())
	})

	It("wraps non-200 responses in ErrEmbedding", func() {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `model "mxbai-embed-large" not found`, http.StatusNotFound)
		}

		_, err := embedder.Embed(context.Background(), "你好")
		Expect(err).To(MatchError(embeddings.ErrEmbedding))
		Expect(err.Error()).To(ContainSubstring("status 404"))
	})

	It("treats an empty embeddings list as a failure", func() {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"embeddings":[]}`))
		}

		_, err := embedder.Embed(context.Background(), "你好")
		Expect(err).To(MatchError(ContainSubstring("no embeddings returned")))
	})

	It("reports an unreachable service as ErrEmbedding", func() {
		unreachable, err := ollama.NewEmbedder(ollama.EmbedderConfig{
			BaseURL: "http://127.0.0.1:1",
			Timeout: time.Second,
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = unreachable.Embed(context.Background(), "你好")
		Expect(err).To(MatchError(embeddings.ErrEmbedding))
	})
})
