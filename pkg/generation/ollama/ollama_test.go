package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/generation"
	"github.com/papercomputeco/parley/pkg/generation/ollama"
)

var _ = Describe("Generator", func() {
	var (
		server    *httptest.Server
		generator *ollama.Generator
		handler   http.HandlerFunc
	)

	BeforeEach(func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/api/generate"))

			var body map[string]any
			Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
			Expect(body["model"]).To(Equal(ollama.DefaultModel))
			Expect(body["prompt"]).To(Equal("問題：頭痛"))
			Expect(body["stream"]).To(BeFalse())

			json.NewEncoder(w).Encode(map[string]any{"response": "多休息。", "done": true})
		}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handler(w, r)
		}))
		DeferCleanup(server.Close)

		var err error
		generator, err = ollama.NewGenerator(ollama.GeneratorConfig{BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())
	})

	It("returns the response text verbatim", func() {
		out, err := generator.Generate(context.Background(), "問題：頭痛")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("多休息。"))
		Expect(generator.Model()).To(Equal(ollama.DefaultModel))
	})

	It("wraps non-200 responses in ErrGeneration", func() {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}
		_, err := generator.Generate(context.Background(), "問題：頭痛")
		Expect(err).To(MatchError(generation.ErrGeneration))
		Expect(err.Error()).To(ContainSubstring("ollama status 404: model not found"))
	})

	It("surfaces an error field in the body", func() {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"error":"out of memory"}`))
		}
		_, err := generator.Generate(context.Background(), "問題：頭痛")
		Expect(err).To(MatchError(generation.ErrGeneration))
		Expect(err.Error()).To(ContainSubstring("out of memory"))
	})

	It("honors context cancellation", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := generator.Generate(ctx, "問題：頭痛")
		Expect(err).To(MatchError(generation.ErrGeneration))
	})
})
