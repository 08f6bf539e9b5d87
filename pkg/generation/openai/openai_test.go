package openai_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/generation"
	"github.com/papercomputeco/parley/pkg/generation/openai"
)

var _ = Describe("Generator", func() {
	var (
		server  *httptest.Server
		status  int
		choices []map[string]any
		got     map[string]any
	)

	BeforeEach(func() {
		status = http.StatusOK
		choices = []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": "多喝水。"},
		}}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(HaveSuffix("/chat/completions"))
			Expect(json.NewDecoder(r.Body).Decode(&got)).To(Succeed())

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			if status != http.StatusOK {
				w.Write([]byte(`{"error":{"message":"overloaded"}}`))
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"id":      "chatcmpl-1",
				"object":  "chat.completion",
				"created": 0,
				"model":   "gpt-4o-mini",
				"choices": choices,
			})
		}))
		DeferCleanup(server.Close)
	})

	newGenerator := func() *openai.Generator {
		g, err := openai.NewGenerator(openai.GeneratorConfig{BaseURL: server.URL + "/v1/", APIKey: "sk-test"})
		Expect(err).NotTo(HaveOccurred())
		return g
	}

	It("sends the prompt as one user message", func() {
		out, err := newGenerator().Generate(context.Background(), "問題：口渴")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("多喝水。"))

		Expect(got["model"]).To(Equal(openai.DefaultModel))
		messages := got["messages"].([]any)
		Expect(messages).To(HaveLen(1))
		Expect(messages[0]).To(HaveKeyWithValue("role", "user"))
		Expect(messages[0]).To(HaveKeyWithValue("content", "問題：口渴"))
	})

	It("wraps API errors in ErrGeneration", func() {
		status = http.StatusServiceUnavailable
		_, err := newGenerator().Generate(context.Background(), "hi")
		Expect(err).To(MatchError(generation.ErrGeneration))
	})

	It("treats an empty choice list as a failure", func() {
		choices = []map[string]any{}
		_, err := newGenerator().Generate(context.Background(), "hi")
		Expect(err).To(MatchError(ContainSubstring("no choices returned")))
	})
})
