package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/embeddings"
	"github.com/papercomputeco/parley/pkg/generation"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/pipeline"
	testutils "github.com/papercomputeco/parley/pkg/utils/test"
	"github.com/papercomputeco/parley/pkg/vector"
)

var _ = Describe("Server", func() {
	var (
		querier *testutils.MockQuerier
		server  *Server
	)

	BeforeEach(func() {
		querier = testutils.NewMockQuerier()
		var err error
		server, err = NewServer(Config{
			ListenAddr: ":0",
			Pipeline:   querier,
		}, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
	})

	readBody := func(resp *http.Response) string {
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return string(body)
	}

	postAsk := func(body string) *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	It("requires a pipeline", func() {
		_, err := NewServer(Config{}, logger.Nop())
		Expect(err).To(MatchError(ContainSubstring("pipeline is required")))
	})

	Describe("GET /ping", func() {
		It("returns pong", func() {
			resp, err := server.app.Test(httptest.NewRequest(http.MethodGet, "/ping", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(readBody(resp)).To(ContainSubstring("pong"))
		})
	})

	Describe("GET /v1/status", func() {
		It("reports a ready index", func() {
			resp, err := server.app.Test(httptest.NewRequest(http.MethodGet, "/v1/status", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(readBody(resp)).To(ContainSubstring(`"state":"ready"`))
		})

		It("returns 503 after a failed rebuild", func() {
			querier.StatusVal = pipeline.Status{State: pipeline.StateFailed, Error: "corpus missing"}

			resp, err := server.app.Test(httptest.NewRequest(http.MethodGet, "/v1/status", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
			Expect(readBody(resp)).To(ContainSubstring("corpus missing"))
		})
	})

	Describe("POST /v1/ask", func() {
		It("returns the generated answer with its documents", func() {
			querier.Text = "多喝水"
			querier.Results = []vector.QueryResult{
				{Document: vector.Document{ID: "1", Content: "醫生: 多喝水"}, Score: 0.9},
			}

			resp := postAsk(`{"query":"我感冒了怎麼辦"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var ans pipeline.Answer
			Expect(json.Unmarshal([]byte(readBody(resp)), &ans)).To(Succeed())
			Expect(ans.Query).To(Equal("我感冒了怎麼辦"))
			Expect(ans.Text).To(Equal("多喝水"))
			Expect(ans.Grounded).To(BeTrue())
			Expect(ans.Documents).To(HaveLen(1))
			Expect(ans.Documents[0].Content).To(Equal("醫生: 多喝水"))
			Expect(querier.Queries).To(Equal([]string{"我感冒了怎麼辦"}))
		})

		It("returns 400 with the empty query message", func() {
			resp := postAsk(`{"query":"   "}`)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(readBody(resp)).To(ContainSubstring(pipeline.DefaultEmptyQueryMessage))
		})

		It("returns 400 for a malformed body", func() {
			resp := postAsk(`{not json`)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(readBody(resp)).To(ContainSubstring("invalid request body"))
			Expect(querier.Queries).To(BeEmpty())
		})

		It("returns 503 while the index is not ready", func() {
			querier.Err = fmt.Errorf("%w: no rebuild has run", pipeline.ErrNotReady)

			resp := postAsk(`{"query":"hello"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
			Expect(readBody(resp)).To(ContainSubstring("no rebuild has run"))
		})

		It("returns 502 when the embedding service fails", func() {
			querier.Err = fmt.Errorf("embedding query: %w", embeddings.ErrEmbedding)

			resp := postAsk(`{"query":"hello"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
		})

		It("returns 502 when the generation service fails", func() {
			querier.Err = fmt.Errorf("generating answer: %w", generation.ErrGeneration)

			resp := postAsk(`{"query":"hello"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
		})

		It("returns 500 for other failures", func() {
			querier.Err = errors.New("boom")

			resp := postAsk(`{"query":"hello"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(readBody(resp)).To(ContainSubstring("boom"))
		})
	})

	Describe("GET /v1/search", func() {
		It("returns the ranked results", func() {
			querier.Results = []vector.QueryResult{
				{Document: vector.Document{ID: "0", Content: "甲"}, Distance: 0.1, Score: 0.9},
				{Document: vector.Document{ID: "1", Content: "乙"}, Distance: 0.5, Score: 0.67},
			}

			req := httptest.NewRequest(http.MethodGet, "/v1/search?query="+url.QueryEscape("頭痛"), nil)
			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var out SearchResponse
			Expect(json.Unmarshal([]byte(readBody(resp)), &out)).To(Succeed())
			Expect(out.Query).To(Equal("頭痛"))
			Expect(out.Count).To(Equal(2))
			Expect(out.Results[0].Content).To(Equal("甲"))
			Expect(out.Results[1].ID).To(Equal("1"))
		})

		It("returns 400 without a query parameter", func() {
			resp, err := server.app.Test(httptest.NewRequest(http.MethodGet, "/v1/search", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("/mcp", func() {
		It("is not mounted without a handler", func() {
			resp, err := server.app.Test(httptest.NewRequest(http.MethodPost, "/mcp", nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("forwards to the configured handler", func() {
			mcpHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusAccepted)
				_, _ = w.Write([]byte("mcp"))
			})
			withMCP, err := NewServer(Config{Pipeline: querier, MCPHandler: mcpHandler}, logger.Nop())
			Expect(err).NotTo(HaveOccurred())

			resp, err := withMCP.app.Test(httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("{}")))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusAccepted))
			Expect(readBody(resp)).To(Equal("mcp"))
		})
	})
})
