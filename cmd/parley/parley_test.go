package parleycmder_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	parleycmder "github.com/papercomputeco/parley/cmd/parley"
	"github.com/papercomputeco/parley/pkg/pipeline"
)

// newFakeOllama serves fixed embeddings and always answers "多休息".
func newFakeOllama() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)

		vec := []float32{1, 0.1, 0}
		switch req.Input {
		case "多喝水":
			vec = []float32{1, 0, 0}
		case "謝謝":
			vec = []float32{0, 1, 0}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{vec}})
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"response": "多休息", "done": true})
	})
	return httptest.NewServer(mux)
}

var _ = Describe("NewParleyCmd", func() {
	It("registers every subcommand", func() {
		cmd := parleycmder.NewParleyCmd()
		names := []string{}
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements("ask", "search", "ingest", "serve", "config", "init", "version"))
	})

	It("has the global flags", func() {
		cmd := parleycmder.NewParleyCmd()
		Expect(cmd.PersistentFlags().Lookup("debug")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().Lookup("config-dir")).NotTo(BeNil())
	})
})

var _ = Describe("Parley commands", func() {
	var (
		server    *httptest.Server
		corpusDir string
		configDir string
		out       *bytes.Buffer
		errOut    *bytes.Buffer
	)

	BeforeEach(func() {
		server = newFakeOllama()
		DeferCleanup(server.Close)

		corpusDir = GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(corpusDir, "a.txt"), []byte("醫生: 多喝水\n病人: 謝謝\n"), 0o644)).To(Succeed())
		configDir = GinkgoT().TempDir()

		out = &bytes.Buffer{}
		errOut = &bytes.Buffer{}
	})

	run := func(args ...string) error {
		cmd := parleycmder.NewParleyCmd()
		cmd.SetOut(out)
		cmd.SetErr(errOut)
		cmd.SetArgs(append(args,
			"--config-dir", configDir,
			"--corpus", corpusDir,
			"--embedding-target", server.URL,
			"--embedding-dimensions", "3",
			"--generation-target", server.URL,
			"--vector-store-provider", "memory",
		))
		return cmd.Execute()
	}

	It("answers a question and lists the retrieved documents", func() {
		Expect(run("ask", "我感冒了怎麼辦")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("多休息"))
		Expect(out.String()).To(ContainSubstring("多喝水"))
		Expect(errOut.String()).To(ContainSubstring("Indexing corpus"))
	})

	It("prints the empty query message without failing", func() {
		Expect(run("ask", "   ")).To(Succeed())
		Expect(out.String()).To(ContainSubstring(pipeline.DefaultEmptyQueryMessage))
	})

	It("prints the answer as JSON", func() {
		Expect(run("ask", "我感冒了怎麼辦", "--json")).To(Succeed())

		var ans pipeline.Answer
		Expect(json.Unmarshal(out.Bytes(), &ans)).To(Succeed())
		Expect(ans.Text).To(Equal("多休息"))
		Expect(ans.Grounded).To(BeTrue())
		Expect(ans.Prompt).To(HavePrefix("根據以下資訊回答問題："))
	})

	It("searches without generating", func() {
		Expect(run("search", "我感冒了怎麼辦", "--quiet")).To(Succeed())
		Expect(out.String()).To(Equal("多喝水\n謝謝\n"))
	})

	It("honours --top-k", func() {
		Expect(run("search", "我感冒了怎麼辦", "--quiet", "--top-k", "1")).To(Succeed())
		Expect(out.String()).To(Equal("多喝水\n"))
	})

	It("reports what ingest wrote", func() {
		Expect(run("ingest", "--json")).To(Succeed())

		var report pipeline.RebuildReport
		Expect(json.Unmarshal(out.Bytes(), &report)).To(Succeed())
		Expect(report.Records).To(Equal(2))
		Expect(report.Dimensions).To(Equal(3))
		Expect(report.Corpus.Files).To(Equal(1))
	})

	It("fails when the corpus directory is missing", func() {
		corpusDir = filepath.Join(corpusDir, "missing")
		Expect(run("ingest")).NotTo(Succeed())
	})

	It("fails on a dimension mismatch", func() {
		cmd := parleycmder.NewParleyCmd()
		cmd.SetOut(out)
		cmd.SetErr(errOut)
		cmd.SetArgs([]string{"ask", "hello",
			"--config-dir", configDir,
			"--corpus", corpusDir,
			"--embedding-target", server.URL,
			"--embedding-dimensions", "8",
			"--generation-target", server.URL,
			"--vector-store-provider", "memory",
		})
		Expect(cmd.Execute()).NotTo(Succeed())
	})

	It("prints the version", func() {
		cmd := parleycmder.NewParleyCmd()
		cmd.SetOut(out)
		cmd.SetArgs([]string{"version"})
		Expect(cmd.Execute()).To(Succeed())
		Expect(out.String()).To(HavePrefix("parley dev (HEAD)"))
	})

	It("prints the version as JSON", func() {
		cmd := parleycmder.NewParleyCmd()
		cmd.SetOut(out)
		cmd.SetArgs([]string{"version", "--json"})
		Expect(cmd.Execute()).To(Succeed())

		var info map[string]string
		Expect(json.Unmarshal(out.Bytes(), &info)).To(Succeed())
		Expect(info).To(HaveKeyWithValue("version", "dev"))
		Expect(info).To(HaveKey("go_version"))
	})
})
