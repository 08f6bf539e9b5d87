package pipeline_test

import (
	"context"
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/corpus"
	"github.com/papercomputeco/parley/pkg/embeddings"
	"github.com/papercomputeco/parley/pkg/generation"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/pipeline"
	testutils "github.com/papercomputeco/parley/pkg/utils/test"
	"github.com/papercomputeco/parley/pkg/vector"
	"github.com/papercomputeco/parley/pkg/vector/memory"
)

var _ = Describe("Ask", func() {
	var (
		ctx       context.Context
		embedder  *testutils.MockEmbedder
		generator *testutils.MockGenerator
		driver    *memory.Driver
		cfg       pipeline.Config
	)

	BeforeEach(func() {
		ctx = context.Background()
		embedder = testutils.NewMockEmbedder()
		generator = testutils.NewMockGenerator()
		generator.ModelName = "hf.co/chtseng/TAIDE-Medicine-QA-TW-Q6"
		driver = memory.NewDriver(0, logger.Nop())
		cfg = pipeline.Config{
			Embedder:  embedder,
			Driver:    driver,
			Generator: generator,
		}
	})

	build := func(files map[string]string, mode corpus.Mode) *pipeline.Context {
		cfg.Corpus = newReader(writeCorpus(files), mode)
		p, err := pipeline.New(cfg)
		Expect(err).NotTo(HaveOccurred())
		_, err = p.Rebuild(ctx)
		Expect(err).NotTo(HaveOccurred())
		return p
	}

	It("grounds the prompt on the retrieved dialogue line", func() {
		embedder.Embeddings["多喝水"] = []float32{1, 0, 0}
		embedder.Embeddings["喝水"] = []float32{0.9, 0.1, 0}
		p := build(map[string]string{"a.txt": "醫生: 多喝水\n"}, corpus.ModeFlat)

		ans, err := p.Ask(ctx, "喝水")
		Expect(err).NotTo(HaveOccurred())
		Expect(ans.Grounded).To(BeTrue())
		Expect(ans.Documents).To(HaveLen(1))
		Expect(ans.Documents[0].Content).To(Equal("多喝水"))
		Expect(ans.Prompt).To(ContainSubstring("多喝水"))
		Expect(ans.Prompt).To(Equal("根據以下資訊回答問題：\n\n多喝水\n\n問題：喝水\n請用中文回答。"))
		Expect(ans.Text).To(Equal("mock answer"))
		Expect(generator.LastPrompt()).To(Equal(ans.Prompt))
	})

	It("round-trips a stored document through its own embedding", func() {
		embedder.Embeddings["頭痛怎麼辦"] = []float32{0, 1, 0}
		embedder.Embeddings["其他"] = []float32{1, 0, 0}
		p := build(map[string]string{"a.txt": "其他\n頭痛怎麼辦\n"}, corpus.ModeFlat)

		results, err := p.Search(ctx, "頭痛怎麼辦")
		Expect(err).NotTo(HaveOccurred())
		Expect(results[0].Content).To(Equal("頭痛怎麼辦"))
		Expect(results[0].Distance).To(BeNumerically("~", 0, 1e-6))
	})

	It("retrieves answers by matching questions in paired mode", func() {
		embedder.Embeddings["頭痛怎麼辦"] = []float32{0, 1, 0}
		embedder.Embeddings["發燒"] = []float32{1, 0, 0}
		p := build(map[string]string{"qa.txt": "問題：發燒\n回答：量體溫\n問題：頭痛怎麼辦\n回答：多休息\n"}, corpus.ModePaired)

		results, err := p.Search(ctx, "頭痛怎麼辦")
		Expect(err).NotTo(HaveOccurred())
		Expect(results[0].Content).To(Equal("多休息"))
		Expect(results[0].Metadata).To(HaveKeyWithValue("question", "頭痛怎麼辦"))
	})

	It("joins up to three documents nearest first without deduplication", func() {
		embedder.Embeddings["甲"] = []float32{1, 0, 0}
		embedder.Embeddings["乙"] = []float32{0.8, 0.2, 0}
		embedder.Embeddings["丙"] = []float32{0, 1, 0}
		embedder.Embeddings["丁"] = []float32{0, 0, 1}
		embedder.Embeddings["問"] = []float32{1, 0, 0}
		p := build(map[string]string{
			"a.txt": "丁\n丙\n乙\n甲\n",
			"b.txt": "甲\n",
		}, corpus.ModeFlat)

		ans, err := p.Ask(ctx, "問")
		Expect(err).NotTo(HaveOccurred())
		Expect(ans.Documents).To(HaveLen(pipeline.DefaultTopK))
		Expect(ans.Prompt).To(ContainSubstring("甲\n甲\n乙"))
	})

	It("takes the fallback branch on an empty index and names the fallback model", func() {
		p := build(nil, corpus.ModeFlat)

		ans, err := p.Ask(ctx, "感冒要吃什麼藥")
		Expect(err).NotTo(HaveOccurred())
		Expect(ans.Grounded).To(BeFalse())
		Expect(ans.Documents).To(BeEmpty())
		Expect(ans.Prompt).To(Equal("此問題與對話並無明確相關，改為採用 hf.co/chtseng/TAIDE-Medicine-QA-TW-Q6 來回答本問題：感冒要吃什麼藥"))
	})

	It("treats results below min score as no results", func() {
		cfg.MinScore = 0.9
		embedder.Embeddings["甲"] = []float32{1, 0, 0}
		embedder.Embeddings["問"] = []float32{0, 1, 0}
		p := build(map[string]string{"a.txt": "甲\n"}, corpus.ModeFlat)

		ans, err := p.Ask(ctx, "問")
		Expect(err).NotTo(HaveOccurred())
		Expect(ans.Grounded).To(BeFalse())
		Expect(ans.Documents).To(BeEmpty())
	})

	It("honors a configured top k", func() {
		cfg.TopK = 1
		p := build(map[string]string{"a.txt": "一\n二\n三\n"}, corpus.ModeFlat)
		Expect(p.TopK()).To(Equal(1))

		results, err := p.Search(ctx, "一")
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(1))
	})

	It("renders configured templates", func() {
		cfg.Composer = pipeline.ComposerConfig{
			GroundedTemplate: "{{range $i, $d := .Documents}}[{{$i}}] {{$d}}\n{{end}}Q: {{.Query}} ({{.Language}})",
			Language:         "English",
		}
		p := build(map[string]string{"a.txt": "drink water\n"}, corpus.ModeFlat)

		ans, err := p.Ask(ctx, "thirsty")
		Expect(err).NotTo(HaveOccurred())
		Expect(ans.Prompt).To(Equal("[0] drink water\nQ: thirsty (English)"))
	})

	It("rejects an invalid template at construction", func() {
		cfg.Corpus = newReader(writeCorpus(nil), corpus.ModeFlat)
		cfg.Composer.FallbackTemplate = "{{.Query"
		_, err := pipeline.New(cfg)
		Expect(err).To(MatchError(ContainSubstring("parsing fallback template")))
	})

	Describe("Answer", func() {
		It("returns the validation message for a whitespace query without any service call", func() {
			p := build(map[string]string{"a.txt": "一\n"}, corpus.ModeFlat)
			calls := embedder.CallCount()

			Expect(p.Answer(ctx, "   ")).To(Equal("請輸入問題！"))
			Expect(embedder.CallCount()).To(Equal(calls))
			Expect(generator.Prompts).To(BeEmpty())

			_, err := p.Ask(ctx, "\t\n")
			Expect(err).To(MatchError(pipeline.ErrValidation))
		})

		It("uses a configured validation message", func() {
			cfg.EmptyQueryMessage = "Please enter a question!"
			p := build(nil, corpus.ModeFlat)
			Expect(p.Answer(ctx, "")).To(Equal("Please enter a question!"))
		})

		It("returns the generated text verbatim", func() {
			generator.Response = "  多喝溫水，\n注意休息。  "
			p := build(map[string]string{"a.txt": "一\n"}, corpus.ModeFlat)
			Expect(p.Answer(ctx, "一")).To(Equal("  多喝溫水，\n注意休息。  "))
		})

		It("converts an embedding failure into a message", func() {
			embedder.FailOn = "壞掉"
			p := build(map[string]string{"a.txt": "一\n"}, corpus.ModeFlat)

			_, err := p.Ask(ctx, "壞掉")
			Expect(err).To(MatchError(embeddings.ErrEmbedding))

			msg := p.Answer(ctx, "壞掉")
			Expect(msg).To(HavePrefix("查詢時發生錯誤："))
			Expect(generator.Prompts).To(BeEmpty())
		})

		It("converts a generation failure into a message", func() {
			generator.Fail = true
			p := build(map[string]string{"a.txt": "一\n"}, corpus.ModeFlat)

			_, err := p.Ask(ctx, "一")
			Expect(err).To(MatchError(generation.ErrGeneration))
			Expect(p.Answer(ctx, "一")).To(ContainSubstring("generation service error"))
		})

		It("converts a query dimension mismatch into a message", func() {
			embedder.Embeddings["短"] = []float32{1}
			p := build(map[string]string{"a.txt": "一\n"}, corpus.ModeFlat)

			_, err := p.Ask(ctx, "短")
			Expect(err).To(MatchError(vector.ErrDimensionMismatch))
			Expect(p.Answer(ctx, "短")).To(HavePrefix("查詢時發生錯誤："))
		})
	})

	Describe("Message", func() {
		It("maps validation errors to the configured message and others to the error prefix", func() {
			cfg.EmptyQueryMessage = "Please enter a question!"
			p := build(nil, corpus.ModeFlat)

			Expect(p.Message(pipeline.ErrValidation)).To(Equal("Please enter a question!"))
			Expect(p.Message(fmt.Errorf("wrapped: %w", pipeline.ErrValidation))).To(Equal("Please enter a question!"))
			Expect(p.Message(errors.New("boom"))).To(Equal("查詢時發生錯誤：boom"))
		})
	})

	Describe("readiness", func() {
		It("rejects queries before any rebuild", func() {
			cfg.Corpus = newReader(writeCorpus(nil), corpus.ModeFlat)
			p, err := pipeline.New(cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Status().State).To(Equal(pipeline.StateIdle))

			_, err = p.Ask(ctx, "一")
			Expect(err).To(MatchError(pipeline.ErrNotReady))
			Expect(embedder.CallCount()).To(BeZero())
		})

		It("rejects queries after a failed rebuild", func() {
			cfg.Corpus = newReader("/nonexistent/parley/corpus", corpus.ModeFlat)
			p, err := pipeline.New(cfg)
			Expect(err).NotTo(HaveOccurred())
			_, err = p.Rebuild(ctx)
			Expect(err).To(HaveOccurred())

			_, err = p.Search(ctx, "一")
			Expect(err).To(MatchError(pipeline.ErrNotReady))
			Expect(err).To(MatchError(pipeline.ErrIngestion))
		})

		It("holds queries until the running rebuild finishes", func() {
			gated := newGatedEmbedder()
			cfg.Embedder = gated
			cfg.Corpus = newReader(writeCorpus(map[string]string{"a.txt": "多喝水\n"}), corpus.ModeFlat)
			p, err := pipeline.New(cfg)
			Expect(err).NotTo(HaveOccurred())

			rebuilt := make(chan error, 1)
			go func() {
				_, err := p.Rebuild(ctx)
				rebuilt <- err
			}()
			Eventually(gated.started).Should(BeClosed())
			Expect(p.Status().State).To(Equal(pipeline.StateBuilding))

			answered := make(chan *pipeline.Answer, 1)
			go func() {
				defer GinkgoRecover()
				ans, err := p.Ask(ctx, "多喝水")
				Expect(err).NotTo(HaveOccurred())
				answered <- ans
			}()
			Consistently(answered, "100ms").ShouldNot(Receive())

			close(gated.release)
			Eventually(rebuilt).Should(Receive(BeNil()))

			var ans *pipeline.Answer
			Eventually(answered).Should(Receive(&ans))
			Expect(ans.Grounded).To(BeTrue())
			Expect(ans.Documents[0].Content).To(Equal("多喝水"))
		})

		It("gives up waiting when the query context ends", func() {
			gated := newGatedEmbedder()
			cfg.Embedder = gated
			cfg.Corpus = newReader(writeCorpus(map[string]string{"a.txt": "一\n"}), corpus.ModeFlat)
			p, err := pipeline.New(cfg)
			Expect(err).NotTo(HaveOccurred())

			go p.Rebuild(ctx)
			Eventually(gated.started).Should(BeClosed())
			DeferCleanup(func() { close(gated.release) })

			qctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err = p.Ask(qctx, "一")
			Expect(err).To(MatchError(pipeline.ErrNotReady))
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		})
	})

	Describe("New", func() {
		It("requires every collaborator", func() {
			_, err := pipeline.New(pipeline.Config{})
			Expect(err).To(MatchError("pipeline requires a corpus"))

			_, err = pipeline.New(pipeline.Config{Corpus: newReader(writeCorpus(nil), corpus.ModeFlat)})
			Expect(err).To(MatchError("pipeline requires an embedder"))
		})

		It("defaults the fallback model to the generator's model", func() {
			generator.ModelName = "llama3"
			p := build(nil, corpus.ModeFlat)

			ans, err := p.Ask(ctx, "hi")
			Expect(err).NotTo(HaveOccurred())
			Expect(ans.Prompt).To(ContainSubstring("改為採用 llama3 來回答"))
		})
	})
})
