package generationutils_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/generation/ollama"
	"github.com/papercomputeco/parley/pkg/generation/openai"
	generationutils "github.com/papercomputeco/parley/pkg/generation/utils"
)

var _ = Describe("NewGenerator", func() {
	It("builds the ollama generator with the configured model", func() {
		g, err := generationutils.NewGenerator(&generationutils.NewGeneratorOpts{
			ProviderType: "ollama",
			Model:        "llama3",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(g).To(BeAssignableToTypeOf(&ollama.Generator{}))
		Expect(g.Model()).To(Equal("llama3"))
	})

	It("builds the openai generator", func() {
		g, err := generationutils.NewGenerator(&generationutils.NewGeneratorOpts{
			ProviderType: "openai",
			APIKey:       "sk-test",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(g).To(BeAssignableToTypeOf(&openai.Generator{}))
	})

	It("rejects unknown providers", func() {
		_, err := generationutils.NewGenerator(&generationutils.NewGeneratorOpts{ProviderType: "vllm"})
		Expect(err).To(MatchError("unsupported generation provider: vllm"))
	})
})
