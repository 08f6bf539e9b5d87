package embeddingutils_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/embeddings/ollama"
	"github.com/papercomputeco/parley/pkg/embeddings/openai"
	embeddingutils "github.com/papercomputeco/parley/pkg/embeddings/utils"
)

var _ = Describe("NewEmbedder", func() {
	It("builds the ollama embedder", func() {
		e, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
			ProviderType: "ollama",
			TargetURL:    "http://localhost:11434",
			Model:        "mxbai-embed-large",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(e).To(BeAssignableToTypeOf(&ollama.Embedder{}))
	})

	It("builds the openai embedder", func() {
		e, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
			ProviderType: "openai",
			APIKey:       "sk-test",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(e).To(BeAssignableToTypeOf(&openai.Embedder{}))
	})

	It("rejects unknown providers", func() {
		_, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{ProviderType: "cohere"})
		Expect(err).To(MatchError("unsupported embedding provider: cohere"))
	})
})
