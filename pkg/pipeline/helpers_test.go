package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/corpus"
	"github.com/papercomputeco/parley/pkg/logger"
	testutils "github.com/papercomputeco/parley/pkg/utils/test"
)

// writeCorpus creates a corpus directory holding files.
func writeCorpus(files map[string]string) string {
	dir := GinkgoT().TempDir()
	for name, content := range files {
		Expect(os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644)).To(Succeed())
	}
	return dir
}

func newReader(dir string, mode corpus.Mode) *corpus.Reader {
	parser, err := corpus.NewParser(mode)
	Expect(err).NotTo(HaveOccurred())
	return corpus.NewReader(dir, parser, []string{".txt"}, logger.Nop())
}

// gatedEmbedder blocks every Embed call until release is closed.
type gatedEmbedder struct {
	*testutils.MockEmbedder

	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedEmbedder() *gatedEmbedder {
	return &gatedEmbedder{
		MockEmbedder: testutils.NewMockEmbedder(),
		started:      make(chan struct{}),
		release:      make(chan struct{}),
	}
}

func (g *gatedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.MockEmbedder.Embed(ctx, text)
}
