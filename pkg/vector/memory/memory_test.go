package memory_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/vector"
	"github.com/papercomputeco/parley/pkg/vector/memory"
	"github.com/papercomputeco/parley/pkg/vector/vectortest"
)

var _ = Describe("Driver", func() {
	It("implements vector.Driver and vector.Replacer", func() {
		var _ vector.Driver = (*memory.Driver)(nil)
		var _ vector.Replacer = (*memory.Driver)(nil)
	})

	vectortest.DescribeDriver(func() vector.Driver {
		return memory.NewDriver(vectortest.Dims, logger.Nop())
	})

	Context("without a configured dimension", func() {
		It("takes the dimension from the first insert", func() {
			ctx := context.Background()
			d := memory.NewDriver(0, logger.Nop())

			Expect(d.Add(ctx, []vector.Document{{ID: "0", Embedding: []float32{1, 2}}})).To(Succeed())

			err := d.Add(ctx, []vector.Document{{ID: "1", Embedding: []float32{1, 2, 3}}})
			Expect(err).To(MatchError(vector.ErrDimensionMismatch))
		})
	})

	It("does not share embedding slices with callers", func() {
		ctx := context.Background()
		d := memory.NewDriver(2, logger.Nop())
		emb := []float32{1, 0}

		Expect(d.Add(ctx, []vector.Document{{ID: "0", Embedding: emb}})).To(Succeed())
		emb[0] = 0

		got, err := d.Get(ctx, []string{"0"})
		Expect(err).NotTo(HaveOccurred())
		Expect(got[0].Embedding).To(Equal([]float32{1, 0}))
	})
})
