// Package vectortest holds the behavior every vector.Driver must share,
// written as Ginkgo specs that driver test suites mount with DescribeDriver.
package vectortest

import (
	"context"
	"strconv"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/vector"
)

// Dims is the embedding dimension the shared specs insert.
const Dims = 4

// DescribeDriver registers the shared driver specs. newDriver must return an
// empty driver configured for Dims-dimensional embeddings.
func DescribeDriver(newDriver func() vector.Driver) {
	Describe("vector.Driver behavior", func() {
		var (
			ctx    context.Context
			driver vector.Driver
		)

		BeforeEach(func() {
			ctx = context.Background()
			driver = newDriver()
		})

		AfterEach(func() {
			Expect(driver.Close()).To(Succeed())
		})

		docs := func(vecs ...[]float32) []vector.Document {
			out := make([]vector.Document, len(vecs))
			for i, v := range vecs {
				out[i] = vector.Document{
					ID:        strconv.Itoa(i),
					Embedding: v,
					Content:   "doc " + strconv.Itoa(i),
				}
			}
			return out
		}

		It("starts empty", func() {
			ids, err := driver.ListIDs(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(BeEmpty())

			n, err := driver.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())
		})

		It("returns an empty result when querying an empty collection", func() {
			results, err := driver.Query(ctx, []float32{1, 0, 0, 0}, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
		})

		It("lists the ids of inserted documents", func() {
			Expect(driver.Add(ctx, docs(
				[]float32{1, 0, 0, 0},
				[]float32{0, 1, 0, 0},
			))).To(Succeed())

			ids, err := driver.ListIDs(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(ConsistOf("0", "1"))
		})

		It("round-trips content and metadata", func() {
			Expect(driver.Add(ctx, []vector.Document{{
				ID:        "0",
				Embedding: []float32{0.1, 0.2, 0.3, 0.4},
				Content:   "多休息",
				Metadata:  map[string]string{"question": "頭痛怎麼辦"},
			}})).To(Succeed())

			got, err := driver.Get(ctx, []string{"0", "missing"})
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(1))
			Expect(got[0].Content).To(Equal("多休息"))
			Expect(got[0].Metadata).To(HaveKeyWithValue("question", "頭痛怎麼辦"))
		})

		It("rejects a duplicate id", func() {
			Expect(driver.Add(ctx, docs([]float32{1, 0, 0, 0}))).To(Succeed())

			err := driver.Add(ctx, docs([]float32{0, 1, 0, 0}))
			Expect(err).To(MatchError(vector.ErrDuplicateID))

			n, err := driver.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))
		})

		It("rejects an embedding of the wrong dimension", func() {
			err := driver.Add(ctx, docs([]float32{1, 0, 0}))
			Expect(err).To(MatchError(vector.ErrDimensionMismatch))
		})

		It("rejects a query of the wrong dimension", func() {
			Expect(driver.Add(ctx, docs([]float32{1, 0, 0, 0}))).To(Succeed())

			_, err := driver.Query(ctx, []float32{1, 0}, 3)
			Expect(err).To(MatchError(vector.ErrDimensionMismatch))
		})

		It("returns an identical vector first", func() {
			Expect(driver.Add(ctx, docs(
				[]float32{0, 0, 1, 0},
				[]float32{1, 0, 0, 0},
				[]float32{0.9, 0.1, 0, 0},
				[]float32{0, 1, 0, 0},
			))).To(Succeed())

			results, err := driver.Query(ctx, []float32{1, 0, 0, 0}, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(3))
			Expect(results[0].ID).To(Equal("1"))
			Expect(results[0].Content).To(Equal("doc 1"))
			Expect(results[0].Distance).To(BeNumerically("~", 0, 1e-5))
			Expect(results[1].ID).To(Equal("2"))

			for i := 1; i < len(results); i++ {
				Expect(results[i].Distance).To(BeNumerically(">=", results[i-1].Distance))
				Expect(results[i].Score).To(BeNumerically("<=", results[i-1].Score))
			}
		})

		It("caps results at the number of stored documents", func() {
			Expect(driver.Add(ctx, docs([]float32{1, 0, 0, 0}))).To(Succeed())

			results, err := driver.Query(ctx, []float32{1, 0, 0, 0}, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
		})

		It("deletes documents and treats an empty id set as a no-op", func() {
			Expect(driver.Add(ctx, docs(
				[]float32{1, 0, 0, 0},
				[]float32{0, 1, 0, 0},
			))).To(Succeed())

			Expect(driver.Delete(ctx, nil)).To(Succeed())
			Expect(driver.Delete(ctx, []string{"0"})).To(Succeed())

			ids, err := driver.ListIDs(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(ConsistOf("1"))
		})

		It("accepts reinserting an id after it was deleted", func() {
			Expect(driver.Add(ctx, docs([]float32{1, 0, 0, 0}))).To(Succeed())
			Expect(driver.Delete(ctx, []string{"0"})).To(Succeed())
			Expect(driver.Add(ctx, docs([]float32{0, 1, 0, 0}))).To(Succeed())
		})

		It("replaces the full collection when it supports Replacer", func() {
			replacer, ok := driver.(vector.Replacer)
			if !ok {
				Skip("driver does not implement vector.Replacer")
			}

			Expect(driver.Add(ctx, docs(
				[]float32{1, 0, 0, 0},
				[]float32{0, 1, 0, 0},
				[]float32{0, 0, 1, 0},
			))).To(Succeed())

			Expect(replacer.Replace(ctx, []vector.Document{
				{ID: "0", Embedding: []float32{0, 0, 0, 1}, Content: "fresh"},
			})).To(Succeed())

			ids, err := driver.ListIDs(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(ConsistOf("0"))

			results, err := driver.Query(ctx, []float32{0, 0, 0, 1}, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Content).To(Equal("fresh"))
		})

		It("leaves the collection untouched when Replace fails", func() {
			replacer, ok := driver.(vector.Replacer)
			if !ok {
				Skip("driver does not implement vector.Replacer")
			}

			Expect(driver.Add(ctx, docs([]float32{1, 0, 0, 0}))).To(Succeed())

			err := replacer.Replace(ctx, []vector.Document{
				{ID: "0", Embedding: []float32{0, 0, 0, 1}},
				{ID: "1", Embedding: []float32{0, 0, 1}},
			})
			Expect(err).To(MatchError(vector.ErrDimensionMismatch))

			got, err := driver.Get(ctx, []string{"0"})
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(HaveLen(1))
			Expect(got[0].Content).To(Equal("doc 0"))
		})
	})
}
