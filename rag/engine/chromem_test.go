package engine_test

import (
	"context"
	"os"
	"path/filepath"

	"github.com/mudler/hybridrecall/rag/engine/enginetest"
	"github.com/mudler/hybridrecall/rag/types"

	. "github.com/mudler/hybridrecall/rag/engine"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ChromemIndex", func() {
	var (
		ctx      context.Context
		tempDir  string
		embedder *enginetest.HashEmbedder
		index    *ChromemIndex
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		tempDir, err = os.MkdirTemp("", "chromem_test_*")
		Expect(err).ToNot(HaveOccurred())

		embedder = enginetest.NewHashEmbedder(64)
		index, err = NewChromemIndex("movies", filepath.Join(tempDir, "chromem"), embedder)
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
	})

	plotVector := func(id string) []float32 {
		for _, doc := range enginetest.Movies {
			if doc.ID == id {
				vec, err := embedder.Embed(ctx, doc.Plot)
				Expect(err).ToNot(HaveOccurred())
				return vec
			}
		}
		Fail("unknown movie " + id)
		return nil
	}

	It("starts empty", func() {
		Expect(index.Count()).To(Equal(0))
		Expect(index.GetEmbeddingDimensions()).To(Equal(0))

		docs, err := index.VectorSearch(ctx, plotVector("space"), 10, 5)
		Expect(err).ToNot(HaveOccurred())
		Expect(docs).To(BeEmpty())
	})

	Context("with stored movies", func() {
		BeforeEach(func() {
			Expect(index.Store(ctx, enginetest.Movies...)).To(Succeed())
		})

		It("counts documents and learns the dimensions", func() {
			Expect(index.Count()).To(Equal(len(enginetest.Movies)))
			Expect(index.GetEmbeddingDimensions()).To(Equal(64))
		})

		It("returns the nearest plot first with its display fields", func() {
			docs, err := index.VectorSearch(ctx, plotVector("space"), 10, 3)
			Expect(err).ToNot(HaveOccurred())
			Expect(docs).To(HaveLen(3))
			Expect(docs[0]).To(Equal(types.DocumentRef{
				ID:    "space",
				Title: "Gravity",
				Plot:  enginetest.Movies[3].Plot,
				Year:  2013,
			}))
		})

		It("never returns more than limit", func() {
			docs, err := index.VectorSearch(ctx, plotVector("heist"), 100, 2)
			Expect(err).ToNot(HaveOccurred())
			Expect(docs).To(HaveLen(2))
		})

		It("bounds the results by the candidate pool", func() {
			docs, err := index.VectorSearch(ctx, plotVector("heist"), 3, 10)
			Expect(err).ToNot(HaveOccurred())
			Expect(docs).To(HaveLen(3))
		})

		It("rejects query vectors with the wrong dimensions", func() {
			_, err := index.VectorSearch(ctx, make([]float32, 8), 10, 5)
			Expect(err).To(MatchError(types.ErrDimensionMismatch))
		})

		It("deletes documents", func() {
			Expect(index.Delete(ctx, "space")).To(Succeed())
			Expect(index.Count()).To(Equal(len(enginetest.Movies) - 1))

			docs, err := index.VectorSearch(ctx, plotVector("space"), 10, 10)
			Expect(err).ToNot(HaveOccurred())
			for _, doc := range docs {
				Expect(doc.ID).ToNot(Equal("space"))
			}
		})

		It("resets the collection", func() {
			Expect(index.Reset(ctx)).To(Succeed())
			Expect(index.Count()).To(Equal(0))
			Expect(index.GetEmbeddingDimensions()).To(Equal(0))
		})

		It("persists documents across reopen", func() {
			reopened, err := NewChromemIndex("movies", filepath.Join(tempDir, "chromem"), embedder)
			Expect(err).ToNot(HaveOccurred())
			Expect(reopened.Count()).To(Equal(len(enginetest.Movies)))
		})

		It("rejects query vectors with the wrong dimensions after reopen", func() {
			reopened, err := NewChromemIndex("movies", filepath.Join(tempDir, "chromem"), embedder)
			Expect(err).ToNot(HaveOccurred())
			Expect(reopened.GetEmbeddingDimensions()).To(Equal(0))

			query := []float32{1, 1, 1, 1, 1, 1, 1, 1}
			_, err = reopened.VectorSearch(ctx, query, 10, 5)
			Expect(err).To(MatchError(types.ErrDimensionMismatch))
		})
	})

	It("refuses documents without a plot", func() {
		err := index.Store(ctx, types.DocumentRef{ID: "empty", Title: "Nothing"})
		Expect(err).To(MatchError(ContainSubstring("has no plot")))
		Expect(index.Count()).To(Equal(0))
	})

	It("propagates embedding failures", func() {
		embedder.Err = types.ErrEmbedding
		err := index.Store(ctx, enginetest.Movies[0])
		Expect(err).To(MatchError(types.ErrEmbedding))
	})
})
