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

func docIDs(docs []types.DocumentRef) []string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids
}

var _ = Describe("BleveIndex", func() {
	var (
		ctx     context.Context
		tempDir string
		path    string
		index   *BleveIndex
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		tempDir, err = os.MkdirTemp("", "bleve_test_*")
		Expect(err).ToNot(HaveOccurred())

		path = filepath.Join(tempDir, "bleve", "movies")
		index, err = NewBleveIndex(path, "")
		Expect(err).ToNot(HaveOccurred())
		Expect(index.Store(ctx, enginetest.Movies...)).To(Succeed())
	})

	AfterEach(func() {
		if index != nil {
			index.Close()
		}
		os.RemoveAll(tempDir)
	})

	It("counts indexed documents", func() {
		Expect(index.Count()).To(Equal(len(enginetest.Movies)))
	})

	It("ranks plots matching more terms first", func() {
		docs, err := index.TextSearch(ctx, "prison escape", 10)
		Expect(err).ToNot(HaveOccurred())
		Expect(docIDs(docs)).To(Equal([]string{"escape", "shawshank"}))
		Expect(docs[0]).To(Equal(enginetest.Movies[0]))
	})

	It("stems query terms", func() {
		docs, err := index.TextSearch(ctx, "astronaut", 10)
		Expect(err).ToNot(HaveOccurred())
		Expect(docIDs(docs)).To(Equal([]string{"space"}))
	})

	It("matches whole terms, not substrings", func() {
		Expect(index.Store(ctx,
			types.DocumentRef{ID: "homecoming", Title: "Homecoming", Year: 2001, Plot: "A woman returns to her hometown after twenty years."},
			types.DocumentRef{ID: "festival", Title: "Festival", Year: 2005, Plot: "A director premieres a film at Cannes."},
			types.DocumentRef{ID: "crossing", Title: "Crossing", Year: 2010, Plot: "A man swims across the bay at night."},
		)).To(Succeed())

		docs, err := index.TextSearch(ctx, "man can", 10)
		Expect(err).ToNot(HaveOccurred())
		Expect(docIDs(docs)).To(Equal([]string{"crossing"}))
	})

	It("truncates to limit", func() {
		docs, err := index.TextSearch(ctx, "prison escape", 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(docIDs(docs)).To(Equal([]string{"escape"}))
	})

	It("returns nothing for a blank query", func() {
		docs, err := index.TextSearch(ctx, " ", 10)
		Expect(err).ToNot(HaveOccurred())
		Expect(docs).To(BeEmpty())
	})

	It("deletes documents", func() {
		Expect(index.Delete(ctx, "escape")).To(Succeed())
		Expect(index.Count()).To(Equal(len(enginetest.Movies) - 1))

		docs, err := index.TextSearch(ctx, "prison", 10)
		Expect(err).ToNot(HaveOccurred())
		Expect(docIDs(docs)).To(Equal([]string{"shawshank"}))
	})

	It("resets to an empty index", func() {
		Expect(index.Reset(ctx)).To(Succeed())
		Expect(index.Count()).To(Equal(0))

		docs, err := index.TextSearch(ctx, "prison", 10)
		Expect(err).ToNot(HaveOccurred())
		Expect(docs).To(BeEmpty())
	})

	It("reopens an existing index", func() {
		Expect(index.Close()).To(Succeed())

		var err error
		index, err = NewBleveIndex(path, "en")
		Expect(err).ToNot(HaveOccurred())
		Expect(index.Count()).To(Equal(len(enginetest.Movies)))
	})

	It("reports a closed index as missing", func() {
		Expect(index.Close()).To(Succeed())

		_, err := index.TextSearch(ctx, "prison", 10)
		Expect(err).To(MatchError(types.ErrIndexNotFound))
		index = nil
	})
})
