package engine_test

import (
	"context"
	"net/http"

	"github.com/mudler/hybridrecall/rag/engine/enginetest"
	"github.com/mudler/hybridrecall/rag/engine/localai"
	"github.com/mudler/hybridrecall/rag/types"

	. "github.com/mudler/hybridrecall/rag/engine"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalAIStore", func() {
	var (
		ctx      context.Context
		server   *enginetest.StoreServer
		embedder *enginetest.HashEmbedder
		store    *LocalAIStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		server = enginetest.NewStoreServer()
		embedder = enginetest.NewHashEmbedder(64)

		client := localai.NewStoreClient(server.URL, "sk-test")
		client.Store = "movies"
		store = NewLocalAIStore(client, embedder)
		Expect(store.Store(ctx, enginetest.Movies...)).To(Succeed())
	})

	AfterEach(func() {
		server.Close()
	})

	query := func(text string) []float32 {
		vec, err := embedder.Embed(ctx, text)
		Expect(err).ToNot(HaveOccurred())
		return vec
	}

	It("tracks stored documents", func() {
		Expect(store.Count()).To(Equal(len(enginetest.Movies)))
		Expect(server.Len("movies")).To(Equal(len(enginetest.Movies)))
	})

	It("orders matches by similarity whatever the store order", func() {
		docs, err := store.VectorSearch(ctx, query(enginetest.Movies[3].Plot), 5, 2)
		Expect(err).ToNot(HaveOccurred())
		Expect(docs).To(HaveLen(2))
		Expect(docs[0]).To(Equal(enginetest.Movies[3]))
	})

	It("returns at most the candidate pool", func() {
		docs, err := store.VectorSearch(ctx, query("prison"), 2, 10)
		Expect(err).ToNot(HaveOccurred())
		Expect(docs).To(HaveLen(2))
	})

	It("replaces documents stored twice", func() {
		Expect(store.Store(ctx, enginetest.Movies[0])).To(Succeed())
		Expect(store.Count()).To(Equal(len(enginetest.Movies)))
		Expect(server.Len("movies")).To(Equal(len(enginetest.Movies)))
	})

	It("deletes by document ID", func() {
		Expect(store.Delete(ctx, "space", "unknown")).To(Succeed())
		Expect(store.Count()).To(Equal(len(enginetest.Movies) - 1))
		Expect(server.Len("movies")).To(Equal(len(enginetest.Movies) - 1))

		docs, err := store.VectorSearch(ctx, query(enginetest.Movies[3].Plot), 10, 10)
		Expect(err).ToNot(HaveOccurred())
		Expect(docIDs(docs)).ToNot(ContainElement("space"))
	})

	It("keeps documents that share a plot apart", func() {
		remake := enginetest.Movies[0]
		remake.ID = "escape-remake"
		remake.Year = 2029
		Expect(store.Store(ctx, remake)).To(Succeed())
		Expect(store.Count()).To(Equal(len(enginetest.Movies) + 1))
		Expect(server.Len("movies")).To(Equal(len(enginetest.Movies)))

		docs, err := store.VectorSearch(ctx, query(remake.Plot), 10, 2)
		Expect(err).ToNot(HaveOccurred())
		Expect(docIDs(docs)).To(Equal([]string{"escape", "escape-remake"}))

		Expect(store.Delete(ctx, "escape")).To(Succeed())
		Expect(store.Count()).To(Equal(len(enginetest.Movies)))
		Expect(server.Len("movies")).To(Equal(len(enginetest.Movies)))

		docs, err = store.VectorSearch(ctx, query(remake.Plot), 10, 1)
		Expect(err).ToNot(HaveOccurred())
		Expect(docs).To(Equal([]types.DocumentRef{remake}))
	})

	It("resets the store", func() {
		Expect(store.Reset(ctx)).To(Succeed())
		Expect(store.Count()).To(Equal(0))
		Expect(server.Len("movies")).To(Equal(0))

		docs, err := store.VectorSearch(ctx, query("prison"), 10, 10)
		Expect(err).ToNot(HaveOccurred())
		Expect(docs).To(BeEmpty())
	})

	It("reports store failures", func() {
		server.FailWith = http.StatusServiceUnavailable

		_, err := store.VectorSearch(ctx, query("prison"), 10, 10)
		Expect(err).To(MatchError(ContainSubstring("unexpected status 503")))
	})
})
