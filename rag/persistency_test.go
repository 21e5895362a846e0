package rag_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/mudler/hybridrecall/rag/engine"
	"github.com/mudler/hybridrecall/rag/engine/enginetest"
	"github.com/mudler/hybridrecall/rag/types"

	. "github.com/mudler/hybridrecall/rag"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// countingIndexer wraps an index and records how often it was written to
type countingIndexer struct {
	*engine.BleveIndex
	stores int
}

func (c *countingIndexer) Store(ctx context.Context, docs ...types.DocumentRef) error {
	c.stores++
	return c.BleveIndex.Store(ctx, docs...)
}

// failingIndexer rejects writes once err is set
type failingIndexer struct {
	*countingIndexer
	err error
}

func (f *failingIndexer) Store(ctx context.Context, docs ...types.DocumentRef) error {
	if f.err != nil {
		return f.err
	}
	return f.countingIndexer.Store(ctx, docs...)
}

var _ = Describe("Collection", func() {
	var (
		ctx       context.Context
		tempDir   string
		stateFile string
		index     *countingIndexer
		hybrid    *engine.HybridSearchEngine
		opened    []*engine.BleveIndex
	)

	newIndex := func(name string) *countingIndexer {
		bleveIndex, err := engine.NewBleveIndex(filepath.Join(tempDir, "bleve", name), "en")
		Expect(err).ToNot(HaveOccurred())
		opened = append(opened, bleveIndex)
		return &countingIndexer{BleveIndex: bleveIndex}
	}

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		tempDir, err = os.MkdirTemp("", "persistency_test_*")
		Expect(err).ToNot(HaveOccurred())
		stateFile = filepath.Join(tempDir, "state", "collection-movies.json")

		index = newIndex("movies")
		vector := &enginetest.VectorSource{Docs: enginetest.Movies}
		hybrid, err = engine.NewHybridSearchEngine(enginetest.NewHashEmbedder(8), vector, index, engine.DefaultOptions())
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		for _, bleveIndex := range opened {
			bleveIndex.Close()
		}
		opened = nil
		os.RemoveAll(tempDir)
	})

	It("creates the state file", func() {
		c, err := NewCollection(ctx, "movies", stateFile, hybrid, index)
		Expect(err).ToNot(HaveOccurred())
		Expect(c.Name()).To(Equal("movies"))
		Expect(c.Count()).To(Equal(0))
		Expect(stateFile).To(BeARegularFile())
		Expect(c.Defaults()).To(Equal(engine.DefaultOptions()))
	})

	Context("with stored documents", func() {
		var c *Collection

		BeforeEach(func() {
			var err error
			c, err = NewCollection(ctx, "movies", stateFile, hybrid, index)
			Expect(err).ToNot(HaveOccurred())

			stored, err := c.Store(ctx, enginetest.Movies...)
			Expect(err).ToNot(HaveOccurred())
			Expect(stored).To(Equal(enginetest.Movies))
		})

		It("keeps documents in insertion order", func() {
			Expect(c.Count()).To(Equal(len(enginetest.Movies)))
			Expect(c.ListDocuments()).To(Equal(enginetest.Movies))
			Expect(index.Count()).To(Equal(len(enginetest.Movies)))
		})

		It("assigns IDs to documents without one", func() {
			stored, err := c.Store(ctx, types.DocumentRef{Title: "Alien", Plot: "A crew meets a creature in space.", Year: 1979})
			Expect(err).ToNot(HaveOccurred())
			Expect(stored).To(HaveLen(1))
			Expect(uuid.Validate(stored[0].ID)).To(Succeed())

			doc, err := c.Get(stored[0].ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(doc.Title).To(Equal("Alien"))
		})

		It("replaces documents with an existing ID", func() {
			_, err := c.Store(ctx, types.DocumentRef{ID: "space", Title: "Gravity (2013)", Plot: "Stranded.", Year: 2013})
			Expect(err).ToNot(HaveOccurred())
			Expect(c.Count()).To(Equal(len(enginetest.Movies)))

			doc, err := c.Get("space")
			Expect(err).ToNot(HaveOccurred())
			Expect(doc.Title).To(Equal("Gravity (2013)"))
			Expect(c.ListDocuments()[3].ID).To(Equal("space"))
		})

		It("removes documents", func() {
			Expect(c.RemoveDocument(ctx, "escape")).To(Succeed())
			Expect(c.Count()).To(Equal(len(enginetest.Movies) - 1))
			Expect(index.Count()).To(Equal(len(enginetest.Movies) - 1))

			_, err := c.Get("escape")
			Expect(err).To(MatchError(types.ErrDocumentNotFound))
			Expect(c.RemoveDocument(ctx, "escape")).To(MatchError(types.ErrDocumentNotFound))
		})

		It("resets the collection and its indexes", func() {
			Expect(c.Reset(ctx)).To(Succeed())
			Expect(c.Count()).To(Equal(0))
			Expect(c.ListDocuments()).To(BeEmpty())
			Expect(index.Count()).To(Equal(0))
		})

		It("searches through the hybrid engine", func() {
			results, err := c.Search(ctx, "prison escape", engine.Options{Limit: 2, OverrequestFactor: 1, VectorPriority: 1, TextPriority: 1})
			Expect(err).ToNot(HaveOccurred())
			Expect(enginetest.IDs(results)).To(Equal([]string{"escape", "shawshank"}))
		})

		It("reloads the state without writing to up to date indexes", func() {
			reloaded, err := NewCollection(ctx, "movies", stateFile, hybrid, index)
			Expect(err).ToNot(HaveOccurred())
			Expect(reloaded.ListDocuments()).To(Equal(enginetest.Movies))
			Expect(index.stores).To(Equal(1))
		})

		It("rolls back earlier indexes when a later one fails", func() {
			failing := &failingIndexer{countingIndexer: newIndex("failing")}
			reloaded, err := NewCollection(ctx, "movies", stateFile, hybrid, index, failing)
			Expect(err).ToNot(HaveOccurred())

			failing.err = errors.New("disk full")
			_, err = reloaded.Store(ctx,
				types.DocumentRef{ID: "alien", Title: "Alien", Plot: "A crew meets a creature in space.", Year: 1979},
				types.DocumentRef{ID: "space", Title: "Gravity (2013)", Plot: "Stranded.", Year: 2013},
			)
			Expect(err).To(MatchError(ContainSubstring("disk full")))

			_, err = reloaded.Get("alien")
			Expect(err).To(MatchError(types.ErrDocumentNotFound))
			doc, err := reloaded.Get("space")
			Expect(err).ToNot(HaveOccurred())
			Expect(doc).To(Equal(enginetest.Movies[3]))

			Expect(index.Count()).To(Equal(len(enginetest.Movies)))
			docs, err := index.TextSearch(ctx, "creature", 10)
			Expect(err).ToNot(HaveOccurred())
			Expect(docs).To(BeEmpty())
			docs, err = index.TextSearch(ctx, "astronauts", 10)
			Expect(err).ToNot(HaveOccurred())
			Expect(docs).To(Equal([]types.DocumentRef{enginetest.Movies[3]}))
		})

		It("repopulates indexes that lost their documents", func() {
			empty := newIndex("empty")
			reloaded, err := NewCollection(ctx, "movies", stateFile, hybrid, index, empty)
			Expect(err).ToNot(HaveOccurred())
			Expect(reloaded.Count()).To(Equal(len(enginetest.Movies)))
			Expect(empty.Count()).To(Equal(len(enginetest.Movies)))
			Expect(empty.stores).To(Equal(1))
			Expect(index.stores).To(Equal(1))
		})
	})

	It("fails on a corrupted state file", func() {
		Expect(os.MkdirAll(filepath.Dir(stateFile), 0755)).To(Succeed())
		Expect(os.WriteFile(stateFile, []byte("{not json"), 0644)).To(Succeed())

		_, err := NewCollection(ctx, "movies", stateFile, hybrid, index)
		Expect(err).To(MatchError(ContainSubstring("failed to load collection state")))
	})
})
