package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/mudler/hybridrecall/rag/engine"
	"github.com/mudler/hybridrecall/rag/types"
	"github.com/mudler/xlog"
)

// Collection is a named set of documents kept in sync across the indexes
// that feed its hybrid search engine. The documents are persisted to a
// state file so that indexes which lose their content can be repopulated.
type Collection struct {
	sync.Mutex
	name      string
	path      string
	engine    *engine.HybridSearchEngine
	indexers  []Indexer
	documents map[string]DocumentRef
	order     []string
}

func loadDB(path string) ([]DocumentRef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	docs := []DocumentRef{}
	err = json.Unmarshal(data, &docs)
	return docs, err
}

// NewCollection loads the state file if it exists, or creates it
func NewCollection(ctx context.Context, name, stateFile string, searchEngine *engine.HybridSearchEngine, indexers ...Indexer) (*Collection, error) {
	if err := os.MkdirAll(filepath.Dir(stateFile), 0755); err != nil {
		return nil, err
	}

	c := &Collection{
		name:      name,
		path:      stateFile,
		engine:    searchEngine,
		indexers:  indexers,
		documents: make(map[string]DocumentRef),
	}

	if _, err := os.Stat(stateFile); err != nil {
		c.Lock()
		defer c.Unlock()
		return c, c.save()
	}

	docs, err := loadDB(stateFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load collection state: %w", err)
	}
	for _, d := range docs {
		c.add(d)
	}

	if err := c.repopulate(ctx); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Collection) Name() string {
	return c.name
}

// Defaults returns the search options used when a request does not set them
func (c *Collection) Defaults() engine.Options {
	return c.engine.Defaults()
}

func (c *Collection) add(d DocumentRef) {
	if _, exists := c.documents[d.ID]; !exists {
		c.order = append(c.order, d.ID)
	}
	c.documents[d.ID] = d
}

func (c *Collection) save() error {
	data, err := json.Marshal(c.list())
	if err != nil {
		return err
	}

	return os.WriteFile(c.path, data, 0644)
}

func (c *Collection) list() []DocumentRef {
	docs := make([]DocumentRef, 0, len(c.order))
	for _, id := range c.order {
		docs = append(docs, c.documents[id])
	}
	return docs
}

// repopulate stores every known document again in the indexes that hold
// fewer documents than the collection, e.g. in-memory stores after a restart.
func (c *Collection) repopulate(ctx context.Context) error {
	c.Lock()
	defer c.Unlock()

	if len(c.documents) == 0 {
		return nil
	}

	docs := c.list()
	for _, idx := range c.indexers {
		if idx.Count() >= len(docs) {
			continue
		}
		xlog.Info("Repopulating index", "collection", c.name, "documents", len(docs), "indexed", idx.Count())
		if err := idx.Store(ctx, docs...); err != nil {
			return fmt.Errorf("failed to repopulate index: %w", err)
		}
	}

	return nil
}

// Store adds documents to every index. Documents without an ID get a new one.
// Documents with an existing ID replace the stored version.
func (c *Collection) Store(ctx context.Context, docs ...DocumentRef) ([]DocumentRef, error) {
	c.Lock()
	defer c.Unlock()

	stored := make([]DocumentRef, len(docs))
	for i, d := range docs {
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		stored[i] = d
	}

	if len(stored) == 0 {
		return stored, nil
	}

	for i, idx := range c.indexers {
		if err := idx.Store(ctx, stored...); err != nil {
			c.rollback(ctx, c.indexers[:i], stored)
			return nil, fmt.Errorf("failed to store documents: %w", err)
		}
	}

	for _, d := range stored {
		c.add(d)
	}

	return stored, c.save()
}

// rollback restores the indexes that already accepted docs to the collection
// state: new documents are deleted and replaced ones are stored again.
// Must be called with the lock held.
func (c *Collection) rollback(ctx context.Context, indexers []Indexer, docs []DocumentRef) {
	var added []string
	var previous []DocumentRef
	seen := make(map[string]bool, len(docs))
	for _, d := range docs {
		if seen[d.ID] {
			continue
		}
		seen[d.ID] = true
		if old, exists := c.documents[d.ID]; exists {
			previous = append(previous, old)
		} else {
			added = append(added, d.ID)
		}
	}

	for _, idx := range indexers {
		if len(added) > 0 {
			if err := idx.Delete(ctx, added...); err != nil {
				xlog.Error("Failed to roll back stored documents", "collection", c.name, "error", err)
			}
		}
		if len(previous) > 0 {
			if err := idx.Store(ctx, previous...); err != nil {
				xlog.Error("Failed to restore replaced documents", "collection", c.name, "error", err)
			}
		}
	}
}

// Get returns a stored document
func (c *Collection) Get(id string) (DocumentRef, error) {
	c.Lock()
	defer c.Unlock()

	d, exists := c.documents[id]
	if !exists {
		return DocumentRef{}, fmt.Errorf("%w: %s", types.ErrDocumentNotFound, id)
	}
	return d, nil
}

// ListDocuments returns the stored documents in insertion order
func (c *Collection) ListDocuments() []DocumentRef {
	c.Lock()
	defer c.Unlock()

	return c.list()
}

// RemoveDocument removes a document from every index
func (c *Collection) RemoveDocument(ctx context.Context, id string) error {
	c.Lock()
	defer c.Unlock()

	if _, exists := c.documents[id]; !exists {
		return fmt.Errorf("%w: %s", types.ErrDocumentNotFound, id)
	}

	for _, idx := range c.indexers {
		if err := idx.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
	}

	delete(c.documents, id)
	for i, e := range c.order {
		if e == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}

	return c.save()
}

// Reset empties every index and the collection state
func (c *Collection) Reset(ctx context.Context) error {
	c.Lock()
	defer c.Unlock()

	for _, idx := range c.indexers {
		if err := idx.Reset(ctx); err != nil {
			return err
		}
	}

	c.documents = make(map[string]DocumentRef)
	c.order = nil
	return c.save()
}

func (c *Collection) Count() int {
	c.Lock()
	defer c.Unlock()

	return len(c.documents)
}

// Close releases the indexes that hold open files
func (c *Collection) Close() error {
	c.Lock()
	defer c.Unlock()

	var errs []error
	for _, idx := range c.indexers {
		if closer, ok := idx.(io.Closer); ok {
			errs = append(errs, closer.Close())
		}
	}
	return errors.Join(errs...)
}

// Search runs a hybrid search over the collection
func (c *Collection) Search(ctx context.Context, query string, opts engine.Options) ([]FusedResult, error) {
	return c.engine.HybridSearch(ctx, query, opts)
}
