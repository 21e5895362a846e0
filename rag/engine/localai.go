package engine

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/mudler/hybridrecall/rag/engine/localai"
	"github.com/mudler/hybridrecall/rag/interfaces"
	"github.com/mudler/hybridrecall/rag/types"
)

// LocalAIStore is a vector index backed by the LocalAI stores API.
// Stores are neither persistent nor addressable by ID, and an embedding is
// the key of a store entry. Documents with the same embedding therefore share
// one entry whose value lists all of them, and the entries are tracked in
// memory.
type LocalAIStore struct {
	client   *localai.StoreClient
	embedder interfaces.Embedder
	entries  map[string]*storeGroup
	byID     map[string]string
	mu       sync.Mutex
}

type storeGroup struct {
	key  []float32
	docs []types.DocumentRef
}

func NewLocalAIStore(storeClient *localai.StoreClient, embedder interfaces.Embedder) *LocalAIStore {
	return &LocalAIStore{
		client:   storeClient,
		embedder: embedder,
		entries:  make(map[string]*storeGroup),
		byID:     make(map[string]string),
	}
}

func (db *LocalAIStore) Count() int {
	db.mu.Lock()
	defer db.mu.Unlock()

	return len(db.byID)
}

func (db *LocalAIStore) Store(ctx context.Context, docs ...types.DocumentRef) error {
	if len(docs) == 0 {
		return nil
	}

	vectors := make([][]float32, len(docs))
	for i, doc := range docs {
		embedding, err := db.embedder.Embed(ctx, doc.Plot)
		if err != nil {
			return fmt.Errorf("error getting embedding for %s: %w", doc.ID, err)
		}
		vectors[i] = embedding
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	return db.write(ctx, docs, vectors, nil)
}

func (db *LocalAIStore) Delete(ctx context.Context, ids ...string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.write(ctx, nil, nil, ids)
}

func (db *LocalAIStore) Reset(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	ids := make([]string, 0, len(db.byID))
	for id := range db.byID {
		ids = append(ids, id)
	}
	return db.write(ctx, nil, nil, ids)
}

// write removes ids, then stores docs with their vectors. Every entry that
// changes is deleted from the store and set again with its new document list.
// Must be called with db.mu held.
func (db *LocalAIStore) write(ctx context.Context, docs []types.DocumentRef, vectors [][]float32, ids []string) error {
	touched := make(map[string]*storeGroup)
	group := func(k string, vector []float32) *storeGroup {
		if g, ok := touched[k]; ok {
			return g
		}
		g := &storeGroup{key: vector}
		if current, ok := db.entries[k]; ok {
			g.key = current.key
			g.docs = slices.Clone(current.docs)
		}
		touched[k] = g
		return g
	}

	removed := make(map[string]bool)
	for _, id := range ids {
		removed[id] = true
	}
	for _, doc := range docs {
		removed[doc.ID] = true
	}
	for id := range removed {
		k, ok := db.byID[id]
		if !ok {
			continue
		}
		g := group(k, nil)
		g.docs = slices.DeleteFunc(g.docs, func(d types.DocumentRef) bool { return d.ID == id })
	}

	placed := make(map[string]string, len(docs))
	for i, doc := range docs {
		// the last copy of an id in a batch wins
		if k, ok := placed[doc.ID]; ok {
			g := touched[k]
			g.docs = slices.DeleteFunc(g.docs, func(d types.DocumentRef) bool { return d.ID == doc.ID })
		}
		k := vectorKey(vectors[i])
		g := group(k, vectors[i])
		g.docs = append(g.docs, doc)
		placed[doc.ID] = k
	}

	deleteReq := localai.DeleteRequest{}
	setReq := localai.SetRequest{}
	for k, g := range touched {
		if _, exists := db.entries[k]; exists {
			deleteReq.Keys = append(deleteReq.Keys, g.key)
		}
		if len(g.docs) == 0 {
			continue
		}
		value, err := json.Marshal(g.docs)
		if err != nil {
			return err
		}
		setReq.Keys = append(setReq.Keys, g.key)
		setReq.Values = append(setReq.Values, string(value))
	}

	if len(deleteReq.Keys) > 0 {
		if err := db.client.Delete(ctx, deleteReq); err != nil {
			return fmt.Errorf("error deleting keys: %w", err)
		}
	}
	if len(setReq.Keys) > 0 {
		if err := db.client.Set(ctx, setReq); err != nil {
			// the previous entries are gone from the store
			for k := range touched {
				db.forget(k)
			}
			return fmt.Errorf("error setting keys: %w", err)
		}
	}

	for id := range removed {
		delete(db.byID, id)
	}
	for k, g := range touched {
		if len(g.docs) == 0 {
			delete(db.entries, k)
			continue
		}
		db.entries[k] = g
		for _, doc := range g.docs {
			db.byID[doc.ID] = k
		}
	}
	return nil
}

func (db *LocalAIStore) forget(k string) {
	g, ok := db.entries[k]
	if !ok {
		return
	}
	for _, doc := range g.docs {
		delete(db.byID, doc.ID)
	}
	delete(db.entries, k)
}

// vectorKey identifies a store entry by the exact bits of its embedding
func vectorKey(vector []float32) string {
	buf := make([]byte, 0, 4*len(vector))
	for _, v := range vector {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	return string(buf)
}

// VectorSearch asks the store for numCandidates neighbours and keeps the first limit
func (db *LocalAIStore) VectorSearch(ctx context.Context, vector []float32, numCandidates, limit int) ([]types.DocumentRef, error) {
	if db.Count() == 0 {
		return []types.DocumentRef{}, nil
	}

	findResp, err := db.client.Find(ctx, localai.FindRequest{
		TopK: numCandidates,
		Key:  vector,
	})
	if err != nil {
		return nil, fmt.Errorf("error finding keys: %w", err)
	}

	// the store does not guarantee any ordering
	order := make([]int, len(findResp.Values))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return findResp.Similarities[order[a]] > findResp.Similarities[order[b]]
	})

	docs := make([]types.DocumentRef, 0, min(limit, len(order)))
	for _, i := range order {
		if len(docs) >= limit {
			break
		}
		var group []types.DocumentRef
		if err := json.Unmarshal([]byte(findResp.Values[i]), &group); err != nil {
			return nil, fmt.Errorf("malformed value in store: %w", err)
		}
		docs = append(docs, group...)
	}
	if len(docs) > limit {
		docs = docs[:limit]
	}

	return docs, nil
}
