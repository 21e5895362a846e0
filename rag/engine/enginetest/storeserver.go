package enginetest

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"slices"
	"sort"
	"sync"

	"github.com/mudler/hybridrecall/rag/engine/localai"
)

type storeEntry struct {
	key   []float32
	value string
}

// StoreServer emulates the LocalAI stores API in memory. Find returns the
// best matches in reverse order, as the real API makes no ordering promise.
type StoreServer struct {
	*httptest.Server

	// FailWith makes every request answer with this status when non-zero
	FailWith int

	mu       sync.Mutex
	stores   map[string][]storeEntry
	requests []string
}

func NewStoreServer() *StoreServer {
	s := &StoreServer{stores: make(map[string][]storeEntry)}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /stores/set", s.set)
	mux.HandleFunc("POST /stores/delete", s.delete)
	mux.HandleFunc("POST /stores/find", s.find)
	s.Server = httptest.NewServer(s.fail(mux))
	return s
}

// Len returns the number of entries in the named store
func (s *StoreServer) Len(store string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stores[store])
}

// Requests returns the paths requested so far
func (s *StoreServer) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

func (s *StoreServer) fail(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.URL.Path)
		status := s.FailWith
		s.mu.Unlock()

		if status != 0 {
			http.Error(w, "store unavailable", status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *StoreServer) set(w http.ResponseWriter, r *http.Request) {
	var req localai.SetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Keys) != len(req.Values) {
		http.Error(w, "malformed set request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	for i := range req.Keys {
		s.stores[req.Store] = append(s.stores[req.Store], storeEntry{key: req.Keys[i], value: req.Values[i]})
	}
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *StoreServer) delete(w http.ResponseWriter, r *http.Request) {
	var req localai.DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed delete request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.stores[req.Store] = slices.DeleteFunc(s.stores[req.Store], func(e storeEntry) bool {
		return slices.ContainsFunc(req.Keys, func(k []float32) bool { return slices.Equal(k, e.key) })
	})
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *StoreServer) find(w http.ResponseWriter, r *http.Request) {
	var req localai.FindRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed find request", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	entries := slices.Clone(s.stores[req.Store])
	s.mu.Unlock()

	similarities := make([]float32, len(entries))
	for i, e := range entries {
		similarities[i] = cosine(req.Key, e.key)
	}
	order := make([]int, len(entries))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return similarities[order[a]] > similarities[order[b]] })
	if len(order) > req.TopK {
		order = order[:req.TopK]
	}
	slices.Reverse(order)

	resp := localai.FindResponse{
		Keys:         [][]float32{},
		Values:       []string{},
		Similarities: []float32{},
	}
	for _, i := range order {
		resp.Keys = append(resp.Keys, entries[i].key)
		resp.Values = append(resp.Values, entries[i].value)
		resp.Similarities = append(resp.Similarities, similarities[i])
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range min(len(a), len(b)) {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
