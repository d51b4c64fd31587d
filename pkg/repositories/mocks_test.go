package repositories

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ekaya-inc/chat-gateway/pkg/database"
)

// mockDocumentStore is an in-memory DocumentStore with update/upsert semantics.
type mockDocumentStore struct {
	mu   sync.Mutex
	docs map[string]map[string]map[string]any // index -> id -> doc

	// SearchFunc overrides Search when set.
	SearchFunc func(ctx context.Context, index string, query map[string]any) (*database.SearchResult, error)
	// Err is returned from every call when set.
	Err error

	IndexCalls  int
	UpdateCalls int
	SearchCalls int
	lastQuery   map[string]any
	lastUpsert  map[string]any
}

func newMockDocumentStore() *mockDocumentStore {
	return &mockDocumentStore{docs: make(map[string]map[string]map[string]any)}
}

func (m *mockDocumentStore) Index(_ context.Context, index, id string, doc any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.IndexCalls++
	if m.Err != nil {
		return m.Err
	}
	raw, _ := json.Marshal(doc)
	var asMap map[string]any
	_ = json.Unmarshal(raw, &asMap)
	if m.docs[index] == nil {
		m.docs[index] = make(map[string]map[string]any)
	}
	if id == "" {
		id = "auto-" + string(rune('a'+len(m.docs[index])))
	}
	m.docs[index][id] = asMap
	return nil
}

func (m *mockDocumentStore) Get(_ context.Context, index, id string, out any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	doc, ok := m.docs[index][id]
	if !ok {
		return false, nil
	}
	raw, _ := json.Marshal(doc)
	return true, json.Unmarshal(raw, out)
}

func (m *mockDocumentStore) Update(_ context.Context, index, id string, doc, upsert map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateCalls++
	m.lastUpsert = upsert
	if m.Err != nil {
		return m.Err
	}
	if m.docs[index] == nil {
		m.docs[index] = make(map[string]map[string]any)
	}
	existing, ok := m.docs[index][id]
	if !ok {
		created := make(map[string]any)
		src := upsert
		if src == nil {
			src = doc
		}
		for k, v := range src {
			created[k] = normalize(v)
		}
		m.docs[index][id] = created
		return nil
	}
	for k, v := range doc {
		existing[k] = normalize(v)
	}
	return nil
}

func (m *mockDocumentStore) Search(ctx context.Context, index string, query map[string]any) (*database.SearchResult, error) {
	m.mu.Lock()
	m.SearchCalls++
	m.lastQuery = query
	fn := m.SearchFunc
	err := m.Err
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(ctx, index, query)
	}
	return &database.SearchResult{}, nil
}

func (m *mockDocumentStore) doc(index, id string) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[index][id]
}

// normalize round-trips v through JSON so stored values match what a real store returns.
func normalize(v any) any {
	raw, _ := json.Marshal(v)
	var out any
	_ = json.Unmarshal(raw, &out)
	return out
}

var _ DocumentStore = (*mockDocumentStore)(nil)
