package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cloo-solutions/docpipe/internal/domain"
)

// memStore is an in-memory Store that keeps every status write.
type memStore struct {
	mu         sync.Mutex
	statuses   map[string]*domain.ProcessingStatus
	history    map[string][]domain.ProcessingStatus
	chunks     map[string][]domain.StoredChunk
	facts      map[string][]domain.StoredFact
	embeddings map[string]domain.Embedding
	nextID     int
	deletes    int
}

func newMemStore() *memStore {
	return &memStore{
		statuses:   make(map[string]*domain.ProcessingStatus),
		history:    make(map[string][]domain.ProcessingStatus),
		chunks:     make(map[string][]domain.StoredChunk),
		facts:      make(map[string][]domain.StoredFact),
		embeddings: make(map[string]domain.Embedding),
	}
}

func (m *memStore) id(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *memStore) record(s *domain.ProcessingStatus) {
	m.statuses[s.DocumentID] = s.Clone()
	m.history[s.DocumentID] = append(m.history[s.DocumentID], *s.Clone())
}

func (m *memStore) AcquireRun(_ context.Context, documentID, runID string, staleAfter time.Duration) (*domain.ProcessingStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur := m.statuses[documentID]; cur != nil && cur.RunID != "" && !cur.Stage.IsTerminal() &&
		time.Since(cur.UpdatedAt) < staleAfter {
		return cur.Clone(), domain.ErrAlreadyRunning
	}
	s := domain.NewProcessingStatus(documentID, time.Now().UTC())
	s.RunID = runID
	m.record(s)
	return s.Clone(), nil
}

func (m *memStore) UpsertStatus(_ context.Context, status *domain.ProcessingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.statuses[status.DocumentID]
	if cur == nil || cur.RunID != status.RunID {
		return domain.ErrStatusConflict
	}
	m.record(status)
	return nil
}

func (m *memStore) GetStatus(_ context.Context, documentID string) (*domain.ProcessingStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.statuses[documentID]
	if cur == nil {
		return nil, domain.ErrStatusNotFound
	}
	return cur.Clone(), nil
}

func (m *memStore) SaveChunks(_ context.Context, documentID string, chunks []domain.Chunk) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = m.id("chunk")
		m.chunks[documentID] = append(m.chunks[documentID], domain.StoredChunk{ID: ids[i], DocumentID: documentID, Chunk: c})
	}
	return ids, nil
}

func (m *memStore) SaveFacts(_ context.Context, documentID string, facts []domain.Fact) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, len(facts))
	for i, f := range facts {
		ids[i] = m.id("fact")
		m.facts[documentID] = append(m.facts[documentID], domain.StoredFact{ID: ids[i], DocumentID: documentID, Fact: f})
	}
	return ids, nil
}

func (m *memStore) SaveEmbeddings(_ context.Context, _ string, embeddings []domain.Embedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range embeddings {
		if e.OwnerID == "" {
			return fmt.Errorf("embedding without owner")
		}
		m.embeddings[e.OwnerID] = e
	}
	return nil
}

func (m *memStore) CountChunks(_ context.Context, documentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.chunks[documentID]), nil
}

func (m *memStore) DeleteArtifacts(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deletes++
	for _, c := range m.chunks[documentID] {
		delete(m.embeddings, c.ID)
	}
	for _, f := range m.facts[documentID] {
		delete(m.embeddings, f.ID)
	}
	delete(m.chunks, documentID)
	delete(m.facts, documentID)
	return nil
}

// steal hands the status record to another run.
func (m *memStore) steal(documentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur := m.statuses[documentID]; cur != nil {
		cur.RunID = "intruder"
	}
}

func (m *memStore) statusHistory(documentID string) []domain.ProcessingStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ProcessingStatus(nil), m.history[documentID]...)
}

func (m *memStore) storedChunks(documentID string) []domain.StoredChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.StoredChunk(nil), m.chunks[documentID]...)
}

func (m *memStore) storedFacts(documentID string) []domain.StoredFact {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.StoredFact(nil), m.facts[documentID]...)
}

func (m *memStore) embeddingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.embeddings)
}
