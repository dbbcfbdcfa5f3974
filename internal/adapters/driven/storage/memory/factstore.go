package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/docmind/internal/core/domain"
	"github.com/custodia-labs/docmind/internal/core/ports/driven"
)

// Ensure FactStore implements the interface.
var _ driven.FactStore = (*FactStore)(nil)

// FactStore is an in-memory implementation of driven.FactStore.
type FactStore struct {
	mu    sync.RWMutex
	facts map[domain.FactRef]driven.StoredFact

	// Injected failures for tests.
	loadErr error
	saveErr error

	saves int
}

// NewFactStore creates a new in-memory fact store.
func NewFactStore() *FactStore {
	return &FactStore{facts: make(map[domain.FactRef]driven.StoredFact)}
}

// FailLoad makes LoadFacts return err until cleared with nil.
func (s *FactStore) FailLoad(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadErr = err
}

// FailSave makes SaveFacts and ReplaceAll return err until cleared with nil.
func (s *FactStore) FailSave(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

// Saves returns the number of successful writes.
func (s *FactStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// LoadFacts returns every stored fact ordered by bucket and key.
func (s *FactStore) LoadFacts(_ context.Context) ([]driven.StoredFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	result := make([]driven.StoredFact, 0, len(s.facts))
	for _, f := range s.facts {
		result = append(result, cloneStored(f))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Fact.Bucket != result[j].Fact.Bucket {
			return result[i].Fact.Bucket < result[j].Fact.Bucket
		}
		return result[i].Fact.Key < result[j].Fact.Key
	})
	return result, nil
}

// SaveFacts applies upserts and deletes atomically.
func (s *FactStore) SaveFacts(_ context.Context, upserts []driven.StoredFact, deletes []domain.FactRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	for _, ref := range deletes {
		delete(s.facts, ref)
	}
	for _, f := range upserts {
		s.facts[f.Fact.Ref()] = cloneStored(f)
	}
	s.saves++
	return nil
}

// ReplaceAll discards every stored fact and stores facts instead.
func (s *FactStore) ReplaceAll(_ context.Context, facts []driven.StoredFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.facts = make(map[domain.FactRef]driven.StoredFact, len(facts))
	for _, f := range facts {
		s.facts[f.Fact.Ref()] = cloneStored(f)
	}
	s.saves++
	return nil
}

// Close is a no-op.
func (s *FactStore) Close() error {
	return nil
}

func cloneStored(f driven.StoredFact) driven.StoredFact {
	out := f
	out.Fact.SourceDocumentIDs = cloneSlice(f.Fact.SourceDocumentIDs)
	out.Contributions = cloneSlice(f.Contributions)
	return out
}
