package memory

import (
	"context"
	"reflect"
	"sort"
	"sync"

	"github.com/custodia-labs/docmind/internal/core/domain"
	"github.com/custodia-labs/docmind/internal/core/ports/driven"
)

// Ensure RecordStore implements the interface.
var _ driven.MetadataStore = (*RecordStore)(nil)

// RecordStore is an in-memory implementation of driven.MetadataStore.
type RecordStore struct {
	mu      sync.RWMutex
	records map[string]domain.DocumentRecord

	// scanErr, when set, is returned by Scan and List.
	scanErr error

	// deleteErr, when set, is returned by Delete.
	deleteErr error
}

// NewRecordStore creates a new in-memory record store holding the given records.
func NewRecordStore(records ...domain.DocumentRecord) *RecordStore {
	s := &RecordStore{records: make(map[string]domain.DocumentRecord)}
	for i := range records {
		s.records[records[i].ID] = cloneRecord(records[i])
	}
	return s
}

// SetScanError makes Scan and List fail with err until cleared with nil.
func (s *RecordStore) SetScanError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scanErr = err
}

// SetDeleteError makes Delete fail with err until cleared with nil.
func (s *RecordStore) SetDeleteError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteErr = err
}

// Scan returns every record ordered by ID.
func (s *RecordStore) Scan(ctx context.Context) ([]domain.DocumentRecord, error) {
	return s.List(ctx)
}

// List returns every record ordered by ID.
func (s *RecordStore) List(_ context.Context) ([]domain.DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.scanErr != nil {
		return nil, s.scanErr
	}
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := make([]domain.DocumentRecord, 0, len(ids))
	for _, id := range ids {
		result = append(result, cloneRecord(s.records[id]))
	}
	return result, nil
}

// Get retrieves a record by ID.
func (s *RecordStore) Get(_ context.Context, id string) (*domain.DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneRecord(rec)
	return &out, nil
}

// Track stores or replaces a record and reports whether it differed.
func (s *RecordStore) Track(_ context.Context, record domain.DocumentRecord) (bool, error) {
	if record.ID == "" {
		return false, domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[record.ID]; ok && reflect.DeepEqual(existing, record) {
		return false, nil
	}
	s.records[record.ID] = cloneRecord(record)
	return true, nil
}

// Delete removes a record. Deleting an unknown ID is not an error.
func (s *RecordStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.records, id)
	return nil
}

// cloneRecord copies the slices and maps of a record so callers cannot
// mutate stored state.
func cloneRecord(r domain.DocumentRecord) domain.DocumentRecord {
	out := r
	if r.Signers != nil {
		out.Signers = make([]domain.Signer, len(r.Signers))
		for i, sg := range r.Signers {
			out.Signers[i] = sg
			if sg.DateSigned != nil {
				d := *sg.DateSigned
				out.Signers[i].DateSigned = &d
			}
		}
	}
	out.PrimaryParties = cloneSlice(r.PrimaryParties)
	out.Tags = cloneSlice(r.Tags)
	out.FinancialTerms = cloneMap(r.FinancialTerms)
	out.CriticalFacts = cloneMap(r.CriticalFacts)
	out.FreeText.KeyTerms = cloneSlice(r.FreeText.KeyTerms)
	out.FreeText.Obligations = cloneSlice(r.FreeText.Obligations)
	if r.TemplateAnalysis != nil {
		ta := *r.TemplateAnalysis
		out.TemplateAnalysis = &ta
	}
	return out
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	return append(make([]T, 0, len(in)), in...)
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
