package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/custodia-labs/docmind/internal/core/domain"
	"github.com/custodia-labs/docmind/internal/core/ports/driven"
	"github.com/custodia-labs/docmind/internal/core/ports/driving"
	"github.com/custodia-labs/docmind/internal/logger"
)

// Ensure MemoryIndexManager implements the interface.
var _ driving.MemoryIndex = (*MemoryIndexManager)(nil)

// factEntry holds every document's contribution to one fact.
type factEntry struct {
	contributions map[string]domain.FactContribution
}

func (e *factEntry) clone() *factEntry {
	c := &factEntry{contributions: make(map[string]domain.FactContribution, len(e.contributions))}
	for id, contrib := range e.contributions {
		c.contributions[id] = contrib
	}
	return c
}

// fact materialises the visible fact: the value of the most recently
// ingested contribution and the sorted set of sources.
func (e *factEntry) fact(ref domain.FactRef) domain.MemoryFact {
	f := domain.MemoryFact{
		Bucket:            ref.Bucket,
		Key:               ref.Key,
		SourceDocumentIDs: make([]string, 0, len(e.contributions)),
	}
	var latest uint64
	for id, c := range e.contributions {
		f.SourceDocumentIDs = append(f.SourceDocumentIDs, id)
		if c.Seq >= latest {
			latest = c.Seq
			f.Value = c.Value
		}
		if c.UpdatedAt.After(f.LastUpdated) {
			f.LastUpdated = c.UpdatedAt
		}
	}
	sort.Strings(f.SourceDocumentIDs)
	return f
}

func (e *factEntry) stored(ref domain.FactRef) driven.StoredFact {
	sf := driven.StoredFact{Fact: e.fact(ref)}
	for _, id := range sf.Fact.SourceDocumentIDs {
		sf.Contributions = append(sf.Contributions, e.contributions[id])
	}
	return sf
}

// indexState is the complete in-memory index.
type indexState struct {
	facts map[domain.FactRef]*factEntry

	// records maps a record ID to the facts it contributes and their values.
	records map[string]map[domain.FactRef]string
}

func newIndexState() *indexState {
	return &indexState{
		facts:   make(map[domain.FactRef]*factEntry),
		records: make(map[string]map[domain.FactRef]string),
	}
}

// MemoryIndexManager maintains the aggregated fact buckets incrementally.
// A single RWMutex guards every bucket; writers hold it for a whole record,
// so readers never observe a partially ingested record.
type MemoryIndexManager struct {
	store driven.MetadataStore
	facts driven.FactStore
	rules domain.RuleSet
	now   func() time.Time

	mu        sync.RWMutex
	state     *indexState
	seq       uint64
	available bool

	version atomic.Uint64

	listenersMu sync.Mutex
	listeners   []driving.ChangeListener
}

// NewMemoryIndexManager creates a memory index manager.
// The factStore parameter is optional (can be nil) for a purely in-memory index.
func NewMemoryIndexManager(
	store driven.MetadataStore,
	factStore driven.FactStore,
	rules domain.RuleSet,
) *MemoryIndexManager {
	return &MemoryIndexManager{
		store:     store,
		facts:     factStore,
		rules:     rules,
		now:       time.Now,
		state:     newIndexState(),
		available: true,
	}
}

// SetClock overrides the time source. Intended for tests.
func (m *MemoryIndexManager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Subscribe registers a change listener.
func (m *MemoryIndexManager) Subscribe(listener driving.ChangeListener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, listener)
}

// SnapshotVersion is bumped on every ingest, remove and rebuild.
func (m *MemoryIndexManager) SnapshotVersion() uint64 {
	return m.version.Load()
}

// Load restores the index from the fact store, then reconciles it with the
// metadata store: facts of vanished records are pruned and every current
// record is ingested, so new and edited sidecars take effect. An empty fact
// store or a missing one triggers a full rebuild. A failed load leaves the
// index unavailable.
func (m *MemoryIndexManager) Load(ctx context.Context) error {
	if m.facts == nil {
		return m.RebuildAll(ctx)
	}

	logger.Section("Memory Index Load")
	stored, err := m.facts.LoadFacts(ctx)
	if err != nil {
		m.setAvailable(false)
		logger.Warn("Memory index load failed: %v", err)
		return fmt.Errorf("%w: load facts: %v", domain.ErrIndexUnavailable, err)
	}
	if len(stored) == 0 {
		logger.Debug("Fact store is empty, rebuilding")
		return m.RebuildAll(ctx)
	}

	state := newIndexState()
	var maxSeq uint64
	for _, sf := range stored {
		ref := sf.Fact.Ref()
		entry := &factEntry{contributions: make(map[string]domain.FactContribution, len(sf.Contributions))}
		for _, c := range sf.Contributions {
			entry.contributions[c.DocumentID] = c
			if state.records[c.DocumentID] == nil {
				state.records[c.DocumentID] = make(map[domain.FactRef]string)
			}
			state.records[c.DocumentID][ref] = c.Value
			if c.Seq > maxSeq {
				maxSeq = c.Seq
			}
		}
		if len(entry.contributions) > 0 {
			state.facts[ref] = entry
		}
	}

	m.mu.Lock()
	m.state = state
	m.seq = maxSeq
	m.available = true
	m.mu.Unlock()
	m.version.Add(1)
	logger.Debug("Loaded %d facts from %d records", len(state.facts), len(state.records))

	return m.reconcile(ctx)
}

// reconcile brings the loaded index in line with the metadata store.
// Unchanged records diff to no fact changes, so only new, edited and
// missing records cost a persist.
func (m *MemoryIndexManager) reconcile(ctx context.Context) error {
	records, err := m.store.List(ctx)
	if err != nil {
		m.setAvailable(false)
		logger.Error("Reconcile aborted, index unavailable: %v", err)
		return fmt.Errorf("%w: list records: %v", domain.ErrIndexUnavailable, err)
	}
	present := make(map[string]struct{}, len(records))
	for i := range records {
		present[records[i].ID] = struct{}{}
	}

	m.mu.RLock()
	var stale []string
	for id := range m.state.records {
		if _, ok := present[id]; !ok {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()
	sort.Strings(stale)

	failed := 0
	for _, id := range stale {
		logger.Debug("Pruning facts of missing record %s", id)
		if err := m.removeFacts(ctx, id, false); err != nil {
			logger.Warn("Pruning %s failed: %v", id, err)
			failed++
		}
	}

	skipped := 0
	for i := range records {
		if err := m.applyRecord(ctx, records[i]); err != nil {
			if errors.Is(err, domain.ErrMalformedRecord) {
				skipped++
				continue
			}
			logger.Warn("Reconciling %s failed: %v", records[i].ID, err)
			failed++
		}
	}

	logger.Info("Reconciled memory index: %d records, %d pruned, %d skipped, %d failed",
		len(records), len(stale), skipped, failed)
	if failed > 0 {
		return fmt.Errorf("reconcile: %d of %d records not applied", failed, len(records)+len(stale))
	}
	return nil
}

func (m *MemoryIndexManager) setAvailable(ok bool) {
	m.mu.Lock()
	m.available = ok
	m.mu.Unlock()
}

// Ingest extracts facts from a record and upserts them. The record joins
// the metadata store's view of the document set; the sidecar on disk is
// never rewritten.
func (m *MemoryIndexManager) Ingest(ctx context.Context, record domain.DocumentRecord) error {
	if err := record.Validate(); err != nil {
		logger.Warn("Skipping record: %v", err)
		return err
	}

	m.mu.RLock()
	available := m.available
	m.mu.RUnlock()
	if !available {
		return fmt.Errorf("ingest %s: %w", record.ID, domain.ErrIndexUnavailable)
	}

	documentsChanged, err := m.store.Track(ctx, record)
	if err != nil {
		return fmt.Errorf("ingest %s: track record: %w", record.ID, err)
	}
	return m.ingestFacts(ctx, record, documentsChanged)
}

// applyRecord ingests a record the metadata store already lists.
func (m *MemoryIndexManager) applyRecord(ctx context.Context, record domain.DocumentRecord) error {
	if err := record.Validate(); err != nil {
		logger.Warn("Skipping record: %v", err)
		return err
	}
	return m.ingestFacts(ctx, record, false)
}

func (m *MemoryIndexManager) ingestFacts(ctx context.Context, record domain.DocumentRecord, documentsChanged bool) error {
	m.mu.Lock()
	if !m.available {
		m.mu.Unlock()
		return fmt.Errorf("ingest %s: %w", record.ID, domain.ErrIndexUnavailable)
	}

	extracted := m.extract(&record)
	at := record.UpdatedAt
	if at.IsZero() {
		at = m.now()
	}

	previous := m.state.records[record.ID]
	changes := make(map[domain.FactRef]*factEntry)
	for ref := range previous {
		if _, keep := extracted[ref]; !keep {
			changes[ref] = m.withoutContribution(ref, record.ID, changes)
		}
	}
	for _, ref := range sortedRefs(extracted) {
		value := extracted[ref]
		if old, ok := previous[ref]; ok && old == value {
			continue
		}
		m.seq++
		changes[ref] = m.withContribution(ref, domain.FactContribution{
			DocumentID: record.ID,
			Value:      value,
			Seq:        m.seq,
			UpdatedAt:  at,
		}, changes)
	}

	if err := m.persist(ctx, changes); err != nil {
		m.mu.Unlock()
		logger.Warn("Ingest of %s not applied: %v", record.ID, err)
		if documentsChanged {
			// The document set moved even though the facts did not.
			m.version.Add(1)
			m.notify([]string{domain.BucketDocuments})
		}
		return fmt.Errorf("ingest %s: %w", record.ID, err)
	}
	m.apply(changes)
	m.state.records[record.ID] = extracted
	m.mu.Unlock()
	m.version.Add(1)

	affected := bucketsOf(changes)
	if documentsChanged {
		affected = append(affected, domain.BucketDocuments)
	}
	logger.Debug("Ingested %s: %d fact changes, buckets %v", record.ID, len(changes), affected)
	m.notify(affected)
	return nil
}

// IngestBatch ingests records in order. Failures never stop the batch.
func (m *MemoryIndexManager) IngestBatch(ctx context.Context, records []domain.DocumentRecord) (int, int) {
	var ingested, failed int
	for i := range records {
		if err := m.Ingest(ctx, records[i]); err != nil {
			failed++
			continue
		}
		ingested++
	}
	logger.Info("Batch ingest: %d ingested, %d failed", ingested, failed)
	return ingested, failed
}

// Remove deletes a record from the metadata store and strips it from
// every fact. A failed delete changes nothing.
func (m *MemoryIndexManager) Remove(ctx context.Context, recordID string) error {
	if strings.TrimSpace(recordID) == "" {
		return fmt.Errorf("remove: %w: empty record id", domain.ErrInvalidInput)
	}
	if err := m.store.Delete(ctx, recordID); err != nil {
		return fmt.Errorf("remove %s: delete record: %w", recordID, err)
	}
	return m.removeFacts(ctx, recordID, true)
}

func (m *MemoryIndexManager) removeFacts(ctx context.Context, recordID string, documentsChanged bool) error {
	m.mu.Lock()
	previous, known := m.state.records[recordID]
	changes := make(map[domain.FactRef]*factEntry)
	for _, ref := range sortedRefs(previous) {
		changes[ref] = m.withoutContribution(ref, recordID, changes)
	}

	if err := m.persist(ctx, changes); err != nil {
		m.mu.Unlock()
		logger.Warn("Removal of %s not applied: %v", recordID, err)
		if documentsChanged {
			m.version.Add(1)
			m.notify([]string{domain.BucketDocuments})
		}
		return fmt.Errorf("remove %s: %w", recordID, err)
	}
	m.apply(changes)
	delete(m.state.records, recordID)
	m.mu.Unlock()
	m.version.Add(1)

	affected := bucketsOf(changes)
	if documentsChanged || known {
		affected = append(affected, domain.BucketDocuments)
	}
	logger.Debug("Removed %s: %d fact changes", recordID, len(changes))
	m.notify(affected)
	return nil
}

// RebuildAll re-scans every record and replaces all buckets. The new state
// is built and persisted before it is swapped in, so a failure leaves the
// previous index intact.
func (m *MemoryIndexManager) RebuildAll(ctx context.Context) error {
	logger.Section("Memory Index Rebuild")

	records, err := m.store.Scan(ctx)
	if err != nil {
		logger.Error("Rebuild aborted: %v", err)
		return fmt.Errorf("rebuild: scan records: %w", err)
	}

	m.mu.RLock()
	now := m.now
	m.mu.RUnlock()

	state := newIndexState()
	var seq uint64
	skipped := 0
	for i := range records {
		rec := &records[i]
		if err := rec.Validate(); err != nil {
			logger.Warn("Skipping record: %v", err)
			skipped++
			continue
		}
		at := rec.UpdatedAt
		if at.IsZero() {
			at = now()
		}
		extracted := m.extract(rec)
		for _, ref := range sortedRefs(extracted) {
			seq++
			entry := state.facts[ref]
			if entry == nil {
				entry = &factEntry{contributions: make(map[string]domain.FactContribution)}
				state.facts[ref] = entry
			}
			entry.contributions[rec.ID] = domain.FactContribution{
				DocumentID: rec.ID,
				Value:      extracted[ref],
				Seq:        seq,
				UpdatedAt:  at,
			}
		}
		state.records[rec.ID] = extracted
	}

	if m.facts != nil {
		stored := make([]driven.StoredFact, 0, len(state.facts))
		for _, ref := range sortedFactRefs(state.facts) {
			stored = append(stored, state.facts[ref].stored(ref))
		}
		if err := m.facts.ReplaceAll(ctx, stored); err != nil {
			logger.Error("Rebuild aborted, previous index kept: %v", err)
			return fmt.Errorf("rebuild: persist facts: %w", err)
		}
	}

	m.mu.Lock()
	m.state = state
	m.seq = seq
	m.available = true
	m.mu.Unlock()
	m.version.Add(1)

	logger.Info("Rebuilt memory index: %d records, %d facts, %d skipped",
		len(state.records), len(state.facts), skipped)
	m.notify(append(m.rules.Buckets(), domain.BucketDocuments))
	return nil
}

// Query returns matching facts ordered by bucket and key.
func (m *MemoryIndexManager) Query(bucket string, predicate driving.FactPredicate) ([]domain.MemoryFact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.available {
		return nil, domain.ErrIndexUnavailable
	}

	out := make([]domain.MemoryFact, 0)
	for _, ref := range sortedFactRefs(m.state.facts) {
		if bucket != "" && ref.Bucket != bucket {
			continue
		}
		fact := m.state.facts[ref].fact(ref)
		if predicate == nil || predicate(&fact) {
			out = append(out, fact)
		}
	}
	return out, nil
}

// Stats summarises the index.
func (m *MemoryIndexManager) Stats() domain.IndexStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := domain.IndexStats{
		Version:   m.version.Load(),
		Records:   len(m.state.records),
		Buckets:   make(map[string]int),
		Available: m.available,
	}
	for _, b := range m.rules.Buckets() {
		stats.Buckets[b] = 0
	}
	for ref := range m.state.facts {
		stats.Buckets[ref.Bucket]++
	}
	return stats
}

// withContribution returns the next state of a fact with c added or replaced.
// Caller must hold the write lock.
func (m *MemoryIndexManager) withContribution(
	ref domain.FactRef, c domain.FactContribution, pending map[domain.FactRef]*factEntry,
) *factEntry {
	next := m.pendingEntry(ref, pending)
	if next == nil {
		next = &factEntry{contributions: make(map[string]domain.FactContribution)}
	}
	next.contributions[c.DocumentID] = c
	return next
}

// withoutContribution returns the next state of a fact with recordID's
// contribution removed, or nil when no sources remain.
// Caller must hold the write lock.
func (m *MemoryIndexManager) withoutContribution(
	ref domain.FactRef, recordID string, pending map[domain.FactRef]*factEntry,
) *factEntry {
	next := m.pendingEntry(ref, pending)
	if next == nil {
		return nil
	}
	delete(next.contributions, recordID)
	if len(next.contributions) == 0 {
		return nil
	}
	return next
}

func (m *MemoryIndexManager) pendingEntry(ref domain.FactRef, pending map[domain.FactRef]*factEntry) *factEntry {
	if entry, ok := pending[ref]; ok {
		return entry
	}
	if entry, ok := m.state.facts[ref]; ok {
		return entry.clone()
	}
	return nil
}

// persist writes a change set to the fact store. Caller must hold the write lock.
func (m *MemoryIndexManager) persist(ctx context.Context, changes map[domain.FactRef]*factEntry) error {
	if m.facts == nil || len(changes) == 0 {
		return nil
	}
	var upserts []driven.StoredFact
	var deletes []domain.FactRef
	for _, ref := range sortedFactRefs(changes) {
		if entry := changes[ref]; entry != nil {
			upserts = append(upserts, entry.stored(ref))
		} else {
			deletes = append(deletes, ref)
		}
	}
	if err := m.facts.SaveFacts(ctx, upserts, deletes); err != nil {
		return fmt.Errorf("persist facts: %w", err)
	}
	return nil
}

// apply installs a change set. Caller must hold the write lock.
func (m *MemoryIndexManager) apply(changes map[domain.FactRef]*factEntry) {
	for ref, entry := range changes {
		if entry == nil {
			delete(m.state.facts, ref)
			continue
		}
		m.state.facts[ref] = entry
	}
}

func (m *MemoryIndexManager) notify(buckets []string) {
	if len(buckets) == 0 {
		return
	}
	m.listenersMu.Lock()
	listeners := append([]driving.ChangeListener(nil), m.listeners...)
	m.listenersMu.Unlock()
	for _, l := range listeners {
		l(buckets)
	}
}

// bucketsOf returns the sorted buckets touched by a change set.
func bucketsOf(changes map[domain.FactRef]*factEntry) []string {
	seen := make(map[string]struct{})
	for ref := range changes {
		seen[ref.Bucket] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for b := range seen {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

func sortedRefs(m map[domain.FactRef]string) []domain.FactRef {
	refs := make([]domain.FactRef, 0, len(m))
	for ref := range m {
		refs = append(refs, ref)
	}
	sortFactRefs(refs)
	return refs
}

func sortedFactRefs(m map[domain.FactRef]*factEntry) []domain.FactRef {
	refs := make([]domain.FactRef, 0, len(m))
	for ref := range m {
		refs = append(refs, ref)
	}
	sortFactRefs(refs)
	return refs
}

func sortFactRefs(refs []domain.FactRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Bucket != refs[j].Bucket {
			return refs[i].Bucket < refs[j].Bucket
		}
		return refs[i].Key < refs[j].Key
	})
}
