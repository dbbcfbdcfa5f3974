package services

import (
	"sync"
	"time"

	"github.com/custodia-labs/docmind/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/docmind/internal/core/domain"
	"github.com/custodia-labs/docmind/internal/core/ports/driven"
)

var (
	t0 = time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	t1 = time.Date(2024, 2, 20, 9, 0, 0, 0, time.UTC)
	t2 = time.Date(2024, 3, 30, 9, 0, 0, 0, time.UTC)
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(at time.Time) *fakeClock {
	return &fakeClock{now: at}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func einRecord() domain.DocumentRecord {
	return domain.DocumentRecord{
		ID:            "Corporate_Governance/certificate.pdf",
		Filename:      "certificate.pdf",
		Category:      domain.CategoryCorporateGovernance,
		Status:        domain.StatusExecuted,
		CriticalFacts: map[string]string{"ein_number": "85-0989775"},
		UpdatedAt:     t0,
	}
}

func boRenRecord() domain.DocumentRecord {
	return domain.DocumentRecord{
		ID:             "Investment_Fundraising/safe-bo-ren.pdf",
		Filename:       "safe-bo-ren.pdf",
		Category:       domain.CategoryInvestment,
		Status:         domain.StatusExecuted,
		PrimaryParties: []domain.Party{{Name: "Bo Ren", Role: "Investor"}},
		ContractValue:  "$25,000",
		UpdatedAt:      t1,
	}
}

func anaLiRecord() domain.DocumentRecord {
	return domain.DocumentRecord{
		ID:             "Investment_Fundraising/safe-ana-li.pdf",
		Filename:       "safe-ana-li.pdf",
		Category:       domain.CategoryInvestment,
		Status:         domain.StatusExecuted,
		PrimaryParties: []domain.Party{{Name: "Ana Li", Role: "Investor"}},
		ContractValue:  "$50,000",
		UpdatedAt:      t2,
	}
}

// newTestIndex returns an index over an in-memory record store with a fixed clock.
func newTestIndex(records ...domain.DocumentRecord) (*MemoryIndexManager, *memory.RecordStore, *fakeClock) {
	store := memory.NewRecordStore(records...)
	idx := NewMemoryIndexManager(store, nil, domain.DefaultRuleSet())
	clock := newFakeClock(t2.Add(time.Hour))
	idx.SetClock(clock.Now)
	return idx, store, clock
}

func storedFacts(stored []driven.StoredFact) []domain.MemoryFact {
	out := make([]domain.MemoryFact, 0, len(stored))
	for _, sf := range stored {
		out = append(out, sf.Fact)
	}
	return out
}

func factsByRef(facts []domain.MemoryFact) map[domain.FactRef]domain.MemoryFact {
	out := make(map[domain.FactRef]domain.MemoryFact, len(facts))
	for _, f := range facts {
		out[f.Ref()] = f
	}
	return out
}
