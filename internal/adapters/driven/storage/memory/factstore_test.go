package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docmind/internal/core/domain"
	"github.com/custodia-labs/docmind/internal/core/ports/driven"
)

func storedFact(bucket, key, value string, docs ...string) driven.StoredFact {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	sf := driven.StoredFact{Fact: domain.MemoryFact{
		Bucket: bucket, Key: key, Value: value, SourceDocumentIDs: docs, LastUpdated: now,
	}}
	for i, d := range docs {
		sf.Contributions = append(sf.Contributions, domain.FactContribution{
			DocumentID: d, Value: value, Seq: uint64(i + 1), UpdatedAt: now,
		})
	}
	return sf
}

func TestFactStore_SaveAndLoad(t *testing.T) {
	store := NewFactStore()
	ctx := context.Background()

	err := store.SaveFacts(ctx, []driven.StoredFact{
		storedFact("people", "Bo Ren", "Investor", "doc1"),
		storedFact("company", "ein_number", "85-0989775", "doc1", "doc2"),
	}, nil)
	require.NoError(t, err)

	facts, err := store.LoadFacts(ctx)
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, "company", facts[0].Fact.Bucket)
	assert.Equal(t, []string{"doc1", "doc2"}, facts[0].Fact.SourceDocumentIDs)
	assert.Len(t, facts[0].Contributions, 2)
	assert.Equal(t, "people", facts[1].Fact.Bucket)
	assert.Equal(t, 1, store.Saves())
}

func TestFactStore_Deletes(t *testing.T) {
	store := NewFactStore()
	ctx := context.Background()

	require.NoError(t, store.SaveFacts(ctx, []driven.StoredFact{
		storedFact("people", "Bo Ren", "Investor", "doc1"),
	}, nil))
	require.NoError(t, store.SaveFacts(ctx, nil, []domain.FactRef{{Bucket: "people", Key: "Bo Ren"}}))

	facts, err := store.LoadFacts(ctx)
	require.NoError(t, err)
	assert.Empty(t, facts)
}

func TestFactStore_ReplaceAll(t *testing.T) {
	store := NewFactStore()
	ctx := context.Background()

	require.NoError(t, store.SaveFacts(ctx, []driven.StoredFact{
		storedFact("people", "Old Name", "Signer", "doc0"),
	}, nil))
	require.NoError(t, store.ReplaceAll(ctx, []driven.StoredFact{
		storedFact("tags", "safe", "safe.pdf", "doc1"),
	}))

	facts, err := store.LoadFacts(ctx)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "safe", facts[0].Fact.Key)
}

func TestFactStore_InjectedFailures(t *testing.T) {
	store := NewFactStore()
	ctx := context.Background()
	boom := errors.New("write failed")

	require.NoError(t, store.SaveFacts(ctx, []driven.StoredFact{
		storedFact("people", "Bo Ren", "Investor", "doc1"),
	}, nil))

	store.FailSave(boom)
	assert.ErrorIs(t, store.SaveFacts(ctx, nil, nil), boom)
	assert.ErrorIs(t, store.ReplaceAll(ctx, nil), boom)

	facts, err := store.LoadFacts(ctx)
	require.NoError(t, err)
	assert.Len(t, facts, 1, "failed writes must not change contents")

	store.FailLoad(boom)
	_, err = store.LoadFacts(ctx)
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, store.Close())
}
