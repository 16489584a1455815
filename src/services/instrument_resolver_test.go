package services

import (
	"context"
	"sync"
	"testing"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/holdfolio/backend/src/model"
	"github.com/username/holdfolio/backend/src/models"
)

func TestResolveInstrument_CreatesOnceAndCaches(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	idCache := cache.New(cache.NoExpiration, 0)
	r := NewInstrumentResolver(db, idCache)

	id, err := r.ResolveInstrument(ctx, "reliance", "")
	require.NoError(t, err)
	again, err := r.ResolveInstrument(ctx, "RELIANCE", "NSE")
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, 1, idCache.ItemCount())

	bse, err := r.ResolveInstrument(ctx, "RELIANCE", "bse")
	require.NoError(t, err)
	assert.NotEqual(t, id, bse)

	inst, err := model.GetInstrumentByID(ctx, db, id)
	require.NoError(t, err)
	assert.Equal(t, "RELIANCE", inst.Symbol)
	assert.Equal(t, "NSE", inst.Exchange)
	assert.Equal(t, "RELIANCE", inst.Name)
	assert.Equal(t, "INR", inst.Currency)
	assert.Equal(t, "active", inst.Status)

	_, err = r.ResolveInstrument(ctx, "  ", "NSE")
	assert.Error(t, err)
}

func TestResolveInstrument_LosingCreateRaceRereads(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	existing := &models.Instrument{Symbol: "WIPRO", Exchange: "NSE", Name: "Wipro Ltd", Currency: "INR", Status: "active"}
	require.NoError(t, model.InsertInstrument(ctx, db, existing))

	r := NewInstrumentResolver(db, cache.New(cache.NoExpiration, 0)).(*instrumentResolverImpl)
	inst, err := r.create(ctx, "WIPRO", "NSE")

	require.NoError(t, err)
	assert.Equal(t, existing.ID, inst.ID)
	assert.Equal(t, "Wipro Ltd", inst.Name)
}

func TestResolveInstrument_ConcurrentImportsAgree(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	const workers = 8
	ids := make([]int64, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Separate caches so every worker goes to the database.
			r := NewInstrumentResolver(db, cache.New(cache.NoExpiration, 0))
			ids[i], errs[i] = r.ResolveInstrument(ctx, "SBIN", "NSE")
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
}
