package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/fgsamples/internal/db"
	"github.com/vbonduro/fgsamples/internal/docstore"
	"github.com/vbonduro/fgsamples/internal/docstore/sqldoc"
	"github.com/vbonduro/fgsamples/internal/domain"
)

func openTestDocstore(t *testing.T) docstore.Store {
	t.Helper()
	d, err := db.OpenForTesting()
	require.NoError(t, err)
	ds := sqldoc.New(d, db.DriverSQLite)
	t.Cleanup(func() { _ = ds.Close() })
	return ds
}

func newSample(brand, description, barcode string) *domain.Sample {
	return &domain.Sample{
		Ref:         domain.Ref{Site: "kajang", Brand: domain.Normalize(brand), Key: domain.Key(description, barcode)},
		Brand:       brand,
		MFG:         "ABC123",
		BatchNumber: "B77",
		PackSize:    "24x50g",
		Barcode:     barcode,
		Description: description,
		ImageURL:    "/photos/x.jpg",
		SampleDate:  "2025-04-01",
		By:          "J DOE",
		UploadedAt:  time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestSampleStorePutAndGet(t *testing.T) {
	store := NewSampleStore(openTestDocstore(t))
	ctx := context.Background()
	s := newSample("Delish", "Choc Bar", "998877")

	require.NoError(t, store.UpsertBrand(ctx, "kajang", s.Ref.Brand))
	require.NoError(t, store.Put(ctx, s.Ref, CreateFields(s)))

	got, err := store.Get(ctx, s.Ref)
	require.NoError(t, err)
	assert.Equal(t, s.Ref, got.Ref)
	assert.Equal(t, "Choc Bar", got.Description)
	assert.Equal(t, "998877", got.Barcode)
	assert.Equal(t, domain.StatusAvailable, got.Status)
	assert.True(t, s.UploadedAt.Equal(got.UploadedAt))
}

func TestSampleStoreGetNotFound(t *testing.T) {
	store := NewSampleStore(openTestDocstore(t))

	_, err := store.Get(context.Background(), domain.Ref{Site: "kajang", Brand: "delish", Key: "nope"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSampleStoreListBrandsAndSamples(t *testing.T) {
	store := NewSampleStore(openTestDocstore(t))
	ctx := context.Background()

	for _, s := range []*domain.Sample{
		newSample("Delish", "Wafer", "2"),
		newSample("Delish", "Choc Bar", "1"),
		newSample("Crunchy Co", "Chips", "3"),
	} {
		require.NoError(t, store.UpsertBrand(ctx, "kajang", s.Ref.Brand))
		require.NoError(t, store.Put(ctx, s.Ref, CreateFields(s)))
	}
	// A different site must stay invisible.
	other := newSample("Delish", "Other", "9")
	other.Ref.Site = "subang"
	require.NoError(t, store.UpsertBrand(ctx, "subang", other.Ref.Brand))
	require.NoError(t, store.Put(ctx, other.Ref, CreateFields(other)))

	brands, err := store.ListBrands(ctx, "kajang")
	require.NoError(t, err)
	assert.Equal(t, []string{"crunchy_co", "delish"}, brands)

	samples, err := store.ListByBrand(ctx, "kajang", "delish")
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, "choc_bar_1", samples[0].ID())
	assert.Equal(t, "wafer_2", samples[1].ID())
}

func TestSampleStoreFindDuplicates(t *testing.T) {
	store := NewSampleStore(openTestDocstore(t))
	ctx := context.Background()
	s := newSample("Delish", "Choc Bar", "998877")
	require.NoError(t, store.Put(ctx, s.Ref, CreateFields(s)))

	dups, err := store.FindDuplicates(ctx, "kajang", "delish", "Choc Bar", "998877")
	require.NoError(t, err)
	assert.Len(t, dups, 1)

	dups, err = store.FindDuplicates(ctx, "kajang", "delish", "choc bar", "998877")
	require.NoError(t, err)
	assert.Empty(t, dups, "duplicate check is exact")
}

func TestSampleStoreFindByBarcodePrefix(t *testing.T) {
	store := NewSampleStore(openTestDocstore(t))
	ctx := context.Background()
	for _, s := range []*domain.Sample{
		newSample("Delish", "Choc Bar", "998877"),
		newSample("Delish", "Wafer", "998800"),
		newSample("Delish", "Chips", "123"),
	} {
		require.NoError(t, store.Put(ctx, s.Ref, CreateFields(s)))
	}

	hits, err := store.FindByBarcodePrefix(ctx, "kajang", "delish", "9988")
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestSampleStoreMergeAndUpdate(t *testing.T) {
	store := NewSampleStore(openTestDocstore(t))
	ctx := context.Background()
	s := newSample("Delish", "Choc Bar", "998877")
	require.NoError(t, store.Put(ctx, s.Ref, CreateFields(s)))

	require.NoError(t, store.Update(ctx, s.Ref, docstore.Fields{FieldStatus: "Taken", FieldTakenBy: "J DOE"}))
	s.MFG = "NEW"
	require.NoError(t, store.Merge(ctx, s.Ref, EditFields(s, time.Now())))

	got, err := store.Get(ctx, s.Ref)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTaken, got.Status)
	assert.Equal(t, "J DOE", got.TakenBy)
	assert.Equal(t, "NEW", got.MFG)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestSampleStoreUpdateNotFound(t *testing.T) {
	store := NewSampleStore(openTestDocstore(t))

	err := store.Update(context.Background(), domain.Ref{Site: "kajang", Brand: "delish", Key: "nope"},
		docstore.Fields{FieldStatus: "Taken"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSampleStorePutOverwrites(t *testing.T) {
	store := NewSampleStore(openTestDocstore(t))
	ctx := context.Background()
	s := newSample("Delish", "Choc Bar", "998877")
	require.NoError(t, store.Put(ctx, s.Ref, CreateFields(s)))
	require.NoError(t, store.Update(ctx, s.Ref, docstore.Fields{FieldTakenBy: "J DOE"}))

	require.NoError(t, store.Put(ctx, s.Ref, CreateFields(s)))

	got, err := store.Get(ctx, s.Ref)
	require.NoError(t, err)
	assert.Empty(t, got.TakenBy)
}
