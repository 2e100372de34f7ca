package sqldoc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vbonduro/fgsamples/internal/db"
	"github.com/vbonduro/fgsamples/internal/docstore"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
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

func openTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	d, err := db.OpenForTesting()
	require.NoError(t, err)
	clock := &fakeClock{now: time.Date(2025, 4, 8, 9, 0, 0, 0, time.UTC)}
	s := New(d, db.DriverSQLite, WithClock(clock.Now))
	t.Cleanup(func() { assert.NoError(t, s.Close()) })
	return s, clock
}

const samples = "sites/kajang/fg_samples/delish/samples"

func TestSetAndGet(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	uploaded := time.Date(2025, 4, 1, 8, 30, 0, 0, time.UTC)

	err := s.Set(ctx, samples+"/choc_bar_998877", docstore.Fields{
		"description": "Choc Bar",
		"barcode":     "998877",
		"uploadedAt":  uploaded,
	})
	require.NoError(t, err)

	doc, err := s.Get(ctx, samples+"/choc_bar_998877")
	require.NoError(t, err)
	assert.Equal(t, "choc_bar_998877", doc.ID)
	assert.Equal(t, "Choc Bar", doc.String("description"))
	assert.True(t, uploaded.Equal(doc.Time("uploadedAt")))
}

func TestGetNotFound(t *testing.T) {
	s, _ := openTestStore(t)

	_, err := s.Get(context.Background(), samples+"/missing")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestSetOverwriteReplacesDocument(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	path := samples + "/choc_bar_998877"

	require.NoError(t, s.Set(ctx, path, docstore.Fields{"description": "Choc Bar", "takenBy": "J DOE"}))
	require.NoError(t, s.Set(ctx, path, docstore.Fields{"description": "Choc Bar"}))

	doc, err := s.Get(ctx, path)
	require.NoError(t, err)
	_, ok := doc.Fields["takenBy"]
	assert.False(t, ok)
}

func TestSetMergeKeepsExistingFields(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	path := samples + "/choc_bar_998877"

	require.NoError(t, s.Set(ctx, path, docstore.Fields{"description": "Choc Bar", "takenBy": "J DOE"}))
	require.NoError(t, s.Set(ctx, path, docstore.Fields{"mfg": "ABC123"}, docstore.Merge()))

	doc, err := s.Get(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "J DOE", doc.String("takenBy"))
	assert.Equal(t, "ABC123", doc.String("mfg"))
}

func TestSetMergeCreatesMissingDocument(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "sites/kajang/fg_samples/delish", docstore.Fields{"brand": "delish"}, docstore.Merge()))

	doc, err := s.Get(ctx, "sites/kajang/fg_samples/delish")
	require.NoError(t, err)
	assert.Equal(t, "delish", doc.String("brand"))
}

func TestUpdate(t *testing.T) {
	s, clock := openTestStore(t)
	ctx := context.Background()
	path := samples + "/choc_bar_998877"

	require.NoError(t, s.Set(ctx, path, docstore.Fields{"description": "Choc Bar", "status": "Available"}))

	clock.Advance(time.Hour)
	require.NoError(t, s.Update(ctx, path, docstore.Fields{"status": "Taken", "timestamp": docstore.ServerTimestamp}))

	doc, err := s.Get(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "Taken", doc.String("status"))
	assert.Equal(t, "Choc Bar", doc.String("description"))
	assert.True(t, time.Date(2025, 4, 8, 10, 0, 0, 0, time.UTC).Equal(doc.Time("timestamp")))
}

func TestUpdateMissingDocument(t *testing.T) {
	s, _ := openTestStore(t)

	err := s.Update(context.Background(), samples+"/missing", docstore.Fields{"status": "Taken"})
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestServerTimestampAdvancesOnEveryWrite(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	path := samples + "/choc_bar_998877"

	require.NoError(t, s.Set(ctx, path, docstore.Fields{"timestamp": docstore.ServerTimestamp}))
	first, err := s.Get(ctx, path)
	require.NoError(t, err)

	// The fake clock is frozen; the store must still move forward.
	require.NoError(t, s.Update(ctx, path, docstore.Fields{"timestamp": docstore.ServerTimestamp}))
	second, err := s.Get(ctx, path)
	require.NoError(t, err)

	assert.True(t, second.Time("timestamp").After(first.Time("timestamp")))
}

func TestListOrdersByIDAndStaysInCollection(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, samples+"/b", docstore.Fields{"description": "B"}))
	require.NoError(t, s.Set(ctx, samples+"/a", docstore.Fields{"description": "A"}))
	require.NoError(t, s.Set(ctx, "sites/kajang/fg_samples/other/samples/c", docstore.Fields{"description": "C"}))

	docs, err := s.List(ctx, samples)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].ID)
	assert.Equal(t, "b", docs[1].ID)
}

func TestQueryEqual(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, samples+"/one", docstore.Fields{"description": "Choc Bar", "barcode": "998877"}))
	require.NoError(t, s.Set(ctx, samples+"/two", docstore.Fields{"description": "Choc Bar", "barcode": "111"}))

	docs, err := s.Query(ctx, samples,
		docstore.Equal("description", "Choc Bar"),
		docstore.Equal("barcode", "998877"),
	)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "one", docs[0].ID)
}

func TestQueryPrefixRange(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, samples+"/one", docstore.Fields{"barcode": "998877"}))
	require.NoError(t, s.Set(ctx, samples+"/two", docstore.Fields{"barcode": "998800"}))
	require.NoError(t, s.Set(ctx, samples+"/three", docstore.Fields{"barcode": "123456"}))

	docs, err := s.Query(ctx, samples, docstore.Range("barcode", "9988", docstore.PrefixEnd("9988")))
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestQueryRejectsBadField(t *testing.T) {
	s, _ := openTestStore(t)

	_, err := s.Query(context.Background(), samples, docstore.Equal("x') OR 1=1 --", "y"))
	assert.Error(t, err)
}

func TestPathWithSlashInKey(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	path := docstore.Join("sites", "kajang", "fg_samples", "delish", "samples", "choc_1/2_bar")

	require.NoError(t, s.Set(ctx, path, docstore.Fields{"description": "Choc 1/2 Bar"}))

	docs, err := s.List(ctx, samples)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "choc_1/2_bar", docs[0].ID)
}
