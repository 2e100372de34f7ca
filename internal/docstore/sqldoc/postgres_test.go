package sqldoc

import (
	"context"
	"os"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/fgsamples/internal/db"
	"github.com/vbonduro/fgsamples/internal/docstore"
)

func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	d, err := db.OpenPostgres(dsn)
	require.NoError(t, err)
	s := New(d, db.DriverPostgres)
	t.Cleanup(func() { assert.NoError(t, s.Close()) })

	ctx := context.Background()
	coll := "sites/pg" + ulid.Make().String() + "/fg_samples/delish/samples"

	require.NoError(t, s.Set(ctx, coll+"/choc_bar_998877", docstore.Fields{"description": "Choc Bar", "barcode": "998877"}))
	require.NoError(t, s.Set(ctx, coll+"/wafer_112233", docstore.Fields{"description": "Wafer", "barcode": "112233"}))
	require.NoError(t, s.Update(ctx, coll+"/choc_bar_998877", docstore.Fields{"status": "Taken", "timestamp": docstore.ServerTimestamp}))

	doc, err := s.Get(ctx, coll+"/choc_bar_998877")
	require.NoError(t, err)
	assert.Equal(t, "Taken", doc.String("status"))
	assert.False(t, doc.Time("timestamp").IsZero())

	docs, err := s.List(ctx, coll)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "choc_bar_998877", docs[0].ID)

	docs, err = s.Query(ctx, coll, docstore.Range("barcode", "11", docstore.PrefixEnd("11")))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "wafer_112233", docs[0].ID)
}
