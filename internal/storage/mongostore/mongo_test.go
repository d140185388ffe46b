package mongostore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vanishbin/internal/storage"
	"vanishbin/internal/storage/storetest"
)

// The contract suite needs a live server; point VANISHBIN_TEST_MONGO_URI at
// one (e.g. mongodb://localhost:27017) to run it.
func TestStoreContract(t *testing.T) {
	uri := os.Getenv("VANISHBIN_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("VANISHBIN_TEST_MONGO_URI not set")
	}

	storetest.Run(t, func(t *testing.T) storage.Store {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store, err := Open(ctx, uri, "vanishbin_test", "pastes_"+xid.New().String())
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = store.collection.Drop(context.Background())
			store.Close()
		})
		return store
	})
}

func TestDocumentOmitsAbsentFields(t *testing.T) {
	p := storetest.Sample("doc")
	p.MaxViews = 0
	doc := toDocument(p)
	assert.Nil(t, doc.ExpiresAt)
	assert.Zero(t, doc.MaxViews)

	p.ExpiresAt = p.CreatedAt.Add(time.Minute)
	doc = toDocument(p)
	require.NotNil(t, doc.ExpiresAt)
	assert.True(t, doc.ExpiresAt.Equal(p.ExpiresAt))

	back := doc.paste()
	assert.Equal(t, p.ID, back.ID)
	assert.True(t, back.ExpiresAt.Equal(p.ExpiresAt))
	assert.Equal(t, 60, back.TTLSeconds)
}
