// Package storagetest provides a conformance suite shared by every
// storage.TokenStore implementation.
package storagetest

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/occasio/occasio/storage"
)

// Run exercises store against the TokenStore contract. The store must be
// empty when Run is called.
func Run(t *testing.T, store storage.TokenStore) {
	t.Helper()

	t.Run("SetAndGet", func(t *testing.T) {
		require.NoError(t, store.Set(storage.KeyAccess, "acc-1"))
		got, err := store.Get(storage.KeyAccess)
		require.NoError(t, err)
		assert.Equal(t, "acc-1", got)
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := store.Get("no-such-key")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("LookupMissing", func(t *testing.T) {
		v, err := storage.Lookup(store, "no-such-key")
		require.NoError(t, err)
		assert.Empty(t, v)
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, store.Set(storage.KeyRefresh, "ref-v1"))
		require.NoError(t, store.Set(storage.KeyRefresh, "ref-v2"))
		got, err := store.Get(storage.KeyRefresh)
		require.NoError(t, err)
		assert.Equal(t, "ref-v2", got)
	})

	t.Run("DeleteMany", func(t *testing.T) {
		require.NoError(t, store.Set(storage.KeyAccess, "a"))
		require.NoError(t, store.Set(storage.KeyRefresh, "r"))
		require.NoError(t, store.Set(storage.KeyUser, `{"id":1}`))

		require.NoError(t, store.Delete(storage.SessionKeys...))
		for _, k := range storage.SessionKeys {
			_, err := store.Get(k)
			assert.ErrorIs(t, err, storage.ErrNotFound, k)
		}
	})

	t.Run("DeleteMissing", func(t *testing.T) {
		assert.NoError(t, store.Delete("never-existed"))
	})

	t.Run("ConcurrentWriters", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = store.Set(storage.KeyAccess, fmt.Sprintf("acc-%d", i))
			}(i)
		}
		wg.Wait()
		got, err := store.Get(storage.KeyAccess)
		require.NoError(t, err)
		assert.Regexp(t, `^acc-\d+$`, got)
	})
}
