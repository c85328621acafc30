package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreUpdateDiscardsOnError(t *testing.T) {
	stores := map[string]Store{
		"memory":  NewMemoryStore(),
		"leveldb": newLevelDBTestStore(t),
	}
	for name, s := range stores {
		s := s
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			boom := errors.New("boom")

			err := s.Update(ctx, func(tx Tx) error {
				require.NoError(t, tx.PutProvider(Provider{Address: "provider1", Resources: 1}))
				require.NoError(t, tx.SetLastJobID(7))

				// staged writes are visible inside the transaction
				p, ok, err := tx.Provider("provider1")
				require.NoError(t, err)
				require.True(t, ok)
				assert.Equal(t, uint64(1), p.Resources)
				return boom
			})
			assert.Same(t, boom, err)

			err = s.View(ctx, func(tx Tx) error {
				_, ok, err := tx.Provider("provider1")
				require.NoError(t, err)
				assert.False(t, ok)
				id, err := tx.LastJobID()
				require.NoError(t, err)
				assert.Zero(t, id)
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestStoreViewIsReadOnly(t *testing.T) {
	stores := map[string]Store{
		"memory":  NewMemoryStore(),
		"leveldb": newLevelDBTestStore(t),
	}
	for name, s := range stores {
		s := s
		t.Run(name, func(t *testing.T) {
			err := s.View(context.Background(), func(tx Tx) error {
				return tx.PutConsumer(Consumer{Address: "consumer1"})
			})
			assert.ErrorIs(t, err, ErrReadOnly)
		})
	}
}

func TestLevelDBStorePersists(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "ledger")

	s, err := OpenLevelDBStore(dir)
	require.NoError(t, err)
	l := New(s)
	require.NoError(t, l.RegisterProvider(ctx, "provider1", 1000, 10))
	require.NoError(t, l.AddFunds(ctx, "consumer1", 1000))
	_, err = l.RequestCompute(ctx, "consumer1", "provider1", 50)
	require.NoError(t, err)
	want, err := l.Snapshot(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = OpenLevelDBStore(dir)
	require.NoError(t, err)
	defer s.Close()
	l = New(s)

	got, err := l.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	jobID, err := l.RequestCompute(ctx, "consumer1", "provider1", 50)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), jobID)
}
