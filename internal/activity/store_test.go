package activity

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRecordAndList(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "activity.db"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	acct := "0x592B35c8917eD36c39Ef73D0F5e92B0173560b2e"
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, Entry{ID: "a1", Account: acct, Action: "mint", Status: "pending", CreatedAt: base}))
	require.NoError(t, s.Record(ctx, Entry{
		ID: "a1", Account: acct, Action: "mint", Status: "success",
		TxHashes: []string{"0xabc"}, TokenID: "7", Message: "Minted token #7",
		CreatedAt: base, UpdatedAt: base.Add(time.Minute),
	}))
	require.NoError(t, s.Record(ctx, Entry{ID: "a2", Account: acct, Action: "buy", Status: "error", Error: "Transaction rejected by user", CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, s.Record(ctx, Entry{ID: "b1", Account: "0x0000000000000000000000000000000000000001", Action: "list", Status: "success", CreatedAt: base}))

	list, err := s.List(ctx, acct, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a2", list[0].ID, "newest first")
	assert.Equal(t, "success", list[1].Status)
	assert.Equal(t, []string{"0xabc"}, list[1].TxHashes)
	assert.Equal(t, "7", list[1].TokenID)
	assert.Equal(t, base, list[1].CreatedAt)

	all, err := s.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	e, err := s.Get(ctx, "a2")
	require.NoError(t, err)
	assert.Equal(t, "Transaction rejected by user", e.Error)
	assert.Empty(t, e.TxHashes)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(" ")
	assert.Error(t, err)
}
