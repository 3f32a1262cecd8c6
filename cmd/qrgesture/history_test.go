package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestHistory(t *testing.T) *HistoryStore {
	t.Helper()
	store, err := OpenHistoryStore(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestHistory_RecordAndRecent(t *testing.T) {
	store := openTestHistory(t)
	ctx := context.Background()

	recs := []DispatchRecord{
		{ID: uuid.New(), Kind: KindPlainText, Label: "Copy Text", Detail: "Text: a", OK: true, Message: "Text copied to clipboard.", StartedAt: t0, At: t0.Add(10 * time.Millisecond)},
		{ID: uuid.New(), Kind: KindWifiJoin, Label: "Connect to Wi-Fi", Detail: "SSID: Home", OK: false, Message: "Failed to connect to Home.", StartedAt: t0.Add(time.Second), At: t0.Add(2 * time.Second)},
		{ID: uuid.New(), Kind: KindPlainText, Label: "Copy Text", Detail: "Text: b", OK: true, Message: "Text copied to clipboard.", At: t0.Add(3 * time.Second)},
	}
	for _, r := range recs {
		require.NoError(t, store.Record(ctx, r))
	}

	got, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, recs[2].ID, got[0].ID, "newest first")
	assert.Equal(t, recs[1].ID, got[1].ID)
	assert.Equal(t, KindWifiJoin, got[1].Kind)
	assert.False(t, got[1].OK)
	assert.Equal(t, "SSID: Home", got[1].Detail)
	assert.True(t, recs[1].At.Equal(got[1].At))
	assert.True(t, recs[1].StartedAt.Equal(got[1].StartedAt))

	// A zero StartedAt is stored as the completion time.
	assert.True(t, got[0].StartedAt.Equal(recs[2].At))

	all, err := store.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestHistory_CountsByKind(t *testing.T) {
	store := openTestHistory(t)
	ctx := context.Background()

	for i, ok := range []bool{true, false, true} {
		require.NoError(t, store.Record(ctx, DispatchRecord{
			ID: uuid.New(), Kind: KindLink, Label: "Go to Link", OK: ok, Message: "m",
			At: t0.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, store.Record(ctx, DispatchRecord{ID: uuid.New(), Kind: KindEmail, Label: "Send Email", OK: false, Message: "m", At: t0}))

	counts, err := store.CountsByKind(ctx)
	require.NoError(t, err)
	assert.Equal(t, []KindCount{
		{Kind: KindEmail, Total: 1, Failures: 1},
		{Kind: KindLink, Total: 3, Failures: 1},
	}, counts)
}

func TestHistory_RejectsInvalidRecords(t *testing.T) {
	store := openTestHistory(t)
	ctx := context.Background()

	assert.Error(t, store.Record(ctx, DispatchRecord{Kind: KindLink, At: t0}), "nil id")
	assert.Error(t, store.Record(ctx, DispatchRecord{ID: uuid.New(), Kind: "bogus", At: t0}), "unknown kind")
	assert.Error(t, store.Record(ctx, DispatchRecord{ID: uuid.New(), Kind: KindLink}), "zero time")

	id := uuid.New()
	require.NoError(t, store.Record(ctx, DispatchRecord{ID: id, Kind: KindLink, Label: "Go to Link", Message: "m", At: t0}))
	assert.Error(t, store.Record(ctx, DispatchRecord{ID: id, Kind: KindLink, Label: "Go to Link", Message: "m", At: t0}), "duplicate id")
}

func TestHistory_ReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	store, err := OpenHistoryStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Record(ctx, DispatchRecord{ID: uuid.New(), Kind: KindSMS, Label: "Send SMS", OK: true, Message: "m", At: t0}))
	require.NoError(t, store.Close())

	store, err = OpenHistoryStore(path)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
