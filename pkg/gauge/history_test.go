package gauge

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryStore_AppendFillsID(t *testing.T) {
	db := newTestDB(t)
	store := NewHistoryStore(db)

	entry := &HistoryRecord{
		Action:      ActionPaired,
		GaugeID:     "TR0001A",
		CompanionID: "TR0001B",
		Actor:       "alice",
		Metadata:    JSONMap{"location": "A-01"},
	}
	require.NoError(t, store.Append(db, entry))
	assert.NotEmpty(t, entry.ID)

	var got HistoryRecord
	require.NoError(t, db.First(&got, "id = ?", entry.ID).Error)
	assert.Equal(t, ActionPaired, got.Action)
	assert.Equal(t, "alice", got.Actor)
	assert.Equal(t, JSONMap{"location": "A-01"}, got.Metadata)
}

func TestHistoryStore_ListByGauge_EitherSide(t *testing.T) {
	db := newTestDB(t)
	store := NewHistoryStore(db)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []*HistoryRecord{
		{Action: ActionPaired, GaugeID: "TR0001A", CompanionID: "TR0001B", Actor: "alice", CreatedAt: base},
		{Action: ActionCascadedStatus, GaugeID: "TR0001B", CompanionID: "TR0001A", Actor: "bob", CreatedAt: base.Add(time.Second)},
		{Action: ActionPaired, GaugeID: "TR0002A", CompanionID: "TR0002B", Actor: "carol", CreatedAt: base.Add(2 * time.Second)},
	}
	for _, e := range entries {
		require.NoError(t, store.Append(db, e))
	}

	// Both entries touching TR0001A surface, newest first.
	got, nextToken, err := store.ListByGauge("TR0001A", 10, "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Empty(t, nextToken)
	assert.Equal(t, ActionCascadedStatus, got[0].Action)
	assert.Equal(t, ActionPaired, got[1].Action)
}

func TestHistoryStore_ListByGauge_Pagination(t *testing.T) {
	db := newTestDB(t)
	store := NewHistoryStore(db)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		entry := &HistoryRecord{
			Action:    ActionCascadedLocation,
			GaugeID:   "TR0001A",
			Actor:     "alice",
			Metadata:  JSONMap{"location": fmt.Sprintf("A-%02d", i)},
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, store.Append(db, entry))
	}

	var pages int
	var seen int
	token := ""
	for {
		got, next, err := store.ListByGauge("TR0001A", 10, token)
		require.NoError(t, err)
		pages++
		seen += len(got)
		for i := 1; i < len(got); i++ {
			assert.True(t, got[i].CreatedAt.Before(got[i-1].CreatedAt))
		}
		if next == "" {
			break
		}
		token = next
	}
	assert.Equal(t, 3, pages)
	assert.Equal(t, 25, seen)
}

func TestHistoryStore_ListByGauge_BadToken(t *testing.T) {
	db := newTestDB(t)
	store := NewHistoryStore(db)

	_, _, err := store.ListByGauge("TR0001A", 10, "not-a-timestamp")
	require.Error(t, err)
}

func TestHistoryStore_CountByAction(t *testing.T) {
	db := newTestDB(t)
	store := NewHistoryStore(db)

	require.NoError(t, store.Append(db, &HistoryRecord{Action: ActionOrphaned, GaugeID: "TR0001B", Actor: "alice"}))
	require.NoError(t, store.Append(db, &HistoryRecord{Action: ActionOrphaned, GaugeID: "TR0002B", Actor: "alice"}))
	require.NoError(t, store.Append(db, &HistoryRecord{Action: ActionPaired, GaugeID: "TR0003A", Actor: "alice"}))

	count, err := store.CountByAction(ActionOrphaned)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
