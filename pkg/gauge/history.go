package gauge

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// HistoryStore provides append-only operations on the relationship ledger.
// Entries are written by the relationship and cascade services inside the
// transaction that performs the change they record; nothing ever updates
// or deletes them.
type HistoryStore struct {
	db *gorm.DB
}

// NewHistoryStore creates a new HistoryStore.
func NewHistoryStore(db *gorm.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// Append writes one ledger entry inside the caller's transaction.
func (s *HistoryStore) Append(tx *gorm.DB, entry *HistoryRecord) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("append history entry: %w", err)
	}
	return nil
}

// ListByGauge returns paginated ledger entries touching a gauge, newest
// first. pageToken is an RFC3339 timestamp; entries older than it are
// returned. Pass "" for the first page.
func (s *HistoryStore) ListByGauge(gaugeID string, pageSize int, pageToken string) ([]HistoryRecord, string, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	query := s.db.
		Where("gauge_id = ? OR companion_id = ?", gaugeID, gaugeID).
		Order("created_at DESC").
		Limit(pageSize + 1)
	if pageToken != "" {
		t, err := time.Parse(time.RFC3339Nano, pageToken)
		if err != nil {
			return nil, "", fmt.Errorf("invalid page token: %w", err)
		}
		query = query.Where("created_at < ?", t)
	}

	var records []HistoryRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, "", fmt.Errorf("list history by gauge: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = records[pageSize-1].CreatedAt.Format(time.RFC3339Nano)
		records = records[:pageSize]
	}

	return records, nextToken, nil
}

// CountByAction returns how many ledger entries carry the given action.
// Used by reporting tooling.
func (s *HistoryStore) CountByAction(action Action) (int64, error) {
	var count int64
	if err := s.db.Model(&HistoryRecord{}).Where("action = ?", action).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count history entries: %w", err)
	}
	return count, nil
}
