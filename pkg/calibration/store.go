package calibration

import (
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/toolcrib/gaugetrack/pkg/gauge"
)

// BatchStore provides persistence for calibration batches and their
// membership rows.
type BatchStore struct {
	db *gorm.DB
}

// NewBatchStore creates a new BatchStore.
func NewBatchStore(db *gorm.DB) *BatchStore {
	return &BatchStore{db: db}
}

// AutoMigrate creates or updates the calibration tables.
func (s *BatchStore) AutoMigrate() error {
	for _, model := range []any{&BatchRecord{}, &BatchMemberRecord{}, &CertificateRecord{}} {
		if err := s.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("auto-migrate calibration tables: %w", err)
		}
	}
	return nil
}

// Create persists a new batch in pending_send.
func (s *BatchStore) Create(rec *BatchRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Status == "" {
		rec.Status = BatchPendingSend
	}
	if err := s.db.Create(rec).Error; err != nil {
		return fmt.Errorf("create calibration batch: %w", err)
	}
	return nil
}

// Get retrieves a batch by id.
func (s *BatchStore) Get(id string) (*BatchRecord, error) {
	var rec BatchRecord
	if err := s.db.First(&rec, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, gauge.NewError(gauge.CodeNotFound, "", "calibration batch "+id+" not found")
		}
		return nil, fmt.Errorf("get calibration batch: %w", err)
	}
	return &rec, nil
}

// GetForUpdate retrieves a batch under a row lock inside tx.
func (s *BatchStore) GetForUpdate(tx *gorm.DB, id string) (*BatchRecord, error) {
	var rec BatchRecord
	err := gauge.WithRowLock(tx).First(&rec, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, gauge.NewError(gauge.CodeNotFound, "", "calibration batch "+id+" not found")
		}
		return nil, fmt.Errorf("lock calibration batch: %w", err)
	}
	return &rec, nil
}

// AddMember inserts a membership row. Duplicate membership is rejected.
func (s *BatchStore) AddMember(tx *gorm.DB, batchID, gaugeID string) error {
	members, err := s.MemberIDs(tx, batchID)
	if err != nil {
		return err
	}
	if members.Contains(gaugeID) {
		return gauge.NewError(gauge.CodeInvalidState, gaugeID,
			"gauge "+gaugeID+" is already in batch "+batchID)
	}
	rec := &BatchMemberRecord{BatchID: batchID, GaugeID: gaugeID}
	if err := tx.Create(rec).Error; err != nil {
		return fmt.Errorf("add batch member: %w", err)
	}
	return nil
}

// MemberIDs returns the distinct gauge ids in a batch.
func (s *BatchStore) MemberIDs(tx *gorm.DB, batchID string) (mapset.Set[string], error) {
	var rows []BatchMemberRecord
	if err := tx.Where("batch_id = ?", batchID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list batch members: %w", err)
	}
	ids := mapset.NewSet[string]()
	for _, row := range rows {
		ids.Add(row.GaugeID)
	}
	return ids, nil
}

// OutstandingIDs returns member gauge ids not yet marked received.
func (s *BatchStore) OutstandingIDs(tx *gorm.DB, batchID string) (mapset.Set[string], error) {
	var rows []BatchMemberRecord
	err := tx.Where("batch_id = ? AND received = ?", batchID, false).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list outstanding batch members: %w", err)
	}
	ids := mapset.NewSet[string]()
	for _, row := range rows {
		ids.Add(row.GaugeID)
	}
	return ids, nil
}

// MarkReceived flags membership rows as received back from calibration.
func (s *BatchStore) MarkReceived(tx *gorm.DB, batchID string, gaugeIDs []string) error {
	err := tx.Model(&BatchMemberRecord{}).
		Where("batch_id = ? AND gauge_id IN ?", batchID, gaugeIDs).
		Update("received", true).Error
	if err != nil {
		return fmt.Errorf("mark batch members received: %w", err)
	}
	return nil
}

// UpdateStatus moves a batch to a new status, stamping sent/completed
// timestamps as appropriate.
func (s *BatchStore) UpdateStatus(tx *gorm.DB, id string, status BatchStatus) error {
	cols := map[string]any{"status": status}
	now := time.Now()
	switch status {
	case BatchSent:
		cols["sent_at"] = now
	case BatchCompleted, BatchCancelled:
		cols["completed_at"] = now
	}
	err := tx.Model(&BatchRecord{}).Where("id = ?", id).Updates(cols).Error
	if err != nil {
		return fmt.Errorf("update calibration batch status: %w", err)
	}
	return nil
}

// List returns batches newest first, optionally filtered by status.
func (s *BatchStore) List(status BatchStatus, limit int) ([]BatchRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query := s.db.Order("created_at DESC").Limit(limit)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var recs []BatchRecord
	if err := query.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list calibration batches: %w", err)
	}
	return recs, nil
}
