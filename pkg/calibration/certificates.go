package calibration

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CertificateSource answers whether calibration evidence exists for a
// gauge. The release step depends on this predicate only, so deployments
// backed by an external document system can substitute their own.
type CertificateSource interface {
	HasCurrent(tx *gorm.DB, gaugeID string) (bool, error)
}

// CertificateStore is the built-in evidence ledger: one row per uploaded
// document, append-only per gauge. Superseding never deletes.
type CertificateStore struct {
	db *gorm.DB
}

// NewCertificateStore creates a new CertificateStore.
func NewCertificateStore(db *gorm.DB) *CertificateStore {
	return &CertificateStore{db: db}
}

// Record registers a new certificate for a gauge inside tx. Any previous
// current certificate loses its current flag and is linked as superseded.
// Recording evidence never changes the gauge's status; release stays a
// separate explicit action.
func (s *CertificateStore) Record(tx *gorm.DB, gaugeID, documentRef, uploadedBy string) (*CertificateRecord, error) {
	var previous CertificateRecord
	var supersededID *string
	err := tx.Where("gauge_id = ? AND current = ?", gaugeID, true).First(&previous).Error
	switch err {
	case nil:
		supersededID = &previous.ID
		clear := tx.Model(&CertificateRecord{}).
			Where("id = ?", previous.ID).
			Update("current", false).Error
		if clear != nil {
			return nil, fmt.Errorf("supersede certificate: %w", clear)
		}
	case gorm.ErrRecordNotFound:
		// First certificate for this gauge.
	default:
		return nil, fmt.Errorf("find current certificate: %w", err)
	}

	rec := &CertificateRecord{
		ID:           uuid.New().String(),
		GaugeID:      gaugeID,
		DocumentRef:  documentRef,
		Current:      true,
		SupersededID: supersededID,
		UploadedBy:   uploadedBy,
	}
	if err := tx.Create(rec).Error; err != nil {
		return nil, fmt.Errorf("record certificate: %w", err)
	}
	return rec, nil
}

// HasCurrent implements CertificateSource.
func (s *CertificateStore) HasCurrent(tx *gorm.DB, gaugeID string) (bool, error) {
	var count int64
	err := tx.Model(&CertificateRecord{}).
		Where("gauge_id = ? AND current = ?", gaugeID, true).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check current certificate: %w", err)
	}
	return count > 0, nil
}

// ListByGauge returns all certificates ever recorded for a gauge, newest
// first, current and superseded alike.
func (s *CertificateStore) ListByGauge(gaugeID string) ([]CertificateRecord, error) {
	var recs []CertificateRecord
	err := s.db.Where("gauge_id = ?", gaugeID).Order("created_at DESC").Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	return recs, nil
}
