// Package calibration drives gauges through the calibration workflow:
// batching for the send step, per-gauge progression gated on certificate
// evidence, and the explicit release back to service.
package calibration

import "time"

// BatchStatus is the lifecycle of a calibration batch. Batch status is
// independent of the member gauges' own statuses, which move through the
// per-gauge state machine once the batch is sent.
type BatchStatus string

const (
	BatchPendingSend BatchStatus = "pending_send"
	BatchSent        BatchStatus = "sent"
	BatchCompleted   BatchStatus = "completed"
	BatchCancelled   BatchStatus = "cancelled"
)

// Source distinguishes in-house calibration from an external vendor.
type Source string

const (
	SourceInternal Source = "internal"
	SourceExternal Source = "external"
)

// BatchRecord groups gauges sent for calibration together.
type BatchRecord struct {
	ID          string      `gorm:"primaryKey;column:id;type:varchar(36)"`
	Source      Source      `gorm:"column:source;not null"`
	VendorRef   string      `gorm:"column:vendor_ref"`
	Status      BatchStatus `gorm:"column:status;default:pending_send;not null"`
	CreatedBy   string      `gorm:"column:created_by;not null"`
	SentAt      *time.Time  `gorm:"column:sent_at"`
	CompletedAt *time.Time  `gorm:"column:completed_at"`
	CreatedAt   time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (BatchRecord) TableName() string { return "calibration_batches" }

// BatchMemberRecord is the membership row linking a gauge into a batch.
type BatchMemberRecord struct {
	BatchID   string    `gorm:"primaryKey;column:batch_id;type:varchar(36)"`
	GaugeID   string    `gorm:"primaryKey;column:gauge_id;type:varchar(32);index:idx_batch_members_gauge"`
	AddedAt   time.Time `gorm:"column:added_at;autoCreateTime"`
	Received  bool      `gorm:"column:received"`
}

// TableName returns the GORM table name.
func (BatchMemberRecord) TableName() string { return "calibration_batch_members" }

// CertificateRecord links one uploaded calibration document to one gauge.
// Append-only per gauge: superseding an older certificate clears its
// current flag and records the chain, never deletes.
type CertificateRecord struct {
	ID           string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	GaugeID      string    `gorm:"column:gauge_id;type:varchar(32);index:idx_certificates_gauge;not null"`
	DocumentRef  string    `gorm:"column:document_ref;not null"`
	Current      bool      `gorm:"column:current;index:idx_certificates_current"`
	SupersededID *string   `gorm:"column:superseded_id;type:varchar(36)"`
	UploadedBy   string    `gorm:"column:uploaded_by;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the GORM table name.
func (CertificateRecord) TableName() string { return "certificates" }
