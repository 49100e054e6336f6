package gauge

import "time"

// GaugeRecord is the persisted row for a single physical gauge.
// Classification fields (equipment type, category, spec, role, ownership,
// customer) never change after creation; only status, location, seal and
// the companion reference are mutable.
type GaugeRecord struct {
	ID               string        `gorm:"primaryKey;column:id;type:varchar(32)"`
	BaseID           string        `gorm:"column:base_id;type:varchar(32);index:idx_gauges_base"`
	CustomIdentifier bool          `gorm:"column:custom_identifier"`
	SerialNumber     string        `gorm:"column:serial_number"`
	EquipmentType    EquipmentType `gorm:"column:equipment_type;not null"`
	Category         string        `gorm:"column:category;index:idx_gauges_category;not null"`
	Spec             Spec          `gorm:"column:spec;type:text"`
	SpecKey          string        `gorm:"column:spec_key;index:idx_gauges_spec_key;not null"`
	Role             Role          `gorm:"column:role;type:varchar(1);not null"`
	Status           Status        `gorm:"column:status;default:available;not null"`
	Location         string        `gorm:"column:location"`
	Sealed           bool          `gorm:"column:sealed"`
	Deleted          bool          `gorm:"column:deleted;index:idx_gauges_deleted"`
	Active           bool          `gorm:"column:active;default:true"`
	CompanionID      *string       `gorm:"column:companion_id;type:varchar(32);index:idx_gauges_companion"`
	Ownership        Ownership     `gorm:"column:ownership;default:organization;not null"`
	CustomerID       string        `gorm:"column:customer_id;index:idx_gauges_customer"`
	CalibrationDueAt *time.Time    `gorm:"column:calibration_due_at"`
	CreatedBy        string        `gorm:"column:created_by;not null"`
	CreatedAt        time.Time     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time     `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (GaugeRecord) TableName() string { return "gauges" }

// IsSpare reports whether the gauge has no companion.
func (g *GaugeRecord) IsSpare() bool { return g.CompanionID == nil }

// SequenceRecord is the per-category identifier counter. Exactly one row
// per category; always read and bumped under a row lock inside the
// caller's transaction.
type SequenceRecord struct {
	Category  string `gorm:"primaryKey;column:category;type:varchar(64)"`
	Prefix    string `gorm:"column:prefix;type:varchar(8);not null"`
	NextValue int64  `gorm:"column:next_value;default:1;not null"`
}

// TableName returns the GORM table name.
func (SequenceRecord) TableName() string { return "gauge_sequences" }

// RetiredIdentifierRecord marks an identifier as permanently out of use.
// Identifiers of deleted, retired or returned gauges land here and are
// never reissued, including as custom identifiers.
type RetiredIdentifierRecord struct {
	Identifier string    `gorm:"primaryKey;column:identifier;type:varchar(32)"`
	Reason     string    `gorm:"column:reason"`
	RetiredAt  time.Time `gorm:"column:retired_at;autoCreateTime"`
}

// TableName returns the GORM table name.
func (RetiredIdentifierRecord) TableName() string { return "retired_identifiers" }

// HistoryRecord is an immutable ledger entry for a relationship-affecting
// event. Written in the same transaction as the change it records.
type HistoryRecord struct {
	ID          string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	Action      Action    `gorm:"column:action;index:idx_history_action;not null"`
	GaugeID     string    `gorm:"column:gauge_id;index:idx_history_gauge_time,priority:1;not null"`
	CompanionID string    `gorm:"column:companion_id;index:idx_history_companion"`
	Actor       string    `gorm:"column:actor;not null"`
	Reason      string    `gorm:"column:reason"`
	Metadata    JSONMap   `gorm:"column:metadata;type:text"`
	CreatedAt   time.Time `gorm:"column:created_at;index:idx_history_gauge_time,priority:2;autoCreateTime"`
}

// TableName returns the GORM table name.
func (HistoryRecord) TableName() string { return "gauge_history" }

// Action is the kind of relationship event a history entry records.
type Action string

const (
	ActionPaired           Action = "paired"
	ActionCreatedTogether  Action = "created_together"
	ActionUnpaired         Action = "unpaired"
	ActionReplaced         Action = "replaced"
	ActionCascadedStatus   Action = "cascaded_status"
	ActionCascadedLocation Action = "cascaded_location"
	ActionOrphaned         Action = "orphaned"
	ActionReturned         Action = "returned"
)
