package gauge

import (
	"fmt"
	"sort"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GaugeStore provides persistence for gauge records. Every mutating method
// takes the caller's transaction handle; the store never opens its own
// transaction for multi-step work, so cascades stay atomic under the
// service that owns the transaction boundary.
type GaugeStore struct {
	db *gorm.DB
}

// NewGaugeStore creates a new GaugeStore.
func NewGaugeStore(db *gorm.DB) *GaugeStore {
	return &GaugeStore{db: db}
}

// AutoMigrate creates or updates the gauge engine tables.
func (s *GaugeStore) AutoMigrate() error {
	for _, model := range []any{
		&GaugeRecord{},
		&SequenceRecord{},
		&RetiredIdentifierRecord{},
		&HistoryRecord{},
	} {
		if err := s.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("auto-migrate gauge tables: %w", err)
		}
	}
	return nil
}

// Transaction runs fn inside a database transaction, classifying lock
// contention on the way out so callers can retry.
func (s *GaugeStore) Transaction(fn func(tx *gorm.DB) error) error {
	return classifyStoreError(s.db.Transaction(fn), "")
}

// Get retrieves a gauge without locking. Soft-deleted rows are visible;
// callers that must exclude them use List.
func (s *GaugeStore) Get(id string) (*GaugeRecord, error) {
	var rec GaugeRecord
	if err := s.db.First(&rec, "id = ?", id).Error; err != nil {
		return nil, classifyStoreError(err, id)
	}
	return &rec, nil
}

// WithRowLock adds a SELECT ... FOR UPDATE clause on dialects that
// support it. SQLite serializes writers at the database level and
// rejects the syntax, so the clause is omitted there.
func WithRowLock(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// GetForUpdate retrieves a gauge under a row lock suitable for
// read-modify-write. The lock is held until tx commits or rolls back.
func (s *GaugeStore) GetForUpdate(tx *gorm.DB, id string) (*GaugeRecord, error) {
	var rec GaugeRecord
	err := WithRowLock(tx).First(&rec, "id = ?", id).Error
	if err != nil {
		return nil, classifyStoreError(err, id)
	}
	return &rec, nil
}

// GetPairForUpdate locks two gauges in identifier order so concurrent
// operations on the same pair cannot deadlock against each other.
func (s *GaugeStore) GetPairForUpdate(tx *gorm.DB, idA, idB string) (*GaugeRecord, *GaugeRecord, error) {
	locked, err := s.GetManyForUpdate(tx, idA, idB)
	if err != nil {
		return nil, nil, err
	}
	return locked[idA], locked[idB], nil
}

// GetManyForUpdate locks several gauges, always in identifier order.
func (s *GaugeStore) GetManyForUpdate(tx *gorm.DB, ids ...string) (map[string]*GaugeRecord, error) {
	ordered := append([]string(nil), ids...)
	sort.Strings(ordered)
	locked := make(map[string]*GaugeRecord, len(ordered))
	for _, id := range ordered {
		if _, done := locked[id]; done {
			continue
		}
		rec, err := s.GetForUpdate(tx, id)
		if err != nil {
			return nil, err
		}
		locked[id] = rec
	}
	return locked, nil
}

// Create persists a new gauge record.
func (s *GaugeStore) Create(tx *gorm.DB, rec *GaugeRecord) error {
	if err := tx.Create(rec).Error; err != nil {
		return classifyStoreError(err, rec.ID)
	}
	return nil
}

// UpdateStatus sets the lifecycle status of one gauge.
func (s *GaugeStore) UpdateStatus(tx *gorm.DB, id string, status Status) error {
	return s.updateColumns(tx, id, map[string]any{"status": status})
}

// UpdateLocation sets the storage location of one gauge.
func (s *GaugeStore) UpdateLocation(tx *gorm.DB, id string, location string) error {
	return s.updateColumns(tx, id, map[string]any{"location": location})
}

// SetSealed sets the seal flag of one gauge.
func (s *GaugeStore) SetSealed(tx *gorm.DB, id string, sealed bool) error {
	return s.updateColumns(tx, id, map[string]any{"sealed": sealed})
}

// MarkDeleted soft-deletes one gauge.
func (s *GaugeStore) MarkDeleted(tx *gorm.DB, id string) error {
	return s.updateColumns(tx, id, map[string]any{"deleted": true, "active": false})
}

// LinkCompanions sets the symmetric companion reference on both gauges.
// This is the only link primitive: one side is never written without the
// other, which keeps the symmetry invariant intact at every commit point.
func (s *GaugeStore) LinkCompanions(tx *gorm.DB, idA, idB string) error {
	if err := s.updateColumns(tx, idA, map[string]any{"companion_id": idB}); err != nil {
		return err
	}
	return s.updateColumns(tx, idB, map[string]any{"companion_id": idA})
}

// Unlink clears the companion reference on both gauges.
func (s *GaugeStore) Unlink(tx *gorm.DB, idA, idB string) error {
	if err := s.updateColumns(tx, idA, map[string]any{"companion_id": nil}); err != nil {
		return err
	}
	return s.updateColumns(tx, idB, map[string]any{"companion_id": nil})
}

// FindByBaseIdentifier returns the members sharing a base identifier,
// role A first.
func (s *GaugeStore) FindByBaseIdentifier(tx *gorm.DB, base string) ([]GaugeRecord, error) {
	var recs []GaugeRecord
	err := tx.Where("base_id = ?", base).Order("role ASC").Find(&recs).Error
	if err != nil {
		return nil, classifyStoreError(err, base)
	}
	return recs, nil
}

// RetireIdentifier permanently removes an identifier from circulation.
func (s *GaugeStore) RetireIdentifier(tx *gorm.DB, identifier, reason string) error {
	rec := &RetiredIdentifierRecord{Identifier: identifier, Reason: reason}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(rec).Error; err != nil {
		return classifyStoreError(err, identifier)
	}
	return nil
}

// ListFilter narrows List results.
type ListFilter struct {
	Category       string
	Status         Status
	SparesOnly     bool
	CustomerID     string
	IncludeDeleted bool
	// IncludeReturned also lists customer-returned gauges, which are
	// excluded from default listings.
	IncludeReturned bool
}

// List returns gauges matching the filter, identifier order. Deleted and
// returned gauges are excluded unless asked for.
func (s *GaugeStore) List(filter ListFilter) ([]GaugeRecord, error) {
	query := s.db.Order("id ASC")
	if !filter.IncludeDeleted {
		query = query.Where("deleted = ?", false)
	}
	if !filter.IncludeReturned {
		query = query.Where("status <> ?", StatusReturned)
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.SparesOnly {
		query = query.Where("companion_id IS NULL")
	}
	if filter.CustomerID != "" {
		query = query.Where("customer_id = ?", filter.CustomerID)
	}
	var recs []GaugeRecord
	if err := query.Find(&recs).Error; err != nil {
		return nil, classifyStoreError(err, "")
	}
	return recs, nil
}

func (s *GaugeStore) updateColumns(tx *gorm.DB, id string, cols map[string]any) error {
	result := tx.Model(&GaugeRecord{}).Where("id = ?", id).Updates(cols)
	if result.Error != nil {
		return classifyStoreError(result.Error, id)
	}
	if result.RowsAffected == 0 {
		// MySQL reports rows changed rather than rows matched, so a
		// no-change update lands here too. Only a missing row is NotFound.
		var count int64
		if err := tx.Model(&GaugeRecord{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return classifyStoreError(err, id)
		}
		if count == 0 {
			return NewError(CodeNotFound, id, "gauge "+id+" not found")
		}
	}
	return nil
}
