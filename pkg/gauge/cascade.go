package gauge

import (
	"context"
	"log/slog"

	mapset "github.com/deckarep/golang-set/v2"
	"gorm.io/gorm"
)

// CascadeService applies state-changing operations to a gauge and, where
// the rules require it, mirrors the change onto its companion in the same
// transaction. Callers are always told whether a cascade occurred and
// which gauges were touched.
type CascadeService struct {
	db      *gorm.DB
	gauges  *GaugeStore
	history *HistoryStore
	machine *Machine
	logger  *slog.Logger
}

// NewCascadeService creates a CascadeService over the given stores.
func NewCascadeService(db *gorm.DB, gauges *GaugeStore, history *HistoryStore) *CascadeService {
	return &CascadeService{
		db:      db,
		gauges:  gauges,
		history: history,
		machine: NewMachine(),
		logger:  slog.Default(),
	}
}

// CascadeResult reports what an operation touched.
type CascadeResult struct {
	GaugeID     string     `json:"gaugeId"`
	AffectedIDs []string   `json:"affectedIds"`
	Cascaded    bool       `json:"cascaded"`
	SetStatus   *SetStatus `json:"setStatus,omitempty"`
}

func newResult(target *GaugeRecord) *CascadeResult {
	return &CascadeResult{GaugeID: target.ID}
}

// finish fills the affected-id list from the set and, when the gauge is
// companioned, resolves the computed set status from the committed rows.
func (s *CascadeService) finish(tx *gorm.DB, result *CascadeResult, affected mapset.Set[string], companioned bool, idA, idB string) {
	result.AffectedIDs = mapset.Sorted(affected)
	if !companioned {
		return
	}
	var a, b GaugeRecord
	if tx.First(&a, "id = ?", idA).Error != nil || tx.First(&b, "id = ?", idB).Error != nil {
		return
	}
	status := ResolveSetStatus(&a, &b)
	result.SetStatus = &status
}

// UpdateStatus moves a gauge to a new lifecycle status. Out-of-service
// and return-to-service changes cascade onto the companion atomically,
// recording one cascaded_status ledger entry. Calibration-due never
// cascades: due dates are allowed to diverge between companions.
// Checked-out entry is reserved for Checkout; retirement for DeleteOrRetire;
// the calibration chain for the calibration workflow, which enforces the
// certificate and location-confirmation gates this path has no view of.
func (s *CascadeService) UpdateStatus(ctx context.Context, actor, id string, to Status, reason string) (*CascadeResult, error) {
	switch to {
	case StatusCheckedOut:
		return nil, NewError(CodeInvalidState, id, "checkout is only granted for a complete pair; use the checkout operation")
	case StatusRetired:
		return nil, NewError(CodeInvalidState, id, "retirement goes through delete-or-retire")
	case StatusReturned:
		return nil, NewError(CodeInvalidState, id, "customer return goes through the return operation")
	case StatusOutForCalibration, StatusPendingCertificate, StatusPendingRelease:
		return nil, NewError(CodeInvalidState, id, "calibration statuses move through the calibration workflow")
	}

	var result *CascadeResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		target, err := s.gauges.GetForUpdate(tx, id)
		if err != nil {
			return err
		}
		if err := awaitingRelease(target); err != nil {
			return err
		}
		if err := s.machine.ValidateTransition(target.ID, target.Status, to); err != nil {
			return err
		}

		result = newResult(target)
		affected := mapset.NewSet(target.ID)

		if !target.IsSpare() && cascades(to) {
			companion, err := s.gauges.GetForUpdate(tx, *target.CompanionID)
			if err != nil {
				return err
			}
			if err := awaitingRelease(companion); err != nil {
				return err
			}
			if err := s.machine.ValidateTransition(companion.ID, companion.Status, to); err != nil {
				return err
			}
			if err := s.gauges.UpdateStatus(tx, target.ID, to); err != nil {
				return err
			}
			if err := s.gauges.UpdateStatus(tx, companion.ID, to); err != nil {
				return err
			}
			affected.Add(companion.ID)
			result.Cascaded = true

			err = s.history.Append(tx, &HistoryRecord{
				Action:      ActionCascadedStatus,
				GaugeID:     target.ID,
				CompanionID: companion.ID,
				Actor:       actor,
				Reason:      reason,
				Metadata:    JSONMap{"status": string(to)},
			})
			if err != nil {
				return err
			}
			s.finish(tx, result, affected, true, target.ID, companion.ID)
			return nil
		}

		if err := s.gauges.UpdateStatus(tx, target.ID, to); err != nil {
			return err
		}
		if !target.IsSpare() {
			s.finish(tx, result, affected, true, target.ID, *target.CompanionID)
		} else {
			s.finish(tx, result, affected, false, "", "")
		}
		return nil
	})
	if err != nil {
		return nil, classifyStoreError(err, id)
	}

	s.logger.Info("status updated", "gauge", id, "to", to, "cascaded", result.Cascaded, "actor", actor)
	return result, nil
}

// awaitingRelease blocks moving a gauge out of pending_release here. The
// only exit is the workflow's explicit location confirmation, after the
// certificate gate has passed.
func awaitingRelease(g *GaugeRecord) error {
	if g.Status == StatusPendingRelease {
		return NewError(CodeInvalidState, g.ID,
			"gauge "+g.ID+" awaits release; confirm its storage location through the calibration workflow")
	}
	return nil
}

// UpdateLocation moves a gauge to a new storage location. Companioned
// gauges move together; one cascaded_location ledger entry is recorded.
func (s *CascadeService) UpdateLocation(ctx context.Context, actor, id, location string) (*CascadeResult, error) {
	var result *CascadeResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		target, err := s.gauges.GetForUpdate(tx, id)
		if err != nil {
			return err
		}

		result = newResult(target)
		affected := mapset.NewSet(target.ID)

		if err := s.gauges.UpdateLocation(tx, target.ID, location); err != nil {
			return err
		}
		if target.IsSpare() {
			s.finish(tx, result, affected, false, "", "")
			return nil
		}

		companion, err := s.gauges.GetForUpdate(tx, *target.CompanionID)
		if err != nil {
			return err
		}
		if err := s.gauges.UpdateLocation(tx, companion.ID, location); err != nil {
			return err
		}
		affected.Add(companion.ID)
		result.Cascaded = true

		err = s.history.Append(tx, &HistoryRecord{
			Action:      ActionCascadedLocation,
			GaugeID:     target.ID,
			CompanionID: companion.ID,
			Actor:       actor,
			Metadata:    JSONMap{"location": location},
		})
		if err != nil {
			return err
		}
		s.finish(tx, result, affected, true, target.ID, companion.ID)
		return nil
	})
	if err != nil {
		return nil, classifyStoreError(err, id)
	}

	s.logger.Info("location updated", "gauge", id, "location", location, "cascaded", result.Cascaded, "actor", actor)
	return result, nil
}

// Checkout grants a complete pair to a borrower as a unit. Both members
// are re-verified under lock; if either is not independently available
// the whole checkout is rejected naming the blocking member. On success
// both move to checked_out and any seal is cleared on both.
func (s *CascadeService) Checkout(ctx context.Context, actor, memberID string) (*CascadeResult, error) {
	var result *CascadeResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		target, err := s.gauges.GetForUpdate(tx, memberID)
		if err != nil {
			return err
		}
		if target.IsSpare() {
			return NewError(CodeInvalidState, memberID,
				"gauge "+memberID+" is a spare; only complete pairs are checked out")
		}
		companion, err := s.gauges.GetForUpdate(tx, *target.CompanionID)
		if err != nil {
			return err
		}

		for _, g := range []*GaugeRecord{target, companion} {
			if g.Status != StatusAvailable {
				label := statusLabels[g.Status]
				if label == "" {
					label = string(g.Status)
				}
				noun := "companion"
				if g.ID == target.ID {
					noun = "gauge"
				}
				return NewError(CodeInvalidState, g.ID,
					noun+" "+g.ID+" is "+label)
			}
		}

		for _, g := range []*GaugeRecord{target, companion} {
			if err := s.gauges.UpdateStatus(tx, g.ID, StatusCheckedOut); err != nil {
				return err
			}
			if g.Sealed {
				if err := s.gauges.SetSealed(tx, g.ID, false); err != nil {
					return err
				}
			}
		}

		err = s.history.Append(tx, &HistoryRecord{
			Action:      ActionCascadedStatus,
			GaugeID:     target.ID,
			CompanionID: companion.ID,
			Actor:       actor,
			Reason:      "checkout",
			Metadata:    JSONMap{"status": string(StatusCheckedOut)},
		})
		if err != nil {
			return err
		}

		result = newResult(target)
		result.Cascaded = true
		s.finish(tx, result, mapset.NewSet(target.ID, companion.ID), true, target.ID, companion.ID)
		return nil
	})
	if err != nil {
		return nil, classifyStoreError(err, memberID)
	}

	s.logger.Info("pair checked out", "gauge", memberID, "actor", actor)
	return result, nil
}

// DeleteOrRetire removes a gauge from service: retire moves it to the
// terminal retired status, delete soft-deletes the row. A companion is
// never deleted alongside; it is unlinked into a spare in the same
// transaction with an orphaned ledger entry. Rejected outright when the
// companion is currently checked out. The identifier is permanently
// retired either way and never reissued.
func (s *CascadeService) DeleteOrRetire(ctx context.Context, actor, id string, retire bool, reason string) (*CascadeResult, error) {
	var result *CascadeResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		target, err := s.gauges.GetForUpdate(tx, id)
		if err != nil {
			return err
		}
		if target.Status == StatusCheckedOut {
			return NewError(CodeInvalidState, target.ID, "gauge "+target.ID+" is checked out")
		}

		result = newResult(target)
		affected := mapset.NewSet(target.ID)

		if !target.IsSpare() {
			companion, err := s.gauges.GetForUpdate(tx, *target.CompanionID)
			if err != nil {
				return err
			}
			if companion.Status == StatusCheckedOut {
				return NewError(CodeInvalidState, companion.ID,
					"companion "+companion.ID+" is checked out")
			}
			if err := s.gauges.Unlink(tx, target.ID, companion.ID); err != nil {
				return err
			}
			err = s.history.Append(tx, &HistoryRecord{
				Action:      ActionOrphaned,
				GaugeID:     companion.ID,
				CompanionID: target.ID,
				Actor:       actor,
				Reason:      reason,
			})
			if err != nil {
				return err
			}
			affected.Add(companion.ID)
			result.Cascaded = true
		}

		if retire {
			if err := s.machine.ValidateTransition(target.ID, target.Status, StatusRetired); err != nil {
				return err
			}
			if err := s.gauges.UpdateStatus(tx, target.ID, StatusRetired); err != nil {
				return err
			}
		} else {
			if err := s.gauges.MarkDeleted(tx, target.ID); err != nil {
				return err
			}
		}
		if err := s.gauges.RetireIdentifier(tx, target.ID, reason); err != nil {
			return err
		}

		result.AffectedIDs = mapset.Sorted(affected)
		return nil
	})
	if err != nil {
		return nil, classifyStoreError(err, id)
	}

	s.logger.Info("gauge removed from service",
		"gauge", id, "retired", retire, "orphanedCompanion", result.Cascaded, "actor", actor)
	return result, nil
}

// ReturnCustomerOwned returns one or both members of a customer-owned
// gauge or set to its customer. Returned gauges move to the terminal
// returned status and drop out of default listings; returning only one
// member orphans the other. Identifiers are permanently retired.
func (s *CascadeService) ReturnCustomerOwned(ctx context.Context, actor, id string, both bool, reason string) (*CascadeResult, error) {
	var result *CascadeResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		target, err := s.gauges.GetForUpdate(tx, id)
		if err != nil {
			return err
		}
		if target.Ownership != OwnershipCustomer {
			return NewError(CodeInvalidState, target.ID,
				"gauge "+target.ID+" is organization-owned and cannot be returned")
		}
		if err := s.machine.ValidateTransition(target.ID, target.Status, StatusReturned); err != nil {
			return err
		}

		result = newResult(target)
		affected := mapset.NewSet(target.ID)

		var companion *GaugeRecord
		if !target.IsSpare() {
			companion, err = s.gauges.GetForUpdate(tx, *target.CompanionID)
			if err != nil {
				return err
			}
			if companion.Status == StatusCheckedOut {
				return NewError(CodeInvalidState, companion.ID,
					"companion "+companion.ID+" is checked out")
			}
		}

		returning := []*GaugeRecord{target}
		if both && companion != nil {
			if err := s.machine.ValidateTransition(companion.ID, companion.Status, StatusReturned); err != nil {
				return err
			}
			returning = append(returning, companion)
		}

		if companion != nil {
			if err := s.gauges.Unlink(tx, target.ID, companion.ID); err != nil {
				return err
			}
			if !both {
				err = s.history.Append(tx, &HistoryRecord{
					Action:      ActionOrphaned,
					GaugeID:     companion.ID,
					CompanionID: target.ID,
					Actor:       actor,
					Reason:      reason,
				})
				if err != nil {
					return err
				}
			}
			affected.Add(companion.ID)
			result.Cascaded = true
		}

		for _, g := range returning {
			if err := s.gauges.UpdateStatus(tx, g.ID, StatusReturned); err != nil {
				return err
			}
			if err := s.gauges.RetireIdentifier(tx, g.ID, "returned to customer"); err != nil {
				return err
			}
		}

		entry := &HistoryRecord{
			Action:   ActionReturned,
			GaugeID:  target.ID,
			Actor:    actor,
			Reason:   reason,
			Metadata: JSONMap{"customerId": target.CustomerID, "both": both},
		}
		if both && companion != nil {
			entry.CompanionID = companion.ID
		}
		if err := s.history.Append(tx, entry); err != nil {
			return err
		}

		result.AffectedIDs = mapset.Sorted(affected)
		return nil
	})
	if err != nil {
		return nil, classifyStoreError(err, id)
	}

	s.logger.Info("customer gauge returned", "gauge", id, "both", both, "actor", actor)
	return result, nil
}
