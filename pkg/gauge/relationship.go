package gauge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
)

// SetService manages the pairing relationship between gauges: creating
// matched sets, pairing existing spares, dissolving sets and swapping a
// member. Each operation runs as one transaction; validation happens
// before any write, so a rejection leaves no partial state behind.
type SetService struct {
	db      *gorm.DB
	gauges  *GaugeStore
	ids     *IdentifierAllocator
	history *HistoryStore
	logger  *slog.Logger
}

// NewSetService creates a SetService over the given stores.
func NewSetService(db *gorm.DB, gauges *GaugeStore, ids *IdentifierAllocator, history *HistoryStore) *SetService {
	return &SetService{
		db:      db,
		gauges:  gauges,
		ids:     ids,
		history: history,
		logger:  slog.Default(),
	}
}

// NewGaugePayload describes one gauge to create. Classification fields
// are immutable once the record exists.
type NewGaugePayload struct {
	// CustomIdentifier, when set, is validated and used as the base (for
	// set creation) or member identifier instead of an allocated one.
	CustomIdentifier string
	SerialNumber     string
	EquipmentType    EquipmentType
	Category         string
	Spec             Spec
	Role             Role
	Location         string
	Sealed           bool
	Ownership        Ownership
	CustomerID       string
	CalibrationDueAt *time.Time
	// PendingQC marks external intake: the gauge enters pending_qc
	// instead of available and cannot be paired until QC passes.
	PendingQC bool
}

func (p NewGaugePayload) initialStatus() Status {
	if p.PendingQC {
		return StatusPendingQC
	}
	return StatusAvailable
}

// SetView is the caller-facing view of a matched pair, with the computed
// aggregate status resolved at read time.
type SetView struct {
	BaseID string      `json:"baseId"`
	Go     GaugeRecord `json:"go"`
	NoGo   GaugeRecord `json:"noGo"`
	Status SetStatus   `json:"status"`
}

// CreateSet creates two new gauges as a pre-linked matched pair. The two
// payloads must carry complementary roles and identical classification
// and ownership. baseIdentifier may be empty to allocate one, or a custom
// identifier validated for format and (historical) uniqueness. One
// created_together ledger entry records the birth of the set.
func (s *SetService) CreateSet(ctx context.Context, actor string, goPayload, noGoPayload NewGaugePayload, baseIdentifier string) (*SetView, error) {
	if goPayload.Role != RoleGo || noGoPayload.Role != RoleNoGo {
		return nil, NewError(CodeSpecMismatch, "",
			"a set needs exactly one GO (role A) and one NO GO (role B) gauge")
	}
	if err := validatePayloadMatch(goPayload, noGoPayload); err != nil {
		return nil, err
	}

	var view *SetView
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		base := baseIdentifier
		if base != "" {
			result, err := s.ids.ValidateCustom(tx, base, goPayload.Category, true)
			if err != nil {
				return err
			}
			if !result.Valid {
				return NewError(CodeDuplicateIdentifier, base, result.Reason)
			}
			if !result.Available {
				msg := result.Reason
				if result.Suggestion != "" {
					msg += "; next free identifier is " + result.Suggestion
				}
				return NewError(CodeDuplicateIdentifier, base, msg)
			}
		} else {
			allocated, err := s.ids.Allocate(tx, goPayload.Category)
			if err != nil {
				return err
			}
			base = allocated
		}

		goID, noGoID := MemberIdentifiers(base)
		goRec := recordFromPayload(goPayload, goID, base, actor)
		noGoRec := recordFromPayload(noGoPayload, noGoID, base, actor)
		goRec.CustomIdentifier = baseIdentifier != ""
		noGoRec.CustomIdentifier = baseIdentifier != ""
		goRec.CompanionID = &noGoRec.ID
		noGoRec.CompanionID = &goRec.ID

		if err := s.gauges.Create(tx, goRec); err != nil {
			return err
		}
		if err := s.gauges.Create(tx, noGoRec); err != nil {
			return err
		}

		err := s.history.Append(tx, &HistoryRecord{
			Action:      ActionCreatedTogether,
			GaugeID:     goRec.ID,
			CompanionID: noGoRec.ID,
			Actor:       actor,
			Metadata: JSONMap{
				"baseId": base,
				"spec":   goPayload.Spec.String(),
			},
		})
		if err != nil {
			return err
		}

		view = &SetView{
			BaseID: base,
			Go:     *goRec,
			NoGo:   *noGoRec,
			Status: ResolveSetStatus(goRec, noGoRec),
		}
		return nil
	})
	if err != nil {
		return nil, classifyStoreError(err, baseIdentifier)
	}

	s.logger.Info("set created", "base", view.BaseID, "actor", actor)
	return view, nil
}

// PairSpares links two existing uncompanioned gauges into a set and moves
// both to the target storage location. Rejected when either already has a
// companion, is pending QC, or the pair fails spec/ownership matching.
func (s *SetService) PairSpares(ctx context.Context, actor, idA, idB, location string) (*SetView, error) {
	if idA == idB {
		return nil, NewError(CodeInvalidState, idA, "cannot pair gauge "+idA+" with itself")
	}

	var view *SetView
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, b, err := s.gauges.GetPairForUpdate(tx, idA, idB)
		if err != nil {
			return err
		}

		for _, g := range []*GaugeRecord{a, b} {
			if !g.IsSpare() {
				return NewError(CodeAlreadyCompanioned, g.ID,
					"gauge "+g.ID+" already has companion "+*g.CompanionID)
			}
			if err := pairableState(g); err != nil {
				return err
			}
		}
		if err := validateRecordMatch(a, b); err != nil {
			return err
		}

		if err := s.gauges.UpdateLocation(tx, a.ID, location); err != nil {
			return err
		}
		if err := s.gauges.UpdateLocation(tx, b.ID, location); err != nil {
			return err
		}
		if err := s.gauges.LinkCompanions(tx, a.ID, b.ID); err != nil {
			return err
		}

		err = s.history.Append(tx, &HistoryRecord{
			Action:      ActionPaired,
			GaugeID:     a.ID,
			CompanionID: b.ID,
			Actor:       actor,
			Metadata:    JSONMap{"location": location},
		})
		if err != nil {
			return err
		}

		view = s.freshView(tx, a.ID, b.ID)
		return nil
	})
	if err != nil {
		return nil, classifyStoreError(err, idA)
	}

	s.logger.Info("spares paired", "a", idA, "b", idB, "location", location, "actor", actor)
	return view, nil
}

// UnpairSet dissolves the set either member belongs to. Always allowed
// regardless of current status; locations are left unchanged and both
// gauges become spares.
func (s *SetService) UnpairSet(ctx context.Context, actor, memberID, reason string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		member, err := s.gauges.GetForUpdate(tx, memberID)
		if err != nil {
			return err
		}
		if member.IsSpare() {
			return NewError(CodeInvalidState, memberID, "gauge "+memberID+" is not part of a set")
		}
		companion, err := s.gauges.GetForUpdate(tx, *member.CompanionID)
		if err != nil {
			return err
		}

		if err := s.gauges.Unlink(tx, member.ID, companion.ID); err != nil {
			return err
		}

		return s.history.Append(tx, &HistoryRecord{
			Action:      ActionUnpaired,
			GaugeID:     member.ID,
			CompanionID: companion.ID,
			Actor:       actor,
			Reason:      reason,
		})
	})
	if err != nil {
		return classifyStoreError(err, memberID)
	}

	s.logger.Info("set unpaired", "member", memberID, "actor", actor)
	return nil
}

// ReplaceMember swaps one member of a set for a replacement spare. The
// outgoing member becomes a spare; the replacement moves to the remaining
// member's location. Rejected when either current member is checked out,
// the replacement is pending QC or already companioned, or the
// replacement fails spec/ownership matching against the remaining member.
func (s *SetService) ReplaceMember(ctx context.Context, actor, removeID, replacementID string) (*SetView, error) {
	var view *SetView
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		outgoing, err := s.gauges.GetForUpdate(tx, removeID)
		if err != nil {
			return err
		}
		if outgoing.IsSpare() {
			return NewError(CodeInvalidState, removeID, "gauge "+removeID+" is not part of a set")
		}
		remainingID := *outgoing.CompanionID

		// Relock all three rows in identifier order.
		locked, err := s.gauges.GetManyForUpdate(tx, removeID, remainingID, replacementID)
		if err != nil {
			return err
		}
		outgoing = locked[removeID]
		remaining := locked[remainingID]
		replacement := locked[replacementID]

		for _, g := range []*GaugeRecord{outgoing, remaining} {
			if g.Status == StatusCheckedOut {
				return NewError(CodeInvalidState, g.ID,
					"set member "+g.ID+" is checked out")
			}
		}
		if !replacement.IsSpare() {
			return NewError(CodeAlreadyCompanioned, replacement.ID,
				"replacement "+replacement.ID+" already has companion "+*replacement.CompanionID)
		}
		if err := pairableState(replacement); err != nil {
			return err
		}
		if replacement.Role != outgoing.Role {
			return NewError(CodeSpecMismatch, replacement.ID,
				fmt.Sprintf("replacement %s has role %s, outgoing member has role %s",
					replacement.ID, replacement.Role, outgoing.Role))
		}
		if err := validateRecordMatch(remaining, replacement); err != nil {
			return err
		}

		if err := s.gauges.UpdateLocation(tx, replacement.ID, remaining.Location); err != nil {
			return err
		}
		if err := s.gauges.Unlink(tx, outgoing.ID, remaining.ID); err != nil {
			return err
		}
		if err := s.gauges.LinkCompanions(tx, remaining.ID, replacement.ID); err != nil {
			return err
		}

		err = s.history.Append(tx, &HistoryRecord{
			Action:      ActionReplaced,
			GaugeID:     remaining.ID,
			CompanionID: replacement.ID,
			Actor:       actor,
			Metadata:    JSONMap{"removed": outgoing.ID},
		})
		if err != nil {
			return err
		}

		view = s.freshView(tx, remaining.ID, replacement.ID)
		return nil
	})
	if err != nil {
		return nil, classifyStoreError(err, removeID)
	}

	s.logger.Info("set member replaced",
		"removed", removeID, "replacement", replacementID, "actor", actor)
	return view, nil
}

// GetSet returns the set view for either member's identifier, computed
// status included.
func (s *SetService) GetSet(ctx context.Context, memberID string) (*SetView, error) {
	member, err := s.gauges.Get(memberID)
	if err != nil {
		return nil, err
	}
	if member.IsSpare() {
		return nil, NewError(CodeInvalidState, memberID, "gauge "+memberID+" is not part of a set")
	}
	companion, err := s.gauges.Get(*member.CompanionID)
	if err != nil {
		return nil, err
	}
	return buildView(member, companion), nil
}

// freshView re-reads both members inside the transaction so the returned
// view reflects the committed mutation.
func (s *SetService) freshView(tx *gorm.DB, idA, idB string) *SetView {
	var a, b GaugeRecord
	if err := tx.First(&a, "id = ?", idA).Error; err != nil {
		return nil
	}
	if err := tx.First(&b, "id = ?", idB).Error; err != nil {
		return nil
	}
	return buildView(&a, &b)
}

func buildView(a, b *GaugeRecord) *SetView {
	goRec, noGoRec := a, b
	if goRec.Role != RoleGo {
		goRec, noGoRec = noGoRec, goRec
	}
	return &SetView{
		BaseID: goRec.BaseID,
		Go:     *goRec,
		NoGo:   *noGoRec,
		Status: ResolveSetStatus(goRec, noGoRec),
	}
}

// pairableState rejects gauges whose state forbids entering a set.
func pairableState(g *GaugeRecord) error {
	if g.Deleted {
		return NewError(CodeNotFound, g.ID, "gauge "+g.ID+" is deleted")
	}
	switch g.Status {
	case StatusPendingQC:
		return NewError(CodeInvalidState, g.ID, "gauge "+g.ID+" is pending QC")
	case StatusRetired, StatusReturned:
		return NewError(CodeInvalidState, g.ID,
			"gauge "+g.ID+" is "+string(g.Status))
	}
	return nil
}

// validatePayloadMatch enforces spec and ownership compatibility for two
// gauges being created together.
func validatePayloadMatch(a, b NewGaugePayload) error {
	if !a.EquipmentType.Pairable() {
		return NewError(CodeSpecMismatch, "",
			fmt.Sprintf("equipment type %s does not form matched sets", a.EquipmentType))
	}
	if a.EquipmentType != b.EquipmentType || a.Category != b.Category {
		return NewError(CodeSpecMismatch, "",
			fmt.Sprintf("equipment classification differs: %s/%s vs %s/%s",
				a.EquipmentType, a.Category, b.EquipmentType, b.Category))
	}
	if a.Spec.Key() != b.Spec.Key() {
		return NewError(CodeSpecMismatch, "",
			fmt.Sprintf("specifications differ: %q vs %q", a.Spec.String(), b.Spec.String()))
	}
	return validateOwnership(a.Ownership, a.CustomerID, b.Ownership, b.CustomerID, "", "")
}

// validateRecordMatch enforces spec, role and ownership compatibility for
// two existing gauges entering a set together.
func validateRecordMatch(a, b *GaugeRecord) error {
	if a.Role == b.Role {
		return NewError(CodeSpecMismatch, b.ID,
			fmt.Sprintf("both gauges have role %s; a set needs one GO and one NO GO", a.Role))
	}
	if !a.EquipmentType.Pairable() {
		return NewError(CodeSpecMismatch, a.ID,
			fmt.Sprintf("equipment type %s does not form matched sets", a.EquipmentType))
	}
	if a.EquipmentType != b.EquipmentType || a.Category != b.Category {
		return NewError(CodeSpecMismatch, b.ID,
			fmt.Sprintf("gauge %s classification %s/%s does not match %s/%s of %s",
				b.ID, b.EquipmentType, b.Category, a.EquipmentType, a.Category, a.ID))
	}
	if a.SpecKey != b.SpecKey {
		return NewError(CodeSpecMismatch, b.ID,
			fmt.Sprintf("gauge %s spec %q does not match %q of %s",
				b.ID, b.Spec.String(), a.Spec.String(), a.ID))
	}
	return validateOwnership(a.Ownership, a.CustomerID, b.Ownership, b.CustomerID, a.ID, b.ID)
}

func validateOwnership(ownA Ownership, custA string, ownB Ownership, custB, idA, idB string) error {
	if ownA != ownB {
		return NewError(CodeOwnershipMismatch, idB,
			fmt.Sprintf("ownership differs: %s vs %s", ownA, ownB))
	}
	if ownA == OwnershipCustomer && custA != custB {
		return NewError(CodeOwnershipMismatch, idB,
			fmt.Sprintf("customer differs: %s vs %s", custA, custB))
	}
	return nil
}

func recordFromPayload(p NewGaugePayload, id, base, actor string) *GaugeRecord {
	if p.Ownership == "" {
		p.Ownership = OwnershipOrganization
	}
	return &GaugeRecord{
		ID:               id,
		BaseID:           base,
		CustomIdentifier: p.CustomIdentifier != "",
		SerialNumber:     p.SerialNumber,
		EquipmentType:    p.EquipmentType,
		Category:         p.Category,
		Spec:             p.Spec,
		SpecKey:          p.Spec.Key(),
		Role:             p.Role,
		Status:           p.initialStatus(),
		Location:         p.Location,
		Sealed:           p.Sealed,
		Active:           true,
		Ownership:        p.Ownership,
		CustomerID:       p.CustomerID,
		CalibrationDueAt: p.CalibrationDueAt,
		CreatedBy:        actor,
	}
}
