package calibration

import (
	"context"
	"log/slog"

	"gorm.io/gorm"

	"github.com/toolcrib/gaugetrack/pkg/gauge"
)

// WorkflowService advances gauges through calibration. Batches group
// gauges for the send step only; from there each gauge progresses through
// its own chain on explicit operator actions:
//
//	out_for_calibration -> pending_certificate -> pending_release -> available
//
// Release is gated on certificate evidence and the final step requires an
// explicit storage-location confirmation. There is no forced cascade
// between companions here; in practice batches contain both members so
// they move together.
type WorkflowService struct {
	db       *gorm.DB
	batches  *BatchStore
	ledger   *CertificateStore
	evidence CertificateSource
	gauges   *gauge.GaugeStore
	cascade  *gauge.CascadeService
	machine  *gauge.Machine
	logger   *slog.Logger
}

// NewWorkflowService creates a WorkflowService. evidence may be nil, in
// which case the built-in certificate ledger gates release.
func NewWorkflowService(db *gorm.DB, batches *BatchStore, ledger *CertificateStore, evidence CertificateSource, gauges *gauge.GaugeStore, cascade *gauge.CascadeService) *WorkflowService {
	if evidence == nil {
		evidence = ledger
	}
	return &WorkflowService{
		db:       db,
		batches:  batches,
		ledger:   ledger,
		evidence: evidence,
		gauges:   gauges,
		cascade:  cascade,
		machine:  gauge.NewMachine(),
		logger:   slog.Default(),
	}
}

// CreateBatch opens a new batch in pending_send.
func (s *WorkflowService) CreateBatch(ctx context.Context, actor string, source Source, vendorRef string) (*BatchRecord, error) {
	if source != SourceInternal && source != SourceExternal {
		return nil, gauge.NewError(gauge.CodeInvalidState, "",
			"calibration source must be internal or external")
	}
	rec := &BatchRecord{Source: source, VendorRef: vendorRef, CreatedBy: actor}
	if err := s.batches.Create(rec); err != nil {
		return nil, err
	}
	s.logger.Info("calibration batch created", "batch", rec.ID, "source", source, "actor", actor)
	return rec, nil
}

// AddGauge adds a gauge to a batch that has not been sent yet. The gauge
// must be available or calibration-due.
func (s *WorkflowService) AddGauge(ctx context.Context, batchID, gaugeID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batch, err := s.batches.GetForUpdate(tx, batchID)
		if err != nil {
			return err
		}
		if batch.Status != BatchPendingSend {
			return gauge.NewError(gauge.CodeInvalidState, gaugeID,
				"batch "+batchID+" has already been "+string(batch.Status))
		}
		g, err := s.gauges.GetForUpdate(tx, gaugeID)
		if err != nil {
			return err
		}
		if g.Deleted {
			return gauge.NewError(gauge.CodeNotFound, gaugeID, "gauge "+gaugeID+" is deleted")
		}
		if g.Status != gauge.StatusAvailable && g.Status != gauge.StatusCalibrationDue {
			return gauge.NewError(gauge.CodeInvalidState, gaugeID,
				"gauge "+gaugeID+" is "+string(g.Status)+" and cannot be sent for calibration")
		}
		return s.batches.AddMember(tx, batchID, gaugeID)
	})
}

// SendResult reports a batch send.
type SendResult struct {
	BatchID  string   `json:"batchId"`
	GaugeIDs []string `json:"gaugeIds"`
}

// Send dispatches a pending batch: the batch moves to sent and every
// member gauge to out_for_calibration, all in one transaction.
func (s *WorkflowService) Send(ctx context.Context, actor, batchID string) (*SendResult, error) {
	var result *SendResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batch, err := s.batches.GetForUpdate(tx, batchID)
		if err != nil {
			return err
		}
		if batch.Status != BatchPendingSend {
			return gauge.NewError(gauge.CodeInvalidState, "",
				"batch "+batchID+" has already been "+string(batch.Status))
		}
		members, err := s.batches.MemberIDs(tx, batchID)
		if err != nil {
			return err
		}
		if members.Cardinality() == 0 {
			return gauge.NewError(gauge.CodeInvalidState, "",
				"batch "+batchID+" has no members")
		}

		ids := members.ToSlice()
		locked, err := s.gauges.GetManyForUpdate(tx, ids...)
		if err != nil {
			return err
		}
		for _, id := range ids {
			g := locked[id]
			err := s.machine.ValidateTransition(g.ID, g.Status, gauge.StatusOutForCalibration)
			if err != nil {
				return err
			}
		}
		for _, id := range ids {
			if err := s.gauges.UpdateStatus(tx, id, gauge.StatusOutForCalibration); err != nil {
				return err
			}
		}
		if err := s.batches.UpdateStatus(tx, batchID, BatchSent); err != nil {
			return err
		}

		result = &SendResult{BatchID: batchID, GaugeIDs: ids}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("calibration batch sent", "batch", batchID, "gauges", len(result.GaugeIDs), "actor", actor)
	return result, nil
}

// Receive books gauges back in from calibration: each moves to
// pending_certificate with its seal flag forced on. When the last
// outstanding member comes back, the batch completes.
func (s *WorkflowService) Receive(ctx context.Context, actor, batchID string, gaugeIDs []string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batch, err := s.batches.GetForUpdate(tx, batchID)
		if err != nil {
			return err
		}
		if batch.Status != BatchSent {
			return gauge.NewError(gauge.CodeInvalidState, "",
				"batch "+batchID+" is "+string(batch.Status)+", not sent")
		}
		members, err := s.batches.MemberIDs(tx, batchID)
		if err != nil {
			return err
		}

		locked, err := s.gauges.GetManyForUpdate(tx, gaugeIDs...)
		if err != nil {
			return err
		}
		for _, id := range gaugeIDs {
			if !members.Contains(id) {
				return gauge.NewError(gauge.CodeInvalidState, id,
					"gauge "+id+" is not a member of batch "+batchID)
			}
			g := locked[id]
			err := s.machine.ValidateTransition(g.ID, g.Status, gauge.StatusPendingCertificate)
			if err != nil {
				return err
			}
		}
		for _, id := range gaugeIDs {
			if err := s.gauges.UpdateStatus(tx, id, gauge.StatusPendingCertificate); err != nil {
				return err
			}
			if err := s.gauges.SetSealed(tx, id, true); err != nil {
				return err
			}
		}
		if err := s.batches.MarkReceived(tx, batchID, gaugeIDs); err != nil {
			return err
		}

		outstanding, err := s.batches.OutstandingIDs(tx, batchID)
		if err != nil {
			return err
		}
		if outstanding.Cardinality() == 0 {
			return s.batches.UpdateStatus(tx, batchID, BatchCompleted)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("calibration gauges received", "batch", batchID, "gauges", len(gaugeIDs), "actor", actor)
	return nil
}

// UploadCertificate records calibration evidence for a gauge. This never
// releases the gauge: release stays a separate explicit action.
func (s *WorkflowService) UploadCertificate(ctx context.Context, actor, gaugeID, documentRef string) (*CertificateRecord, error) {
	var rec *CertificateRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.gauges.GetForUpdate(tx, gaugeID); err != nil {
			return err
		}
		created, err := s.ledger.Record(tx, gaugeID, documentRef, actor)
		if err != nil {
			return err
		}
		rec = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("certificate recorded", "gauge", gaugeID, "certificate", rec.ID, "actor", actor)
	return rec, nil
}

// ReleaseResult reports where a verify/release left the gauge.
type ReleaseResult struct {
	GaugeID string       `json:"gaugeId"`
	Status  gauge.Status `json:"status"`
}

// Verify confirms the calibration evidence for a gauge and moves it from
// pending_certificate to pending_release. Blocked with a typed error when
// no current certificate exists.
func (s *WorkflowService) Verify(ctx context.Context, actor, gaugeID string) (*ReleaseResult, error) {
	var result *ReleaseResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, err := s.gauges.GetForUpdate(tx, gaugeID)
		if err != nil {
			return err
		}
		if err := s.verifyLocked(tx, g); err != nil {
			return err
		}
		result = &ReleaseResult{GaugeID: gaugeID, Status: gauge.StatusPendingRelease}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("calibration verified", "gauge", gaugeID, "actor", actor)
	return result, nil
}

// ConfirmLocation completes the release: the operator confirms the
// physical storage location and the gauge returns to available.
func (s *WorkflowService) ConfirmLocation(ctx context.Context, actor, gaugeID, location string) (*ReleaseResult, error) {
	var result *ReleaseResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, err := s.gauges.GetForUpdate(tx, gaugeID)
		if err != nil {
			return err
		}
		if err := s.confirmLocked(tx, g, location); err != nil {
			return err
		}
		result = &ReleaseResult{GaugeID: gaugeID, Status: gauge.StatusAvailable}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("gauge released from calibration", "gauge", gaugeID, "location", location, "actor", actor)
	return result, nil
}

// VerifyAndRelease performs verification and location confirmation in one
// transaction. The gauge still passes through pending_release on the way;
// an empty location defers the confirmation step and leaves the gauge
// waiting in pending_release.
func (s *WorkflowService) VerifyAndRelease(ctx context.Context, actor, gaugeID, location string) (*ReleaseResult, error) {
	var result *ReleaseResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g, err := s.gauges.GetForUpdate(tx, gaugeID)
		if err != nil {
			return err
		}
		if g.Status == gauge.StatusPendingCertificate {
			if err := s.verifyLocked(tx, g); err != nil {
				return err
			}
			g.Status = gauge.StatusPendingRelease
		}
		if location == "" {
			result = &ReleaseResult{GaugeID: gaugeID, Status: g.Status}
			return nil
		}
		if err := s.confirmLocked(tx, g, location); err != nil {
			return err
		}
		result = &ReleaseResult{GaugeID: gaugeID, Status: gauge.StatusAvailable}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("verify and release", "gauge", gaugeID, "status", result.Status, "actor", actor)
	return result, nil
}

// FailCalibration retires a gauge that failed calibration. The companion,
// if any, is orphaned into a spare by the retirement cascade.
func (s *WorkflowService) FailCalibration(ctx context.Context, actor, gaugeID, reason string) (*gauge.CascadeResult, error) {
	g, err := s.gauges.Get(gaugeID)
	if err != nil {
		return nil, err
	}
	if g.Status != gauge.StatusOutForCalibration {
		return nil, gauge.NewError(gauge.CodeInvalidState, gaugeID,
			"gauge "+gaugeID+" is "+string(g.Status)+", not out for calibration")
	}
	if reason == "" {
		reason = "calibration failed"
	}
	return s.cascade.DeleteOrRetire(ctx, actor, gaugeID, true, reason)
}

// CancelBatch cancels a batch that has not been sent.
func (s *WorkflowService) CancelBatch(ctx context.Context, actor, batchID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batch, err := s.batches.GetForUpdate(tx, batchID)
		if err != nil {
			return err
		}
		if batch.Status != BatchPendingSend {
			return gauge.NewError(gauge.CodeInvalidState, "",
				"batch "+batchID+" is "+string(batch.Status)+" and cannot be cancelled")
		}
		return s.batches.UpdateStatus(tx, batchID, BatchCancelled)
	})
	if err != nil {
		return err
	}
	s.logger.Info("calibration batch cancelled", "batch", batchID, "actor", actor)
	return nil
}

// verifyLocked gates and applies pending_certificate -> pending_release.
// The gauge row is already locked by the caller.
func (s *WorkflowService) verifyLocked(tx *gorm.DB, g *gauge.GaugeRecord) error {
	if err := s.machine.ValidateTransition(g.ID, g.Status, gauge.StatusPendingRelease); err != nil {
		return err
	}
	ok, err := s.evidence.HasCurrent(tx, g.ID)
	if err != nil {
		return err
	}
	if !ok {
		return gauge.NewError(gauge.CodeMissingCertificate, g.ID,
			"no current calibration certificate on record for gauge "+g.ID)
	}
	return s.gauges.UpdateStatus(tx, g.ID, gauge.StatusPendingRelease)
}

// confirmLocked applies pending_release -> available with the confirmed
// location. The gauge row is already locked by the caller.
func (s *WorkflowService) confirmLocked(tx *gorm.DB, g *gauge.GaugeRecord, location string) error {
	if location == "" {
		return gauge.NewError(gauge.CodeInvalidState, g.ID,
			"release requires a confirmed storage location")
	}
	if err := s.machine.ValidateTransition(g.ID, g.Status, gauge.StatusAvailable); err != nil {
		return err
	}
	if err := s.gauges.UpdateLocation(tx, g.ID, location); err != nil {
		return err
	}
	return s.gauges.UpdateStatus(tx, g.ID, gauge.StatusAvailable)
}
