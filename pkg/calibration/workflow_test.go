package calibration

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/toolcrib/gaugetrack/pkg/gauge"
)

// newTestDB creates an in-memory SQLite DB with the gauge and calibration
// tables migrated.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, gauge.NewGaugeStore(db).AutoMigrate())
	require.NoError(t, NewBatchStore(db).AutoMigrate())
	return db
}

func newWorkflow(t *testing.T) (*gorm.DB, *WorkflowService, *CertificateStore) {
	t.Helper()
	db := newTestDB(t)
	gauges := gauge.NewGaugeStore(db)
	history := gauge.NewHistoryStore(db)
	cascade := gauge.NewCascadeService(db, gauges, history)
	certs := NewCertificateStore(db)
	workflow := NewWorkflowService(db, NewBatchStore(db), certs, nil, gauges, cascade)
	return db, workflow, certs
}

func seedGauge(t *testing.T, db *gorm.DB, id string, status gauge.Status) *gauge.GaugeRecord {
	t.Helper()
	spec := gauge.Spec{Size: "M6x1.0", Class: "6g"}
	rec := &gauge.GaugeRecord{
		ID:            id,
		BaseID:        gauge.BaseOf(id),
		EquipmentType: gauge.EquipmentThreadRing,
		Category:      "thread_ring",
		Spec:          spec,
		SpecKey:       spec.Key(),
		Role:          gauge.RoleGo,
		Status:        status,
		Location:      "A-01",
		Active:        true,
		Ownership:     gauge.OwnershipOrganization,
		CreatedBy:     "test",
	}
	require.NoError(t, gauge.NewGaugeStore(db).Create(db, rec))
	return rec
}

func seedPair(t *testing.T, db *gorm.DB, base string, status gauge.Status) (string, string) {
	t.Helper()
	goID, noGoID := gauge.MemberIdentifiers(base)
	seedGauge(t, db, goID, status)
	noGo := seedGauge(t, db, noGoID, status)
	noGo.Role = gauge.RoleNoGo
	require.NoError(t, db.Model(noGo).Update("role", gauge.RoleNoGo).Error)
	require.NoError(t, gauge.NewGaugeStore(db).LinkCompanions(db, goID, noGoID))
	return goID, noGoID
}

func mustStatus(t *testing.T, db *gorm.DB, id string, want gauge.Status) {
	t.Helper()
	got, err := gauge.NewGaugeStore(db).Get(id)
	require.NoError(t, err)
	assert.Equal(t, want, got.Status, id)
}

func TestCreateBatch(t *testing.T) {
	_, workflow, _ := newWorkflow(t)
	ctx := context.Background()

	batch, err := workflow.CreateBatch(ctx, "alice", SourceExternal, "vendor-123")
	require.NoError(t, err)
	assert.NotEmpty(t, batch.ID)
	assert.Equal(t, BatchPendingSend, batch.Status)
	assert.Equal(t, "vendor-123", batch.VendorRef)
	assert.Equal(t, "alice", batch.CreatedBy)

	_, err = workflow.CreateBatch(ctx, "alice", Source("courier"), "")
	require.Error(t, err)
	assert.Equal(t, gauge.CodeInvalidState, gauge.CodeOf(err))
}

func TestAddGauge_StatusRules(t *testing.T) {
	db, workflow, _ := newWorkflow(t)
	ctx := context.Background()

	seedGauge(t, db, "TR0001A", gauge.StatusAvailable)
	seedGauge(t, db, "TR0002A", gauge.StatusCalibrationDue)
	seedGauge(t, db, "TR0003A", gauge.StatusCheckedOut)

	batch, err := workflow.CreateBatch(ctx, "alice", SourceExternal, "")
	require.NoError(t, err)

	require.NoError(t, workflow.AddGauge(ctx, batch.ID, "TR0001A"))
	require.NoError(t, workflow.AddGauge(ctx, batch.ID, "TR0002A"))

	err = workflow.AddGauge(ctx, batch.ID, "TR0003A")
	require.Error(t, err)
	assert.Equal(t, gauge.CodeInvalidState, gauge.CodeOf(err))

	// Duplicate membership is rejected.
	err = workflow.AddGauge(ctx, batch.ID, "TR0001A")
	require.Error(t, err)
	assert.Equal(t, gauge.CodeInvalidState, gauge.CodeOf(err))

	err = workflow.AddGauge(ctx, batch.ID, "TR9999A")
	require.Error(t, err)
	assert.Equal(t, gauge.CodeNotFound, gauge.CodeOf(err))
}

func TestSend(t *testing.T) {
	db, workflow, _ := newWorkflow(t)
	ctx := context.Background()

	goID, noGoID := seedPair(t, db, "TR0001", gauge.StatusAvailable)
	batch, err := workflow.CreateBatch(ctx, "alice", SourceExternal, "")
	require.NoError(t, err)
	require.NoError(t, workflow.AddGauge(ctx, batch.ID, goID))
	require.NoError(t, workflow.AddGauge(ctx, batch.ID, noGoID))

	result, err := workflow.Send(ctx, "alice", batch.ID)
	require.NoError(t, err)
	assert.Equal(t, batch.ID, result.BatchID)
	assert.Len(t, result.GaugeIDs, 2)

	mustStatus(t, db, goID, gauge.StatusOutForCalibration)
	mustStatus(t, db, noGoID, gauge.StatusOutForCalibration)

	sent, err := NewBatchStore(db).Get(batch.ID)
	require.NoError(t, err)
	assert.Equal(t, BatchSent, sent.Status)
	assert.NotNil(t, sent.SentAt)

	// Sending twice, or adding after the send, is rejected.
	_, err = workflow.Send(ctx, "alice", batch.ID)
	require.Error(t, err)
	assert.Equal(t, gauge.CodeInvalidState, gauge.CodeOf(err))
	err = workflow.AddGauge(ctx, batch.ID, goID)
	require.Error(t, err)
	assert.Equal(t, gauge.CodeInvalidState, gauge.CodeOf(err))
}

func TestSend_EmptyBatch(t *testing.T) {
	_, workflow, _ := newWorkflow(t)
	ctx := context.Background()

	batch, err := workflow.CreateBatch(ctx, "alice", SourceInternal, "")
	require.NoError(t, err)

	_, err = workflow.Send(ctx, "alice", batch.ID)
	require.Error(t, err)
	assert.Equal(t, gauge.CodeInvalidState, gauge.CodeOf(err))
}

func TestReceive_PartialThenComplete(t *testing.T) {
	db, workflow, _ := newWorkflow(t)
	ctx := context.Background()

	goID, noGoID := seedPair(t, db, "TR0001", gauge.StatusAvailable)
	batch, err := workflow.CreateBatch(ctx, "alice", SourceExternal, "")
	require.NoError(t, err)
	require.NoError(t, workflow.AddGauge(ctx, batch.ID, goID))
	require.NoError(t, workflow.AddGauge(ctx, batch.ID, noGoID))
	_, err = workflow.Send(ctx, "alice", batch.ID)
	require.NoError(t, err)

	require.NoError(t, workflow.Receive(ctx, "alice", batch.ID, []string{goID}))

	mustStatus(t, db, goID, gauge.StatusPendingCertificate)
	mustStatus(t, db, noGoID, gauge.StatusOutForCalibration)
	received, err := gauge.NewGaugeStore(db).Get(goID)
	require.NoError(t, err)
	assert.True(t, received.Sealed)

	store := NewBatchStore(db)
	partial, err := store.Get(batch.ID)
	require.NoError(t, err)
	assert.Equal(t, BatchSent, partial.Status)

	// The last member coming back completes the batch.
	require.NoError(t, workflow.Receive(ctx, "alice", batch.ID, []string{noGoID}))
	complete, err := store.Get(batch.ID)
	require.NoError(t, err)
	assert.Equal(t, BatchCompleted, complete.Status)
	assert.NotNil(t, complete.CompletedAt)
}

func TestReceive_NonMemberRejected(t *testing.T) {
	db, workflow, _ := newWorkflow(t)
	ctx := context.Background()

	goID, _ := seedPair(t, db, "TR0001", gauge.StatusAvailable)
	seedGauge(t, db, "TR0009A", gauge.StatusAvailable)
	batch, err := workflow.CreateBatch(ctx, "alice", SourceExternal, "")
	require.NoError(t, err)
	require.NoError(t, workflow.AddGauge(ctx, batch.ID, goID))
	_, err = workflow.Send(ctx, "alice", batch.ID)
	require.NoError(t, err)

	err = workflow.Receive(ctx, "alice", batch.ID, []string{"TR0009A"})
	require.Error(t, err)
	assert.Equal(t, gauge.CodeInvalidState, gauge.CodeOf(err))
}

func TestReceive_BeforeSendRejected(t *testing.T) {
	db, workflow, _ := newWorkflow(t)
	ctx := context.Background()

	seedGauge(t, db, "TR0001A", gauge.StatusAvailable)
	batch, err := workflow.CreateBatch(ctx, "alice", SourceExternal, "")
	require.NoError(t, err)
	require.NoError(t, workflow.AddGauge(ctx, batch.ID, "TR0001A"))

	err = workflow.Receive(ctx, "alice", batch.ID, []string{"TR0001A"})
	require.Error(t, err)
	assert.Equal(t, gauge.CodeInvalidState, gauge.CodeOf(err))
}

func TestVerify_MissingCertificateBlocks(t *testing.T) {
	db, workflow, _ := newWorkflow(t)
	ctx := context.Background()

	seedGauge(t, db, "TR0001A", gauge.StatusPendingCertificate)

	_, err := workflow.Verify(ctx, "alice", "TR0001A")
	require.Error(t, err)
	assert.Equal(t, gauge.CodeMissingCertificate, gauge.CodeOf(err))
	mustStatus(t, db, "TR0001A", gauge.StatusPendingCertificate)
}

func TestUploadCertificate_NeverChangesStatus(t *testing.T) {
	db, workflow, _ := newWorkflow(t)
	ctx := context.Background()

	seedGauge(t, db, "TR0001A", gauge.StatusPendingCertificate)

	rec, err := workflow.UploadCertificate(ctx, "carol", "TR0001A", "docs/cert-001.pdf")
	require.NoError(t, err)
	assert.True(t, rec.Current)
	assert.Equal(t, "carol", rec.UploadedBy)

	mustStatus(t, db, "TR0001A", gauge.StatusPendingCertificate)
}

func TestVerifyThenConfirmLocation(t *testing.T) {
	db, workflow, _ := newWorkflow(t)
	ctx := context.Background()

	seedGauge(t, db, "TR0001A", gauge.StatusPendingCertificate)
	_, err := workflow.UploadCertificate(ctx, "carol", "TR0001A", "docs/cert-001.pdf")
	require.NoError(t, err)

	verified, err := workflow.Verify(ctx, "alice", "TR0001A")
	require.NoError(t, err)
	assert.Equal(t, gauge.StatusPendingRelease, verified.Status)
	mustStatus(t, db, "TR0001A", gauge.StatusPendingRelease)

	// Release without a location confirmation is refused.
	_, err = workflow.ConfirmLocation(ctx, "alice", "TR0001A", "")
	require.Error(t, err)
	assert.Equal(t, gauge.CodeInvalidState, gauge.CodeOf(err))

	released, err := workflow.ConfirmLocation(ctx, "alice", "TR0001A", "B-14")
	require.NoError(t, err)
	assert.Equal(t, gauge.StatusAvailable, released.Status)

	got, err := gauge.NewGaugeStore(db).Get("TR0001A")
	require.NoError(t, err)
	assert.Equal(t, gauge.StatusAvailable, got.Status)
	assert.Equal(t, "B-14", got.Location)
}

// Full chain: send, receive, certificate, release.
func TestCalibrationRoundTrip(t *testing.T) {
	db, workflow, _ := newWorkflow(t)
	ctx := context.Background()

	goID, noGoID := seedPair(t, db, "TR0001", gauge.StatusCalibrationDue)
	batch, err := workflow.CreateBatch(ctx, "alice", SourceExternal, "vendor-7")
	require.NoError(t, err)
	require.NoError(t, workflow.AddGauge(ctx, batch.ID, goID))
	require.NoError(t, workflow.AddGauge(ctx, batch.ID, noGoID))
	_, err = workflow.Send(ctx, "alice", batch.ID)
	require.NoError(t, err)
	require.NoError(t, workflow.Receive(ctx, "alice", batch.ID, []string{goID, noGoID}))

	// Release without evidence is blocked.
	_, err = workflow.VerifyAndRelease(ctx, "dana", goID, "B-14")
	require.Error(t, err)
	assert.Equal(t, gauge.CodeMissingCertificate, gauge.CodeOf(err))

	for _, id := range []string{goID, noGoID} {
		_, err = workflow.UploadCertificate(ctx, "carol", id, "docs/"+id+".pdf")
		require.NoError(t, err)
		result, err := workflow.VerifyAndRelease(ctx, "dana", id, "B-14")
		require.NoError(t, err)
		assert.Equal(t, gauge.StatusAvailable, result.Status)
	}

	// Back in service, still sealed until the next checkout.
	for _, id := range []string{goID, noGoID} {
		got, err := gauge.NewGaugeStore(db).Get(id)
		require.NoError(t, err)
		assert.Equal(t, gauge.StatusAvailable, got.Status)
		assert.Equal(t, "B-14", got.Location)
		assert.True(t, got.Sealed)
	}
}

func TestVerifyAndRelease_DeferredLocation(t *testing.T) {
	db, workflow, _ := newWorkflow(t)
	ctx := context.Background()

	seedGauge(t, db, "TR0001A", gauge.StatusPendingCertificate)
	_, err := workflow.UploadCertificate(ctx, "carol", "TR0001A", "docs/cert-001.pdf")
	require.NoError(t, err)

	result, err := workflow.VerifyAndRelease(ctx, "dana", "TR0001A", "")
	require.NoError(t, err)
	assert.Equal(t, gauge.StatusPendingRelease, result.Status)
	mustStatus(t, db, "TR0001A", gauge.StatusPendingRelease)

	result, err = workflow.VerifyAndRelease(ctx, "dana", "TR0001A", "B-14")
	require.NoError(t, err)
	assert.Equal(t, gauge.StatusAvailable, result.Status)
}

func TestFailCalibration(t *testing.T) {
	db, workflow, _ := newWorkflow(t)
	ctx := context.Background()

	goID, noGoID := seedPair(t, db, "TR0001", gauge.StatusOutForCalibration)

	result, err := workflow.FailCalibration(ctx, "alice", goID, "out of tolerance")
	require.NoError(t, err)
	assert.True(t, result.Cascaded)

	mustStatus(t, db, goID, gauge.StatusRetired)
	orphan, err := gauge.NewGaugeStore(db).Get(noGoID)
	require.NoError(t, err)
	assert.True(t, orphan.IsSpare())
	assert.Equal(t, gauge.StatusOutForCalibration, orphan.Status)

	// Only out_for_calibration gauges fail calibration.
	_, err = workflow.FailCalibration(ctx, "alice", noGoID, "")
	require.NoError(t, err)
	seedGauge(t, db, "TR0009A", gauge.StatusAvailable)
	_, err = workflow.FailCalibration(ctx, "alice", "TR0009A", "")
	require.Error(t, err)
	assert.Equal(t, gauge.CodeInvalidState, gauge.CodeOf(err))
}

func TestCancelBatch(t *testing.T) {
	db, workflow, _ := newWorkflow(t)
	ctx := context.Background()

	batch, err := workflow.CreateBatch(ctx, "alice", SourceExternal, "")
	require.NoError(t, err)
	require.NoError(t, workflow.CancelBatch(ctx, "alice", batch.ID))

	got, err := NewBatchStore(db).Get(batch.ID)
	require.NoError(t, err)
	assert.Equal(t, BatchCancelled, got.Status)

	// A sent batch cannot be cancelled.
	seedGauge(t, db, "TR0001A", gauge.StatusAvailable)
	sent, err := workflow.CreateBatch(ctx, "alice", SourceExternal, "")
	require.NoError(t, err)
	require.NoError(t, workflow.AddGauge(ctx, sent.ID, "TR0001A"))
	_, err = workflow.Send(ctx, "alice", sent.ID)
	require.NoError(t, err)
	err = workflow.CancelBatch(ctx, "alice", sent.ID)
	require.Error(t, err)
	assert.Equal(t, gauge.CodeInvalidState, gauge.CodeOf(err))
}
