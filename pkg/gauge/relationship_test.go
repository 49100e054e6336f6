package gauge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newServices(t *testing.T) (*gorm.DB, *SetService, *CascadeService, *HistoryStore) {
	t.Helper()
	db := newTestDB(t)
	gauges := NewGaugeStore(db)
	history := NewHistoryStore(db)
	sets := NewSetService(db, gauges, NewIdentifierAllocator(), history)
	cascades := NewCascadeService(db, gauges, history)
	return db, sets, cascades, history
}

func ringPayload(role Role) NewGaugePayload {
	return NewGaugePayload{
		EquipmentType: EquipmentThreadRing,
		Category:      "thread_ring",
		Spec:          Spec{Size: "M6x1.0", Class: "6g"},
		Role:          role,
		Location:      "A-01",
	}
}

func makeSet(t *testing.T, sets *SetService) *SetView {
	t.Helper()
	view, err := sets.CreateSet(context.Background(), "alice", ringPayload(RoleGo), ringPayload(RoleNoGo), "")
	require.NoError(t, err)
	return view
}

func TestCreateSet_AllocatesLinkedPair(t *testing.T) {
	db, sets, _, history := newServices(t)
	ctx := context.Background()

	view, err := sets.CreateSet(ctx, "alice", ringPayload(RoleGo), ringPayload(RoleNoGo), "")
	require.NoError(t, err)

	assert.Equal(t, "TR0001", view.BaseID)
	assert.Equal(t, "TR0001A", view.Go.ID)
	assert.Equal(t, "TR0001B", view.NoGo.ID)
	require.NotNil(t, view.Go.CompanionID)
	require.NotNil(t, view.NoGo.CompanionID)
	assert.Equal(t, "TR0001B", *view.Go.CompanionID)
	assert.Equal(t, "TR0001A", *view.NoGo.CompanionID)
	assert.Equal(t, StatusAvailable, view.Go.Status)
	assert.Equal(t, "available", view.Status.Usability)
	assert.False(t, view.Go.CustomIdentifier)

	count, err := history.CountByAction(ActionCreatedTogether)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Next set in the same category gets the next base.
	second, err := sets.CreateSet(ctx, "alice", ringPayload(RoleGo), ringPayload(RoleNoGo), "")
	require.NoError(t, err)
	assert.Equal(t, "TR0002", second.BaseID)

	var total int64
	require.NoError(t, db.Model(&GaugeRecord{}).Count(&total).Error)
	assert.Equal(t, int64(4), total)
}

func TestCreateSet_PendingQCIntake(t *testing.T) {
	_, sets, _, _ := newServices(t)

	goPayload := ringPayload(RoleGo)
	noGoPayload := ringPayload(RoleNoGo)
	goPayload.PendingQC = true
	noGoPayload.PendingQC = true

	view, err := sets.CreateSet(context.Background(), "alice", goPayload, noGoPayload, "")
	require.NoError(t, err)
	assert.Equal(t, StatusPendingQC, view.Go.Status)
	assert.Equal(t, StatusPendingQC, view.NoGo.Status)
	assert.Contains(t, view.Status.Usability, "pending QC")
}

func TestCreateSet_RequiresComplementaryRoles(t *testing.T) {
	_, sets, _, _ := newServices(t)

	_, err := sets.CreateSet(context.Background(), "alice", ringPayload(RoleGo), ringPayload(RoleGo), "")
	require.Error(t, err)
	assert.Equal(t, CodeSpecMismatch, CodeOf(err))
}

func TestCreateSet_SpecMismatchLeavesNothingBehind(t *testing.T) {
	db, sets, _, _ := newServices(t)

	noGo := ringPayload(RoleNoGo)
	noGo.Spec.Class = "6h"

	_, err := sets.CreateSet(context.Background(), "alice", ringPayload(RoleGo), noGo, "")
	require.Error(t, err)
	assert.Equal(t, CodeSpecMismatch, CodeOf(err))

	var gauges, entries int64
	require.NoError(t, db.Model(&GaugeRecord{}).Count(&gauges).Error)
	require.NoError(t, db.Model(&HistoryRecord{}).Count(&entries).Error)
	assert.Zero(t, gauges)
	assert.Zero(t, entries)
}

func TestCreateSet_SpecKeyIsCaseInsensitive(t *testing.T) {
	_, sets, _, _ := newServices(t)

	noGo := ringPayload(RoleNoGo)
	noGo.Spec = Spec{Size: "m6X1.0", Class: " 6G "}

	_, err := sets.CreateSet(context.Background(), "alice", ringPayload(RoleGo), noGo, "")
	require.NoError(t, err)
}

func TestCreateSet_OwnershipMismatch(t *testing.T) {
	_, sets, _, _ := newServices(t)

	noGo := ringPayload(RoleNoGo)
	noGo.Ownership = OwnershipCustomer
	noGo.CustomerID = "acme"

	_, err := sets.CreateSet(context.Background(), "alice", ringPayload(RoleGo), noGo, "")
	require.Error(t, err)
	assert.Equal(t, CodeOwnershipMismatch, CodeOf(err))
}

func TestCreateSet_CustomerMismatch(t *testing.T) {
	_, sets, _, _ := newServices(t)

	goPayload := ringPayload(RoleGo)
	noGoPayload := ringPayload(RoleNoGo)
	goPayload.Ownership = OwnershipCustomer
	goPayload.CustomerID = "acme"
	noGoPayload.Ownership = OwnershipCustomer
	noGoPayload.CustomerID = "globex"

	_, err := sets.CreateSet(context.Background(), "alice", goPayload, noGoPayload, "")
	require.Error(t, err)
	assert.Equal(t, CodeOwnershipMismatch, CodeOf(err))
}

func TestCreateSet_UnpairableEquipment(t *testing.T) {
	_, sets, _, _ := newServices(t)

	goPayload := ringPayload(RoleGo)
	noGoPayload := ringPayload(RoleNoGo)
	goPayload.EquipmentType = EquipmentPlainPlug
	noGoPayload.EquipmentType = EquipmentPlainPlug

	_, err := sets.CreateSet(context.Background(), "alice", goPayload, noGoPayload, "")
	require.Error(t, err)
	assert.Equal(t, CodeSpecMismatch, CodeOf(err))
}

func TestCreateSet_CustomBase(t *testing.T) {
	_, sets, _, _ := newServices(t)
	ctx := context.Background()

	view, err := sets.CreateSet(ctx, "alice", ringPayload(RoleGo), ringPayload(RoleNoGo), "CUST-01")
	require.NoError(t, err)
	assert.Equal(t, "CUST-01", view.BaseID)
	assert.Equal(t, "CUST-01A", view.Go.ID)
	assert.Equal(t, "CUST-01B", view.NoGo.ID)
	assert.True(t, view.Go.CustomIdentifier)

	// The same base again is rejected with the next free identifier offered.
	_, err = sets.CreateSet(ctx, "alice", ringPayload(RoleGo), ringPayload(RoleNoGo), "CUST-01")
	require.Error(t, err)
	assert.Equal(t, CodeDuplicateIdentifier, CodeOf(err))
	assert.Contains(t, err.Error(), "next free identifier is TR0001")
}

func TestCreateSet_CustomBaseBadFormat(t *testing.T) {
	_, sets, _, _ := newServices(t)

	_, err := sets.CreateSet(context.Background(), "alice", ringPayload(RoleGo), ringPayload(RoleNoGo), "x")
	require.Error(t, err)
	assert.Equal(t, CodeDuplicateIdentifier, CodeOf(err))
}

func TestPairSpares(t *testing.T) {
	db, sets, _, history := newServices(t)

	seedSpare(t, db, "TR0010A", RoleGo, func(g *GaugeRecord) { g.Location = "A-01" })
	seedSpare(t, db, "TR0011B", RoleNoGo, func(g *GaugeRecord) { g.Location = "B-07" })

	view, err := sets.PairSpares(context.Background(), "alice", "TR0010A", "TR0011B", "C-03")
	require.NoError(t, err)

	assert.Equal(t, "TR0010A", view.Go.ID)
	assert.Equal(t, "TR0011B", view.NoGo.ID)
	require.NotNil(t, view.Go.CompanionID)
	assert.Equal(t, "TR0011B", *view.Go.CompanionID)
	assert.Equal(t, "C-03", view.Go.Location)
	assert.Equal(t, "C-03", view.NoGo.Location)

	count, err := history.CountByAction(ActionPaired)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestPairSpares_WithItself(t *testing.T) {
	db, sets, _, _ := newServices(t)
	seedSpare(t, db, "TR0010A", RoleGo)

	_, err := sets.PairSpares(context.Background(), "alice", "TR0010A", "TR0010A", "C-03")
	require.Error(t, err)
	assert.Equal(t, CodeInvalidState, CodeOf(err))
}

func TestPairSpares_AlreadyCompanioned(t *testing.T) {
	db, sets, _, _ := newServices(t)

	makeSet(t, sets)
	seedSpare(t, db, "TR0010B", RoleNoGo)

	_, err := sets.PairSpares(context.Background(), "alice", "TR0001A", "TR0010B", "C-03")
	require.Error(t, err)
	assert.Equal(t, CodeAlreadyCompanioned, CodeOf(err))
	assert.Contains(t, err.Error(), "TR0001A")
}

func TestPairSpares_PendingQCRejected(t *testing.T) {
	db, sets, _, _ := newServices(t)

	seedSpare(t, db, "TR0010A", RoleGo, func(g *GaugeRecord) { g.Status = StatusPendingQC })
	seedSpare(t, db, "TR0011B", RoleNoGo)

	_, err := sets.PairSpares(context.Background(), "alice", "TR0010A", "TR0011B", "C-03")
	require.Error(t, err)
	assert.Equal(t, CodeInvalidState, CodeOf(err))
	assert.Contains(t, err.Error(), "pending QC")
}

func TestPairSpares_SpecMismatchNamesGauge(t *testing.T) {
	db, sets, _, _ := newServices(t)

	seedSpare(t, db, "TR0010A", RoleGo)
	seedSpare(t, db, "TR0011B", RoleNoGo, func(g *GaugeRecord) {
		g.Spec = Spec{Size: "M8x1.25", Class: "6g"}
		g.SpecKey = g.Spec.Key()
	})

	_, err := sets.PairSpares(context.Background(), "alice", "TR0010A", "TR0011B", "C-03")
	require.Error(t, err)
	assert.Equal(t, CodeSpecMismatch, CodeOf(err))
	assert.Contains(t, err.Error(), "TR0011B")
}

func TestPairSpares_SameRole(t *testing.T) {
	db, sets, _, _ := newServices(t)

	seedSpare(t, db, "TR0010A", RoleGo)
	seedSpare(t, db, "TR0011A", RoleGo)

	_, err := sets.PairSpares(context.Background(), "alice", "TR0010A", "TR0011A", "C-03")
	require.Error(t, err)
	assert.Equal(t, CodeSpecMismatch, CodeOf(err))
}

func TestUnpairSet_AlwaysAllowed(t *testing.T) {
	db, sets, cascades, history := newServices(t)
	ctx := context.Background()

	makeSet(t, sets)
	// Even a set that is out of service dissolves without complaint.
	_, err := cascades.UpdateStatus(ctx, "alice", "TR0001A", StatusOutOfService, "dropped")
	require.NoError(t, err)

	require.NoError(t, sets.UnpairSet(ctx, "alice", "TR0001B", "worn"))

	store := NewGaugeStore(db)
	a, err := store.Get("TR0001A")
	require.NoError(t, err)
	b, err := store.Get("TR0001B")
	require.NoError(t, err)
	assert.True(t, a.IsSpare())
	assert.True(t, b.IsSpare())
	// Locations and statuses stay as they were.
	assert.Equal(t, "A-01", a.Location)
	assert.Equal(t, StatusOutOfService, a.Status)

	count, err := history.CountByAction(ActionUnpaired)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestUnpairSet_SpareRejected(t *testing.T) {
	db, sets, _, _ := newServices(t)
	seedSpare(t, db, "TR0010A", RoleGo)

	err := sets.UnpairSet(context.Background(), "alice", "TR0010A", "")
	require.Error(t, err)
	assert.Equal(t, CodeInvalidState, CodeOf(err))
}

func TestReplaceMember(t *testing.T) {
	db, sets, _, history := newServices(t)
	ctx := context.Background()

	makeSet(t, sets)
	seedSpare(t, db, "TR0010B", RoleNoGo, func(g *GaugeRecord) { g.Location = "Z-99" })

	view, err := sets.ReplaceMember(ctx, "alice", "TR0001B", "TR0010B")
	require.NoError(t, err)

	assert.Equal(t, "TR0001A", view.Go.ID)
	assert.Equal(t, "TR0010B", view.NoGo.ID)
	require.NotNil(t, view.Go.CompanionID)
	assert.Equal(t, "TR0010B", *view.Go.CompanionID)
	// The replacement joins the remaining member's location.
	assert.Equal(t, "A-01", view.NoGo.Location)

	store := NewGaugeStore(db)
	outgoing, err := store.Get("TR0001B")
	require.NoError(t, err)
	assert.True(t, outgoing.IsSpare())

	count, err := history.CountByAction(ActionReplaced)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestReplaceMember_CheckedOutSetRejected(t *testing.T) {
	db, sets, cascades, _ := newServices(t)
	ctx := context.Background()

	makeSet(t, sets)
	_, err := cascades.Checkout(ctx, "alice", "TR0001A")
	require.NoError(t, err)
	seedSpare(t, db, "TR0010B", RoleNoGo)

	_, err = sets.ReplaceMember(ctx, "alice", "TR0001B", "TR0010B")
	require.Error(t, err)
	assert.Equal(t, CodeInvalidState, CodeOf(err))
	assert.Contains(t, err.Error(), "checked out")
}

func TestReplaceMember_WrongRole(t *testing.T) {
	db, sets, _, _ := newServices(t)

	makeSet(t, sets)
	seedSpare(t, db, "TR0010A", RoleGo)

	_, err := sets.ReplaceMember(context.Background(), "alice", "TR0001B", "TR0010A")
	require.Error(t, err)
	assert.Equal(t, CodeSpecMismatch, CodeOf(err))
	assert.Contains(t, err.Error(), "role")
}

func TestReplaceMember_ReplacementCompanioned(t *testing.T) {
	_, sets, _, _ := newServices(t)
	ctx := context.Background()

	makeSet(t, sets)
	other, err := sets.CreateSet(ctx, "alice", ringPayload(RoleGo), ringPayload(RoleNoGo), "")
	require.NoError(t, err)

	_, err = sets.ReplaceMember(ctx, "alice", "TR0001B", other.NoGo.ID)
	require.Error(t, err)
	assert.Equal(t, CodeAlreadyCompanioned, CodeOf(err))
}

func TestGetSet_EitherMember(t *testing.T) {
	_, sets, _, _ := newServices(t)
	ctx := context.Background()

	makeSet(t, sets)

	byGo, err := sets.GetSet(ctx, "TR0001A")
	require.NoError(t, err)
	byNoGo, err := sets.GetSet(ctx, "TR0001B")
	require.NoError(t, err)
	assert.Equal(t, byGo.BaseID, byNoGo.BaseID)
	assert.Equal(t, "TR0001A", byNoGo.Go.ID)

	_, err = sets.GetSet(ctx, "TR9999A")
	require.Error(t, err)
	assert.Equal(t, CodeNotFound, CodeOf(err))
}
