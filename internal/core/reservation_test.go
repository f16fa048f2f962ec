package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"nurserycore/pkg/domain"
)

func plannedDraft() Batch {
	draft := batchDraft(StatusPlanned, 0)
	ready := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)
	draft.ReadyDate = &ready
	return draft
}

func TestReservePlanned(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	parent, _, err := svc.CreateBatch(ctx, batchDraft(StatusPotted, 500))
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}

	planned, _, err := svc.ReservePlanned(ctx, parent.ID, plannedDraft(), 50)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if planned.Status != StatusPlanned || !planned.IsGhost() {
		t.Fatalf("planned status: %s", planned.Status)
	}
	if planned.Quantity != 50 || planned.InitialQuantity != 50 {
		t.Fatalf("planned quantities: %+v", planned)
	}
	if planned.ParentBatchID == nil || *planned.ParentBatchID != parent.ID {
		t.Fatalf("parent link: %v", planned.ParentBatchID)
	}

	updatedParent, err := svc.GetBatch(parent.ID)
	if err != nil {
		t.Fatalf("get parent: %v", err)
	}
	if updatedParent.ReservedQuantity != 50 {
		t.Fatalf("reserved: got %d", updatedParent.ReservedQuantity)
	}
	if updatedParent.AvailableQuantity() != 450 {
		t.Fatalf("available: got %d", updatedParent.AvailableQuantity())
	}
}

func TestReservePlannedBoundedByAvailable(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	parent, _, err := svc.CreateBatch(ctx, batchDraft(StatusPotted, 500))
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	if _, _, err := svc.ReservePlanned(ctx, parent.ID, plannedDraft(), 50); err != nil {
		t.Fatalf("first reserve: %v", err)
	}

	// 450 available; asking for 451 must fail without touching anything.
	before, _ := svc.GetBatch(parent.ID)
	_, _, err = svc.ReservePlanned(ctx, parent.ID, plannedDraft(), 451)
	var stockErr domain.ErrInsufficientStock
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if stockErr.Requested != 451 || stockErr.Available != 450 {
		t.Fatalf("stock detail: %+v", stockErr)
	}
	after, _ := svc.GetBatch(parent.ID)
	if after.ReservedQuantity != before.ReservedQuantity || len(after.LogHistory) != len(before.LogHistory) {
		t.Fatalf("failed reserve mutated parent")
	}
	if got := len(svc.ListBatches()); got != 2 {
		t.Fatalf("failed reserve created a batch: %d total", got)
	}

	// Exactly the remaining 450 succeeds.
	if _, _, err := svc.ReservePlanned(ctx, parent.ID, plannedDraft(), 450); err != nil {
		t.Fatalf("reserve remainder: %v", err)
	}
	full, _ := svc.GetBatch(parent.ID)
	if full.AvailableQuantity() != 0 {
		t.Fatalf("available after full reservation: %d", full.AvailableQuantity())
	}
}

func TestReservePlannedRejectsNonPositiveUnits(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	parent, _, err := svc.CreateBatch(ctx, batchDraft(StatusPotted, 100))
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	for _, units := range []int{0, -10} {
		_, _, err := svc.ReservePlanned(ctx, parent.ID, plannedDraft(), units)
		var verr domain.ErrValidation
		if !errors.As(err, &verr) {
			t.Fatalf("units %d: expected ErrValidation, got %v", units, err)
		}
	}
}

func TestReleasePlannedSymmetric(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	parent, _, err := svc.CreateBatch(ctx, batchDraft(StatusPotted, 500))
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	planned, _, err := svc.ReservePlanned(ctx, parent.ID, plannedDraft(), 120)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	released, _, err := svc.ReleasePlanned(ctx, planned.ID)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released.Status != StatusArchived || released.Quantity != 0 {
		t.Fatalf("released ghost: %+v", released)
	}

	after, _ := svc.GetBatch(parent.ID)
	if after.ReservedQuantity != 0 {
		t.Fatalf("reservation not released: %d", after.ReservedQuantity)
	}
	if after.Quantity != 500 {
		t.Fatalf("release touched physical quantity: %d", after.Quantity)
	}
}

func TestReleasePlannedRejectsNonPlanned(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	physical, _, err := svc.CreateBatch(ctx, batchDraft(StatusPotted, 100))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, _, err = svc.ReleasePlanned(ctx, physical.ID)
	var verr domain.ErrValidation
	if !errors.As(err, &verr) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCheckInIncoming(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	incoming, _, err := svc.CreateBatch(ctx, batchDraft(StatusIncoming, 300))
	if err != nil {
		t.Fatalf("create incoming: %v", err)
	}

	checkedIn, _, err := svc.CheckInIncoming(ctx, incoming.ID, StatusPotted)
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if checkedIn.Status != StatusPotted || checkedIn.IsGhost() {
		t.Fatalf("checked-in status: %s", checkedIn.Status)
	}
	if checkedIn.Quantity != 300 {
		t.Fatalf("quantity changed on check-in: %d", checkedIn.Quantity)
	}
	last := checkedIn.LogHistory[len(checkedIn.LogHistory)-1]
	if last.Type != domain.LogTypeCheckedIn {
		t.Fatalf("last entry: %+v", last)
	}
}

func TestCheckInPlannedReleasesParentReservation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	parent, _, err := svc.CreateBatch(ctx, batchDraft(StatusPotted, 500))
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	planned, _, err := svc.ReservePlanned(ctx, parent.ID, plannedDraft(), 80)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	checkedIn, _, err := svc.CheckInIncoming(ctx, planned.ID, StatusPlugsLiners)
	if err != nil {
		t.Fatalf("check in: %v", err)
	}
	if checkedIn.Status != StatusPlugsLiners {
		t.Fatalf("status: %s", checkedIn.Status)
	}

	after, _ := svc.GetBatch(parent.ID)
	if after.ReservedQuantity != 0 {
		t.Fatalf("reservation not released on check-in: %d", after.ReservedQuantity)
	}
}

func TestCheckInRejectsBadTargets(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	incoming, _, err := svc.CreateBatch(ctx, batchDraft(StatusIncoming, 100))
	if err != nil {
		t.Fatalf("create incoming: %v", err)
	}
	for _, target := range []BatchStatus{StatusIncoming, StatusPlanned, StatusArchived, "seedling"} {
		_, _, err := svc.CheckInIncoming(ctx, incoming.ID, target)
		var verr domain.ErrValidation
		if !errors.As(err, &verr) {
			t.Fatalf("target %s: expected ErrValidation, got %v", target, err)
		}
	}

	physical, _, err := svc.CreateBatch(ctx, batchDraft(StatusPotted, 100))
	if err != nil {
		t.Fatalf("create physical: %v", err)
	}
	_, _, err = svc.CheckInIncoming(ctx, physical.ID, StatusReadyForSale)
	var verr domain.ErrValidation
	if !errors.As(err, &verr) {
		t.Fatalf("expected ErrValidation for non-ghost source, got %v", err)
	}
}
