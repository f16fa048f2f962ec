package core

import (
	"context"
	"fmt"
	"time"

	"nurserycore/pkg/domain"
)

// ReservePlanned creates a Planned ghost batch drawing units from the parent
// batch and increments the parent's reservation in the same transaction. The
// request fails with ErrInsufficientStock when units exceed the parent's
// available (unreserved) quantity, and nothing is written.
func (s *Service) ReservePlanned(ctx context.Context, parentID string, draft Batch, units int) (Batch, Result, error) {
	ctx, finish := s.instrument(ctx, "reserve_planned")
	var planned Batch
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		parent, ok := tx.FindBatch(parentID)
		if !ok {
			return domain.ErrNotFound{Entity: EntityBatch, ID: parentID}
		}
		if units <= 0 {
			return domain.ErrValidation{Field: "units", Reason: "must be positive"}
		}
		if available := parent.AvailableQuantity(); units > available {
			return domain.ErrInsufficientStock{BatchID: parentID, Requested: units, Available: available}
		}

		now := s.opts.clock.Now()
		qty := units
		draft.Status = StatusPlanned
		draft.Quantity = units
		draft.ParentBatchID = &parentID
		if err := validateBatchDraft(draft); err != nil {
			return err
		}
		number, err := allocateUnusedNumber(tx, draft.Status)
		if err != nil {
			return err
		}
		draft.BatchNumber = number
		draft.InitialQuantity = units
		if draft.PlantingDate.IsZero() {
			draft.PlantingDate = now
		}
		draft.LogHistory = []LogEntry{{
			Date: now,
			Type: domain.LogTypeReserved,
			Note: fmt.Sprintf("planned %d units against %s", units, parent.BatchNumber),
			Qty:  &qty,
		}}
		planned, err = tx.CreateBatch(draft)
		if err != nil {
			return err
		}

		_, err = tx.UpdateBatch(parentID, func(b *Batch) error {
			reserved := units
			b.ReservedQuantity += units
			b.LogHistory = append(b.LogHistory, LogEntry{
				Date: now,
				Type: domain.LogTypeReserved,
				Note: fmt.Sprintf("%d units reserved by planned batch %s", units, planned.BatchNumber),
				Qty:  &reserved,
			})
			return nil
		})
		return err
	})
	finish(planned.ID, err)
	return planned, res, err
}

// ReleasePlanned cancels a planned allocation: the ghost batch is archived
// and the parent's reservation is symmetrically decremented in the same
// transaction.
func (s *Service) ReleasePlanned(ctx context.Context, plannedID string) (Batch, Result, error) {
	ctx, finish := s.instrument(ctx, "release_planned")
	var released Batch
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		planned, ok := tx.FindBatch(plannedID)
		if !ok {
			return domain.ErrNotFound{Entity: EntityBatch, ID: plannedID}
		}
		if planned.Status != StatusPlanned {
			return domain.ErrValidation{Field: "status", Reason: fmt.Sprintf("batch %s is not a planned allocation", planned.BatchNumber)}
		}

		now := s.opts.clock.Now()
		units := planned.Quantity
		var err error
		released, err = tx.UpdateBatch(plannedID, func(b *Batch) error {
			held := b.Quantity
			b.LogHistory = append(b.LogHistory, LogEntry{
				Date: now,
				Type: domain.LogTypeReleased,
				Note: fmt.Sprintf("planned allocation of %d units cancelled", held),
				Qty:  &held,
			})
			b.Status = StatusArchived
			b.Quantity = 0
			return nil
		})
		if err != nil {
			return err
		}

		if planned.ParentBatchID != nil {
			if err := releaseParentReservation(tx, *planned.ParentBatchID, planned.BatchNumber, units, now); err != nil {
				return err
			}
		}
		return nil
	})
	finish(plannedID, err)
	return released, res, err
}

// CheckInIncoming converts a ghost batch into physical inventory at the given
// production status. Incoming batches have no parent (they represent external
// supply) so no quantity arithmetic applies; checking in a Planned batch also
// releases its parent's reservation.
func (s *Service) CheckInIncoming(ctx context.Context, id string, target BatchStatus) (Batch, Result, error) {
	ctx, finish := s.instrument(ctx, "check_in_incoming")
	var checkedIn Batch
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		ghost, ok := tx.FindBatch(id)
		if !ok {
			return domain.ErrNotFound{Entity: EntityBatch, ID: id}
		}
		if !ghost.IsGhost() {
			return domain.ErrValidation{Field: "status", Reason: fmt.Sprintf("batch %s is not a ghost batch", ghost.BatchNumber)}
		}
		if !target.Valid() || target.IsGhost() || target == StatusArchived {
			return domain.ErrValidation{Field: "target", Reason: fmt.Sprintf("cannot check in to status %q", target)}
		}

		now := s.opts.clock.Now()
		var err error
		checkedIn, err = tx.UpdateBatch(id, func(b *Batch) error {
			b.LogHistory = append(b.LogHistory, LogEntry{
				Date: now,
				Type: domain.LogTypeCheckedIn,
				Note: fmt.Sprintf("checked in as %s", target),
			})
			b.Status = target
			return nil
		})
		if err != nil {
			return err
		}

		if ghost.Status == StatusPlanned && ghost.ParentBatchID != nil {
			if err := releaseParentReservation(tx, *ghost.ParentBatchID, ghost.BatchNumber, ghost.Quantity, now); err != nil {
				return err
			}
		}
		return nil
	})
	finish(id, err)
	return checkedIn, res, err
}

// releaseParentReservation decrements a parent's reserved quantity when a
// dependent planned allocation is cancelled or executed. The decrement is
// clamped at zero so snapshots imported with missing reservation state never
// drive the field negative.
func releaseParentReservation(tx Transaction, parentID, plannedNumber string, units int, now time.Time) error {
	if _, ok := tx.FindBatch(parentID); !ok {
		return domain.ErrNotFound{Entity: EntityBatch, ID: parentID}
	}
	_, err := tx.UpdateBatch(parentID, func(b *Batch) error {
		released := units
		if released > b.ReservedQuantity {
			released = b.ReservedQuantity
		}
		b.ReservedQuantity -= released
		b.LogHistory = append(b.LogHistory, LogEntry{
			Date: now,
			Type: domain.LogTypeReleased,
			Note: fmt.Sprintf("%d units released by planned batch %s", released, plannedNumber),
			Qty:  &released,
		})
		return nil
	})
	return err
}
