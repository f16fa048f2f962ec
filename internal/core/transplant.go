package core

import (
	"context"
	"fmt"

	"nurserycore/pkg/domain"
)

// TransplantOutcome carries both sides of a committed transplant.
type TransplantOutcome struct {
	Source   Batch
	NewBatch Batch
}

// Transplant atomically moves transplantQuantity units out of the source batch
// into a newly created batch. Both records are written inside one store
// transaction, so readers never observe the source debited without the new
// batch existing, or vice versa. Total inventory is conserved: the quantity
// removed from the source equals the new batch's quantity, and any remainder
// zeroed by a forced archive is recorded as an explicit loss entry.
func (s *Service) Transplant(ctx context.Context, sourceID string, draft Batch, transplantQuantity int, archiveRemainder bool) (TransplantOutcome, Result, error) {
	ctx, finish := s.instrument(ctx, "transplant_batch")
	var outcome TransplantOutcome
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		source, ok := tx.FindBatch(sourceID)
		if !ok {
			return domain.ErrNotFound{Entity: EntityBatch, ID: sourceID}
		}
		if transplantQuantity <= 0 {
			return domain.ErrValidation{Field: "transplant_quantity", Reason: "must be positive"}
		}
		// Reservations are deliberately not consulted here: the transplant
		// contract compares against the current physical quantity only.
		if source.Quantity < transplantQuantity {
			return domain.ErrInsufficientStock{
				BatchID:   sourceID,
				Requested: transplantQuantity,
				Available: source.Quantity,
			}
		}
		if err := validateBatchDraft(draft); err != nil {
			return err
		}

		number, err := allocateUnusedNumber(tx, draft.Status)
		if err != nil {
			return err
		}
		now := s.opts.clock.Now()
		qty := transplantQuantity
		draft.BatchNumber = number
		draft.Quantity = transplantQuantity
		draft.InitialQuantity = transplantQuantity
		draft.TransplantedFrom = &source.BatchNumber
		if draft.PlantingDate.IsZero() {
			draft.PlantingDate = now
		}
		draft.LogHistory = []LogEntry{{
			Date: now,
			Type: domain.LogTypeTransplant,
			Note: fmt.Sprintf("transplanted %d units from %s", transplantQuantity, source.BatchNumber),
			Qty:  &qty,
		}}
		newBatch, err := tx.CreateBatch(draft)
		if err != nil {
			return err
		}

		updatedSource, err := tx.UpdateBatch(sourceID, func(b *Batch) error {
			moved := transplantQuantity
			b.LogHistory = append(b.LogHistory, LogEntry{
				Date: now,
				Type: domain.LogTypeTransplant,
				Note: fmt.Sprintf("transplanted %d units to %s", transplantQuantity, newBatch.BatchNumber),
				Qty:  &moved,
			})
			if !archiveRemainder {
				b.Quantity -= transplantQuantity
				return nil
			}
			if remainder := b.Quantity - transplantQuantity; remainder > 0 {
				lost := remainder
				b.LogHistory = append(b.LogHistory, LogEntry{
					Date: now,
					Type: domain.LogTypeLoss,
					Note: fmt.Sprintf("remainder of %d units lost on archive", remainder),
					Qty:  &lost,
				})
			}
			b.Status = StatusArchived
			b.Quantity = 0
			return nil
		})
		if err != nil {
			return err
		}

		outcome = TransplantOutcome{Source: updatedSource, NewBatch: newBatch}
		return nil
	})
	finish(outcome.NewBatch.ID, err)
	return outcome, res, err
}
