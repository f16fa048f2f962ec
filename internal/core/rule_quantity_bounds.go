package core

import (
	"context"
	"fmt"

	"nurserycore/pkg/domain"
)

// NewQuantityBoundsRule returns the in-transaction rule enforcing the quantity
// invariants: quantity never negative, reservations never exceed quantity, and
// archived batches hold zero stock.
func NewQuantityBoundsRule() domain.Rule {
	return quantityBoundsRule{}
}

type quantityBoundsRule struct{}

func (quantityBoundsRule) Name() string { return "quantity_bounds" }

func (quantityBoundsRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, batch := range view.ListBatches() {
		if batch.Quantity < 0 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "quantity_bounds",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("batch %s quantity is negative: %d", batch.BatchNumber, batch.Quantity),
				Entity:   domain.EntityBatch,
				EntityID: batch.ID,
			})
		}
		if batch.ReservedQuantity < 0 || batch.ReservedQuantity > batch.Quantity {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "quantity_bounds",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("batch %s reserved %d outside [0,%d]", batch.BatchNumber, batch.ReservedQuantity, batch.Quantity),
				Entity:   domain.EntityBatch,
				EntityID: batch.ID,
			})
		}
		if batch.Status == domain.StatusArchived && batch.Quantity != 0 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "quantity_bounds",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("archived batch %s still holds %d units", batch.BatchNumber, batch.Quantity),
				Entity:   domain.EntityBatch,
				EntityID: batch.ID,
			})
		}
	}
	return res, nil
}
