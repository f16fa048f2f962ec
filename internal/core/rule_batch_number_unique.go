package core

import (
	"context"
	"fmt"

	"nurserycore/pkg/domain"
)

// NewBatchNumberUniqueRule returns the rule blocking duplicate batch numbers
// across the whole snapshot. The transactional allocator makes collisions
// impossible on the normal path; this rule backstops direct updates and
// imported snapshots.
func NewBatchNumberUniqueRule() domain.Rule {
	return batchNumberUniqueRule{}
}

type batchNumberUniqueRule struct{}

func (batchNumberUniqueRule) Name() string { return "batch_number_unique" }

func (batchNumberUniqueRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	seen := make(map[string]string)
	res := domain.Result{}
	for _, batch := range view.ListBatches() {
		if batch.BatchNumber == "" {
			continue
		}
		if otherID, dup := seen[batch.BatchNumber]; dup {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "batch_number_unique",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("batch number %s assigned to both %s and %s", batch.BatchNumber, otherID, batch.ID),
				Entity:   domain.EntityBatch,
				EntityID: batch.ID,
			})
			continue
		}
		seen[batch.BatchNumber] = batch.ID
	}
	return res, nil
}
