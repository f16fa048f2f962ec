package core

import (
	"context"
	"fmt"

	"nurserycore/pkg/domain"
)

// NewLifecycleTransitionRule blocks illegal status transitions on batches:
// unknown statuses never commit, and Archived is terminal.
func NewLifecycleTransitionRule() domain.Rule {
	return lifecycleTransitionRule{}
}

type lifecycleTransitionRule struct{}

func (lifecycleTransitionRule) Name() string { return "lifecycle_transition" }

func (lifecycleTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityBatch {
			continue
		}

		after, ok := domain.DecodeChangePayload[domain.Batch](change.After)
		if !ok {
			continue
		}
		if !after.Status.Valid() {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "lifecycle_transition",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("batch %s is set to invalid status %s", after.ID, after.Status),
				Entity:   domain.EntityBatch,
				EntityID: after.ID,
			})
			continue
		}

		before, ok := domain.DecodeChangePayload[domain.Batch](change.Before)
		if !ok {
			continue
		}
		if before.Status == domain.StatusArchived && after.Status != domain.StatusArchived {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "lifecycle_transition",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("cannot move batch %s out of terminal status %s", before.BatchNumber, domain.StatusArchived),
				Entity:   domain.EntityBatch,
				EntityID: after.ID,
			})
		}
	}
	return res, nil
}
