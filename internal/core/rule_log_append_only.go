package core

import (
	"context"
	"fmt"

	"nurserycore/pkg/domain"
)

// NewLogAppendOnlyRule returns the rule guarding the append-only log history
// contract: any update that changes quantity, status, or location must grow
// the log, and existing entries are never rewritten or dropped.
func NewLogAppendOnlyRule() domain.Rule {
	return logAppendOnlyRule{}
}

type logAppendOnlyRule struct{}

func (logAppendOnlyRule) Name() string { return "log_append_only" }

func (logAppendOnlyRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityBatch || change.Action != domain.ActionUpdate {
			continue
		}
		before, ok := domain.DecodeChangePayload[domain.Batch](change.Before)
		if !ok {
			continue
		}
		after, ok := domain.DecodeChangePayload[domain.Batch](change.After)
		if !ok {
			continue
		}
		if violation, bad := checkLogHistory(before, after); bad {
			res.Violations = append(res.Violations, violation)
		}
	}
	return res, nil
}

func checkLogHistory(before, after domain.Batch) (domain.Violation, bool) {
	if len(after.LogHistory) < len(before.LogHistory) {
		return logViolation(after, "log history shrank from %d to %d entries", len(before.LogHistory), len(after.LogHistory)), true
	}
	for i, entry := range before.LogHistory {
		kept := after.LogHistory[i]
		if !entry.Date.Equal(kept.Date) || entry.Type != kept.Type || entry.Note != kept.Note || !qtyEqual(entry.Qty, kept.Qty) {
			return logViolation(after, "log history entry %d was rewritten", i), true
		}
	}
	mutated := before.Quantity != after.Quantity ||
		before.Status != after.Status ||
		before.Location != after.Location
	if mutated && len(after.LogHistory) == len(before.LogHistory) {
		return logViolation(after, "quantity/status/location changed without a log entry"), true
	}
	return domain.Violation{}, false
}

func logViolation(batch domain.Batch, format string, args ...any) domain.Violation {
	return domain.Violation{
		Rule:     "log_append_only",
		Severity: domain.SeverityBlock,
		Message:  fmt.Sprintf("batch %s: %s", batch.BatchNumber, fmt.Sprintf(format, args...)),
		Entity:   domain.EntityBatch,
		EntityID: batch.ID,
	}
}

func qtyEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
