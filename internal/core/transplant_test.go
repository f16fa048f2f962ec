package core

import (
	"context"
	"errors"
	"testing"

	"nurserycore/internal/infra/persistence/memory"
	"nurserycore/pkg/domain"
)

func transplantDraft(status BatchStatus) Batch {
	draft := batchDraft(status, 0)
	draft.Size = "C2"
	draft.Location = "field-3"
	return draft
}

func TestTransplantPartial(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	source, _, err := svc.CreateBatch(ctx, batchDraft(StatusPropagation, 1000))
	if err != nil {
		t.Fatalf("create source: %v", err)
	}

	outcome, _, err := svc.Transplant(ctx, source.ID, transplantDraft(StatusReadyForSale), 200, false)
	if err != nil {
		t.Fatalf("transplant: %v", err)
	}

	if outcome.Source.Quantity != 800 {
		t.Fatalf("source quantity: got %d want 800", outcome.Source.Quantity)
	}
	if outcome.NewBatch.Quantity != 200 || outcome.NewBatch.InitialQuantity != 200 {
		t.Fatalf("new batch quantities: %+v", outcome.NewBatch)
	}
	// Quantity conservation: units removed from the source equal the new batch.
	if removed := source.Quantity - outcome.Source.Quantity; removed != outcome.NewBatch.Quantity {
		t.Fatalf("conservation broken: removed %d, created %d", removed, outcome.NewBatch.Quantity)
	}

	if outcome.NewBatch.BatchNumber != "4-000002" {
		t.Fatalf("new batch number: got %q", outcome.NewBatch.BatchNumber)
	}
	if outcome.NewBatch.TransplantedFrom == nil || *outcome.NewBatch.TransplantedFrom != source.BatchNumber {
		t.Fatalf("back-reference: %v", outcome.NewBatch.TransplantedFrom)
	}

	// Partial transplant grows each side's history by exactly one entry.
	if got := len(outcome.Source.LogHistory) - len(source.LogHistory); got != 1 {
		t.Fatalf("source history grew by %d", got)
	}
	if len(outcome.NewBatch.LogHistory) != 1 {
		t.Fatalf("new batch history: %d entries", len(outcome.NewBatch.LogHistory))
	}
	if outcome.Source.Status != StatusPropagation {
		t.Fatalf("source status changed: %s", outcome.Source.Status)
	}
}

func TestTransplantContinuesImportedNumbering(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	source := batchDraft(StatusPotted, 100)
	source.BatchNumber = "1-000010"
	store := svc.Store().(*memory.Store)
	store.ImportState(memory.Snapshot{Batches: map[string]Batch{"seed-id": source}})

	outcome, _, err := svc.Transplant(ctx, "seed-id", transplantDraft(StatusReadyForSale), 40, false)
	if err != nil {
		t.Fatalf("transplant: %v", err)
	}
	if outcome.NewBatch.BatchNumber != "4-000011" {
		t.Fatalf("new batch number: got %q want 4-000011", outcome.NewBatch.BatchNumber)
	}
	if outcome.NewBatch.Quantity != 40 || outcome.NewBatch.InitialQuantity != 40 {
		t.Fatalf("new batch quantities: %+v", outcome.NewBatch)
	}
	if outcome.NewBatch.TransplantedFrom == nil || *outcome.NewBatch.TransplantedFrom != "1-000010" {
		t.Fatalf("back-reference: %v", outcome.NewBatch.TransplantedFrom)
	}
	if outcome.Source.Quantity != 60 {
		t.Fatalf("source quantity: got %d want 60", outcome.Source.Quantity)
	}
}

func TestTransplantForcedArchiveRecordsRemainderLoss(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	source, _, err := svc.CreateBatch(ctx, batchDraft(StatusPropagation, 1000))
	if err != nil {
		t.Fatalf("create source: %v", err)
	}

	outcome, _, err := svc.Transplant(ctx, source.ID, transplantDraft(StatusReadyForSale), 950, true)
	if err != nil {
		t.Fatalf("transplant: %v", err)
	}

	if outcome.Source.Status != StatusArchived || outcome.Source.Quantity != 0 {
		t.Fatalf("source not archived: %+v", outcome.Source)
	}
	// Transplant entry plus remainder loss entry.
	if got := len(outcome.Source.LogHistory) - len(source.LogHistory); got != 2 {
		t.Fatalf("source history grew by %d, want 2", got)
	}
	loss := outcome.Source.LogHistory[len(outcome.Source.LogHistory)-1]
	if loss.Type != domain.LogTypeLoss || loss.Qty == nil || *loss.Qty != 50 {
		t.Fatalf("loss entry: %+v", loss)
	}
}

func TestTransplantForcedArchiveZeroRemainder(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	source, _, err := svc.CreateBatch(ctx, batchDraft(StatusPropagation, 300))
	if err != nil {
		t.Fatalf("create source: %v", err)
	}

	outcome, _, err := svc.Transplant(ctx, source.ID, transplantDraft(StatusPotted), 300, true)
	if err != nil {
		t.Fatalf("transplant: %v", err)
	}
	if outcome.Source.Status != StatusArchived {
		t.Fatalf("source status: %s", outcome.Source.Status)
	}
	// No remainder, no loss entry: only the transplant entry is appended.
	if got := len(outcome.Source.LogHistory) - len(source.LogHistory); got != 1 {
		t.Fatalf("source history grew by %d, want 1", got)
	}
}

func TestTransplantInsufficientStock(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	source, _, err := svc.CreateBatch(ctx, batchDraft(StatusPropagation, 100))
	if err != nil {
		t.Fatalf("create source: %v", err)
	}

	_, _, err = svc.Transplant(ctx, source.ID, transplantDraft(StatusPotted), 150, false)
	var stockErr domain.ErrInsufficientStock
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if stockErr.Requested != 150 || stockErr.Available != 100 {
		t.Fatalf("stock error detail: %+v", stockErr)
	}

	// Nothing committed: source untouched, no new batch, sequence not burned.
	after, err := svc.GetBatch(source.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if after.Quantity != 100 || len(after.LogHistory) != len(source.LogHistory) {
		t.Fatalf("failed transplant mutated source: %+v", after)
	}
	if got := svc.ListBatches(); len(got) != 1 {
		t.Fatalf("unexpected batch count %d", len(got))
	}

	next, _, err := svc.CreateBatch(ctx, batchDraft(StatusPropagation, 10))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if next.BatchNumber != "1-000002" {
		t.Fatalf("aborted transplant burned a sequence number: %q", next.BatchNumber)
	}
}

func TestTransplantRejectsNonPositiveQuantity(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	source, _, err := svc.CreateBatch(ctx, batchDraft(StatusPropagation, 100))
	if err != nil {
		t.Fatalf("create source: %v", err)
	}

	for _, qty := range []int{0, -5} {
		_, _, err := svc.Transplant(ctx, source.ID, transplantDraft(StatusPotted), qty, false)
		var verr domain.ErrValidation
		if !errors.As(err, &verr) {
			t.Fatalf("qty %d: expected ErrValidation, got %v", qty, err)
		}
	}
}

func TestTransplantMissingSource(t *testing.T) {
	svc := newTestService(t)
	_, _, err := svc.Transplant(context.Background(), "missing", transplantDraft(StatusPotted), 10, false)
	var notFound domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
