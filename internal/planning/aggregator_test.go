package planning

import (
	"context"
	"testing"
	"time"

	"nurserycore/internal/infra/persistence/memory"
	"nurserycore/pkg/domain"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func seedStore(t *testing.T, batches ...domain.Batch) *memory.Store {
	t.Helper()
	store := memory.NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		for _, b := range batches {
			if _, err := tx.CreateBatch(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return store
}

func TestSnapshotBucketsByMonth(t *testing.T) {
	june := date(2026, 6, 15)
	july := date(2026, 7, 1)

	store := seedStore(t,
		domain.Batch{BatchNumber: "3-000001", Status: domain.StatusPotted, Quantity: 400, ReadyDate: &june},
		domain.Batch{BatchNumber: "4-000002", Status: domain.StatusReadyForSale, Quantity: 100, ReadyDate: &june},
		domain.Batch{BatchNumber: "1-000003", Status: domain.StatusIncoming, Quantity: 250, ReadyDate: &june},
		domain.Batch{BatchNumber: "1-000004", Status: domain.StatusPlanned, Quantity: 80, ReadyDate: &july},
		// Ready date unknown: falls back to planting date.
		domain.Batch{BatchNumber: "1-000005", Status: domain.StatusPropagation, Quantity: 60, PlantingDate: date(2026, 7, 20)},
		// Archived batches never contribute.
		domain.Batch{BatchNumber: "5-000006", Status: domain.StatusArchived, Quantity: 0, ReadyDate: &june},
	)

	agg := NewAggregator(store)
	snap, err := agg.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	if len(snap.Buckets) != 2 {
		t.Fatalf("buckets: got %d want 2 (%+v)", len(snap.Buckets), snap.Buckets)
	}
	juneBucket := snap.Buckets[0]
	if juneBucket.Label != "2026-06" {
		t.Fatalf("first bucket label: %q", juneBucket.Label)
	}
	if juneBucket.Physical != 500 || juneBucket.Incoming != 250 || juneBucket.Planned != 0 {
		t.Fatalf("june bucket: %+v", juneBucket)
	}
	if juneBucket.Total() != 750 {
		t.Fatalf("june total: %d", juneBucket.Total())
	}
	julyBucket := snap.Buckets[1]
	if julyBucket.Label != "2026-07" {
		t.Fatalf("second bucket label: %q", julyBucket.Label)
	}
	if julyBucket.Physical != 60 || julyBucket.Planned != 80 {
		t.Fatalf("july bucket: %+v", julyBucket)
	}
}

func TestSnapshotGhostsSortedByReadyDate(t *testing.T) {
	august := date(2026, 8, 1)
	june := date(2026, 6, 1)
	parent := "parent-batch-id"

	store := seedStore(t,
		domain.Batch{BatchNumber: "1-000001", Status: domain.StatusPlanned, Quantity: 50, ReadyDate: &august, ParentBatchID: &parent},
		domain.Batch{BatchNumber: "1-000002", Status: domain.StatusIncoming, Quantity: 200, ReadyDate: &june, PlantVariety: "Geranium Rozanne", Size: "P11"},
		domain.Batch{BatchNumber: "3-000003", Status: domain.StatusPotted, Quantity: 500, ReadyDate: &june},
	)

	snap, err := NewAggregator(store).Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Ghosts) != 2 {
		t.Fatalf("ghosts: got %d want 2", len(snap.Ghosts))
	}
	first, second := snap.Ghosts[0], snap.Ghosts[1]
	if first.BatchNumber != "1-000002" || second.BatchNumber != "1-000001" {
		t.Fatalf("ghost order: %q then %q", first.BatchNumber, second.BatchNumber)
	}
	if !first.IsGhost || first.VarietyName != "Geranium Rozanne" || first.SizeName != "P11" {
		t.Fatalf("ghost overview: %+v", first)
	}
	if second.ParentBatchID == nil || *second.ParentBatchID != parent {
		t.Fatalf("parent link: %v", second.ParentBatchID)
	}
}

func TestSnapshotEmptyStore(t *testing.T) {
	snap, err := NewAggregator(memory.NewStore(nil)).Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Buckets) != 0 || len(snap.Ghosts) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
	if snap.GeneratedAt.IsZero() {
		t.Fatalf("generated at not stamped")
	}
}

func TestProtocolSummaries(t *testing.T) {
	store := memory.NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		protocols := []domain.Protocol{
			{Code: "LAV-P9", Title: "Lavender P9 route", Stages: []domain.ProtocolStage{
				{Name: "propagation", DurationDays: 21},
				{Name: "plugs", DurationDays: 35},
			}},
			{Code: "ECH-C2", Title: "Echinacea C2 route", Stages: []domain.ProtocolStage{
				{Name: "potting", DurationDays: 90},
			}},
		}
		for _, p := range protocols {
			if _, err := tx.CreateProtocol(p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	summaries, err := NewAggregator(store).ProtocolSummaries(context.Background())
	if err != nil {
		t.Fatalf("summaries: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("summaries: got %d", len(summaries))
	}
	if summaries[0].Code != "ECH-C2" || summaries[0].StageCount != 1 || summaries[0].DurationDays != 90 {
		t.Fatalf("first summary: %+v", summaries[0])
	}
	if summaries[1].Code != "LAV-P9" || summaries[1].StageCount != 2 || summaries[1].DurationDays != 56 {
		t.Fatalf("second summary: %+v", summaries[1])
	}
}
