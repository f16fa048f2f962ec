// Package planning projects the batch ledger into forward-looking inventory
// views: month buckets combining physical stock with ghost (incoming and
// planned) batches, plus protocol summaries for production scheduling.
package planning

import (
	"context"
	"sort"
	"time"

	"nurserycore/pkg/domain"
)

// bucketLabel is the month key format used for aggregation labels.
const bucketLabel = "2006-01"

// Bucket aggregates quantities expected to be available in one calendar month.
type Bucket struct {
	Label    string `json:"label"`
	Physical int    `json:"physical"`
	Incoming int    `json:"incoming"`
	Planned  int    `json:"planned"`
}

// Total returns the combined projected quantity for the bucket.
func (b Bucket) Total() int { return b.Physical + b.Incoming + b.Planned }

// BatchOverview is the read-side shape consumed by planning displays.
type BatchOverview struct {
	ID            string    `json:"id"`
	BatchNumber   string    `json:"batch_number"`
	Status        string    `json:"status"`
	IsGhost       bool      `json:"is_ghost"`
	VarietyName   string    `json:"variety_name"`
	SizeName      string    `json:"size_name"`
	Quantity      int       `json:"quantity"`
	ReadyDate     time.Time `json:"ready_date"`
	ParentBatchID *string   `json:"parent_batch_id,omitempty"`
	ProtocolID    *string   `json:"protocol_id,omitempty"`
}

// Snapshot is a point-in-time projection of the ledger for planning.
type Snapshot struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Buckets     []Bucket        `json:"buckets"`
	Ghosts      []BatchOverview `json:"ghosts"`
}

// ProtocolSummary condenses a production protocol for scheduling views.
type ProtocolSummary struct {
	ID           string `json:"id"`
	Code         string `json:"code"`
	Title        string `json:"title"`
	StageCount   int    `json:"stage_count"`
	DurationDays int    `json:"duration_days"`
}

// Aggregator computes planning projections from a persistent store. It is a
// pure read-side component: it never writes and sees only committed state.
type Aggregator struct {
	store domain.PersistentStore
	nowFn func() time.Time
}

// NewAggregator constructs an aggregator over the given store.
func NewAggregator(store domain.PersistentStore) *Aggregator {
	return &Aggregator{store: store, nowFn: time.Now}
}

// SetNowFunc overrides the clock, for deterministic tests.
func (a *Aggregator) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		a.nowFn = fn
	}
}

// Snapshot projects every non-archived batch into month buckets keyed by the
// batch's ready date (falling back to its planting date), and lists all ghost
// batches sorted by ready date ascending. Archived batches never contribute.
func (a *Aggregator) Snapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{GeneratedAt: a.nowFn().UTC()}
	err := a.store.View(ctx, func(view domain.TransactionView) error {
		byLabel := make(map[string]*Bucket)
		for _, batch := range view.ListBatches() {
			if batch.Status == domain.StatusArchived {
				continue
			}
			label := batch.BucketDate().Format(bucketLabel)
			bucket, ok := byLabel[label]
			if !ok {
				bucket = &Bucket{Label: label}
				byLabel[label] = bucket
			}
			switch batch.Status {
			case domain.StatusIncoming:
				bucket.Incoming += batch.Quantity
			case domain.StatusPlanned:
				bucket.Planned += batch.Quantity
			default:
				bucket.Physical += batch.Quantity
			}
			if batch.IsGhost() {
				snap.Ghosts = append(snap.Ghosts, overviewOf(batch))
			}
		}
		snap.Buckets = make([]Bucket, 0, len(byLabel))
		for _, bucket := range byLabel {
			snap.Buckets = append(snap.Buckets, *bucket)
		}
		sort.Slice(snap.Buckets, func(i, j int) bool { return snap.Buckets[i].Label < snap.Buckets[j].Label })
		sort.Slice(snap.Ghosts, func(i, j int) bool {
			if !snap.Ghosts[i].ReadyDate.Equal(snap.Ghosts[j].ReadyDate) {
				return snap.Ghosts[i].ReadyDate.Before(snap.Ghosts[j].ReadyDate)
			}
			return snap.Ghosts[i].BatchNumber < snap.Ghosts[j].BatchNumber
		})
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// ProtocolSummaries lists all production protocols with stage count and total
// duration, ordered by code.
func (a *Aggregator) ProtocolSummaries(ctx context.Context) ([]ProtocolSummary, error) {
	var out []ProtocolSummary
	err := a.store.View(ctx, func(view domain.TransactionView) error {
		for _, protocol := range view.ListProtocols() {
			out = append(out, ProtocolSummary{
				ID:           protocol.ID,
				Code:         protocol.Code,
				Title:        protocol.Title,
				StageCount:   len(protocol.Stages),
				DurationDays: protocol.TotalDurationDays(),
			})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func overviewOf(batch domain.Batch) BatchOverview {
	return BatchOverview{
		ID:            batch.ID,
		BatchNumber:   batch.BatchNumber,
		Status:        string(batch.Status),
		IsGhost:       batch.IsGhost(),
		VarietyName:   batch.PlantVariety,
		SizeName:      batch.Size,
		Quantity:      batch.Quantity,
		ReadyDate:     batch.BucketDate(),
		ParentBatchID: batch.ParentBatchID,
		ProtocolID:    batch.ProtocolID,
	}
}
