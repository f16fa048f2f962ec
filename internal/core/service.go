package core

import (
	"context"
	"fmt"
	"strings"

	"nurserycore/internal/infra/persistence/memory"
	"nurserycore/pkg/domain"
)

// batchNumberAttempts bounds the generate-and-retry loop on allocation. The
// transactional counter makes collisions impossible on the normal path; the
// loop only matters for snapshots imported with hand-edited numbers.
const batchNumberAttempts = 3

// Service exposes the transactional batch-ledger operations: batch registry
// CRUD, transplants, reservations, and protocol reference data.
type Service struct {
	store PersistentStore
	opts  serviceOptions
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, options ...ServiceOption) *Service {
	opts := defaultServiceOptions()
	for _, apply := range options {
		apply(&opts)
	}
	return &Service{store: store, opts: opts}
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, options ...ServiceOption) *Service {
	return NewService(memory.NewStore(engine), options...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

func validateBatchDraft(draft Batch) error {
	if strings.TrimSpace(draft.PlantVariety) == "" {
		return domain.ErrValidation{Field: "plant_variety", Reason: "required"}
	}
	if strings.TrimSpace(draft.Category) == "" {
		return domain.ErrValidation{Field: "category", Reason: "required"}
	}
	if strings.TrimSpace(draft.Size) == "" {
		return domain.ErrValidation{Field: "size", Reason: "required"}
	}
	if strings.TrimSpace(draft.Location) == "" {
		return domain.ErrValidation{Field: "location", Reason: "required"}
	}
	if draft.Quantity < 0 {
		return domain.ErrValidation{Field: "quantity", Reason: "must not be negative"}
	}
	if !draft.Status.Valid() {
		return domain.ErrValidation{Field: "status", Reason: fmt.Sprintf("unknown status %q", draft.Status)}
	}
	return nil
}

// CreateBatch validates the draft, assigns a batch number from the
// transactional allocator, seeds the log history with a single created entry,
// and persists the batch with InitialQuantity fixed to the created quantity.
func (s *Service) CreateBatch(ctx context.Context, draft Batch) (Batch, Result, error) {
	ctx, finish := s.instrument(ctx, "create_batch")
	var created Batch
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		if err := validateBatchDraft(draft); err != nil {
			return err
		}
		number, err := allocateUnusedNumber(tx, draft.Status)
		if err != nil {
			return err
		}
		draft.BatchNumber = number
		draft.InitialQuantity = draft.Quantity
		if draft.PlantingDate.IsZero() {
			draft.PlantingDate = s.opts.clock.Now()
		}
		qty := draft.Quantity
		draft.LogHistory = []LogEntry{{
			Date: s.opts.clock.Now(),
			Type: domain.LogTypeCreated,
			Note: fmt.Sprintf("created with %d units at %s", qty, draft.Location),
			Qty:  &qty,
		}}
		created, err = tx.CreateBatch(draft)
		return err
	})
	finish(created.ID, err)
	return created, res, err
}

// allocateUnusedNumber draws from the transactional sequence, re-drawing when
// the number is already taken inside the snapshot.
func allocateUnusedNumber(tx Transaction, status BatchStatus) (string, error) {
	view := tx.Snapshot()
	var last string
	for attempt := 0; attempt < batchNumberAttempts; attempt++ {
		number, err := tx.AllocateBatchNumber(status)
		if err != nil {
			return "", err
		}
		if _, taken := view.FindBatchByNumber(number); !taken {
			return number, nil
		}
		last = number
	}
	return "", domain.ErrDuplicateIdentifier{Identifier: last}
}

// UpdateBatch applies the mutator to the batch under optimistic concurrency:
// expectedVersion must match the stored version, or ErrConflict is returned
// and nothing is written. Passing expectedVersion 0 skips the check
// (administrative override). The mutator is responsible for appending a log
// entry when it touches quantity, status, or location; the append-only rule
// blocks the commit otherwise.
func (s *Service) UpdateBatch(ctx context.Context, id string, expectedVersion int, mutator func(*Batch) error) (Batch, Result, error) {
	ctx, finish := s.instrument(ctx, "update_batch")
	var updated Batch
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		current, ok := tx.FindBatch(id)
		if !ok {
			return domain.ErrNotFound{Entity: EntityBatch, ID: id}
		}
		if expectedVersion != 0 && current.Version != expectedVersion {
			return domain.ErrConflict{
				Entity:          EntityBatch,
				ID:              id,
				ExpectedVersion: expectedVersion,
				ActualVersion:   current.Version,
			}
		}
		var err error
		updated, err = tx.UpdateBatch(id, mutator)
		return err
	})
	finish(id, err)
	return updated, res, err
}

// LogAction appends exactly one log entry to the batch and optionally applies
// a quantity delta and/or a relocation.
func (s *Service) LogAction(ctx context.Context, id, action, note string, quantityChange *int, newLocation *string) (Batch, Result, error) {
	ctx, finish := s.instrument(ctx, "log_action")
	var updated Batch
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, ok := tx.FindBatch(id); !ok {
			return domain.ErrNotFound{Entity: EntityBatch, ID: id}
		}
		var err error
		updated, err = tx.UpdateBatch(id, func(b *Batch) error {
			entry := LogEntry{Date: s.opts.clock.Now(), Type: action, Note: note}
			if quantityChange != nil {
				delta := *quantityChange
				entry.Qty = &delta
				b.Quantity += delta
			}
			if newLocation != nil {
				b.Location = *newLocation
			}
			b.LogHistory = append(b.LogHistory, entry)
			return nil
		})
		return err
	})
	finish(id, err)
	return updated, res, err
}

// ArchiveBatch closes out a batch: status Archived, quantity forced to zero,
// one log entry recording the reported loss and the quantity held just before
// archiving. The loss amount is informational only and is not reconciled
// against the prior quantity. Archiving an already-archived batch is an
// idempotent no-op: no second loss entry is appended.
func (s *Service) ArchiveBatch(ctx context.Context, id string, loss int) (Batch, Result, error) {
	ctx, finish := s.instrument(ctx, "archive_batch")
	var archived Batch
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		current, ok := tx.FindBatch(id)
		if !ok {
			return domain.ErrNotFound{Entity: EntityBatch, ID: id}
		}
		if current.Status == StatusArchived {
			archived = current
			return nil
		}
		var err error
		archived, err = tx.UpdateBatch(id, func(b *Batch) error {
			held := b.Quantity
			b.LogHistory = append(b.LogHistory, LogEntry{
				Date: s.opts.clock.Now(),
				Type: domain.LogTypeArchived,
				Note: fmt.Sprintf("archived with loss %d (held %d units)", loss, held),
				Qty:  &held,
			})
			b.Status = StatusArchived
			b.Quantity = 0
			return nil
		})
		return err
	})
	finish(id, err)
	return archived, res, err
}

// GetBatch retrieves a batch by id.
func (s *Service) GetBatch(id string) (Batch, error) {
	b, ok := s.store.GetBatch(id)
	if !ok {
		return Batch{}, domain.ErrNotFound{Entity: EntityBatch, ID: id}
	}
	return b, nil
}

// ListBatches returns all batches ordered by batch number.
func (s *Service) ListBatches() []Batch { return s.store.ListBatches() }

// CreateProtocol persists a new production protocol.
func (s *Service) CreateProtocol(ctx context.Context, protocol Protocol) (Protocol, Result, error) {
	ctx, finish := s.instrument(ctx, "create_protocol")
	var created Protocol
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		if strings.TrimSpace(protocol.Code) == "" {
			return domain.ErrValidation{Field: "code", Reason: "required"}
		}
		if strings.TrimSpace(protocol.Title) == "" {
			return domain.ErrValidation{Field: "title", Reason: "required"}
		}
		var err error
		created, err = tx.CreateProtocol(protocol)
		return err
	})
	finish(created.ID, err)
	return created, res, err
}

// UpdateProtocol mutates an existing protocol.
func (s *Service) UpdateProtocol(ctx context.Context, id string, mutator func(*Protocol) error) (Protocol, Result, error) {
	ctx, finish := s.instrument(ctx, "update_protocol")
	var updated Protocol
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateProtocol(id, mutator)
		return err
	})
	finish(id, err)
	return updated, res, err
}

// DeleteProtocol removes a protocol record.
func (s *Service) DeleteProtocol(ctx context.Context, id string) (Result, error) {
	ctx, finish := s.instrument(ctx, "delete_protocol")
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.DeleteProtocol(id)
	})
	finish(id, err)
	return res, err
}
