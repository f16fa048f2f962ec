package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Multi-record mutations performed inside
// a single transaction commit together or not at all; the transplant path
// depends on that guarantee.
type Transaction interface {
	Snapshot() TransactionView
	CreateBatch(Batch) (Batch, error)
	UpdateBatch(id string, mutator func(*Batch) error) (Batch, error)
	CreateProtocol(Protocol) (Protocol, error)
	UpdateProtocol(id string, mutator func(*Protocol) error) (Protocol, error)
	DeleteProtocol(id string) error
	FindBatch(id string) (Batch, bool)
	FindProtocol(id string) (Protocol, bool)
	// AllocateBatchNumber issues the next batch number for the given status
	// from a transactional counter. The counter is global across prefixes and
	// monotonic within the store, so two concurrent creators can never be
	// handed the same sequence.
	AllocateBatchNumber(status BatchStatus) (string, error)
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView interface {
	ListBatches() []Batch
	FindBatch(id string) (Batch, bool)
	FindBatchByNumber(number string) (Batch, bool)
	ListProtocols() []Protocol
	FindProtocol(id string) (Protocol, bool)
}

// RuleView is the read surface rules evaluate against. It matches
// TransactionView today; kept separate so rule packages do not grow a
// dependency on transaction internals.
type RuleView = TransactionView

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetBatch(id string) (Batch, bool)
	ListBatches() []Batch
	GetProtocol(id string) (Protocol, bool)
	ListProtocols() []Protocol
}
