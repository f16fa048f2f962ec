// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments. It is also the canonical
// carrier of transactional semantics: the durable sqlite and postgres stores
// wrap it and snapshot its state after every successful commit.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"nurserycore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Batch aliases domain.Batch for in-memory persistence operations.
	Batch = domain.Batch
	// Protocol aliases domain.Protocol.
	Protocol = domain.Protocol
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

func mustApply(label string, err error) {
	if err != nil {
		panic(fmt.Errorf("memory store %s: %w", label, err))
	}
}

type memoryState struct {
	batches   map[string]Batch
	protocols map[string]Protocol
	sequence  uint64
}

// Snapshot captures a point-in-time clone of the store state, including the
// batch-number sequence so allocation survives restarts.
type Snapshot struct {
	Batches   map[string]Batch    `json:"batches"`
	Protocols map[string]Protocol `json:"protocols"`
	Sequence  uint64              `json:"sequence"`
}

func newMemoryState() memoryState {
	return memoryState{
		batches:   make(map[string]Batch),
		protocols: make(map[string]Protocol),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	cloned.sequence = s.sequence
	for k, v := range s.batches {
		cloned.batches[k] = cloneBatch(v)
	}
	for k, v := range s.protocols {
		cloned.protocols[k] = cloneProtocol(v)
	}
	return cloned
}

func cloneBatch(b Batch) Batch {
	cp := b
	cp.VarietyID = clonePtr(b.VarietyID)
	cp.Supplier = clonePtr(b.Supplier)
	cp.ReadyDate = clonePtr(b.ReadyDate)
	cp.TransplantedFrom = clonePtr(b.TransplantedFrom)
	cp.ParentBatchID = clonePtr(b.ParentBatchID)
	cp.ProtocolID = clonePtr(b.ProtocolID)
	if b.LogHistory != nil {
		cp.LogHistory = make([]domain.LogEntry, len(b.LogHistory))
		for i, entry := range b.LogHistory {
			ce := entry
			ce.Qty = clonePtr(entry.Qty)
			cp.LogHistory[i] = ce
		}
	}
	return cp
}

func cloneProtocol(p Protocol) Protocol {
	cp := p
	cp.Stages = append([]domain.ProtocolStage(nil), p.Stages...)
	return cp
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState returns a deep copy of the committed state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cloned := s.state.clone()
	return Snapshot{Batches: cloned.batches, Protocols: cloned.protocols, Sequence: cloned.sequence}
}

// ImportState replaces the committed state with the snapshot. The sequence is
// re-seeded from the highest parsed batch-number suffix as a floor, so older
// snapshots written before the sequence field existed still allocate past
// every issued number.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := newMemoryState()
	state.sequence = snapshot.Sequence
	for k, v := range snapshot.Batches {
		state.batches[k] = cloneBatch(v)
		if seq, ok := domain.ParseBatchNumber(v.BatchNumber); ok && seq > state.sequence {
			state.sequence = seq
		}
	}
	for k, v := range snapshot.Protocols {
		state.protocols[k] = cloneProtocol(v)
	}
	s.state = state
}

// RulesEngine returns the engine evaluated at commit time.
func (s *Store) RulesEngine() *RulesEngine { return s.engine }

// NowFunc returns the clock used to stamp records.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// SetNowFunc overrides the record-stamping clock. Intended for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListBatches returns all batches within the snapshot, ordered by batch number
// so read-side projections are deterministic.
func (v transactionView) ListBatches() []Batch {
	out := make([]Batch, 0, len(v.state.batches))
	for _, b := range v.state.batches {
		out = append(out, cloneBatch(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BatchNumber < out[j].BatchNumber })
	return out
}

// FindBatch retrieves a batch by ID from the snapshot.
func (v transactionView) FindBatch(id string) (Batch, bool) {
	b, ok := v.state.batches[id]
	if !ok {
		return Batch{}, false
	}
	return cloneBatch(b), true
}

// FindBatchByNumber retrieves a batch by its human-readable number.
func (v transactionView) FindBatchByNumber(number string) (Batch, bool) {
	for _, b := range v.state.batches {
		if b.BatchNumber == number {
			return cloneBatch(b), true
		}
	}
	return Batch{}, false
}

// ListProtocols returns all protocols present in the snapshot.
func (v transactionView) ListProtocols() []Protocol {
	out := make([]Protocol, 0, len(v.state.protocols))
	for _, p := range v.state.protocols {
		out = append(out, cloneProtocol(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// FindProtocol retrieves a protocol by ID from the snapshot.
func (v transactionView) FindProtocol(id string) (Protocol, bool) {
	p, ok := v.state.protocols[id]
	if !ok {
		return Protocol{}, false
	}
	return cloneProtocol(p), true
}

// RunInTransaction executes fn within a transactional copy of the store state.
// Rules are evaluated against the candidate state before commit; blocking
// violations abort the whole unit, so a half-applied transplant is never
// visible to readers.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

func (tx *transaction) recordChange(entity domain.EntityType, action domain.Action, before, after any) {
	change := Change{Entity: entity, Action: action}
	if before != nil {
		payload, err := domain.NewChangePayloadFromValue(before)
		mustApply("encode before", err)
		change.Before = payload
	} else {
		change.Before = domain.UndefinedChangePayload()
	}
	if after != nil {
		payload, err := domain.NewChangePayloadFromValue(after)
		mustApply("encode after", err)
		change.After = payload
	} else {
		change.After = domain.UndefinedChangePayload()
	}
	tx.changes = append(tx.changes, change)
}

// Snapshot exposes the transactional state as a read-only view.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// CreateBatch stores a new batch within the transaction.
func (tx *transaction) CreateBatch(b Batch) (Batch, error) {
	if b.ID == "" {
		b.ID = tx.store.newID()
	}
	if _, exists := tx.state.batches[b.ID]; exists {
		return Batch{}, fmt.Errorf("batch %q already exists", b.ID)
	}
	b.CreatedAt = tx.now
	b.UpdatedAt = tx.now
	b.Version = 1
	if b.LogHistory == nil {
		b.LogHistory = []domain.LogEntry{}
	}
	tx.state.batches[b.ID] = cloneBatch(b)
	tx.recordChange(domain.EntityBatch, domain.ActionCreate, nil, cloneBatch(b))
	return cloneBatch(b), nil
}

// UpdateBatch mutates a batch using the provided mutator function. The version
// token is bumped on every successful update so stale writers can be rejected.
func (tx *transaction) UpdateBatch(id string, mutator func(*Batch) error) (Batch, error) {
	current, ok := tx.state.batches[id]
	if !ok {
		return Batch{}, domain.ErrNotFound{Entity: domain.EntityBatch, ID: id}
	}
	before := cloneBatch(current)
	if err := mutator(&current); err != nil {
		return Batch{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	current.Version = before.Version + 1
	tx.state.batches[id] = cloneBatch(current)
	tx.recordChange(domain.EntityBatch, domain.ActionUpdate, before, cloneBatch(current))
	return cloneBatch(current), nil
}

// CreateProtocol stores a new protocol record.
func (tx *transaction) CreateProtocol(p Protocol) (Protocol, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.protocols[p.ID]; exists {
		return Protocol{}, fmt.Errorf("protocol %q already exists", p.ID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.protocols[p.ID] = cloneProtocol(p)
	tx.recordChange(domain.EntityProtocol, domain.ActionCreate, nil, cloneProtocol(p))
	return cloneProtocol(p), nil
}

// UpdateProtocol mutates an existing protocol.
func (tx *transaction) UpdateProtocol(id string, mutator func(*Protocol) error) (Protocol, error) {
	current, ok := tx.state.protocols[id]
	if !ok {
		return Protocol{}, domain.ErrNotFound{Entity: domain.EntityProtocol, ID: id}
	}
	before := cloneProtocol(current)
	if err := mutator(&current); err != nil {
		return Protocol{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.protocols[id] = cloneProtocol(current)
	tx.recordChange(domain.EntityProtocol, domain.ActionUpdate, before, cloneProtocol(current))
	return cloneProtocol(current), nil
}

// DeleteProtocol removes a protocol from state.
func (tx *transaction) DeleteProtocol(id string) error {
	current, ok := tx.state.protocols[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityProtocol, ID: id}
	}
	delete(tx.state.protocols, id)
	tx.recordChange(domain.EntityProtocol, domain.ActionDelete, cloneProtocol(current), nil)
	return nil
}

// FindBatch retrieves a batch by ID from the transactional state.
func (tx *transaction) FindBatch(id string) (Batch, bool) {
	b, ok := tx.state.batches[id]
	if !ok {
		return Batch{}, false
	}
	return cloneBatch(b), true
}

// FindProtocol retrieves a protocol by ID from the transactional state.
func (tx *transaction) FindProtocol(id string) (Protocol, bool) {
	p, ok := tx.state.protocols[id]
	if !ok {
		return Protocol{}, false
	}
	return cloneProtocol(p), true
}

// AllocateBatchNumber issues the next batch number from the transactional
// sequence counter. The increment commits with the rest of the transaction,
// so an aborted create does not burn visible sequence numbers and concurrent
// creators (serialized by the store lock) can never collide.
func (tx *transaction) AllocateBatchNumber(status domain.BatchStatus) (string, error) {
	next := tx.state.sequence + 1
	number, err := domain.FormatBatchNumber(status, next)
	if err != nil {
		return "", err
	}
	tx.state.sequence = next
	return number, nil
}

// Read helpers ---------------------------------------------------------------

// GetBatch retrieves a batch by ID from committed state.
func (s *Store) GetBatch(id string) (Batch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.state.batches[id]
	if !ok {
		return Batch{}, false
	}
	return cloneBatch(b), true
}

// ListBatches returns all batches from committed state, ordered by batch number.
func (s *Store) ListBatches() []Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Batch, 0, len(s.state.batches))
	for _, b := range s.state.batches {
		out = append(out, cloneBatch(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BatchNumber < out[j].BatchNumber })
	return out
}

// GetProtocol retrieves a protocol by ID from committed state.
func (s *Store) GetProtocol(id string) (Protocol, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.protocols[id]
	if !ok {
		return Protocol{}, false
	}
	return cloneProtocol(p), true
}

// ListProtocols returns all protocol records from committed state.
func (s *Store) ListProtocols() []Protocol {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Protocol, 0, len(s.state.protocols))
	for _, p := range s.state.protocols {
		out = append(out, cloneProtocol(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
