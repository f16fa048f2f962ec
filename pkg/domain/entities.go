// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by nurserycore.
package domain

import (
	"encoding/json"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityBatch identifies a plant batch record.
	EntityBatch EntityType = "batch"
	// EntityProtocol identifies a production protocol (recipe) record.
	EntityProtocol EntityType = "protocol"
)

// BatchStatus represents the canonical production stages a batch moves through.
type BatchStatus string

// Canonical batch statuses. Propagation through LookingGood are physical
// production stages; Incoming and Planned are ghost stages representing
// inventory that does not yet exist at its stated location; Archived is
// terminal.
const (
	StatusPropagation  BatchStatus = "propagation"
	StatusPlugsLiners  BatchStatus = "plugs_liners"
	StatusPotted       BatchStatus = "potted"
	StatusReadyForSale BatchStatus = "ready_for_sale"
	StatusLookingGood  BatchStatus = "looking_good"
	StatusArchived     BatchStatus = "archived"
	StatusIncoming     BatchStatus = "incoming"
	StatusPlanned      BatchStatus = "planned"
)

// BatchStatuses enumerates every recognised status, in pipeline order.
var BatchStatuses = []BatchStatus{
	StatusPropagation,
	StatusPlugsLiners,
	StatusPotted,
	StatusReadyForSale,
	StatusLookingGood,
	StatusArchived,
	StatusIncoming,
	StatusPlanned,
}

// Valid reports whether s is a recognised batch status.
func (s BatchStatus) Valid() bool {
	switch s {
	case StatusPropagation, StatusPlugsLiners, StatusPotted, StatusReadyForSale,
		StatusLookingGood, StatusArchived, StatusIncoming, StatusPlanned:
		return true
	}
	return false
}

// IsGhost reports whether the status denotes forward-looking inventory
// (expected deliveries or planned production) rather than on-hand stock.
func (s BatchStatus) IsGhost() bool {
	return s == StatusIncoming || s == StatusPlanned
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Batch represents a tracked quantity of plants sharing origin, size, and
// location. Quantity bookkeeping is owned exclusively by the core service;
// every mutation that changes quantity, status, or location appends to
// LogHistory.
type Batch struct {
	Base
	BatchNumber      string      `json:"batch_number"`
	Status           BatchStatus `json:"status"`
	Quantity         int         `json:"quantity"`
	InitialQuantity  int         `json:"initial_quantity"`
	ReservedQuantity int         `json:"reserved_quantity,omitempty"`
	Version          int         `json:"version"`
	VarietyID        *string     `json:"variety_id,omitempty"`
	PlantVariety     string      `json:"plant_variety"`
	PlantFamily      string      `json:"plant_family"`
	Category         string      `json:"category"`
	Size             string      `json:"size"`
	Location         string      `json:"location"`
	Supplier         *string     `json:"supplier,omitempty"`
	PlantingDate     time.Time   `json:"planting_date"`
	ReadyDate        *time.Time  `json:"ready_date,omitempty"`
	TransplantedFrom *string     `json:"transplanted_from,omitempty"`
	ParentBatchID    *string     `json:"parent_batch_id,omitempty"`
	ProtocolID       *string     `json:"protocol_id,omitempty"`
	LogHistory       []LogEntry  `json:"log_history"`
}

// IsGhost reports whether the batch is forward-looking inventory.
func (b Batch) IsGhost() bool { return b.Status.IsGhost() }

// AvailableQuantity returns the quantity not yet earmarked by planned
// allocations.
func (b Batch) AvailableQuantity() int { return b.Quantity - b.ReservedQuantity }

// BucketDate returns the date used for planning aggregation: the ready date
// when known, otherwise the planting date.
func (b Batch) BucketDate() time.Time {
	if b.ReadyDate != nil {
		return *b.ReadyDate
	}
	return b.PlantingDate
}

// LogEntry is a single append-only history record on a batch.
type LogEntry struct {
	Date time.Time `json:"date"`
	Type string    `json:"type"`
	Note string    `json:"note,omitempty"`
	Qty  *int      `json:"qty,omitempty"`
}

// Well-known log entry types.
const (
	LogTypeCreated    = "created"
	LogTypeAction     = "action"
	LogTypeMove       = "move"
	LogTypeAdjust     = "adjust"
	LogTypeTransplant = "transplant"
	LogTypeLoss       = "loss"
	LogTypeArchived   = "archived"
	LogTypeReserved   = "reserved"
	LogTypeReleased   = "released"
	LogTypeCheckedIn  = "checked_in"
)

type logEntryAlias LogEntry

// UnmarshalJSON accepts both the extended shape {date,type,note,qty} and the
// legacy shape {date,action} emitted by earlier exports.
func (e *LogEntry) UnmarshalJSON(data []byte) error {
	type payload struct {
		logEntryAlias
		Action string `json:"action"`
	}
	var aux payload
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*e = LogEntry(aux.logEntryAlias)
	if e.Type == "" && aux.Action != "" {
		e.Type = LogTypeAction
		e.Note = aux.Action
	}
	return nil
}

// Protocol represents a production recipe: an ordered route of stages with
// per-stage durations. Consumed by planning for display enrichment only.
type Protocol struct {
	Base
	Code   string          `json:"code"`
	Title  string          `json:"title"`
	Stages []ProtocolStage `json:"stages"`
}

// ProtocolStage is one step of a production route.
type ProtocolStage struct {
	Name         string `json:"name"`
	DurationDays int    `json:"duration_days"`
}

// TotalDurationDays sums the stage durations of the route.
func (p Protocol) TotalDurationDays() int {
	total := 0
	for _, stage := range p.Stages {
		total += stage.DurationDays
	}
	return total
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before ChangePayload
	After  ChangePayload
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
