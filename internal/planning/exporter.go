package planning

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"nurserycore/internal/blob"
)

// ExportFormat identifies a rendering of the forecast snapshot.
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatCSV  ExportFormat = "csv"
)

// ExportStatus describes the lifecycle stage of an export request.
type ExportStatus string

const (
	ExportStatusQueued    ExportStatus = "queued"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusSucceeded ExportStatus = "succeeded"
	ExportStatusFailed    ExportStatus = "failed"
)

// ExportArtifact captures one stored forecast artifact.
type ExportArtifact struct {
	Key         string       `json:"key"`
	Format      ExportFormat `json:"format"`
	ContentType string       `json:"content_type"`
	SizeBytes   int64        `json:"size_bytes"`
	URL         string       `json:"url,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ExportRecord tracks an export request and its resulting artifacts.
type ExportRecord struct {
	ID          string           `json:"id"`
	Formats     []ExportFormat   `json:"formats"`
	Status      ExportStatus     `json:"status"`
	Error       string           `json:"error,omitempty"`
	Artifacts   []ExportArtifact `json:"artifacts,omitempty"`
	RequestedBy string           `json:"requested_by"`
	Reason      string           `json:"reason,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// ExportInput represents an enqueue request for the worker.
type ExportInput struct {
	Formats     []ExportFormat
	RequestedBy string
	Reason      string
}

// AuditLogger records export audit entries.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry captures audit trail metadata for exports.
type AuditEntry struct {
	ID         string       `json:"id"`
	Action     string       `json:"action"`
	Actor      string       `json:"actor"`
	Status     ExportStatus `json:"status"`
	Reason     string       `json:"reason,omitempty"`
	Note       string       `json:"note,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// Exporter renders forecast snapshots asynchronously and persists them as
// immutable artifacts in a blob store.
type Exporter struct {
	aggregator *Aggregator
	store      blob.Store
	audit      AuditLogger

	queue chan exportTask
	mu    sync.RWMutex
	jobs  map[string]*ExportRecord

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type exportTask struct {
	id    string
	input ExportInput
}

// NewExporter constructs an export worker over the aggregator and blob store.
// The audit logger may be nil.
func NewExporter(aggregator *Aggregator, store blob.Store, audit AuditLogger) *Exporter {
	ctx, cancel := context.WithCancel(context.Background())
	return &Exporter{
		aggregator: aggregator,
		store:      store,
		audit:      audit,
		queue:      make(chan exportTask, 32),
		jobs:       make(map[string]*ExportRecord),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start begins processing export requests.
func (e *Exporter) Start() {
	e.wg.Add(1)
	go e.loop()
}

// Stop signals the worker to halt and waits for completion.
func (e *Exporter) Stop(ctx context.Context) error {
	e.cancel()
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Exporter) loop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case task := <-e.queue:
			e.process(task)
		}
	}
}

// Enqueue schedules a forecast export and returns the queued record.
func (e *Exporter) Enqueue(ctx context.Context, input ExportInput) (ExportRecord, error) {
	formats := input.Formats
	if len(formats) == 0 {
		formats = []ExportFormat{FormatJSON, FormatCSV}
	}
	uniq := make([]ExportFormat, 0, len(formats))
	seen := make(map[ExportFormat]struct{})
	for _, format := range formats {
		if format != FormatJSON && format != FormatCSV {
			return ExportRecord{}, fmt.Errorf("unsupported export format %s", format)
		}
		if _, duplicate := seen[format]; duplicate {
			continue
		}
		uniq = append(uniq, format)
		seen[format] = struct{}{}
	}

	id := newExportID()
	now := time.Now().UTC()
	record := ExportRecord{
		ID:          id,
		Formats:     uniq,
		Status:      ExportStatusQueued,
		RequestedBy: input.RequestedBy,
		Reason:      input.Reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	e.mu.Lock()
	e.jobs[id] = &record
	queued := record.copy()
	e.mu.Unlock()

	e.recordAudit(ctx, input.RequestedBy, ExportStatusQueued, input.Reason, "")

	select {
	case e.queue <- exportTask{id: id, input: input}:
	default:
		return ExportRecord{}, fmt.Errorf("export queue full")
	}
	return queued, nil
}

// Get returns a snapshot of the export record.
func (e *Exporter) Get(id string) (ExportRecord, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	record, ok := e.jobs[id]
	if !ok {
		return ExportRecord{}, false
	}
	return record.copy(), true
}

func (e *Exporter) process(task exportTask) {
	e.updateStatus(task.id, ExportStatusRunning, "")

	snapshot, err := e.aggregator.Snapshot(e.ctx)
	if err != nil {
		e.fail(task.id, fmt.Sprintf("snapshot failed: %v", err))
		return
	}

	record, ok := e.Get(task.id)
	if !ok {
		return
	}
	artifacts := make([]ExportArtifact, 0, len(record.Formats))
	for _, format := range record.Formats {
		payload, contentType, err := render(format, snapshot)
		if err != nil {
			e.fail(task.id, err.Error())
			return
		}
		key := fmt.Sprintf("forecast/%s/%s.%s", snapshot.GeneratedAt.Format("2006-01-02"), task.id, format)
		info, err := e.store.Put(e.ctx, key, bytes.NewReader(payload), blob.PutOptions{
			ContentType: contentType,
			Metadata: map[string]string{
				"buckets": strconv.Itoa(len(snapshot.Buckets)),
				"ghosts":  strconv.Itoa(len(snapshot.Ghosts)),
			},
		})
		if err != nil {
			e.fail(task.id, fmt.Sprintf("store artifact failed: %v", err))
			return
		}
		artifacts = append(artifacts, ExportArtifact{
			Key:         info.Key,
			Format:      format,
			ContentType: contentType,
			SizeBytes:   info.Size,
			URL:         info.URL,
			CreatedAt:   info.LastModified,
		})
	}
	e.complete(task.id, artifacts)
}

func render(format ExportFormat, snapshot Snapshot) ([]byte, string, error) {
	switch format {
	case FormatJSON:
		payload, err := json.Marshal(snapshot)
		if err != nil {
			return nil, "", fmt.Errorf("marshal json: %w", err)
		}
		return payload, "application/json", nil
	case FormatCSV:
		buf := &bytes.Buffer{}
		writer := csv.NewWriter(buf)
		if err := writer.Write([]string{"month", "physical", "incoming", "planned", "total"}); err != nil {
			return nil, "", err
		}
		for _, bucket := range snapshot.Buckets {
			row := []string{
				bucket.Label,
				strconv.Itoa(bucket.Physical),
				strconv.Itoa(bucket.Incoming),
				strconv.Itoa(bucket.Planned),
				strconv.Itoa(bucket.Total()),
			}
			if err := writer.Write(row); err != nil {
				return nil, "", err
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "text/csv", nil
	default:
		return nil, "", fmt.Errorf("unsupported export format %s", format)
	}
}

func (e *Exporter) updateStatus(id string, status ExportStatus, message string) {
	now := time.Now().UTC()
	e.mu.Lock()
	var actor, reason string
	if record, ok := e.jobs[id]; ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = now
		actor, reason = record.RequestedBy, record.Reason
	}
	e.mu.Unlock()
	e.recordAudit(e.ctx, actor, status, reason, message)
}

func (e *Exporter) complete(id string, artifacts []ExportArtifact) {
	now := time.Now().UTC()
	e.mu.Lock()
	var actor, reason string
	if record, ok := e.jobs[id]; ok {
		record.Status = ExportStatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
		actor, reason = record.RequestedBy, record.Reason
	}
	e.mu.Unlock()
	e.recordAudit(e.ctx, actor, ExportStatusSucceeded, reason, "")
}

func (e *Exporter) fail(id, message string) {
	now := time.Now().UTC()
	e.mu.Lock()
	var actor, reason string
	if record, ok := e.jobs[id]; ok {
		record.Status = ExportStatusFailed
		record.Error = message
		record.UpdatedAt = now
		record.CompletedAt = &now
		actor, reason = record.RequestedBy, record.Reason
	}
	e.mu.Unlock()
	e.recordAudit(e.ctx, actor, ExportStatusFailed, reason, message)
}

func (e *Exporter) recordAudit(ctx context.Context, actor string, status ExportStatus, reason, note string) {
	if e.audit == nil {
		return
	}
	e.audit.Record(ctx, AuditEntry{
		ID:         newExportID(),
		Action:     "forecast_export",
		Actor:      actor,
		Status:     status,
		Reason:     reason,
		Note:       note,
		OccurredAt: time.Now().UTC(),
	})
}

func (r ExportRecord) copy() ExportRecord {
	dup := r
	dup.Formats = append([]ExportFormat(nil), r.Formats...)
	if len(r.Artifacts) > 0 {
		dup.Artifacts = append([]ExportArtifact(nil), r.Artifacts...)
	}
	return dup
}

func newExportID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return fmt.Sprintf("%x", b[:])
}

// MemoryAuditLog captures audit entries in memory for assertions.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// Record stores an audit entry.
func (l *MemoryAuditLog) Record(_ context.Context, entry AuditEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Entries returns a defensive copy of recorded audit entries.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
