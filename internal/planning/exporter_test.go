package planning

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"nurserycore/internal/blob"
	"nurserycore/internal/infra/persistence/memory"
	"nurserycore/pkg/domain"
)

func waitForExport(t *testing.T, exporter *Exporter, id string) ExportRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		record, ok := exporter.Get(id)
		if !ok {
			t.Fatalf("export %s vanished", id)
		}
		if record.Status == ExportStatusSucceeded || record.Status == ExportStatusFailed {
			return record
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("export %s did not finish", id)
	return ExportRecord{}
}

func TestExporterRendersArtifacts(t *testing.T) {
	ready := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)
	store := seedStore(t,
		domain.Batch{BatchNumber: "3-000001", Status: domain.StatusPotted, Quantity: 400, ReadyDate: &ready},
		domain.Batch{BatchNumber: "1-000002", Status: domain.StatusIncoming, Quantity: 100, ReadyDate: &ready},
	)
	artifacts := blob.NewMemory()
	audit := &MemoryAuditLog{}

	exporter := NewExporter(NewAggregator(store), artifacts, audit)
	exporter.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := exporter.Stop(ctx); err != nil {
			t.Errorf("stop: %v", err)
		}
	}()

	queued, err := exporter.Enqueue(context.Background(), ExportInput{RequestedBy: "scheduler", Reason: "weekly forecast"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if queued.Status != ExportStatusQueued || len(queued.Formats) != 2 {
		t.Fatalf("queued record: %+v", queued)
	}

	record := waitForExport(t, exporter, queued.ID)
	if record.Status != ExportStatusSucceeded {
		t.Fatalf("export failed: %+v", record)
	}
	if len(record.Artifacts) != 2 {
		t.Fatalf("artifacts: got %d", len(record.Artifacts))
	}
	if record.CompletedAt == nil {
		t.Fatalf("completed timestamp missing")
	}

	for _, artifact := range record.Artifacts {
		info, reader, err := artifacts.Get(context.Background(), artifact.Key)
		if err != nil {
			t.Fatalf("artifact %s missing from store: %v", artifact.Key, err)
		}
		payload, err := io.ReadAll(reader)
		_ = reader.Close()
		if err != nil {
			t.Fatalf("read artifact: %v", err)
		}
		if int64(len(payload)) != info.Size {
			t.Fatalf("size mismatch for %s", artifact.Key)
		}
		switch artifact.Format {
		case FormatJSON:
			var snap Snapshot
			if err := json.Unmarshal(payload, &snap); err != nil {
				t.Fatalf("json artifact: %v", err)
			}
			if len(snap.Buckets) != 1 || snap.Buckets[0].Physical != 400 {
				t.Fatalf("json snapshot content: %+v", snap.Buckets)
			}
		case FormatCSV:
			text := string(payload)
			if !strings.HasPrefix(text, "month,physical,incoming,planned,total") {
				t.Fatalf("csv header: %q", text)
			}
			if !strings.Contains(text, "2026-06,400,100,0,500") {
				t.Fatalf("csv row missing: %q", text)
			}
		}
	}

	entries := audit.Entries()
	if len(entries) == 0 {
		t.Fatalf("no audit entries recorded")
	}
	last := entries[len(entries)-1]
	if last.Action != "forecast_export" || last.Status != ExportStatusSucceeded || last.Actor != "scheduler" {
		t.Fatalf("last audit entry: %+v", last)
	}
}

func TestExporterRejectsUnknownFormat(t *testing.T) {
	exporter := NewExporter(NewAggregator(memory.NewStore(nil)), blob.NewMemory(), nil)
	_, err := exporter.Enqueue(context.Background(), ExportInput{Formats: []ExportFormat{"parquet"}})
	if err == nil {
		t.Fatalf("expected format error")
	}
}

func TestExporterFailureOnDuplicateKey(t *testing.T) {
	store := memory.NewStore(nil)
	artifacts := blob.NewMemory()
	exporter := NewExporter(NewAggregator(store), artifacts, nil)
	exporter.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = exporter.Stop(ctx)
	}()

	queued, err := exporter.Enqueue(context.Background(), ExportInput{Formats: []ExportFormat{FormatJSON}})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	record := waitForExport(t, exporter, queued.ID)
	if record.Status != ExportStatusSucceeded {
		t.Fatalf("first export failed: %+v", record)
	}

	// Artifacts are immutable: re-planting the same key must fail.
	_, err = artifacts.Put(context.Background(), record.Artifacts[0].Key, strings.NewReader("overwrite"), blob.PutOptions{})
	if err == nil {
		t.Fatalf("expected duplicate key error")
	}
}

func TestExporterGetUnknownID(t *testing.T) {
	exporter := NewExporter(NewAggregator(memory.NewStore(nil)), blob.NewMemory(), nil)
	if _, ok := exporter.Get("missing"); ok {
		t.Fatalf("unexpected record")
	}
}
