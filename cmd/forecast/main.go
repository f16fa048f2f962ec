// Command forecast prints a planning snapshot of the batch ledger as JSON.
// The backing store is selected via NURSERYCORE_STORAGE_DRIVER (see
// core.OpenPersistentStore); with -protocols it prints protocol summaries
// instead of the inventory forecast, and with -export it renders the
// snapshot into the configured blob store (NURSERYCORE_BLOB_DRIVER) and
// prints the export record.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"nurserycore/internal/blob"
	"nurserycore/internal/core"
	"nurserycore/internal/planning"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("forecast", flag.ContinueOnError)
	flags.SetOutput(stderr)
	protocols := flags.Bool("protocols", false, "print protocol summaries instead of the forecast")
	export := flags.Bool("export", false, "write forecast artifacts to the blob store")
	formats := flags.String("formats", "", "comma-separated export formats (json,csv); default both")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	store, err := core.OpenPersistentStore(core.NewDefaultRulesEngine())
	if err != nil {
		fmt.Fprintf(stderr, "open store: %v\n", err)
		return 1
	}

	ctx := context.Background()
	aggregator := planning.NewAggregator(store)

	var payload any
	switch {
	case *export:
		payload, err = runExport(ctx, aggregator, *formats)
	case *protocols:
		payload, err = aggregator.ProtocolSummaries(ctx)
	default:
		payload, err = aggregator.Snapshot(ctx)
	}
	if err != nil {
		fmt.Fprintf(stderr, "aggregate: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		fmt.Fprintf(stderr, "encode: %v\n", err)
		return 1
	}
	return 0
}

// runExport drives the export worker to completion for a single request.
func runExport(ctx context.Context, aggregator *planning.Aggregator, formatList string) (planning.ExportRecord, error) {
	artifacts, err := blob.Open(ctx)
	if err != nil {
		return planning.ExportRecord{}, err
	}

	var formats []planning.ExportFormat
	if formatList != "" {
		for _, f := range strings.Split(formatList, ",") {
			formats = append(formats, planning.ExportFormat(strings.TrimSpace(f)))
		}
	}

	exporter := planning.NewExporter(aggregator, artifacts, nil)
	exporter.Start()
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	defer func() { _ = exporter.Stop(stopCtx) }()

	queued, err := exporter.Enqueue(ctx, planning.ExportInput{Formats: formats, RequestedBy: "forecast-cli"})
	if err != nil {
		return planning.ExportRecord{}, err
	}

	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		record, ok := exporter.Get(queued.ID)
		if !ok {
			break
		}
		if record.Status == planning.ExportStatusSucceeded {
			return record, nil
		}
		if record.Status == planning.ExportStatusFailed {
			return record, fmt.Errorf("export failed: %s", record.Error)
		}
		time.Sleep(50 * time.Millisecond)
	}
	return planning.ExportRecord{}, fmt.Errorf("export %s did not complete", queued.ID)
}
