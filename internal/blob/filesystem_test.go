package blob

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newFilesystemStore(t *testing.T) *Filesystem {
	t.Helper()
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new filesystem store: %v", err)
	}
	return store
}

func TestFilesystemPutGetRoundTrip(t *testing.T) {
	store := newFilesystemStore(t)
	ctx := context.Background()

	put, err := store.Put(ctx, "forecast/2026-06/snap.csv", strings.NewReader("month,total\n2026-06,500\n"), PutOptions{
		ContentType: "text/csv",
		Metadata:    map[string]string{"rows": "1"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if put.Size != int64(len("month,total\n2026-06,500\n")) || put.ETag == "" {
		t.Fatalf("put info: %+v", put)
	}

	info, reader, err := store.Get(ctx, "forecast/2026-06/snap.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	payload, err := io.ReadAll(reader)
	_ = reader.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(payload) != "month,total\n2026-06,500\n" {
		t.Fatalf("payload: %q", payload)
	}
	if info.ETag != put.ETag || info.ContentType != "text/csv" || info.Metadata["rows"] != "1" {
		t.Fatalf("info: %+v", info)
	}
}

func TestFilesystemPutIsCreateOnly(t *testing.T) {
	store := newFilesystemStore(t)
	ctx := context.Background()

	if _, err := store.Put(ctx, "k.json", strings.NewReader("one"), PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "k.json", strings.NewReader("two"), PutOptions{}); err == nil {
		t.Fatalf("expected duplicate key error")
	}
}

func TestFilesystemRejectsUnsafeKeys(t *testing.T) {
	store := newFilesystemStore(t)
	ctx := context.Background()

	for _, key := range []string{"", "   ", "../escape", "a/../../escape", "/etc/passwd"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), PutOptions{}); err == nil {
			t.Fatalf("key %q accepted", key)
		}
		if _, _, err := store.Get(ctx, key); err == nil {
			t.Fatalf("get with key %q accepted", key)
		}
	}
}

func TestFilesystemListPrefix(t *testing.T) {
	store := newFilesystemStore(t)
	ctx := context.Background()

	for _, key := range []string{"forecast/2026-06/a.json", "forecast/2026-07/b.json", "audit/log.json"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}

	infos, err := store.List(ctx, "forecast/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("list result: %+v", infos)
	}
	if infos[0].Key != "forecast/2026-06/a.json" || infos[1].Key != "forecast/2026-07/b.json" {
		t.Fatalf("list order: %q, %q", infos[0].Key, infos[1].Key)
	}
}

func TestFilesystemDeleteRemovesSidecar(t *testing.T) {
	root := t.TempDir()
	store, err := NewFilesystem(root)
	if err != nil {
		t.Fatalf("new filesystem store: %v", err)
	}
	ctx := context.Background()

	if _, err := store.Put(ctx, "k.json", strings.NewReader("x"), PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	existed, err := store.Delete(ctx, "k.json")
	if err != nil || !existed {
		t.Fatalf("delete: %v existed=%v", err, existed)
	}
	if _, err := os.Stat(filepath.Join(root, "k.json.meta")); !os.IsNotExist(err) {
		t.Fatalf("sidecar left behind: %v", err)
	}
	existed, err = store.Delete(ctx, "k.json")
	if err != nil || existed {
		t.Fatalf("second delete: %v existed=%v", err, existed)
	}
}

func TestFilesystemPresignURL(t *testing.T) {
	store := newFilesystemStore(t)
	ctx := context.Background()

	url, err := store.PresignURL(ctx, "forecast/x.json", SignedURLOptions{})
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if url != "http://local.blob/forecast/x.json" {
		t.Fatalf("url: %q", url)
	}
	if _, err := store.PresignURL(ctx, "forecast/x.json", SignedURLOptions{Method: "DELETE"}); err != ErrUnsupported {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
