package blobstore_test

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"parley/internal/blobstore"
)

func newStore(t *testing.T) *blobstore.Store {
	t.Helper()
	store, err := blobstore.New(filepath.Join(t.TempDir(), "media"))
	if err != nil {
		t.Fatalf("blobstore.New: %v", err)
	}
	return store
}

func TestPutOpenRoundTrip(t *testing.T) {
	store := newStore(t)

	written, err := store.Put("conv-1/party_a.ogg", strings.NewReader("audio-bytes"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if written != int64(len("audio-bytes")) {
		t.Fatalf("unexpected byte count: %d", written)
	}

	reader, err := store.Open("conv-1/party_a.ogg")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(data) != "audio-bytes" {
		t.Fatalf("unexpected blob content: %q", data)
	}
}

func TestExistsAndDelete(t *testing.T) {
	store := newStore(t)

	if _, err := store.Put("clip.ogg", strings.NewReader("x")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	exists, err := store.Exists("clip.ogg")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Fatal("expected blob to exist")
	}

	if err := store.Delete("clip.ogg"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	exists, err = store.Exists("clip.ogg")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Fatal("expected blob gone after delete")
	}

	// Deleting again is a no-op.
	if err := store.Delete("clip.ogg"); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
}

func TestRejectsTraversalRefs(t *testing.T) {
	store := newStore(t)

	for _, ref := range []string{"", ".", "..", "../escape.ogg", "/etc/passwd"} {
		if _, err := store.Put(ref, strings.NewReader("x")); err == nil {
			t.Fatalf("expected Put to reject ref %q", ref)
		}
		if _, err := store.Exists(ref); err == nil {
			t.Fatalf("expected Exists to reject ref %q", ref)
		}
	}
}

func TestListOlderThan(t *testing.T) {
	store := newStore(t)

	if _, err := store.Put("old.ogg", strings.NewReader("old")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := store.Put("fresh.ogg", strings.NewReader("fresh")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(filepath.Join(store.Root(), "old.ogg"), past, past); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	blobs, err := store.ListOlderThan(time.Now().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("ListOlderThan failed: %v", err)
	}
	if len(blobs) != 1 || blobs[0].Ref != "old.ogg" {
		t.Fatalf("unexpected list result: %#v", blobs)
	}
}
