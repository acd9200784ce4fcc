package vision

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
)

func TestIngestAndTakeReady(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pic.jpg")
	if err := os.WriteFile(path, []byte("fake-jpeg-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	var s Slot
	if s.IsReady() {
		t.Fatal("slot should not be ready before ingest")
	}

	if err := s.Ingest(path); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if !s.IsReady() {
		t.Fatal("slot should be ready after ingest")
	}

	img, ok := s.TakeReady()
	if !ok {
		t.Fatal("expected TakeReady to return an image")
	}
	if img == "" {
		t.Fatal("expected non-empty base64 image")
	}
	if s.IsReady() {
		t.Fatal("slot should not be ready after TakeReady consumes it")
	}

	if _, ok := s.TakeReady(); ok {
		t.Fatal("second TakeReady should report not-ready")
	}
}

func TestIngestReplacesUnprocessedImage(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "a.jpg")
	p2 := filepath.Join(dir, "b.jpg")
	os.WriteFile(p1, []byte("first"), 0o644)
	os.WriteFile(p2, []byte("second-longer-payload"), 0o644)

	var s Slot
	if err := s.Ingest(p1); err != nil {
		t.Fatal(err)
	}
	if err := s.Ingest(p2); err != nil {
		t.Fatal(err)
	}

	img, ok := s.TakeReady()
	if !ok {
		t.Fatal("expected ready image")
	}
	if len(img) == 0 {
		t.Fatal("expected non-empty image")
	}
	if want := base64.StdEncoding.EncodeToString([]byte("second-longer-payload")); img != want {
		t.Fatalf("image = %q, want the second ingest %q", img, want)
	}
}

func TestIngestMissingFile(t *testing.T) {
	var s Slot
	if err := s.Ingest("/no/such/file"); err == nil {
		t.Fatal("expected error for missing file")
	}
	if s.IsReady() {
		t.Fatal("slot should not be ready after failed ingest")
	}
}
