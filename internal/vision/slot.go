// Package vision implements the single-slot image ingestion path described
// in §4.7: a bus message carrying a filesystem path is read, base64-encoded,
// and stored until the listening state machine consumes it.
package vision

import (
	"encoding/base64"
	"fmt"
	"os"
	"sync"
)

// Slot is a single-producer (bus goroutine), single-consumer (main
// goroutine) image buffer. A newer image always replaces any unprocessed
// earlier one, per the specification's data model.
type Slot struct {
	mu     sync.Mutex
	image  string // base64-encoded, empty when not ready
	length int    // encoded length including terminator, per §3/§4.7
	ready  bool
}

// Ingest reads path fully into memory, base64-encodes it, and raises the
// ready flag, discarding any previous unprocessed image.
func (s *Slot) Ingest(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("vision: read %s: %w", path, err)
	}

	encoded := base64.StdEncoding.EncodeToString(data)

	s.mu.Lock()
	s.image = encoded
	s.length = len(encoded) + 1 // +1 for the terminator dawn.c accounts for
	s.ready = true
	s.mu.Unlock()

	return nil
}

// TakeReady returns the ready image (if any) and clears the slot,
// transferring ownership to the caller. The second return value is false if
// no image was ready.
func (s *Slot) TakeReady() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return "", false
	}

	img := s.image
	s.image = ""
	s.length = 0
	s.ready = false
	return img, true
}

// IsReady reports whether an unprocessed image is waiting, without
// consuming it. The state machine samples this at the top of every outer
// loop iteration per §4.1.
func (s *Slot) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}
