package ttsqueue

import (
	"sync/atomic"
	"testing"
	"time"
)

type fakeSynth struct {
	samplesPerCall int
}

func (f *fakeSynth) Synthesize(text string, cancel *atomic.Bool) ([]float32, int, error) {
	n := f.samplesPerCall
	if n == 0 {
		n = 4096
	}
	return make([]float32, n), 24000, nil
}

type fakeSink struct {
	chunks int32
	delay  time.Duration // per-chunk write time, so tests can act mid-playback
}

func (f *fakeSink) WriteChunk(samples []float32) error {
	time.Sleep(f.delay)
	atomic.AddInt32(&f.chunks, 1)
	return nil
}

func (f *fakeSink) Reopen() error { return nil }

func waitForState(t *testing.T, c *Control, want State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state never reached %v, last was %v", want, c.State())
}

func TestEnqueuePlaysAndReturnsIdle(t *testing.T) {
	sink := &fakeSink{}
	c := New(&fakeSynth{}, sink)
	defer c.Close()

	c.Enqueue("hello")
	// The state is already Idle before the worker dequeues, so first wait
	// for all 4096/1024 = 4 chunks to be written.
	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&sink.chunks) < 4 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if n := atomic.LoadInt32(&sink.chunks); n != 4 {
		t.Fatalf("chunks written = %d, want 4", n)
	}
	waitForState(t, c, Idle, time.Second)

	if c.QueueLen() != 0 {
		t.Fatalf("queue len = %d, want 0", c.QueueLen())
	}
}

func TestDiscardClearsQueueAndReturnsIdle(t *testing.T) {
	c := New(&fakeSynth{samplesPerCall: 1 << 20}, &fakeSink{delay: time.Millisecond})
	defer c.Close()

	c.Enqueue("long reply")
	c.Enqueue("second reply")
	time.Sleep(5 * time.Millisecond) // let the worker start the first request

	c.DiscardNow()
	waitForState(t, c, Idle, time.Second)

	if c.QueueLen() != 0 {
		t.Fatalf("queue len = %d, want 0 after discard", c.QueueLen())
	}

	// Idempotence: a second consecutive Discard is a no-op equivalent to one.
	c.DiscardNow()
	waitForState(t, c, Idle, time.Second)
}

func TestPauseResume(t *testing.T) {
	c := New(&fakeSynth{samplesPerCall: 1 << 18}, &fakeSink{delay: time.Millisecond})
	defer c.Close()

	c.Enqueue("reply")
	time.Sleep(5 * time.Millisecond)
	c.Pause()
	waitForState(t, c, Paused, time.Second)

	c.Resume()
	waitForState(t, c, Idle, 2*time.Second)
}
