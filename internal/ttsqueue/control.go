// Package ttsqueue implements the text-to-speech playback pipeline: a
// producer-consumer queue of strings to speak, protected by a mutex and
// condition variable, with three-way external control (play/pause/discard)
// so the listening state machine can barge in when the user starts talking.
package ttsqueue

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/agalue/sherpa-voice-assistant/internal/metrics"
)

// State is the TTS playback state, mutex+condvar protected per the
// specification's §9 direction for this one piece of fine-grained
// cross-goroutine state.
type State int

const (
	Idle State = iota
	Playing
	Paused
	Discard
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Playing:
		return "Playing"
	case Paused:
		return "Paused"
	case Discard:
		return "Discard"
	default:
		return "Unknown"
	}
}

// Synthesizer produces a PCM buffer for a string. cancel is checked
// periodically during long synthesis; Synthesize should abort promptly once
// it flips true.
type Synthesizer interface {
	Synthesize(text string, cancel *atomic.Bool) (samples []float32, sampleRate int, err error)
}

// Sink plays a chunk of PCM samples. When WriteChunk fails, the playback
// worker calls Reopen and drops the current request, per §4.2's write-error
// recovery policy.
type Sink interface {
	WriteChunk(samples []float32) error
	Reopen() error
}

const chunkFrames = 1024

// Control is the TtsControl handle named in the specification's design
// notes: it funnels every pause/resume/discard interaction from the rest of
// the system through one small API, and owns the single playback worker
// goroutine.
type Control struct {
	mu      sync.Mutex
	cond    *sync.Cond
	state   State
	queue   []string
	running bool

	synth Synthesizer
	sink  Sink

	cancelSynthesis atomic.Bool

	wg sync.WaitGroup
}

// New creates a Control and starts its playback worker goroutine. Close
// stops the worker.
func New(synth Synthesizer, sink Sink) *Control {
	c := &Control{
		synth:   synth,
		sink:    sink,
		running: true,
	}
	c.cond = sync.NewCond(&c.mu)

	c.wg.Add(1)
	go c.run()

	return c
}

// Enqueue adds text to the FIFO queue. Non-blocking and safe for concurrent
// callers.
func (c *Control) Enqueue(text string) {
	c.mu.Lock()
	c.queue = append(c.queue, text)
	depth := len(c.queue)
	c.mu.Unlock()
	metrics.TTSQueueDepth.Set(float64(depth))
	c.cond.Signal()
}

// State returns the current playback state.
func (c *Control) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// QueueLen returns the number of pending (not-yet-dequeued) TTS requests.
func (c *Control) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Pause transitions Playing -> Paused. No-op otherwise.
func (c *Control) Pause() {
	c.mu.Lock()
	if c.state == Playing {
		c.state = Paused
	}
	c.mu.Unlock()
	c.cond.Broadcast()
}

// Resume transitions Paused -> Playing. No-op otherwise.
func (c *Control) Resume() {
	c.mu.Lock()
	if c.state == Paused {
		c.state = Playing
	}
	c.mu.Unlock()
	c.cond.Broadcast()
}

// DiscardNow flips the state to Discard, which the worker observes at its
// next chunk boundary (or immediately if waiting paused): it drops the
// remaining PCM, drains the queue, cancels in-flight synthesis, and returns
// to Idle. When nothing is playing the state stays Idle and only the queue
// is dropped. Calling DiscardNow twice in a row is equivalent to once,
// matching the specification's idempotence law.
func (c *Control) DiscardNow() {
	c.cancelSynthesis.Store(true)
	c.mu.Lock()
	if c.state != Idle {
		c.state = Discard
	}
	c.queue = nil
	c.mu.Unlock()
	metrics.TTSDiscardsTotal.Inc()
	metrics.TTSQueueDepth.Set(0)
	c.cond.Broadcast()
}

// Close stops the worker goroutine after it finishes any in-flight request,
// and waits for it to exit.
func (c *Control) Close() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	c.cond.Broadcast()
	c.wg.Wait()
}

func (c *Control) run() {
	defer c.wg.Done()

	for {
		c.mu.Lock()
		for len(c.queue) == 0 && c.running {
			c.cond.Wait()
		}
		if len(c.queue) == 0 && !c.running {
			c.mu.Unlock()
			return
		}

		text := c.queue[0]
		c.queue = c.queue[1:]
		c.state = Playing
		depth := len(c.queue)
		c.mu.Unlock()
		metrics.TTSQueueDepth.Set(float64(depth))

		c.speak(text)
	}
}

func (c *Control) speak(text string) {
	c.cancelSynthesis.Store(false)

	samples, sampleRate, err := c.synth.Synthesize(text, &c.cancelSynthesis)
	if err != nil {
		log.Printf("[tts] synthesis failed: %v", err)
		c.mu.Lock()
		c.state = Idle
		c.mu.Unlock()
		return
	}
	_ = sampleRate

	for offset := 0; offset < len(samples); offset += chunkFrames {
		c.mu.Lock()
		for c.state == Paused {
			c.cond.Wait()
		}

		if c.state == Discard {
			c.state = Idle
			c.queue = nil
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		end := offset + chunkFrames
		if end > len(samples) {
			end = len(samples)
		}

		if err := c.sink.WriteChunk(samples[offset:end]); err != nil {
			log.Printf("[tts] sink write failed, reopening: %v", err)
			if reopenErr := c.sink.Reopen(); reopenErr != nil {
				log.Printf("[tts] sink reopen failed: %v", reopenErr)
			}
			c.mu.Lock()
			c.state = Idle
			c.mu.Unlock()
			return
		}
	}

	c.mu.Lock()
	c.state = Idle
	c.mu.Unlock()
}
