package listening

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agalue/sherpa-voice-assistant/internal/command"
	"github.com/agalue/sherpa-voice-assistant/internal/phrasebook"
	"github.com/agalue/sherpa-voice-assistant/internal/ttsqueue"
	"github.com/agalue/sherpa-voice-assistant/internal/vision"
)

// fakeCapture replays a scripted sequence of chunks, then blocks until the
// context is cancelled.
type fakeCapture struct {
	mu     sync.Mutex
	chunks [][]float32
	idx    int
}

func newFakeCapture(chunks ...[]float32) *fakeCapture {
	return &fakeCapture{chunks: chunks}
}

func (f *fakeCapture) ReadChunk(ctx context.Context) ([]float32, error) {
	f.mu.Lock()
	if f.idx < len(f.chunks) {
		c := f.chunks[f.idx]
		f.idx++
		f.mu.Unlock()
		return c, nil
	}
	f.mu.Unlock()

	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeCapture) Pause()        {}
func (f *fakeCapture) Resume()       {}
func (f *fakeCapture) Reopen() error { return nil }

var loudChunk = []float32{0.9, -0.9, 0.9, -0.9}
var quietChunk = []float32{0.0, 0.0, 0.0, 0.0}

// fakeASR treats every AcceptPartial call as growing the partial length by
// one, and returns a pre-scripted final transcript.
type fakeASR struct {
	mu         sync.Mutex
	partialLen int
	finalText  string
	resetCount int
}

func (a *fakeASR) AcceptPartial(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.partialLen++
}

func (a *fakeASR) PartialText() string { return "" }

func (a *fakeASR) PartialLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.partialLen
}

func (a *fakeASR) Final() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.finalText
}

func (a *fakeASR) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resetCount++
	a.partialLen = 0
}

type fakeLLM struct {
	reply string
	err   error
}

func (l *fakeLLM) Chat(ctx context.Context, userMessage, imageBase64 string) (string, error) {
	if l.err != nil {
		return "", l.err
	}
	return l.reply, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads []string
	states   []string
}

func (p *fakePublisher) PublishRaw(topic, rawJSON string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, rawJSON)
	return nil
}

func (p *fakePublisher) PublishState(state string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, state)
}

// noopSynth/noopSink satisfy ttsqueue.Synthesizer/Sink without producing
// any real audio, so the state machine's TTS enqueues are harmless in tests.
type noopSynth struct{}

func (noopSynth) Synthesize(text string, cancel *atomic.Bool) ([]float32, int, error) {
	return []float32{0, 0}, 16000, nil
}

type noopSink struct{}

func (noopSink) WriteChunk(samples []float32) error { return nil }
func (noopSink) Reopen() error                       { return nil }

func newTestMachine(t *testing.T, finalText string, capture CaptureSink) (*Machine, *fakePublisher, *ttsqueue.Control) {
	t.Helper()

	tbl := &command.Table{
		Entries: []command.Entry{
			{
				WildcardPattern:   "set thermostat to *",
				ExtractionPattern: "set thermostat to %s",
				CommandTemplate:   `{"device":"thermostat","value":"%s"}`,
				Topic:             "home/thermostat",
			},
		},
	}

	asr := &fakeASR{finalText: finalText}
	pub := &fakePublisher{}
	phrases := phrasebook.Default()
	tts := ttsqueue.New(noopSynth{}, noopSink{})

	m := New(capture, asr, tts, tbl, &fakeLLM{reply: "a reply"}, pub, phrases, &vision.Slot{})
	return m, pub, tts
}

func TestWakeAndCommandPublishes(t *testing.T) {
	capture := newFakeCapture(loudChunk, quietChunk, quietChunk)
	m, pub, tts := newTestMachine(t, "hey friday set thermostat to seventy two", capture)
	defer tts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	m.state = WakeWordListen
	go m.Run(ctx)

	deadline := time.After(1 * time.Second)
	for {
		pub.mu.Lock()
		n := len(pub.topics)
		pub.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for command publish")
		case <-time.After(10 * time.Millisecond):
		}
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if pub.topics[0] != "home/thermostat" {
		t.Fatalf("published topic = %q, want home/thermostat", pub.topics[0])
	}
	if pub.payloads[0] != `{"device":"thermostat","value":"seventy two"}` {
		t.Fatalf("unexpected payload: %s", pub.payloads[0])
	}
}

func TestGoodbyeSetsQuit(t *testing.T) {
	capture := newFakeCapture(loudChunk, quietChunk, quietChunk)
	m, _, tts := newTestMachine(t, "goodbye", capture)
	defer tts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	m.state = WakeWordListen
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("expected Run to exit after goodbye sets quit")
	}

	if !m.quit.Load() {
		t.Fatal("expected quit flag to be set")
	}
}

func TestComputeRMSSilenceIsZero(t *testing.T) {
	if rms := computeRMS(quietChunk); rms != 0 {
		t.Fatalf("computeRMS(silence) = %v, want 0", rms)
	}
	if rms := computeRMS(loudChunk); rms <= 0 {
		t.Fatalf("computeRMS(loud) = %v, want > 0", rms)
	}
}

// TestComputeRMSIsTrueRMS pins down the actual formula: a constant-amplitude
// chunk's RMS equals its amplitude, not its amplitude squared. Confusing
// mean-square for RMS would pass the loud/silence smoke test above while
// still getting the §4.1 VAD boundary law wrong.
func TestComputeRMSIsTrueRMS(t *testing.T) {
	chunk := []float32{0.5, -0.5, 0.5, -0.5}
	if rms := computeRMS(chunk); math.Abs(rms-0.5) > 1e-9 {
		t.Fatalf("computeRMS(const amplitude 0.5) = %v, want 0.5", rms)
	}
}

// TestIsSpeechAtExactThreshold exercises the boundary named in §8: an RMS
// exactly at backgroundRMS+VADRMSOffset classifies as speech, not silence.
func TestIsSpeechAtExactThreshold(t *testing.T) {
	asr := &fakeASR{}
	m := &Machine{asr: asr, backgroundRMS: 0.1}

	target := m.backgroundRMS + VADRMSOffset
	chunk := make([]float32, 256)
	for i := range chunk {
		if i%2 == 0 {
			chunk[i] = float32(target)
		} else {
			chunk[i] = float32(-target)
		}
	}

	if !m.isSpeech(chunk) {
		t.Fatalf("isSpeech at exactly backgroundRMS+VADRMSOffset = false, want true")
	}
}
