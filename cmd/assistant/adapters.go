package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/agalue/sherpa-voice-assistant/internal/audio"
	"github.com/agalue/sherpa-voice-assistant/internal/llm"
	"github.com/agalue/sherpa-voice-assistant/internal/stt"
	"github.com/agalue/sherpa-voice-assistant/internal/tts"
	"github.com/agalue/sherpa-voice-assistant/internal/ttsqueue"
)

// captureAdapter bridges the teacher's push-callback audio.Capturer onto
// listening.CaptureSink's pull-based ReadChunk shape: samples pushed from
// the capture callback land in a buffered channel, and ReadChunk
// accumulates them into fixed-size chunks of chunkSamples frames.
type captureAdapter struct {
	sampleRate   int
	chunkSamples int

	incoming chan []float32

	mu       sync.Mutex
	leftover []float32
	capturer *audio.Capturer
}

func newCaptureAdapter(sampleRate int, captureSeconds float64) (*captureAdapter, error) {
	a := &captureAdapter{
		sampleRate:   sampleRate,
		chunkSamples: int(float64(sampleRate) * captureSeconds),
		incoming:     make(chan []float32, 64),
	}
	capturer, err := audio.NewCapturer(sampleRate, a.onSamples)
	if err != nil {
		return nil, err
	}
	a.capturer = capturer
	return a, nil
}

func (a *captureAdapter) onSamples(samples []float32) {
	cp := make([]float32, len(samples))
	copy(cp, samples)
	select {
	case a.incoming <- cp:
	default:
		// Capture is outrunning ReadChunk; drop rather than block the
		// audio callback thread.
	}
}

func (a *captureAdapter) Start() error { return a.capturer.Start() }
func (a *captureAdapter) Stop()        { a.capturer.Stop() }
func (a *captureAdapter) Close()       { a.capturer.Close() }

func (a *captureAdapter) ReadChunk(ctx context.Context) ([]float32, error) {
	for len(a.leftover) < a.chunkSamples {
		select {
		case s := <-a.incoming:
			a.leftover = append(a.leftover, s...)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	out := make([]float32, a.chunkSamples)
	copy(out, a.leftover[:a.chunkSamples])
	a.leftover = a.leftover[a.chunkSamples:]
	return out, nil
}

func (a *captureAdapter) Pause()  { a.capturer.Pause() }
func (a *captureAdapter) Resume() { a.capturer.Resume() }

// Reopen recreates the underlying device after a write/read failure, per
// the spec's reopen-on-error policy for external sinks.
func (a *captureAdapter) Reopen() error {
	a.capturer.Close()
	capturer, err := audio.NewCapturer(a.sampleRate, a.onSamples)
	if err != nil {
		return fmt.Errorf("capture: reopen: %w", err)
	}
	a.capturer = capturer
	return a.capturer.Start()
}

// asrAdapter bridges stt.Recognizer's VAD-driven segment-channel model onto
// listening.ASR's buffer-accumulate-and-finalize shape. The listening state
// machine runs its own RMS-based VAD, so the recognizer's own VAD/segment
// machinery is bypassed entirely: every fed chunk is appended to a local
// buffer, and Final transcribes that exact buffer via TranscribeSegment,
// which works standalone regardless of the recognizer's internal VAD state.
type asrAdapter struct {
	rec *stt.Recognizer

	mu  sync.Mutex
	buf []float32
}

func (a *asrAdapter) AcceptPartial(samples []float32) {
	a.mu.Lock()
	a.buf = append(a.buf, samples...)
	a.mu.Unlock()
}

// PartialText is not produced incrementally by the recognizer; the state
// machine only needs PartialLen to grow, so this is unused in practice.
func (a *asrAdapter) PartialText() string { return "" }

func (a *asrAdapter) PartialLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buf)
}

func (a *asrAdapter) Final() string {
	a.mu.Lock()
	buf := a.buf
	a.mu.Unlock()
	return a.rec.TranscribeSegment(buf)
}

func (a *asrAdapter) Reset() {
	a.mu.Lock()
	a.buf = nil
	a.mu.Unlock()
	a.rec.Clear()
}

// synthAdapter adapts tts.Synthesizer to ttsqueue.Synthesizer. Synthesis is
// not interruptible mid-call in the teacher's sherpa-onnx wrapper, so
// cancel is accepted but only checked before starting work.
type synthAdapter struct {
	synth *tts.Synthesizer
}

func (s *synthAdapter) Synthesize(text string, cancel *atomic.Bool) ([]float32, int, error) {
	if cancel != nil && cancel.Load() {
		return nil, 0, nil
	}
	out, err := s.synth.Synthesize(text)
	if err != nil {
		return nil, 0, err
	}
	return out.Samples, out.SampleRate, nil
}

// playbackSink adapts the shared audio.Player to both ttsqueue.Sink (TTS
// playback) and music.Sink (FLAC playback) — both only need a blocking
// WriteChunk. The two adapters share one underlying device, and nothing
// here serializes TTS against music: a TTS request enqueued while a track
// is playing writes to the same Player as the music task.
type playbackSink struct {
	player     *audio.Player
	sampleRate int
}

func (p *playbackSink) WriteChunk(samples []float32) error {
	return p.player.Play(audio.AudioBuffer{Samples: samples, SampleRate: p.sampleRate})
}

// Reopen is a no-op that satisfies ttsqueue.Sink; it does not recreate the
// Player. audio.Player.Play never reports a write error, so the TTS worker
// never reaches this call through WriteChunk.
func (p *playbackSink) Reopen() error { return nil }

// llmAdapter narrows llm.Client's three-return Chat down to the
// listening.LLM boundary, announcing a Cloud→Local fallback via the TTS
// queue before the caller ever sees the reply.
type llmAdapter struct {
	client *llm.Client
	tts    *ttsqueue.Control
}

func (a *llmAdapter) Chat(ctx context.Context, userMessage, imageBase64 string) (string, error) {
	reply, fallback, err := a.client.Chat(ctx, userMessage, imageBase64)
	if fallback == llm.FellBackToLocal {
		a.tts.Enqueue("Unable to contact cloud LLM.")
	}
	if err != nil {
		return "", err
	}
	return reply, nil
}
