// Package listening implements the core listening state machine described
// in §4.1: it segments the microphone stream into utterances, classifies
// them against wake/goodbye/cancel/ignore phrases, and drives the command
// dispatcher, the LLM adapter, and the TTS pipeline.
package listening

import (
	"context"
	"log"
	"math"
	"sync/atomic"
	"time"

	"github.com/agalue/sherpa-voice-assistant/internal/command"
	"github.com/agalue/sherpa-voice-assistant/internal/metrics"
	"github.com/agalue/sherpa-voice-assistant/internal/phrasebook"
	"github.com/agalue/sherpa-voice-assistant/internal/ttsqueue"
	"github.com/agalue/sherpa-voice-assistant/internal/vision"
)

// Tunables named in §4.1. DefaultCaptureSeconds drives the nominal capture
// unit size; DefaultCommandTimeoutTicks and BackgroundCaptureSeconds are
// counted in capture iterations / wall-clock seconds respectively.
const (
	DefaultCaptureSeconds       = 0.5
	DefaultCommandTimeoutTicks  = 2
	BackgroundCaptureSeconds    = 6
	VADRMSOffset                = 0.015
)

// State is one of the five listening states named in §4.1.
type State int

const (
	Silence State = iota
	WakeWordListen
	CommandRecording
	ProcessCommand
	VisionReady
)

func (s State) String() string {
	switch s {
	case Silence:
		return "SILENCE"
	case WakeWordListen:
		return "WAKEWORD_LISTEN"
	case CommandRecording:
		return "COMMAND_RECORDING"
	case ProcessCommand:
		return "PROCESS_COMMAND"
	case VisionReady:
		return "VISION_AI_READY"
	default:
		return "UNKNOWN"
	}
}

// CaptureSink produces fixed-size frames from the microphone, one capture
// unit per ReadChunk call (§4.1's "one iteration reads up to
// max_buff_size bytes"). It is an external collaborator per the
// specification's scope — the teacher's malgo-backed audio.Capturer is
// adapted to this shape in cmd/assistant/adapters.go.
type CaptureSink interface {
	ReadChunk(ctx context.Context) ([]float32, error)
	Pause()
	Resume()
	Reopen() error
}

// ASR is the speech-recognition adapter boundary: accept waveform as a
// running partial, inspect the partial without finalizing, and force a
// final result when a command boundary is reached. Also an explicit
// external collaborator.
type ASR interface {
	AcceptPartial(samples []float32)
	PartialText() string
	PartialLen() int
	Final() string
	Reset()
}

// LLM is the subset of the LLM adapter (§4.6) the state machine calls.
type LLM interface {
	Chat(ctx context.Context, userMessage, imageBase64 string) (reply string, err error)
}

// Publisher is the subset of the bus router (§4.4) the state machine uses:
// publishing matched commands and debounced HUD state.
type Publisher interface {
	PublishRaw(topic, rawJSON string) error
	PublishState(state string)
}

// Machine wires together the state machine's dependencies and runs the
// single-goroutine outer loop described in §4.1/§5.
type Machine struct {
	capture CaptureSink
	asr     ASR
	tts     *ttsqueue.Control
	table   *command.Table
	llm     LLM
	bus     Publisher
	phrases *phrasebook.Book
	vis     *vision.Slot

	backgroundRMS float64
	quit          atomic.Bool

	state             State
	silenceNextState  State
	commandTimeout    int
	stateEnteredAt    time.Time
}

// New creates a Machine. Callers should call CalibrateBackground before Run
// to establish the ambient noise floor used by the VAD rule.
func New(capture CaptureSink, asr ASR, tts *ttsqueue.Control, table *command.Table, llm LLM, bus Publisher, phrases *phrasebook.Book, vis *vision.Slot) *Machine {
	return &Machine{
		capture:          capture,
		asr:              asr,
		tts:              tts,
		table:            table,
		llm:              llm,
		bus:              bus,
		phrases:          phrases,
		vis:              vis,
		state:            Silence,
		silenceNextState: WakeWordListen,
		stateEnteredAt:   time.Now(),
	}
}

// setState transitions to next, recording the time spent in the outgoing
// state and a transition count for the incoming one.
func (m *Machine) setState(next State) {
	if !m.stateEnteredAt.IsZero() {
		metrics.StateDuration.WithLabelValues(m.state.String()).Observe(time.Since(m.stateEnteredAt).Seconds())
	}
	m.state = next
	m.stateEnteredAt = time.Now()
	metrics.StateTransitions.WithLabelValues(next.String()).Inc()
}

// Quit requests the outer loop to exit at its next check, matching the
// atomic.Bool quit flag named in §5.
func (m *Machine) Quit() {
	m.quit.Store(true)
}

// CalibrateBackground samples the capture sink for BackgroundCaptureSeconds
// and records the average RMS as the ambient noise floor.
func (m *Machine) CalibrateBackground(ctx context.Context) error {
	iterations := int(BackgroundCaptureSeconds / DefaultCaptureSeconds)
	if iterations < 1 {
		iterations = 1
	}

	var total float64
	for i := 0; i < iterations; i++ {
		chunk, err := m.capture.ReadChunk(ctx)
		if err != nil {
			return err
		}
		total += computeRMS(chunk)
	}
	m.backgroundRMS = total / float64(iterations)
	log.Printf("[listening] background RMS calibrated: %.4f", m.backgroundRMS)
	return nil
}

// Run executes the outer loop until ctx is cancelled or Quit is called.
func (m *Machine) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil || m.quit.Load() {
			return
		}

		if m.vis.IsReady() {
			m.runVisionReady(ctx)
			continue
		}

		m.publishState()

		switch m.state {
		case Silence:
			m.runSilence(ctx)
		case WakeWordListen:
			m.runWakeWordListen(ctx)
		case CommandRecording:
			m.runCommandRecording(ctx)
		}
	}
}

func (m *Machine) publishState() {
	if m.bus != nil {
		m.bus.PublishState(m.state.String())
	}
}

// isSpeech feeds chunk to the ASR as a partial and reports whether it
// counts as speech: RMS must clear the threshold, and the act of feeding it
// must grow the partial transcript — an unchanged partial length despite a
// loud chunk is ambient noise carrying no new tokens, per §4.1's VAD rule.
func (m *Machine) isSpeech(chunk []float32) bool {
	rms := computeRMS(chunk)
	metrics.CaptureRMS.Set(rms)
	if rms < m.backgroundRMS+VADRMSOffset {
		return false
	}

	before := m.asr.PartialLen()
	m.asr.AcceptPartial(chunk)
	return m.asr.PartialLen() != before
}

func computeRMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSquares float64
	for _, s := range samples {
		sumSquares += float64(s) * float64(s)
	}
	return math.Sqrt(sumSquares / float64(len(samples)))
}

// runSilence implements the Silence state of §4.1.
func (m *Machine) runSilence(ctx context.Context) {
	if m.tts.State() == ttsqueue.Paused {
		m.tts.Resume()
	}

	chunk, err := m.capture.ReadChunk(ctx)
	if err != nil {
		log.Printf("[listening] capture read error in Silence: %v", err)
		if reopenErr := m.capture.Reopen(); reopenErr != nil {
			log.Printf("[listening] capture reopen failed: %v", reopenErr)
		}
		return
	}

	if m.isSpeech(chunk) {
		m.setState(m.silenceNextState)
	}
}

// runWakeWordListen implements the WakeWordListen state of §4.1.
func (m *Machine) runWakeWordListen(ctx context.Context) {
	if m.tts.State() == ttsqueue.Playing {
		m.tts.Pause()
	}

	chunk, err := m.capture.ReadChunk(ctx)
	if err != nil {
		log.Printf("[listening] capture read error in WakeWordListen: %v", err)
		if reopenErr := m.capture.Reopen(); reopenErr != nil {
			log.Printf("[listening] capture reopen failed: %v", reopenErr)
		}
		return
	}

	if m.isSpeech(chunk) {
		m.commandTimeout = 0
		return
	}

	m.commandTimeout++
	if m.commandTimeout < DefaultCommandTimeoutTicks {
		return
	}
	m.commandTimeout = 0

	transcript := m.asr.Final()
	m.asr.Reset()

	if phrasebook.MatchesAny(transcript, m.phrases.GoodbyeWords) {
		m.tts.Enqueue(m.phrases.GoodbyeReply)
		m.quit.Store(true)
		return
	}

	if m.tts.State() == ttsqueue.Paused && phrasebook.MatchesAny(transcript, m.phrases.CancelWords) {
		m.tts.DiscardNow()
		m.setState(Silence)
		m.silenceNextState = WakeWordListen
		return
	}

	_, afterIdx, ok := m.phrases.FindWakePhrase(transcript)
	if !ok {
		if m.tts.State() == ttsqueue.Paused {
			m.tts.Resume()
		}
		m.setState(Silence)
		m.silenceNextState = WakeWordListen
		return
	}

	remainder := transcript[afterIdx:]
	if remainder == "" {
		m.tts.Enqueue(m.phrases.RandomWakeResponse())
		m.setState(Silence)
		m.silenceNextState = CommandRecording
		return
	}

	if remainder[0] == ' ' {
		remainder = remainder[1:]
	}
	m.processCommand(remainder)
}

// runCommandRecording implements the CommandRecording state of §4.1.
func (m *Machine) runCommandRecording(ctx context.Context) {
	if m.tts.State() == ttsqueue.Paused {
		m.tts.DiscardNow()
	}

	chunk, err := m.capture.ReadChunk(ctx)
	if err != nil {
		log.Printf("[listening] capture read error in CommandRecording: %v", err)
		if reopenErr := m.capture.Reopen(); reopenErr != nil {
			log.Printf("[listening] capture reopen failed: %v", reopenErr)
		}
		return
	}

	if m.isSpeech(chunk) {
		m.commandTimeout = 0
		return
	}

	m.commandTimeout++
	if m.commandTimeout < DefaultCommandTimeoutTicks {
		return
	}
	m.commandTimeout = 0

	transcript := m.asr.Final()
	m.asr.Reset()
	m.processCommand(transcript)
}

// processCommand implements the ProcessCommand state of §4.1.
func (m *Machine) processCommand(commandText string) {
	m.setState(ProcessCommand)
	m.publishState()

	if phrasebook.MatchesAny(commandText, m.phrases.GoodbyeWords) {
		m.tts.Enqueue(m.phrases.GoodbyeReply)
		m.quit.Store(true)
		return
	}

	if match, ok := m.table.Find(commandText); ok {
		metrics.CommandsDispatchedTotal.WithLabelValues(match.Topic).Inc()
		if m.bus != nil {
			if err := m.bus.PublishRaw(match.Topic, match.Payload); err != nil {
				log.Printf("[listening] bus publish failed: %v", err)
			}
		}
		if m.tts.State() == ttsqueue.Paused {
			m.tts.DiscardNow()
		}
		m.setState(Silence)
		m.silenceNextState = WakeWordListen
		return
	}

	if phrasebook.MatchesAny(commandText, m.phrases.IgnoreWords) {
		if m.tts.State() == ttsqueue.Paused {
			m.tts.Resume()
		}
		m.setState(Silence)
		m.silenceNextState = WakeWordListen
		return
	}

	m.askLLM(commandText, "")
	m.setState(Silence)
	m.silenceNextState = WakeWordListen
}

// runVisionReady implements the VisionReady state of §4.1: sampled at the
// top of every outer loop iteration, pre-empting whatever state was active.
func (m *Machine) runVisionReady(ctx context.Context) {
	image, ok := m.vis.TakeReady()
	if !ok {
		return
	}
	m.setState(VisionReady)
	m.publishState()

	if m.tts.State() == ttsqueue.Paused {
		m.tts.Resume()
	}

	m.askLLM("What am I looking at? Ignore the overlay unless asked about it specifically.", image)
	m.setState(Silence)
	m.silenceNextState = WakeWordListen
}

func (m *Machine) askLLM(userMessage, imageBase64 string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reply, err := m.llm.Chat(ctx, userMessage, imageBase64)
	if err != nil {
		log.Printf("[listening] llm error: %v", err)
		m.tts.Enqueue(m.phrases.ApologyReply)
		return
	}
	m.tts.Enqueue(ttsqueue.Filter(reply))
}
