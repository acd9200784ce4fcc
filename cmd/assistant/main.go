// Voice Assistant - a Go implementation using sherpa-onnx
//
// This program wires together the listening state machine, the TTS
// playback pipeline, the command dispatcher, the message bus router, and
// the LLM adapter into a single always-on voice assistant:
// - Voice Activity Detection (RMS-based)
// - Speech-to-Text (Whisper)
// - Command dispatch (JSON-compiled action/device table)
// - LLM Integration (generic Cloud/Local OpenAI-chat adapter)
// - Text-to-Speech (Kokoro)
// - Message bus (WebSocket) for home-automation commands and HUD state
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agalue/sherpa-voice-assistant/internal/audio"
	"github.com/agalue/sherpa-voice-assistant/internal/bus"
	"github.com/agalue/sherpa-voice-assistant/internal/command"
	"github.com/agalue/sherpa-voice-assistant/internal/config"
	"github.com/agalue/sherpa-voice-assistant/internal/listening"
	"github.com/agalue/sherpa-voice-assistant/internal/llm"
	"github.com/agalue/sherpa-voice-assistant/internal/music"
	"github.com/agalue/sherpa-voice-assistant/internal/phrasebook"
	"github.com/agalue/sherpa-voice-assistant/internal/stt"
	"github.com/agalue/sherpa-voice-assistant/internal/tts"
	"github.com/agalue/sherpa-voice-assistant/internal/ttsqueue"
	"github.com/agalue/sherpa-voice-assistant/internal/vision"
)

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	log.Println("🎤 Voice Assistant starting...")
	log.Printf("⚡ STT acceleration: %s, TTS acceleration: %s", cfg.STTProvider, cfg.TTSProvider)
	log.Printf("🔊 TTS voice: %s (speaker %d)", cfg.TTSVoice, cfg.TTSSpeakerID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Printf("⚠️  metrics server stopped: %v", err)
			}
		}()
		log.Printf("📈 Metrics listening on %s/metrics", cfg.MetricsAddr)
	}

	phrases, err := phrasebook.Load(cfg.PhrasebookPath)
	if err != nil {
		log.Fatalf("Failed to load phrasebook: %v", err)
	}

	rawCommands, err := command.LoadConfig(cfg.CommandConfigPath)
	if err != nil {
		log.Fatalf("Failed to load command configuration: %v", err)
	}
	cmdTable, err := command.Compile(rawCommands)
	if err != nil {
		log.Fatalf("Failed to compile command table: %v", err)
	}
	log.Printf("🗂️  Compiled %d command patterns", len(cmdTable.Entries))

	llmClient := llm.NewClient(&llm.Config{
		CloudURL:     cfg.LLMCloudURL,
		LocalURL:     cfg.LLMLocalURL,
		APIKey:       cfg.LLMAPIKey,
		Model:        cfg.LLMModel,
		SystemPrompt: cfg.SystemPrompt,
		MaxHistory:   cfg.MaxHistory,
		MaxTokens:    cfg.MaxTokens,
		Verbose:      cfg.Verbose,
	})

	visionSlot := &vision.Slot{}

	log.Printf("🔗 Connecting to message bus at %s...", cfg.BusURL)
	busClient, err := bus.Dial(cfg.BusURL)
	if err != nil {
		log.Fatalf("Failed to connect to message bus: %v", err)
	}
	defer busClient.Close()
	router := bus.NewRouter(busClient, cfg.BusTopic, cfg.HUDTopic, cfg.AIName)
	log.Println("✅ Message bus connected")

	log.Println("🧠 Loading speech recognition models...")
	recognizer, err := stt.NewRecognizer(&stt.Config{
		VADModel:           cfg.VADModel,
		VADThreshold:       cfg.VadThreshold,
		VADSilenceDuration: cfg.VADSilenceDuration,
		WhisperEncoder:     cfg.WhisperEncoder,
		WhisperDecoder:     cfg.WhisperDecoder,
		WhisperTokens:      cfg.WhisperTokens,
		SampleRate:         cfg.SampleRate,
		WakeWord:           cfg.WakeWord,
		Provider:           cfg.STTProvider,
		Language:           cfg.STTLanguage,
		Verbose:            cfg.Verbose,
		VADThreads:         cfg.VADThreads,
		STTThreads:         cfg.STTThreads,
	})
	if err != nil {
		log.Fatalf("Failed to create STT recognizer: %v", err)
	}
	defer recognizer.Close()
	log.Println("✅ Speech recognition ready")

	log.Println("🔊 Loading text-to-speech models...")
	synthesizer, err := tts.NewSynthesizer(&tts.Config{
		Model:      cfg.TTSModel,
		Voices:     cfg.TTSVoices,
		Tokens:     cfg.TTSTokens,
		DataDir:    cfg.TTSData,
		Lexicon:    cfg.TTSLexicon,
		Language:   cfg.TTSLanguage,
		SpeakerID:  cfg.TTSSpeakerID,
		Speed:      cfg.TTSSpeed,
		Provider:   cfg.TTSProvider,
		Verbose:    cfg.Verbose,
		TTSThreads: cfg.TTSThreads,
	})
	if err != nil {
		log.Fatalf("Failed to create TTS synthesizer: %v", err)
	}
	defer synthesizer.Close()
	log.Println("✅ Text-to-speech ready")

	var playbackInterrupt atomic.Bool
	player, err := audio.NewPlayer(synthesizer.SampleRate(), cfg.AudioBufferMs, &playbackInterrupt)
	if err != nil {
		log.Fatalf("Failed to create audio player: %v", err)
	}
	defer player.Close()

	capture, err := newCaptureAdapter(cfg.SampleRate, listening.DefaultCaptureSeconds)
	if err != nil {
		log.Fatalf("Failed to create audio capturer: %v", err)
	}
	defer capture.Close()

	ttsControl := ttsqueue.New(
		&synthAdapter{synth: synthesizer},
		&playbackSink{player: player, sampleRate: synthesizer.SampleRate()},
	)
	defer ttsControl.Close()

	musicPlayer := music.NewPlayer(&playbackSink{player: player, sampleRate: 44100})

	asr := &asrAdapter{rec: recognizer}

	llmChat := &llmAdapter{client: llmClient, tts: ttsControl}

	registerBusCallbacks(router, cfg, musicPlayer, visionSlot, llmClient, ttsControl)

	machine := listening.New(capture, asr, ttsControl, cmdTable, llmChat, router, phrases, visionSlot)

	if err := capture.Start(); err != nil {
		log.Fatalf("Failed to start audio capture: %v", err)
	}

	log.Println("🎙️  Calibrating background noise level...")
	if err := machine.CalibrateBackground(ctx); err != nil {
		log.Fatalf("Background calibration failed: %v", err)
	}

	if cfg.WakeWord != "" {
		log.Printf("🎙️  Listening for wake word: %q", cfg.WakeWord)
	} else {
		log.Println("🎙️  Listening... (speak to interact, Ctrl+C to quit)")
	}

	var wg sync.WaitGroup
	machineDone := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		machine.Run(ctx)
		close(machineDone)
	}()

	select {
	case <-sigChan:
		log.Println("\n🛑 Shutdown signal received...")
		machine.Quit()
	case <-busClient.Done():
		log.Println("🛑 Message bus connection lost, shutting down...")
	case <-machineDone:
		log.Println("👋 Goodbye received, shutting down...")
	}

	// Give the TTS worker a bounded window to finish speaking any pending
	// "goodbye" reply before the process exits, per the spec's shutdown
	// sequencing decision in DESIGN.md.
	drainDeadline := time.After(5 * time.Second)
	for ttsControl.QueueLen() > 0 || ttsControl.State() == ttsqueue.Playing {
		select {
		case <-drainDeadline:
			log.Println("⚠️  TTS drain timeout, forcing exit")
			goto shutdown
		case <-time.After(100 * time.Millisecond):
		}
	}

shutdown:
	cancel()
	capture.Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("✅ Shutdown complete")
	case <-time.After(5 * time.Second):
		log.Println("⚠️  Shutdown timeout, forcing exit")
	}
}

// dateReplies and timeReplies mirror the rotating narration phrasing from
// dateCallback/timeCallback in the teacher's original C source.
var dateReplies = []string{
	"Today's date, dear sir, is %s. You're welcome.",
	"In case you've forgotten, sir, it's %s today.",
	"Mark your calendar, sir — it's %s.",
}

var timeReplies = []string{
	"The current time, in case your wristwatch has failed you, is %s.",
	"I trust you have something important planned, sir? It's %s.",
	"It's %s, sir.",
}

// registerBusCallbacks wires the fixed §4.4 device table to the components
// capable of acting on each one. Devices with no local hardware equivalent
// (amplifier, raw audio device selection) are logged rather than acted on —
// nothing in this process owns that hardware directly. Date/time/direct-tts
// need no hardware at all, so they speak through ttsControl like every
// other narrated reply.
func registerBusCallbacks(router *bus.Router, cfg *config.Config, musicPlayer *music.Player, visionSlot *vision.Slot, llmClient *llm.Client, ttsControl *ttsqueue.Control) {
	router.On(bus.DeviceShutdown, func(a bus.Action) {
		log.Println("🛑 Shutdown requested over the message bus")
		os.Exit(0)
	})

	router.On(bus.DeviceViewing, func(a bus.Action) {
		if err := visionSlot.Ingest(a.Value); err != nil {
			log.Printf("[vision] ingest failed: %v", err)
		}
	})

	router.On(bus.DeviceMusic, func(a bus.Action) {
		switch a.Action {
		case "play":
			if err := musicPlayer.Play(cfg.MusicDir, a.Value); err != nil {
				log.Printf("[music] play failed: %v", err)
			}
		case "next":
			musicPlayer.Next()
		case "previous":
			musicPlayer.Previous()
		case "stop":
			musicPlayer.Stop()
		default:
			log.Printf("[music] unknown action %q", a.Action)
		}
	})

	router.On(bus.DeviceVolume, func(a bus.Action) {
		v, ok := music.ParseVolume(a.Value)
		if !ok {
			return
		}
		musicPlayer.SetVolume(v)
	})

	router.On(bus.DeviceLocalLLM, func(a bus.Action) {
		log.Println("🧠 Switching to local LLM provider")
		llmClient.SetProvider(llm.Local)
		ttsControl.Enqueue("Switching to the local LLM.")
	})

	router.On(bus.DeviceCloudLLM, func(a bus.Action) {
		log.Println("🧠 Switching to cloud LLM provider")
		llmClient.SetProvider(llm.Cloud)
		ttsControl.Enqueue("Switching to the cloud LLM.")
	})

	router.On(bus.DeviceDate, func(a bus.Action) {
		phrase := dateReplies[rand.Intn(len(dateReplies))]
		ttsControl.Enqueue(fmt.Sprintf(phrase, time.Now().Format("Monday, January 2, 2006")))
	})
	router.On(bus.DeviceTime, func(a bus.Action) {
		phrase := timeReplies[rand.Intn(len(timeReplies))]
		ttsControl.Enqueue(fmt.Sprintf(phrase, time.Now().Format("3:04 PM")))
	})
	router.On(bus.DeviceAmplifier, func(a bus.Action) {
		log.Printf("[amplifier] %s %s", a.Action, a.Value)
	})
	router.On(bus.DeviceAudioPlayback, func(a bus.Action) {
		log.Printf("[audio playback] %s %s", a.Action, a.Value)
	})
	router.On(bus.DeviceAudioCapture, func(a bus.Action) {
		log.Printf("[audio capture] %s %s", a.Action, a.Value)
	})
	router.On(bus.DeviceTextToSpeech, func(a bus.Action) {
		ttsControl.Enqueue(a.Value)
	})
}

func init() {
	log.SetFlags(log.Ltime)
	log.SetOutput(os.Stdout)
}
