package bus

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/buger/jsonparser"
)

// Device enumerates the inbound dispatch targets named in §4.4. Unknown
// devices are logged and dropped rather than erroring the connection.
type Device string

const (
	DeviceAudioPlayback Device = "audio_playback"
	DeviceAudioCapture  Device = "audio_capture"
	DeviceTextToSpeech  Device = "tts"
	DeviceDate          Device = "date"
	DeviceTime          Device = "time"
	DeviceMusic         Device = "music"
	DeviceAmplifier     Device = "amplifier"
	DeviceShutdown      Device = "shutdown"
	DeviceViewing       Device = "viewing"
	DeviceVolume        Device = "volume"
	DeviceLocalLLM      Device = "local_llm"
	DeviceCloudLLM      Device = "cloud_llm"
)

// Action is one inbound bus message: required device/action fields plus an
// optional value, per §4.4.
type Action struct {
	Device Device
	Action string
	Value  string
}

// ActionHandler processes one routed Action.
type ActionHandler func(Action)

// Router subscribes to a single application-named topic, decodes each
// payload, and dispatches on the device field to a fixed callback table. It
// also owns the debounced outbound HUD state publisher.
type Router struct {
	client *Client
	topic  string

	callbacks map[Device]ActionHandler

	hudTopic string
	aiName   string
	hudMu    sync.Mutex
	lastHud  string
}

// NewRouter subscribes client to topic (the application's inbound topic)
// and returns a Router ready to have device callbacks registered via On.
func NewRouter(client *Client, topic, hudTopic, aiName string) *Router {
	r := &Router{
		client:    client,
		topic:     topic,
		callbacks: make(map[Device]ActionHandler),
		hudTopic:  hudTopic,
		aiName:    aiName,
	}
	client.Subscribe(topic, r.handleEnvelope)
	return r
}

// On registers the callback invoked when device is received.
func (r *Router) On(device Device, h ActionHandler) {
	r.callbacks[device] = h
}

// PublishRaw forwards an already-JSON-encoded command payload (built by
// internal/command's template substitution) to topic verbatim.
func (r *Router) PublishRaw(topic, rawJSON string) error {
	return r.client.PublishRaw(topic, rawJSON)
}

func (r *Router) handleEnvelope(payload json.RawMessage) {
	device, err := jsonparser.GetString(payload, "device")
	if err != nil {
		log.Printf("bus: message missing device field: %v", err)
		return
	}
	action, err := jsonparser.GetString(payload, "action")
	if err != nil {
		log.Printf("bus: message missing action field: %v", err)
		return
	}
	value, _ := jsonparser.GetString(payload, "value") // optional

	cb, ok := r.callbacks[Device(device)]
	if !ok {
		log.Printf("bus: unknown device %q, dropping", device)
		return
	}
	cb(Action{Device: Device(device), Action: action, Value: value})
}

// hudState is the payload shape published to the HUD topic on every
// listening-state transition, per §4.4.
type hudState struct {
	Device string `json:"device"`
	Name   string `json:"name"`
	State  string `json:"state"`
}

// PublishState publishes the current listening-machine state to the HUD
// topic, but only when it differs from the last published value —
// debouncing is mandatory per §4.4.
func (r *Router) PublishState(state string) {
	r.hudMu.Lock()
	if state == r.lastHud {
		r.hudMu.Unlock()
		return
	}
	r.lastHud = state
	r.hudMu.Unlock()

	if err := r.client.Publish(r.hudTopic, hudState{Device: "ai", Name: r.aiName, State: state}); err != nil {
		log.Printf("bus: publish hud state: %v", err)
	}
}
