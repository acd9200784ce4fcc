// Package bus implements the assistant's message-bus transport and inbound
// routing, described in §4.4. The bus client library is an external
// collaborator per the specification's scope; no MQTT/mosquitto Go binding
// exists anywhere in the reference corpus, so this concrete implementation
// is a gorilla/websocket client modeled on hubenschmidt-asr-llm-tts's
// internal/ws/handler.go read-pump/write-mutex shape.
package bus

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Envelope is the single JSON shape exchanged over the bus connection.
// "Topic" has no native meaning on a raw WebSocket, so it is modeled as an
// explicit envelope field. ID is a per-publish correlation identifier,
// grounded on longregen-alicia's bridge.go requestID pattern, so a listener
// replaying the bus log can line up a dispatched command with whatever
// response or side effect it produced.
type Envelope struct {
	ID      string          `json:"id"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// Handler is invoked for every inbound envelope whose topic the client is
// subscribed to.
type Handler func(payload json.RawMessage)

// Client is a single persistent WebSocket connection used both to publish
// outbound envelopes and to receive inbound ones. The write path is
// serialized by a mutex; the read path runs in its own goroutine delivering
// to subscribed handlers.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	subMu    sync.Mutex
	handlers map[string]Handler

	doneOnce sync.Once
	done     chan struct{}
}

// Dial connects to url and starts the read pump. On failure the caller is
// expected to abort startup, per §4.4 ("On connect failure abort startup").
func Dial(url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("bus: dial %s: %w", url, err)
	}

	c := &Client{
		conn:     conn,
		handlers: make(map[string]Handler),
		done:     make(chan struct{}),
	}
	go c.readPump()
	return c, nil
}

// Subscribe registers handler for topic. There is no server-side
// subscription request for this transport — filtering happens client-side
// on the envelope's topic field, per §4.4's "modeled as a topic envelope
// field" note. Abort startup (return an error) is the caller's
// responsibility if this is meant to emulate subscribe-rejection.
func (c *Client) Subscribe(topic string, h Handler) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.handlers[topic] = h
}

// Publish sends payload, JSON-marshaled, on topic.
func (c *Client) Publish(topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bus: marshal payload: %w", err)
	}
	return c.publishRaw(topic, body)
}

// PublishRaw sends an already-JSON-encoded payload on topic without
// re-marshaling it — used for command-table payloads, which are built as
// JSON text by internal/command's template substitution.
func (c *Client) PublishRaw(topic, rawJSON string) error {
	return c.publishRaw(topic, json.RawMessage(rawJSON))
}

func (c *Client) publishRaw(topic string, body json.RawMessage) error {
	env := Envelope{ID: uuid.New().String(), Topic: topic, Payload: body}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("bus: publish %s: %w", topic, err)
	}
	return nil
}

// Close terminates the connection and stops the read pump.
func (c *Client) Close() error {
	c.doneOnce.Do(func() { close(c.done) })
	return c.conn.Close()
}

// Done returns a channel closed when the connection has been torn down,
// either locally or because the read pump observed an error. The underlying
// bus client is assumed to auto-reconnect per §4.4; this client does not —
// reconnect policy belongs to whatever supplies the concrete transport in
// production, the same boundary the specification draws around it.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) readPump() {
	defer c.doneOnce.Do(func() { close(c.done) })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Printf("bus: connection closed: %v", err)
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("bus: malformed envelope: %v", err)
			continue
		}

		c.subMu.Lock()
		h, ok := c.handlers[env.Topic]
		c.subMu.Unlock()
		if !ok {
			continue
		}
		h(env.Payload)
	}
}
