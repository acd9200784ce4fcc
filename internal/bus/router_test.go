package bus

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// echoServer accepts one connection and relays every frame it receives to a
// channel, so tests can assert on what the client published.
func echoServer(t *testing.T, received chan<- []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- data
		}
	}))
	return srv
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestPublishSendsEnvelope(t *testing.T) {
	received := make(chan []byte, 4)
	srv := echoServer(t, received)
	defer srv.Close()

	client, err := Dial(wsURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	if err := client.Publish("home/light", map[string]string{"device": "light", "value": "on"}); err != nil {
		t.Fatal(err)
	}

	select {
	case data := <-received:
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatal(err)
		}
		if env.Topic != "home/light" {
			t.Fatalf("topic = %q, want home/light", env.Topic)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published envelope")
	}
}

// relayServer upgrades the connection and echoes back every inbound
// envelope verbatim, so the test client can exercise its own read pump.
func relayServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(msgType, data); err != nil {
				return
			}
		}
	}))
}

func TestRouterDispatchesKnownDevice(t *testing.T) {
	srv := relayServer(t)
	defer srv.Close()

	client, err := Dial(wsURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	router := NewRouter(client, "assistant", "hud", "friday")

	got := make(chan Action, 1)
	router.On(DeviceVolume, func(a Action) { got <- a })

	if err := client.Publish("assistant", map[string]string{"device": "volume", "action": "set", "value": "seven"}); err != nil {
		t.Fatal(err)
	}

	select {
	case a := <-got:
		if a.Device != DeviceVolume || a.Value != "seven" {
			t.Fatalf("unexpected action: %+v", a)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatched action")
	}
}

func TestRouterDropsUnknownDevice(t *testing.T) {
	srv := relayServer(t)
	defer srv.Close()

	client, err := Dial(wsURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	router := NewRouter(client, "assistant", "hud", "friday")
	router.On(DeviceVolume, func(a Action) {
		t.Fatal("volume handler should not fire for an unknown device message")
	})

	if err := client.Publish("assistant", map[string]string{"device": "toaster", "action": "on"}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
}

func TestPublishStateDebounces(t *testing.T) {
	received := make(chan []byte, 4)
	srv := echoServer(t, received)
	defer srv.Close()

	client, err := Dial(wsURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	router := NewRouter(client, "assistant", "hud", "friday")

	router.PublishState("SILENCE")
	router.PublishState("SILENCE")
	router.PublishState("WAKEWORD_LISTEN")

	var envelopes []Envelope
	timeout := time.After(1 * time.Second)
	for len(envelopes) < 2 {
		select {
		case data := <-received:
			var env Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				t.Fatal(err)
			}
			envelopes = append(envelopes, env)
		case <-timeout:
			t.Fatalf("expected 2 debounced publishes, got %d", len(envelopes))
		}
	}

	select {
	case <-received:
		t.Fatal("expected no third publish, duplicate state should be suppressed")
	case <-time.After(200 * time.Millisecond):
	}
}
