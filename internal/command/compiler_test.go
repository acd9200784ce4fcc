package command

import (
	"os"
	"path/filepath"
	"testing"
)

func sampleConfig() *rawConfig {
	return &rawConfig{
		Types: map[string]rawActionType{
			"light": {
				Actions: map[string]SubAction{
					"set": {
						ActionWords:   []string{"set %device_name% to %value%"},
						ActionCommand: "{\"device\":\"%device_name%\",\"value\":\"%value%\"}",
					},
				},
			},
		},
		Devices: map[string]Device{
			"light": {Type: "light", Aliases: []string{"lamp"}, Topic: "home/light"},
		},
		AudioDevices: map[string]AudioDevice{
			"speaker": {Type: AudioDevicePlayback, Device: "default"},
		},
	}
}

func TestCompileRoundTrip(t *testing.T) {
	table, err := Compile(sampleConfig())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	// subActions(1) * actionWords(1) * (1 device + 1 alias) = 2 entries.
	if len(table.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(table.Entries))
	}

	match, ok := table.Find("set lamp to seven")
	if !ok {
		t.Fatalf("expected match for alias spoken form")
	}
	if match.Topic != "home/light" {
		t.Fatalf("topic = %q, want home/light", match.Topic)
	}
	if match.Payload != `{"device":"light","value":"seven"}` {
		t.Fatalf("payload = %q", match.Payload)
	}
}

func TestCompileOverflow(t *testing.T) {
	cfg := sampleConfig()
	table, err := Compile(cfg)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(table.Entries) == 0 {
		t.Fatal("expected at least one entry")
	}

	// Each action word emits one entry for "light" and one for its alias
	// "lamp", so MaxCommands/2+1 words overflow the table.
	words := make([]string, MaxCommands/2+1)
	for i := range words {
		words[i] = "set %device_name% to %value%"
	}
	cfg.Types["light"].Actions["set"] = SubAction{ActionWords: words, ActionCommand: "x"}
	if _, err := Compile(cfg); err == nil {
		t.Fatalf("expected overflow error for %d entries, max %d", 2*len(words), MaxCommands)
	}
}

func TestLoadConfigRejectsUnknownDeviceType(t *testing.T) {
	doc := `{
  "types": {"light": {"actions": {"on": {"action_words": ["turn on %device_name%"], "action_command": "on"}}}},
  "devices": {"broken": {"type": "nonexistent", "topic": "x"}},
  "audio devices": {}
}`
	path := filepath.Join(t.TempDir(), "commands.json")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation to catch unknown device type")
	}
}
