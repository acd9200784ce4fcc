// Package phrasebook holds the small fixed vocabularies the listening state
// machine matches against: wake phrases, goodbye/cancel/ignore words, and
// the canned greetings spoken back to the user.
package phrasebook

import (
	"fmt"
	"math/rand"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Book is the loaded phrase vocabulary.
type Book struct {
	WakeWords     []string `yaml:"wakeWords"`
	GoodbyeWords  []string `yaml:"goodbyeWords"`
	CancelWords   []string `yaml:"cancelWords"`
	IgnoreWords   []string `yaml:"ignoreWords"`
	WakeResponses []string `yaml:"wakeResponses"`
	GoodbyeReply  string   `yaml:"goodbyeReply"`
	ApologyReply  string   `yaml:"apologyReply"`
}

// Default returns the vocabulary dawn.c ships with, used when no phrasebook
// file is configured.
func Default() *Book {
	return &Book{
		WakeWords:     []string{"hey friday", "okay friday", "friday"},
		GoodbyeWords:  []string{"goodbye", "good bye", "bye", "see you later"},
		CancelWords:   []string{"stop", "cancel", "never mind", "nevermind"},
		IgnoreWords:   []string{"", "the", "cancel", "never mind", "nevermind", "ignore"},
		WakeResponses: []string{"Hello sir", "Yes sir", "I'm listening"},
		GoodbyeReply:  "Goodbye sir",
		ApologyReply:  "I'm sorry but I'm currently unavailable boss.",
	}
}

// Load reads a YAML phrasebook from path, falling back to Default on any
// field left unset.
func Load(path string) (*Book, error) {
	b := Default()
	if path == "" {
		return b, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return b, nil
		}
		return nil, fmt.Errorf("phrasebook: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, b); err != nil {
		return nil, fmt.Errorf("phrasebook: parse %s: %w", path, err)
	}

	return b, nil
}

// MatchesAny reports whether text equals one of the given phrases,
// case-insensitively and trimmed, matching dawn.c's exact-phrase comparisons
// for goodbye/cancel/ignore lists.
func MatchesAny(text string, phrases []string) bool {
	text = strings.TrimSpace(strings.ToLower(text))
	for _, p := range phrases {
		if text == strings.ToLower(p) {
			return true
		}
	}
	return false
}

// FindWakePhrase scans text for the first configured wake phrase and returns
// its text and the index immediately following the match, or ok=false.
func (b *Book) FindWakePhrase(text string) (phrase string, afterIdx int, ok bool) {
	lower := strings.ToLower(text)
	for _, w := range b.WakeWords {
		idx := strings.Index(lower, strings.ToLower(w))
		if idx >= 0 {
			return w, idx + len(w), true
		}
	}
	return "", 0, false
}

// RandomWakeResponse picks one of the configured greetings at random.
func (b *Book) RandomWakeResponse() string {
	if len(b.WakeResponses) == 0 {
		return "Hello sir"
	}
	return b.WakeResponses[rand.Intn(len(b.WakeResponses))]
}
