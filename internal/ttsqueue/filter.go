package ttsqueue

import (
	"strings"
)

// endOfTurnMarker is a known LLM chat-template artefact that must never be
// spoken aloud.
const endOfTurnMarker = "<end_of_turn>"

// defaultStripChars are punctuation characters the synthesizer should never
// vocalize, ported from dawn's markup-stripping call ahead of enqueueing LLM
// replies.
const defaultStripChars = "*_`#"

// Filter strips markup artefacts from text before it is handed to the TTS
// queue, mirroring remove_chars/remove_emojis in
// original_source/text_to_speech.cpp.
func Filter(text string) string {
	text = strings.ReplaceAll(text, endOfTurnMarker, "")
	text = removeChars(text, defaultStripChars)
	text = removeEmojis(text)
	return strings.TrimSpace(text)
}

func removeChars(s, chars string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(chars, r) {
			return -1
		}
		return r
	}, s)
}

// emoji ranges ported verbatim from is_emoji() in
// original_source/text_to_speech.cpp.
func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F600 && r <= 0x1F64F: // Emoticons
		return true
	case r >= 0x1F300 && r <= 0x1F5FF: // Misc symbols and pictographs
		return true
	case r >= 0x1F680 && r <= 0x1F6FF: // Transport and map symbols
		return true
	case r >= 0x2600 && r <= 0x26FF: // Misc symbols
		return true
	case r >= 0x2700 && r <= 0x27BF: // Dingbats
		return true
	case r >= 0x1F900 && r <= 0x1F9FF: // Supplemental symbols and pictographs
		return true
	default:
		return false
	}
}

func removeEmojis(s string) string {
	return strings.Map(func(r rune) rune {
		if isEmoji(r) {
			return -1
		}
		return r
	}, s)
}
