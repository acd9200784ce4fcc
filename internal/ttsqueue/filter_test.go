package ttsqueue

import "testing"

func TestFilterStripsEndOfTurnAndMarkup(t *testing.T) {
	got := Filter("Sure thing!<end_of_turn> *winks*")
	want := "Sure thing! winks"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFilterStripsEmoji(t *testing.T) {
	got := Filter("Great job! \U0001F600 Keep going ✅")
	want := "Great job!  Keep going"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got == "" {
		t.Fatal("filter should not empty non-emoji text")
	}
	for _, r := range got {
		if isEmoji(r) {
			t.Fatalf("filtered text still contains emoji rune %U", r)
		}
	}
}
