package command

import "testing"

func TestExtractValueSuffixPlaceholder(t *testing.T) {
	got := extractValue("set light to %s", "set light to seven")
	if got != "seven" {
		t.Fatalf("got %q, want %q", got, "seven")
	}
}

func TestExtractValueMidPlaceholder(t *testing.T) {
	got := extractValue("set %s to eleven", "set light to eleven")
	if got != "light" {
		t.Fatalf("got %q, want %q", got, "light")
	}
}

func TestFindFirstWin(t *testing.T) {
	table := &Table{Entries: []Entry{
		{WildcardPattern: "turn*light*", ExtractionPattern: "turn %s light", CommandTemplate: "first:%s", Topic: "t1"},
		{WildcardPattern: "turn*", ExtractionPattern: "turn %s", CommandTemplate: "second:%s", Topic: "t2"},
	}}

	m, ok := table.Find("turn on light")
	if !ok {
		t.Fatal("expected a match")
	}
	if m.Topic != "t1" {
		t.Fatalf("topic = %q, want t1 (first entry should win)", m.Topic)
	}
}

func TestExpandDatetimeNoPlaceholder(t *testing.T) {
	s := "no placeholder here"
	if got := ExpandDatetime(s); got != s {
		t.Fatalf("got %q, want unchanged %q", got, s)
	}
}
