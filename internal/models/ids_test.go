package models

import (
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestNewConversationID(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	id := NewConversationID(now)

	pattern := regexp.MustCompile(`^conv_[0-9a-z]+_[0-9a-z]{8}$`)
	if !pattern.MatchString(id) {
		t.Fatalf("id %q does not match %s", id, pattern)
	}

	stamp := strings.Split(id, "_")[1]
	ms, err := strconv.ParseInt(stamp, 36, 64)
	if err != nil {
		t.Fatalf("parse time component: %v", err)
	}
	if ms != now.UnixMilli() {
		t.Errorf("time component = %d, want %d", ms, now.UnixMilli())
	}
}

func TestNewConversationIDUnique(t *testing.T) {
	now := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		id := NewConversationID(now)
		if seen[id] {
			t.Fatalf("duplicate id %q after %d draws", id, i)
		}
		seen[id] = true
	}
}

func TestNewModelID(t *testing.T) {
	id := NewModelID(time.UnixMilli(42))
	if !regexp.MustCompile(`^42-[0-9a-z]{6}$`).MatchString(id) {
		t.Errorf("unexpected model id %q", id)
	}
}

func TestRandomSuffixUsesFullAlphabet(t *testing.T) {
	// Every position must spread over more than the 16 values a fixed
	// nibble would allow.
	seen := make([]map[byte]bool, 8)
	for i := range seen {
		seen[i] = make(map[byte]bool)
	}
	for i := 0; i < 2000; i++ {
		suffix := strings.Split(NewConversationID(time.Now()), "_")[2]
		for pos := 0; pos < len(suffix); pos++ {
			seen[pos][suffix[pos]] = true
		}
	}
	for pos, chars := range seen {
		if len(chars) <= 16 {
			t.Errorf("position %d only produced %d distinct characters", pos, len(chars))
		}
	}
}

func TestRandomBase36SpansSeveralUUIDs(t *testing.T) {
	s := randomBase36(30)
	if !regexp.MustCompile(`^[0-9a-z]{30}$`).MatchString(s) {
		t.Errorf("unexpected random string %q", s)
	}
}
