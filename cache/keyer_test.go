package cache

import (
	"strings"
	"testing"
)

func TestHashKeyer_Key(t *testing.T) {
	k := NewHashKeyer()

	a := k.Key("session", "conversation-1")
	b := k.Key("session", "conversation-1")
	if a != b {
		t.Errorf("Key() not deterministic: %q != %q", a, b)
	}
	if !strings.HasPrefix(a, "session:") {
		t.Errorf("Key() = %q, want session: prefix", a)
	}
	if len(a) != len("session:")+32 {
		t.Errorf("len(Key()) = %d, want %d", len(a), len("session:")+32)
	}
	if strings.Contains(a, "conversation-1") {
		t.Errorf("Key() = %q leaks the id", a)
	}
	if k.Key("session", "conversation-2") == a {
		t.Error("distinct ids produced the same key")
	}
}

func TestHashKeyer_AlwaysValid(t *testing.T) {
	k := NewHashKeyer()
	for _, id := range []string{"", " ", "line\nbreak", strings.Repeat("x", 4096)} {
		if err := ValidateKey(k.Key("session", id)); err != nil {
			t.Errorf("ValidateKey(Key(%q)) error = %v", id, err)
		}
	}
}
