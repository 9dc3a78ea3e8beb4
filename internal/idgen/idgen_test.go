package idgen

import (
	"strings"
	"testing"
)

func TestWithPrefix(t *testing.T) {
	id := WithPrefix("dsp_")
	if !strings.HasPrefix(id, "dsp_") {
		t.Errorf("missing prefix: %q", id)
	}
	if len(id) != len("dsp_")+24 {
		t.Errorf("unexpected length %d: %q", len(id), id)
	}
	if id == WithPrefix("dsp_") {
		t.Error("two IDs collided")
	}
}

func TestHex(t *testing.T) {
	if got := Hex(16); len(got) != 32 {
		t.Errorf("Hex(16) length = %d, want 32", len(got))
	}
	for _, c := range Hex(8) {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Fatalf("non-hex character %q", c)
		}
	}
}
