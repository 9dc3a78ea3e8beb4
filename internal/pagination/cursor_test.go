package pagination

import (
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 30, 0, 123456789, time.UTC)
	cur, err := Decode(Encode(at, "dsp_abc"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !cur.CreatedAt.Equal(at) {
		t.Errorf("CreatedAt = %v, want %v", cur.CreatedAt, at)
	}
	if cur.ID != "dsp_abc" {
		t.Errorf("ID = %q, want dsp_abc", cur.ID)
	}
}

func TestDecodeEmptyIsNil(t *testing.T) {
	cur, err := Decode("")
	if err != nil || cur != nil {
		t.Errorf("Decode(\"\") = %v, %v; want nil, nil", cur, err)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, in := range []string{"not-base64!!", "aGVsbG8=", "fDEyMw=="} {
		if _, err := Decode(in); err == nil {
			t.Errorf("Decode(%q) should fail", in)
		}
	}
}

func TestComputePage(t *testing.T) {
	type row struct {
		id string
		at time.Time
	}
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := []row{
		{"dsp_3", base.Add(3 * time.Hour)},
		{"dsp_2", base.Add(2 * time.Hour)},
		{"dsp_1", base.Add(time.Hour)},
	}
	key := func(r row) (time.Time, string) { return r.at, r.id }

	// Fetched limit+1: trims and reports more.
	page, next, more := ComputePage(rows, 2, key)
	if len(page) != 2 || !more || next == "" {
		t.Fatalf("expected full page with next cursor, got %d items more=%v", len(page), more)
	}
	cur, err := Decode(next)
	if err != nil {
		t.Fatalf("decode next: %v", err)
	}
	if cur.ID != "dsp_2" {
		t.Errorf("next cursor points at %q, want dsp_2", cur.ID)
	}

	// Under the limit: no cursor.
	page, next, more = ComputePage(rows[:1], 2, key)
	if len(page) != 1 || more || next != "" {
		t.Errorf("expected final page, got more=%v next=%q", more, next)
	}
}
