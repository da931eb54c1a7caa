package intake

import (
	"testing"
	"time"
)

func TestDeduperReportsRepeatsWithinWindow(t *testing.T) {
	d := NewDeduper(time.Hour, 100)

	if d.Seen("evt_1") {
		t.Fatal("fresh event reported as seen")
	}
	d.Mark("evt_1")
	if !d.Seen("evt_1") {
		t.Fatal("marked event not reported as seen")
	}
	if d.Seen("evt_2") {
		t.Fatal("different event reported as seen")
	}
}

func TestDeduperSeenDoesNotRecord(t *testing.T) {
	d := NewDeduper(time.Hour, 100)

	_ = d.Seen("evt_1")
	if d.Seen("evt_1") {
		t.Fatal("Seen must not record; only Mark does")
	}
}

func TestDeduperWindowExpiry(t *testing.T) {
	d := NewDeduper(time.Hour, 100)
	current := time.Now()
	d.now = func() time.Time { return current }

	d.Mark("evt_1")
	current = current.Add(2 * time.Hour)

	if d.Seen("evt_1") {
		t.Fatal("event outside the window still reported as seen")
	}
}

func TestDeduperEmptyIDNeverDeduplicated(t *testing.T) {
	d := NewDeduper(time.Hour, 100)
	d.Mark("")
	if d.Seen("") {
		t.Fatal("empty ids must never deduplicate")
	}
	if d.Len() != 0 {
		t.Fatalf("empty id was tracked, len=%d", d.Len())
	}
}

func TestDeduperFailsOpenWhenSaturated(t *testing.T) {
	d := NewDeduper(time.Hour, 3)
	current := time.Now()
	d.now = func() time.Time { return current }

	d.Mark("a")
	d.Mark("b")
	d.Mark("c")

	// All tracked ids are fresh, so nothing can be swept; the new id is
	// simply not recorded and its redelivery would be processed again.
	d.Mark("d")
	if d.Seen("d") {
		t.Fatal("saturated deduper must fail open")
	}
	if d.Len() != 3 {
		t.Fatalf("len=%d, want 3", d.Len())
	}

	// Once the window passes, stale entries are swept and tracking resumes.
	current = current.Add(2 * time.Hour)
	d.Mark("e")
	if !d.Seen("e") {
		t.Fatal("expected tracking to resume after sweep")
	}
}
