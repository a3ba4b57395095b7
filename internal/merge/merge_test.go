package merge_test

import (
	"testing"

	"github.com/yourflock/roost-autoconfig/internal/m3u"
	"github.com/yourflock/roost-autoconfig/internal/merge"
)

func entry(name, url string) m3u.Entry {
	return m3u.Entry{Metadata: "#EXTINF:-1," + name, StreamURL: url}
}

func TestFold_FirstSourceWins(t *testing.T) {
	set := merge.NewSet()

	a := set.Fold([]m3u.Entry{entry("Chan1", "http://x/1"), entry("Chan2", "http://x/2")})
	b := set.Fold([]m3u.Entry{entry("Chan2-dup", "HTTP://X/2"), entry("Chan3", "http://x/3")})

	if len(a) != 2 {
		t.Fatalf("expected 2 accepted from first batch, got %d", len(a))
	}
	if len(b) != 1 || b[0].Metadata != "#EXTINF:-1,Chan3" {
		t.Fatalf("expected only Chan3 from second batch, got %+v", b)
	}
	if set.Len() != 3 {
		t.Errorf("expected 3 distinct keys, got %d", set.Len())
	}
	if !set.Seen("http://X/2") {
		t.Error("expected case-insensitive Seen")
	}
}

func TestFold_DuplicatesWithinBatch(t *testing.T) {
	set := merge.NewSet()
	got := set.Fold([]m3u.Entry{
		entry("A", "http://a/1"),
		entry("A-again", "http://A/1"),
		entry("B", "http://b/1"),
	})
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Metadata != "#EXTINF:-1,A" || got[1].Metadata != "#EXTINF:-1,B" {
		t.Errorf("unexpected order or winner: %+v", got)
	}
}

func TestFold_Idempotent(t *testing.T) {
	batch := []m3u.Entry{entry("A", "http://a/1"), entry("B", "http://b/1")}

	set := merge.NewSet()
	first := set.Fold(batch)
	second := set.Fold(batch)

	if len(first) != 2 {
		t.Errorf("expected 2 entries on first fold, got %d", len(first))
	}
	if len(second) != 0 {
		t.Errorf("expected nothing new on second fold, got %d", len(second))
	}
	if set.Len() != 2 {
		t.Errorf("expected 2 distinct keys, got %d", set.Len())
	}
}

func TestKey_NoNormalizationBeyondCase(t *testing.T) {
	tests := []struct {
		a, b string
		same bool
	}{
		{"http://x/1", "HTTP://X/1", true},
		{"http://x/1", "http://x/1/", false},
		{"http://x/1", "https://x/1", false},
		{"http://x/1?a=1", "http://x/1", false},
	}
	for _, tt := range tests {
		if got := merge.Key(tt.a) == merge.Key(tt.b); got != tt.same {
			t.Errorf("Key(%q)==Key(%q): expected %v, got %v", tt.a, tt.b, tt.same, got)
		}
	}
}

func TestFold_EmptyBatch(t *testing.T) {
	set := merge.NewSet()
	if got := set.Fold(nil); len(got) != 0 {
		t.Errorf("expected empty result, got %d", len(got))
	}
}
