package m3u_test

import (
	"testing"

	"github.com/yourflock/roost-autoconfig/internal/m3u"
)

func TestFormat(t *testing.T) {
	entries := []m3u.Entry{
		{Metadata: "#EXTINF:-1,Chan1", StreamURL: "http://x/1"},
		{Metadata: "#EXTINF:-1,Chan2", StreamURL: "http://x/2"},
	}
	want := "#EXTM3U\n#EXTINF:-1,Chan1\nhttp://x/1\n#EXTINF:-1,Chan2\nhttp://x/2\n"
	if got := m3u.Format(entries); got != want {
		t.Errorf("unexpected playlist:\n%q\nwant:\n%q", got, want)
	}
}

func TestFormat_Empty(t *testing.T) {
	if got := m3u.Format(nil); got != "#EXTM3U\n" {
		t.Errorf("expected header only, got %q", got)
	}
}

func TestFormat_ReparsesToSameEntries(t *testing.T) {
	entries := []m3u.Entry{
		{Metadata: `#EXTINF:-1 group-title="Movies",Film`, StreamURL: "https://f/1.m3u8"},
	}
	got := m3u.ParseString(m3u.Format(entries))
	if len(got) != 1 || got[0] != entries[0] {
		t.Errorf("expected %+v after reparse, got %+v", entries, got)
	}
}

func TestFormatWithGuide(t *testing.T) {
	got := m3u.FormatWithGuide(nil, []string{"https://epg/a.xml", "https://epg/b.xml"})
	want := "#EXTM3U x-tvg-url=\"https://epg/a.xml,https://epg/b.xml\"\n"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
	if m3u.FormatWithGuide(nil, nil) != "#EXTM3U\n" {
		t.Error("expected plain header without guide URLs")
	}
}
