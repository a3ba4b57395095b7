package m3u_test

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/yourflock/roost-autoconfig/internal/m3u"
)

func TestParse_PairsMetadataWithStream(t *testing.T) {
	content := "#EXTM3U\n#EXTINF:-1,Chan1\nhttp://x/1\n#EXTINF:-1,Chan2\nhttp://x/2\n"

	entries := m3u.ParseString(content)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	want := []m3u.Entry{
		{Metadata: "#EXTINF:-1,Chan1", StreamURL: "http://x/1"},
		{Metadata: "#EXTINF:-1,Chan2", StreamURL: "http://x/2"},
	}
	for i, e := range entries {
		if e != want[i] {
			t.Errorf("entry %d: expected %+v, got %+v", i, want[i], e)
		}
	}
}

func TestParse_EmptyInput(t *testing.T) {
	entries, err := m3u.Parse(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}

func TestParse_Leniency(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []m3u.Entry
	}{
		{
			name:    "stream without metadata is skipped",
			content: "http://orphan/1\n#EXTINF:-1,A\nhttp://a/1\n",
			want:    []m3u.Entry{{Metadata: "#EXTINF:-1,A", StreamURL: "http://a/1"}},
		},
		{
			name:    "comments and directives keep pending metadata",
			content: "#EXTINF:-1,A\n#EXTVLCOPT:http-user-agent=foo\n\n# comment\nhttp://a/1\n",
			want:    []m3u.Entry{{Metadata: "#EXTINF:-1,A", StreamURL: "http://a/1"}},
		},
		{
			name:    "newer metadata replaces unpaired metadata",
			content: "#EXTINF:-1,Old\n#EXTINF:-1,New\nhttps://a/1\n",
			want:    []m3u.Entry{{Metadata: "#EXTINF:-1,New", StreamURL: "https://a/1"}},
		},
		{
			name:    "non http stream lines are ignored",
			content: "#EXTINF:-1,A\nrtsp://cam/1\nhttp://a/1\n",
			want:    []m3u.Entry{{Metadata: "#EXTINF:-1,A", StreamURL: "http://a/1"}},
		},
		{
			name:    "metadata is consumed by one stream only",
			content: "#EXTINF:-1,A\nhttp://a/1\nhttp://a/2\n",
			want:    []m3u.Entry{{Metadata: "#EXTINF:-1,A", StreamURL: "http://a/1"}},
		},
		{
			name:    "crlf and surrounding whitespace are trimmed",
			content: "#EXTM3U\r\n  #EXTINF:-1,A  \r\n\thttp://a/1 \r\n",
			want:    []m3u.Entry{{Metadata: "#EXTINF:-1,A", StreamURL: "http://a/1"}},
		},
		{
			name:    "trailing metadata without stream is dropped",
			content: "#EXTINF:-1,A\nhttp://a/1\n#EXTINF:-1,B\n",
			want:    []m3u.Entry{{Metadata: "#EXTINF:-1,A", StreamURL: "http://a/1"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m3u.ParseString(tt.content)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d entries, got %d: %+v", len(tt.want), len(got), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("entry %d: expected %+v, got %+v", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestParseDocument_GuideURLs(t *testing.T) {
	content := `#EXTM3U x-tvg-url="https://epg.example/a.xml.gz,https://epg.example/b.xml" url-tvg="https://epg.example/c.xml"
#EXTINF:-1,A
http://a/1
`
	doc, err := m3u.ParseDocument(strings.NewReader(content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		"https://epg.example/a.xml.gz",
		"https://epg.example/b.xml",
		"https://epg.example/c.xml",
	}
	if len(doc.GuideURLs) != len(want) {
		t.Fatalf("expected %d guide URLs, got %v", len(want), doc.GuideURLs)
	}
	for i := range want {
		if doc.GuideURLs[i] != want[i] {
			t.Errorf("guide URL %d: expected %q, got %q", i, want[i], doc.GuideURLs[i])
		}
	}
	if len(doc.Entries) != 1 {
		t.Errorf("expected 1 entry, got %d", len(doc.Entries))
	}
}

func TestParse_VeryLongLineKeepsLaterEntries(t *testing.T) {
	long := "#EXTINF:-1 tvg-logo=\"" + strings.Repeat("x", 5<<20) + "\",Big"
	content := "#EXTM3U\n#EXTINF:-1,A\nhttp://a/1\n" + long + "\nhttp://big/1\n#EXTINF:-1,C\nhttp://c/1\n"

	entries, err := m3u.Parse(strings.NewReader(content))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[1].StreamURL != "http://big/1" || entries[1].Metadata != long {
		t.Errorf("long entry not paired: url %q, metadata length %d", entries[1].StreamURL, len(entries[1].Metadata))
	}
	if entries[2].StreamURL != "http://c/1" {
		t.Errorf("expected entry after the long line, got %q", entries[2].StreamURL)
	}
}

type failingReader struct {
	data string
	read bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.read {
		r.read = true
		return copy(p, r.data), nil
	}
	return 0, errors.New("connection reset")
}

func TestParse_ReadErrorKeepsParsedEntries(t *testing.T) {
	r := &failingReader{data: "#EXTINF:-1,A\nhttp://a/1\n"}
	entries, err := m3u.Parse(r)
	if err == nil {
		t.Fatal("expected read error")
	}
	if errors.Is(err, io.EOF) {
		t.Fatalf("expected underlying read error, got EOF")
	}
	if len(entries) != 1 {
		t.Errorf("expected the entry read before the failure, got %d", len(entries))
	}
}

func TestEntry_Attributes(t *testing.T) {
	e := m3u.Entry{
		Metadata:  `#EXTINF:-1 tvg-id="bbc1.uk" tvg-logo="http://logo/x.png" group-title="News, UK",BBC One`,
		StreamURL: "http://a/1",
	}
	attrs := e.Attributes()
	if attrs["tvg-id"] != "bbc1.uk" {
		t.Errorf("expected tvg-id bbc1.uk, got %q", attrs["tvg-id"])
	}
	if attrs["tvg-logo"] != "http://logo/x.png" {
		t.Errorf("expected tvg-logo, got %q", attrs["tvg-logo"])
	}
	if e.Group() != "News, UK" {
		t.Errorf("expected group 'News, UK', got %q", e.Group())
	}
	if e.Name() != "BBC One" {
		t.Errorf("expected name 'BBC One', got %q", e.Name())
	}
}

func TestEntry_NameFallsBackToTvgName(t *testing.T) {
	e := m3u.Entry{Metadata: `#EXTINF:-1 tvg-name="Fallback",`}
	if e.Name() != "Fallback" {
		t.Errorf("expected 'Fallback', got %q", e.Name())
	}
}
