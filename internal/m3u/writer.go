package m3u

import (
	"bufio"
	"io"
	"strings"
)

// Encode writes the header line followed by one metadata/URL line pair per
// entry, in slice order.
func Encode(w io.Writer, entries []Entry) error {
	return encode(w, HeaderTag, entries)
}

// Format returns the playlist text for entries.
func Format(entries []Entry) string {
	var sb strings.Builder
	_ = Encode(&sb, entries)
	return sb.String()
}

// FormatWithGuide is Format with an x-tvg-url attribute on the header so
// players can find the guide that belongs to the playlist.
func FormatWithGuide(entries []Entry, guideURLs []string) string {
	header := HeaderTag
	if len(guideURLs) > 0 {
		header += ` x-tvg-url="` + strings.Join(guideURLs, ",") + `"`
	}
	var sb strings.Builder
	_ = encode(&sb, header, entries)
	return sb.String()
}

func encode(w io.Writer, header string, entries []Entry) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(header + "\n"); err != nil {
		return err
	}
	for _, e := range entries {
		if _, err := bw.WriteString(e.Metadata + "\n" + e.StreamURL + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
