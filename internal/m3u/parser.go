// Package m3u reads and writes playlists in the extended M3U convention:
// an #EXTINF metadata line followed by the stream URL it describes.
//
// The parser is lenient. Lines that do not fit the metadata/stream pattern
// are skipped rather than reported, so a partially broken upstream playlist
// still contributes every entry that can be paired.
package m3u

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	// HeaderTag is the first line of every extended M3U document.
	HeaderTag = "#EXTM3U"
	// MetadataTag prefixes the metadata line of an entry.
	MetadataTag = "#EXTINF:"
	// streamPrefix is the scheme prefix a stream line must start with.
	streamPrefix = "http"
)

// Entry is one channel: the raw #EXTINF line and the stream URL under it.
type Entry struct {
	Metadata  string
	StreamURL string
}

// Document is a parsed playlist.
type Document struct {
	Entries []Entry
	// GuideURLs are the XMLTV locations advertised on the #EXTM3U header
	// through url-tvg or x-tvg-url, in header order.
	GuideURLs []string
}

// guideAttrRE matches url-tvg / x-tvg-url attributes on the header line.
var guideAttrRE = regexp.MustCompile(`(?:url-tvg|x-tvg-url)="([^"]*)"`)

// Parse reads r and returns its entries. See ParseDocument.
func Parse(r io.Reader) ([]Entry, error) {
	doc, err := ParseDocument(r)
	return doc.Entries, err
}

// ParseString parses an in-memory playlist. It never fails.
func ParseString(s string) []Entry {
	doc, _ := ParseDocument(strings.NewReader(s))
	return doc.Entries
}

// ParseDocument scans r line by line. A #EXTINF line becomes the pending
// metadata; the next line starting with "http" is paired with it and the
// pending metadata is cleared. Any other line is ignored and leaves the
// pending metadata in place. A newer #EXTINF replaces an unpaired one.
//
// Lines have no length limit; the caller bounds the input as a whole. The
// returned error is only ever a read error; entries parsed before it are
// returned alongside it.
func ParseDocument(r io.Reader) (Document, error) {
	br := bufio.NewReaderSize(r, 64*1024)

	var doc Document
	pending := ""
	for {
		raw, err := br.ReadString('\n')
		switch line := strings.TrimSpace(raw); {
		case line == "":
		case strings.HasPrefix(line, MetadataTag):
			pending = line
		case strings.HasPrefix(line, HeaderTag):
			doc.GuideURLs = append(doc.GuideURLs, headerGuideURLs(line)...)
		case strings.HasPrefix(line, streamPrefix) && pending != "":
			doc.Entries = append(doc.Entries, Entry{Metadata: pending, StreamURL: line})
			pending = ""
		}
		if errors.Is(err, io.EOF) {
			return doc, nil
		}
		if err != nil {
			return doc, fmt.Errorf("m3u read: %w", err)
		}
	}
}

// headerGuideURLs extracts guide URLs from a #EXTM3U line. Attribute values
// may hold several comma-separated URLs.
func headerGuideURLs(line string) []string {
	var urls []string
	for _, m := range guideAttrRE.FindAllStringSubmatch(line, -1) {
		for _, u := range strings.Split(m[1], ",") {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
	}
	return urls
}
