// Package epg provisions the programme guide the PVR client reads.
//
// No guide source is bundled, so by default an empty XMLTV document is
// written as epg.xml.gz; the PVR client accepts it and shows channels
// without programme data. When a playlist header advertises a guide, it
// can be used as a remote guide instead.
package epg

import (
	"bytes"
	"compress/gzip"
	"encoding/xml"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/yourflock/roost-autoconfig/internal/atomicfile"
)

const (
	// PlaceholderName is the file written under the userdata dir.
	PlaceholderName = "epg.xml.gz"
	// GeneratorName is stamped on generated documents.
	GeneratorName = "IPTV Auto-Config"
)

// Modes accepted by Provision.
const (
	ModePlaceholder = "placeholder"
	ModePlaylist    = "playlist"
)

// Guide is where the PVR client should read the guide from. Exactly one of
// Path and URL is set unless provisioning failed, in which case both are
// empty.
type Guide struct {
	Path   string
	URL    string
	Remote bool
}

// Empty reports whether no guide was provisioned.
func (g Guide) Empty() bool {
	return g.Path == "" && g.URL == ""
}

// Location is the value for the PVR guide setting.
func (g Guide) Location() string {
	if g.Remote {
		return g.URL
	}
	return g.Path
}

type tvDocument struct {
	XMLName   xml.Name `xml:"tv"`
	Generator string   `xml:"generator-info-name,attr"`
}

// Placeholder returns the uncompressed placeholder XMLTV document.
func Placeholder() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString(`<!DOCTYPE tv SYSTEM "xmltv.dtd">` + "\n")
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(tvDocument{Generator: GeneratorName}); err != nil {
		return nil, fmt.Errorf("epg: encode placeholder: %w", err)
	}
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

// WritePlaceholder writes the gzip-compressed placeholder to dir and
// returns its path. The file is replaced atomically.
func WritePlaceholder(dir string) (string, error) {
	doc, err := Placeholder()
	if err != nil {
		return "", err
	}
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	zw.Name = strings.TrimSuffix(PlaceholderName, ".gz")
	if _, err := zw.Write(doc); err != nil {
		return "", fmt.Errorf("epg: compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("epg: compress: %w", err)
	}

	path := filepath.Join(dir, PlaceholderName)
	if err := atomicfile.WriteFile(path, gz.Bytes()); err != nil {
		return "", fmt.Errorf("epg: %w", err)
	}
	return path, nil
}

// Provision sets up the guide. In ModePlaylist the first advertised guide
// URL is used as a remote guide; otherwise, or when none is advertised, the
// placeholder is written to dir. A failure is logged and yields an empty
// Guide; it never stops setup.
func Provision(dir, mode string, guideURLs []string, log *logrus.Entry) Guide {
	if mode == ModePlaylist {
		for _, u := range guideURLs {
			if strings.HasPrefix(u, "http") {
				log.WithField("url", u).Info("using guide advertised by playlist")
				return Guide{URL: u, Remote: true}
			}
		}
		log.Info("no guide advertised by playlists, writing placeholder")
	}

	path, err := WritePlaceholder(dir)
	if err != nil {
		log.WithError(err).Warn("failed to create guide file")
		return Guide{}
	}
	log.WithField("path", path).Info("created empty guide file")
	return Guide{Path: path}
}
