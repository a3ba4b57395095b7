package epg

import (
	"compress/gzip"
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func newTestLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func readGzip(t *testing.T, path string) string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip: %v", err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(data)
}

func TestWritePlaceholder(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "userdata")
	path, err := WritePlaceholder(dir)
	if err != nil {
		t.Fatalf("WritePlaceholder: %v", err)
	}
	if path != filepath.Join(dir, PlaceholderName) {
		t.Errorf("unexpected path %s", path)
	}

	doc := readGzip(t, path)
	if !strings.Contains(doc, `<!DOCTYPE tv SYSTEM "xmltv.dtd">`) {
		t.Errorf("missing doctype in %q", doc)
	}
	var tv struct {
		XMLName   xml.Name `xml:"tv"`
		Generator string   `xml:"generator-info-name,attr"`
	}
	if err := xml.Unmarshal([]byte(doc), &tv); err != nil {
		t.Fatalf("placeholder is not valid XML: %v", err)
	}
	if tv.Generator != GeneratorName {
		t.Errorf("unexpected generator %q", tv.Generator)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected only the guide file, got %d entries", len(entries))
	}
}

func TestProvision_Placeholder(t *testing.T) {
	dir := t.TempDir()
	g := Provision(dir, ModePlaceholder, []string{"http://guide/x.xml"}, newTestLogger())
	if g.Remote || g.Path != filepath.Join(dir, PlaceholderName) {
		t.Errorf("unexpected guide %+v", g)
	}
	if g.Location() != g.Path {
		t.Error("local guide location should be its path")
	}
}

func TestProvision_PlaylistGuide(t *testing.T) {
	dir := t.TempDir()
	g := Provision(dir, ModePlaylist, []string{"", "http://guide/x.xml"}, newTestLogger())
	if !g.Remote || g.URL != "http://guide/x.xml" {
		t.Errorf("unexpected guide %+v", g)
	}
	if _, err := os.Stat(filepath.Join(dir, PlaceholderName)); !os.IsNotExist(err) {
		t.Error("placeholder should not be written for a remote guide")
	}
}

func TestProvision_PlaylistWithoutGuideFallsBack(t *testing.T) {
	g := Provision(t.TempDir(), ModePlaylist, nil, newTestLogger())
	if g.Remote || g.Path == "" {
		t.Errorf("expected placeholder fallback, got %+v", g)
	}
}

func TestProvision_FailureIsEmpty(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	g := Provision(filepath.Join(blocker, "sub"), ModePlaceholder, nil, newTestLogger())
	if !g.Empty() {
		t.Errorf("expected empty guide, got %+v", g)
	}
}
