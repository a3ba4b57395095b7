// Package settings reads and writes Kodi add-on settings documents
// (<settings version="2">).
package settings

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/yourflock/roost-autoconfig/internal/atomicfile"
)

// Setting types understood by Kodi.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
)

// Setting is one <setting> element. An empty Type omits the attribute, as
// guisettings.xml does.
type Setting struct {
	ID    string `xml:"id,attr"`
	Type  string `xml:"type,attr,omitempty"`
	Value string `xml:",chardata"`
}

// String returns a string setting.
func String(id, v string) Setting { return Setting{ID: id, Type: TypeString, Value: v} }

// Int returns an integer setting.
func Int(id string, v int) Setting { return Setting{ID: id, Type: TypeInteger, Value: strconv.Itoa(v)} }

// Bool returns a boolean setting.
func Bool(id string, v bool) Setting {
	return Setting{ID: id, Type: TypeBoolean, Value: strconv.FormatBool(v)}
}

// Untyped returns a setting without a type attribute.
func Untyped(id, v string) Setting { return Setting{ID: id, Value: v} }

// Document is a version 2 settings file.
type Document struct {
	XMLName  xml.Name  `xml:"settings"`
	Version  string    `xml:"version,attr"`
	Settings []Setting `xml:"setting"`
}

// New returns a version 2 document holding settings in order.
func New(settings ...Setting) Document {
	return Document{Version: "2", Settings: settings}
}

// Get returns the value of id.
func (d Document) Get(id string) (string, bool) {
	for _, s := range d.Settings {
		if s.ID == id {
			return s.Value, true
		}
	}
	return "", false
}

// Marshal renders d with two-space indentation.
func (d Document) Marshal() ([]byte, error) {
	if d.Version == "" {
		d.Version = "2"
	}
	out, err := xml.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("settings: marshal: %w", err)
	}
	return append(out, '\n'), nil
}

// Read parses the document at path.
func Read(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}
	var d Document
	if err := xml.Unmarshal(data, &d); err != nil {
		return Document{}, fmt.Errorf("settings: parse %s: %w", path, err)
	}
	return d, nil
}

// Write renders d to path, creating parent directories. The file is
// replaced atomically.
func Write(path string, d Document) error {
	data, err := d.Marshal()
	if err != nil {
		return err
	}
	return writeFile(path, data)
}

// SetValue sets id to value in the document at path, leaving the rest of
// the file untouched. An existing element is replaced, a missing one is
// inserted before </settings>, and a missing file is created with just
// this setting. The written element carries no type attribute.
func SetValue(path, id, value string) error {
	var buf bytes.Buffer
	if err := xml.EscapeText(&buf, []byte(value)); err != nil {
		return fmt.Errorf("settings: escape value: %w", err)
	}
	element := fmt.Sprintf(`<setting id="%s">%s</setting>`, id, buf.String())

	content, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return Write(path, New(Untyped(id, value)))
	case err != nil:
		return fmt.Errorf("settings: read %s: %w", path, err)
	}

	quoted := regexp.QuoteMeta(id)
	re := regexp.MustCompile(`(?s)<setting id="` + quoted + `"[^>]*/>|<setting id="` + quoted + `"[^>]*>.*?</setting>`)
	text := string(content)
	switch {
	case re.MatchString(text):
		text = re.ReplaceAllLiteralString(text, element)
	case strings.Contains(text, "</settings>"):
		text = strings.Replace(text, "</settings>", "  "+element+"\n</settings>", 1)
	default:
		return fmt.Errorf("settings: %s has no <settings> element", path)
	}
	return writeFile(path, []byte(text))
}

func writeFile(path string, data []byte) error {
	if err := atomicfile.WriteFile(path, data); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	return nil
}
