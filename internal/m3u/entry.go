package m3u

import (
	"regexp"
	"strings"
)

// attrRE extracts key="value" or key=value from #EXTINF lines.
var attrRE = regexp.MustCompile(`([\w-]+)=(?:"([^"]*?)"|([^\s,]+))`)

// Attributes returns the key/value display attributes carried on the
// metadata line (tvg-id, tvg-name, tvg-logo, group-title, ...). Keys are
// lower-cased.
func (e Entry) Attributes() map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrRE.FindAllStringSubmatch(e.attrSection(), -1) {
		val := m[2]
		if val == "" {
			val = m[3]
		}
		attrs[strings.ToLower(m[1])] = val
	}
	return attrs
}

// Name is the display name: the text after the last comma that is outside
// a quoted attribute value, falling back to tvg-name.
func (e Entry) Name() string {
	if idx := nameSeparator(e.Metadata); idx != -1 {
		if name := strings.TrimSpace(e.Metadata[idx+1:]); name != "" {
			return name
		}
	}
	return e.Attributes()["tvg-name"]
}

// Group is the group-title attribute, if any.
func (e Entry) Group() string {
	return e.Attributes()["group-title"]
}

// attrSection is the part of the metadata line between the tag and the
// display name.
func (e Entry) attrSection() string {
	line := strings.TrimPrefix(e.Metadata, MetadataTag)
	if idx := nameSeparator(line); idx != -1 {
		return line[:idx]
	}
	return line
}

// nameSeparator returns the index of the last comma not inside quotes.
func nameSeparator(line string) int {
	inQuotes := false
	sep := -1
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				sep = i
			}
		}
	}
	return sep
}
