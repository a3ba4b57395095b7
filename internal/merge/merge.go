// Package merge folds channel entries from several playlists into one,
// dropping entries whose stream was already contributed.
//
// Identity is the stream URL lower-cased and nothing more: no trailing
// slash, query-string or scheme normalization is applied. Two URLs that
// differ only in letter case are the same channel; anything else is not.
package merge

import (
	"strings"

	"github.com/yourflock/roost-autoconfig/internal/m3u"
)

// Key returns the dedup key for a stream URL.
func Key(streamURL string) string {
	return strings.ToLower(streamURL)
}

// Set records the dedup keys seen so far in a run. The zero value is not
// usable; call NewSet.
type Set struct {
	seen map[string]struct{}
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{seen: make(map[string]struct{})}
}

// Fold returns the entries whose key has not been seen, in input order, and
// marks their keys as seen. The first occurrence of a key wins, including
// within a single batch. Entries are returned as-is.
func (s *Set) Fold(entries []m3u.Entry) []m3u.Entry {
	accepted := make([]m3u.Entry, 0, len(entries))
	for _, e := range entries {
		k := Key(e.StreamURL)
		if _, dup := s.seen[k]; dup {
			continue
		}
		s.seen[k] = struct{}{}
		accepted = append(accepted, e)
	}
	return accepted
}

// Seen reports whether streamURL's key was already folded.
func (s *Set) Seen(streamURL string) bool {
	_, ok := s.seen[Key(streamURL)]
	return ok
}

// Len is the number of distinct keys seen.
func (s *Set) Len() int {
	return len(s.seen)
}
