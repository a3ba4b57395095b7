package pipeline

import "strings"

// CountryPlaceholder is replaced with the two-letter region code in a
// source URL.
const CountryPlaceholder = "{country}"

// Source is one independently fetched playlist origin.
type Source struct {
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

// Resolve returns s with CountryPlaceholder in its URL replaced by the
// lower-cased region code.
func (s Source) Resolve(region string) Source {
	s.URL = strings.ReplaceAll(s.URL, CountryPlaceholder, strings.ToLower(region))
	return s
}

// ResolveAll resolves every source for region, keeping order.
func ResolveAll(sources []Source, region string) []Source {
	out := make([]Source, len(sources))
	for i, s := range sources {
		out[i] = s.Resolve(region)
	}
	return out
}

// DefaultSources are the public iptv-org lists: the user's country first so
// its channels win dedup ties, then language and category lists.
func DefaultSources() []Source {
	return []Source{
		{Name: "Country", URL: "https://iptv-org.github.io/iptv/countries/" + CountryPlaceholder + ".m3u"},
		{Name: "English", URL: "https://iptv-org.github.io/iptv/languages/eng.m3u"},
		{Name: "Movies", URL: "https://iptv-org.github.io/iptv/categories/movies.m3u"},
		{Name: "Sports", URL: "https://iptv-org.github.io/iptv/categories/sports.m3u"},
	}
}
