package session

import "strings"

// DefaultMarker tags structured output that must not reach the caller.
const DefaultMarker = "<JSON>"

// Filter decides whether a response fragment is kept.
type Filter interface {
	// Apply returns the text to keep and false when the fragment is dropped.
	Apply(fragment string) (string, bool)
}

// MarkerFilter drops every fragment containing Marker. An empty Marker keeps
// everything.
type MarkerFilter struct {
	Marker string
}

func (f MarkerFilter) Apply(fragment string) (string, bool) {
	if f.Marker != "" && strings.Contains(fragment, f.Marker) {
		return "", false
	}
	return fragment, true
}
