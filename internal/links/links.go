// Package links finds Spotify track links in chat messages.
package links

import (
	"regexp"
)

// trackLinkPattern matches a web track link and captures the track ID.
// Query strings such as the ?si= share suffix are not part of the match.
var trackLinkPattern = regexp.MustCompile(`https://open\.spotify\.com/track/([a-zA-Z0-9]+)`)

// Track is one track link found in a message
type Track struct {
	ID   string
	Link string
}

// FindTracks returns every track link in text, in order of appearance.
// Repeated links are returned once.
func FindTracks(text string) []Track {
	matches := trackLinkPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	tracks := make([]Track, 0, len(matches))
	for _, m := range matches {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		tracks = append(tracks, Track{ID: m[1], Link: m[0]})
	}
	return tracks
}

// TrackIDs returns the IDs of the track links in text
func TrackIDs(text string) []string {
	tracks := FindTracks(text)
	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}
	return ids
}

// HasTrack reports whether text contains at least one track link
func HasTrack(text string) bool {
	return trackLinkPattern.MatchString(text)
}
