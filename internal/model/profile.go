// Package model defines the domain types shared across the audit pipeline.
package model

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Placeholder values used when the upstream scrape yields no data. The
// restriction classifier compares against these, so they must stay stable.
const (
	PlaceholderBio    = "Bio not available"
	ConnectionErrBio  = "connection error"
	PrivateProfileBio = "Private or inaccessible profile"
	UnknownHandle     = "user_unknown"
)

// RestrictionState classifies why a profile yielded zero posts.
type RestrictionState string

const (
	// RestrictionNone means the profile is normally available (posts present).
	RestrictionNone RestrictionState = ""
	// RestrictionAgeGated means profile metadata exists but posts are hidden.
	RestrictionAgeGated RestrictionState = "AGE_RESTRICTED"
	// RestrictionPrivate is the true-ghost case: no usable signal at all.
	RestrictionPrivate RestrictionState = "PRIVATE"
)

// Classify derives the restriction state from the post count and the
// metadata-presence flag. PRIVATE and AGE_RESTRICTED only apply at zero posts.
func Classify(postCount int, hasUsableMetadata bool) RestrictionState {
	if postCount > 0 {
		return RestrictionNone
	}
	if hasUsableMetadata {
		return RestrictionAgeGated
	}
	return RestrictionPrivate
}

// Post is a single Instagram post in a profile snapshot.
type Post struct {
	Caption   string `json:"caption"`
	LikeCount int    `json:"likes"`
	ImageURL  string `json:"imageUrl"`
}

// Followers is a follower count that upstream may report as hidden
// (age-gated profiles expose metadata but mask the count).
type Followers struct {
	Count  int
	Hidden bool
}

// MarshalJSON renders a hidden count as the string "hidden", otherwise the
// plain integer, matching the wire contract consumed by the report views.
func (f Followers) MarshalJSON() ([]byte, error) {
	if f.Hidden {
		return json.Marshal("hidden")
	}
	return json.Marshal(f.Count)
}

// UnmarshalJSON accepts either form.
func (f *Followers) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		f.Count = n
		f.Hidden = false
		return nil
	}
	f.Count = 0
	f.Hidden = true
	return nil
}

// ProfileRecord is the normalized upstream profile. It is constructed fresh
// per acquisition attempt and never mutated after the orchestrator returns it.
type ProfileRecord struct {
	Username        string    `json:"username"`
	FullName        string    `json:"fullName"`
	Biography       string    `json:"biography"`
	Followers       Followers `json:"followers"`
	ProfileImageURL string    `json:"profilePic"`
	Posts           []Post    `json:"posts"`
}

// NewPlaceholderProfile returns a profile with default values for the given
// handle. Username is never empty: an empty handle falls back to UnknownHandle.
func NewPlaceholderProfile(handle string) *ProfileRecord {
	if handle == "" {
		handle = UnknownHandle
	}
	return &ProfileRecord{
		Username:  handle,
		FullName:  handle,
		Biography: PlaceholderBio,
		Posts:     []Post{},
	}
}

// HasUsableMetadata reports whether the scrape produced any profile signal
// beyond the defaults: a real biography, a profile photo, or a full name that
// differs from the raw handle.
func (p *ProfileRecord) HasUsableMetadata(handle string) bool {
	return (p.Biography != PlaceholderBio && p.Biography != "") ||
		p.ProfileImageURL != "" ||
		(p.FullName != "" && p.FullName != handle)
}

// Identity is the minimal display identity surfaced to the report views.
// Handle carries the @ prefix.
type Identity struct {
	Handle     string `json:"handle"`
	FullName   string `json:"fullName"`
	ProfilePic string `json:"profilePic"`
}

var handleRe = regexp.MustCompile(`instagram\.com/([^/?]+)`)

// NormalizeHandle reduces a raw Instagram URL or handle to the bare username:
// URL prefix, trailing path segments, query string, and leading @ are stripped.
func NormalizeHandle(raw string) string {
	handle := raw
	if _, after, found := strings.Cut(handle, "instagram.com/"); found {
		handle = after
	}
	handle, _, _ = strings.Cut(handle, "/")
	handle, _, _ = strings.Cut(handle, "?")
	handle = strings.ReplaceAll(handle, "@", "")
	if handle == "" {
		return UnknownHandle
	}
	return handle
}

// ExtractHandleFromURL pulls the path segment after instagram.com/ for the
// degraded fallback identity. Returns "unknown" when no handle is present.
func ExtractHandleFromURL(rawURL string) string {
	m := handleRe.FindStringSubmatch(rawURL)
	if len(m) > 1 {
		return m[1]
	}
	return "unknown"
}
