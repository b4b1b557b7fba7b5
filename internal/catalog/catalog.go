// Package catalog stores per-video metadata: where the file lives, how the
// model classified it, and whether its summary has been indexed.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by callers that require an existing record.
var ErrNotFound = errors.New("video not found")

// Backend names accepted by configuration.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Suitability is the youngest audience a video is appropriate for.
type Suitability string

const (
	Under5  Suitability = "under_5"
	Under10 Suitability = "under_10"
	Under13 Suitability = "under_13"
	Under16 Suitability = "under_16"
	Under18 Suitability = "under_18"
	Adult   Suitability = "adult"
)

// Suitabilities lists every level from the youngest audience to adults.
var Suitabilities = []Suitability{Under5, Under10, Under13, Under16, Under18, Adult}

// Categories are the suggested classification labels.
var Categories = []string{
	"Film & Animation", "Autos & Vehicles", "Music", "Pets & Animals", "Sports",
	"Travel & Events", "Gaming", "People & Blogs", "Comedy", "Entertainment",
	"News & Politics", "Howto & Style", "Education", "Science & Technology",
	"Nonprofits & Activism", "Documentary", "Drama", "Family", "Horror",
	"Thriller", "Shorts", "Trailers",
}

// ParseSuitability accepts the canonical values case-insensitively.
func ParseSuitability(s string) (Suitability, error) {
	v := Suitability(strings.ToLower(strings.TrimSpace(s)))
	if v.rank() < 0 {
		return "", fmt.Errorf("invalid suitability %q", s)
	}
	return v, nil
}

// SuitabilityStrings returns the canonical values as plain strings.
func SuitabilityStrings() []string {
	out := make([]string, len(Suitabilities))
	for i, s := range Suitabilities {
		out[i] = string(s)
	}
	return out
}

func (s Suitability) rank() int {
	for i, v := range Suitabilities {
		if v == s {
			return i
		}
	}
	return -1
}

// SuitableFor reports whether a video rated s may be shown to an audience
// rated audience. Unrated videos are never suitable for a rated audience.
func (s Suitability) SuitableFor(audience Suitability) bool {
	r := s.rank()
	return r >= 0 && r <= audience.rank()
}

// Video is one catalog record.
type Video struct {
	Name        string      `json:"name"`
	Path        string      `json:"path"`
	MIMEType    string      `json:"mimeType"`
	Category    string      `json:"category,omitempty"`
	Suitability Suitability `json:"suitability,omitempty"`
	Summarized  bool        `json:"summarized"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Update carries the fields to change; nil fields are left untouched.
type Update struct {
	Category    *string
	Suitability *Suitability
	Summarized  *bool
}

// Filter narrows List. Search matches a case-insensitive substring of the
// name; Suitability keeps videos suitable for that audience.
type Filter struct {
	Search      string
	Suitability Suitability
}

func (f Filter) matches(v Video) bool {
	if f.Search != "" && !strings.Contains(strings.ToLower(v.Name), strings.ToLower(f.Search)) {
		return false
	}
	if f.Suitability != "" && !v.Suitability.SuitableFor(f.Suitability) {
		return false
	}
	return true
}

// Store persists video records keyed by name.
type Store interface {
	// Add inserts v and reports false if a video with the same name exists.
	Add(ctx context.Context, v Video) (bool, error)
	// GetByName returns (nil, nil) when no record exists.
	GetByName(ctx context.Context, name string) (*Video, error)
	// Update applies u and reports false if the video does not exist.
	Update(ctx context.Context, name string, u Update) (bool, error)
	// ClaimSummarized sets Summarized on an unsummarized video and reports
	// whether this call changed it. Of several concurrent callers at most
	// one sees true.
	ClaimSummarized(ctx context.Context, name string) (bool, error)
	// List returns matching videos ordered by creation time, newest first.
	List(ctx context.Context, f Filter) ([]Video, error)
	// Delete removes the record and reports false if it did not exist.
	Delete(ctx context.Context, name string) (bool, error)
	// Names returns every stored video name.
	Names(ctx context.Context) ([]string, error)
}
