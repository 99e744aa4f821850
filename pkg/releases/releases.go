// Package releases provides the release calendar used by uplift timing features.
package releases

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"time"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// ErrInvalidCalendar is returned for calendars with malformed entries.
var ErrInvalidCalendar = errors.New("invalid release calendar")

var dateLayouts = []string{time.DateOnly, time.RFC3339, time.DateTime}

// Release is a shipped version and its release date.
type Release struct {
	Version string
	Date    time.Time

	semver *semver.Version
}

// Semver returns the parsed version.
func (r Release) Semver() *semver.Version {
	return r.semver
}

// Calendar looks up releases by date.
type Calendar interface {
	// ClosestRelease returns the first release dated at or after t.
	ClosestRelease(t time.Time) (Release, bool)
}

// Schedule is an in-memory Calendar ordered by date, then version.
type Schedule struct {
	releases []Release
}

// New builds a schedule from releases. Versions must be valid semantic
// versions; "70.0" style versions are accepted.
func New(releases ...Release) (*Schedule, error) {
	ordered := make([]Release, len(releases))

	for i, release := range releases {
		version, err := semver.NewVersion(release.Version)
		if err != nil {
			return nil, fmt.Errorf("%w: version %q: %w", ErrInvalidCalendar, release.Version, err)
		}

		release.semver = version
		ordered[i] = release
	}

	slices.SortStableFunc(ordered, func(a, b Release) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}

		return a.semver.Compare(b.semver)
	})

	return &Schedule{releases: ordered}, nil
}

type calendarFile struct {
	Releases []struct {
		Version string `yaml:"version"`
		Date    string `yaml:"date"`
	} `yaml:"releases"`
}

// Parse decodes a YAML calendar:
//
//	releases:
//	  - version: "70.0"
//	    date: 2019-10-22
func Parse(data []byte) (*Schedule, error) {
	var file calendarFile

	err := yaml.Unmarshal(data, &file)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCalendar, err)
	}

	releases := make([]Release, 0, len(file.Releases))

	for _, entry := range file.Releases {
		date, parseErr := parseDate(entry.Date)
		if parseErr != nil {
			return nil, fmt.Errorf("%w: release %s: %w", ErrInvalidCalendar, entry.Version, parseErr)
		}

		releases = append(releases, Release{Version: entry.Version, Date: date})
	}

	return New(releases...)
}

// Load reads a YAML calendar from path.
func Load(path string) (*Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read release calendar: %w", err)
	}

	return Parse(data)
}

func parseDate(value string) (time.Time, error) {
	var lastErr error

	for _, layout := range dateLayouts {
		date, err := time.Parse(layout, value)
		if err == nil {
			return date.UTC(), nil
		}

		lastErr = err
	}

	return time.Time{}, lastErr
}

// ClosestRelease returns the first release dated at or after t.
func (s *Schedule) ClosestRelease(t time.Time) (Release, bool) {
	index := sort.Search(len(s.releases), func(i int) bool {
		return !s.releases[i].Date.Before(t)
	})
	if index == len(s.releases) {
		return Release{}, false
	}

	return s.releases[index], true
}

// Releases returns the releases in calendar order.
func (s *Schedule) Releases() []Release {
	return slices.Clone(s.releases)
}
