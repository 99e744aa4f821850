package features

import (
	"regexp"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/bugfeat/pkg/bugzilla"
)

const secondsPerDay = 24 * 60 * 60

const (
	statusFirefoxPrefix    = "cf_status_firefox"
	statusFirefoxESRPrefix = "cf_status_firefox_esr"
)

// affectedStatuses are per-version statuses meaning the version had the bug.
var affectedStatuses = map[string]bool{
	"affected":          true,
	"fixed":             true,
	"wontfix":           true,
	"fix-optional":      true,
	"verified":          true,
	"disabled":          true,
	"verified disabled": true,
}

// landingPatterns match changeset links posted when a patch lands on a channel.
var landingPatterns = map[string]*regexp.Regexp{
	"nightly": regexp.MustCompile(`://hg\.mozilla\.org/mozilla-central/rev/[0-9a-f]+`),
	"beta":    regexp.MustCompile(`://hg\.mozilla\.org/releases/mozilla-beta/rev/[0-9a-f]+`),
	"release": regexp.MustCompile(`://hg\.mozilla\.org/releases/mozilla-release/rev/[0-9a-f]+`),
	"esr":     regexp.MustCompile(`://hg\.mozilla\.org/releases/mozilla-esr[0-9]+/rev/[0-9a-f]+`),
}

// Field returns a scalar or custom field unless it is missing or holds one of
// the "unset" sentinels "--" and "---".
func Field(bug *bugzilla.Bug, name string) (string, bool) {
	value, ok := bug.Field(name)
	if !ok || value == "--" || value == "---" {
		return "", false
	}

	return value, true
}

// optional converts a Field lookup into an extractor result.
func optional(value string, ok bool) any {
	if !ok {
		return nil
	}

	return value
}

// WhiteboardKeywords tokenizes a status whiteboard. Bracketed tags are kept
// whole; text outside brackets is split on spaces. Tokens containing ':' also
// contribute their prefix before the first ':'.
func WhiteboardKeywords(whiteboard string) []string {
	var tokens []string

	for _, chunk := range strings.Split(strings.ToLower(whiteboard), "[") {
		tag, rest, bracketed := strings.Cut(chunk, "]")
		if bracketed {
			tokens = append(tokens, tag)
			tokens = append(tokens, strings.Split(strings.ReplaceAll(rest, "]", " "), " ")...)

			continue
		}

		tokens = append(tokens, strings.Split(chunk, " ")...)
	}

	keywords := make([]string, 0, len(tokens))

	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token != "" {
			keywords = append(keywords, token)
		}
	}

	for _, keyword := range keywords {
		if prefix, _, found := strings.Cut(keyword, ":"); found {
			keywords = append(keywords, prefix)
		}
	}

	return keywords
}

// VersionStatuses splits the per-version status fields of a bug into
// unaffected and affected version suffixes, in sorted field order.
func VersionStatuses(bug *bugzilla.Bug) (unaffected, affected []string) {
	for _, name := range bug.CustomFieldNames() {
		var version string

		switch {
		case strings.HasPrefix(name, statusFirefoxESRPrefix):
			version = strings.TrimPrefix(name, statusFirefoxESRPrefix)
		case strings.HasPrefix(name, statusFirefoxPrefix):
			version = strings.TrimPrefix(name, statusFirefoxPrefix)
		default:
			continue
		}

		status := bug.Custom[name]

		switch {
		case status == "unaffected":
			unaffected = append(unaffected, version)
		case affectedStatuses[status]:
			affected = append(affected, version)
		}
	}

	return unaffected, affected
}

// LandingComments returns the comments announcing a landing on any of the
// given channels (nightly, beta, release, esr).
func LandingComments(comments []bugzilla.Comment, channels ...string) []bugzilla.Comment {
	var landings []bugzilla.Comment

	for _, comment := range comments {
		for _, channel := range channels {
			pattern, ok := landingPatterns[channel]
			if ok && pattern.MatchString(comment.Text) {
				landings = append(landings, comment)

				break
			}
		}
	}

	return landings
}

// days expresses d in fractional days.
func days(d time.Duration) float64 {
	return d.Seconds() / secondsPerDay
}

// wholeSecondDays expresses d in fractional days, ignoring sub-second precision.
func wholeSecondDays(d time.Duration) float64 {
	return days(d.Truncate(time.Second))
}

// parseTimestamp parses Bugzilla timestamps in REST or database form.
func parseTimestamp(value string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, time.DateTime} {
		parsed, err := time.Parse(layout, value)
		if err == nil {
			return parsed, true
		}
	}

	return time.Time{}, false
}
