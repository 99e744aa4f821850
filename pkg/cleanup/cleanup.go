// Package cleanup provides the text cleanup functions applied to bug
// summaries and comments before they enter a dataset.
package cleanup

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"slices"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sentinel errors for cleaner configuration.
var (
	// ErrDuplicateCleaner is returned when a configuration lists the same cleaner twice.
	ErrDuplicateCleaner = errors.New("duplicate cleanup function")
	// ErrUnknownCleaner is returned when a catalog lookup fails.
	ErrUnknownCleaner = errors.New("unknown cleanup function")
)

// Placeholders substituted for matched text.
const (
	FileRefToken = "__FILE_REFERENCE__"
	URLToken     = "__URL__"
	HexToken     = "__HEX_NUMBER__"
	DLLToken     = "__DLL_NAME__"
	CrashToken   = "__CRASH_STATS_LINK__"
)

// Cleaner rewrites free text.
type Cleaner interface {
	ID() string
	Clean(text string) string
}

type replacer struct {
	id          string
	pattern     *regexp.Regexp
	replacement string
}

func (r *replacer) ID() string { return r.id }

func (r *replacer) Clean(text string) string {
	return r.pattern.ReplaceAllLiteralString(text, r.replacement)
}

// FileRef replaces source file names.
func FileRef() Cleaner {
	return &replacer{
		id:          "fileref",
		pattern:     regexp.MustCompile(`\w+\.(?:py|json|js|jsm|html|css|c|cpp|h)\b`),
		replacement: FileRefToken,
	}
}

// URL replaces http(s) URLs.
func URL() Cleaner {
	return &replacer{
		id:          "url",
		pattern:     regexp.MustCompile(`https?://(?:[a-zA-Z]|[0-9]|[$-_@.&+]|[!*(),]|%[0-9a-fA-F]{2})+`),
		replacement: URLToken,
	}
}

// Hex replaces hexadecimal literals.
func Hex() Cleaner {
	return &replacer{
		id:          "hex",
		pattern:     regexp.MustCompile(`\b0[xX][0-9a-fA-F]+\b`),
		replacement: HexToken,
	}
}

// DLL replaces Windows library names.
func DLL() Cleaner {
	return &replacer{
		id:          "dll",
		pattern:     regexp.MustCompile(`\w+\.dll\b`),
		replacement: DLLToken,
	}
}

// CrashSignature replaces crash-stats report links.
func CrashSignature() Cleaner {
	return &replacer{
		id:          "crash",
		pattern:     regexp.MustCompile(`bp-[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{6}[0-9]{6}\b`),
		replacement: CrashToken,
	}
}

// synonymGroups maps a canonical term to its spellings, longest first.
var synonymGroups = []struct {
	canonical string
	spellings []string
}{
	{"safemode", []string{"safe mode", "safemode"}},
	{"str", []string{"steps to reproduce", "repro steps", "str"}},
	{"uaf", []string{"use after free", "use-after-free", "uaf"}},
	{"asan", []string{"address sanitizer", "addresssanitizer", "asan"}},
	{"permafailure", []string{
		"perma-failure", "perma failure", "perma-failing", "perma failing", "perma-fail", "perma fail",
		"permafailure", "permafailing", "permafail",
	}},
	{"spec", []string{"specification", "spec"}},
}

type synonyms struct {
	patterns []*regexp.Regexp
	words    []string
}

// Synonyms collapses common spellings of the same term, case-insensitively.
func Synonyms() Cleaner {
	s := &synonyms{}

	for _, group := range synonymGroups {
		quoted := make([]string, len(group.spellings))
		for i, spelling := range group.spellings {
			quoted[i] = regexp.QuoteMeta(spelling)
		}

		s.patterns = append(s.patterns, regexp.MustCompile(`(?i)\b(?:`+strings.Join(quoted, "|")+`)\b`))
		s.words = append(s.words, group.canonical)
	}

	return s
}

func (s *synonyms) ID() string { return "synonyms" }

func (s *synonyms) Clean(text string) string {
	for i, pattern := range s.patterns {
		text = pattern.ReplaceAllLiteralString(text, s.words[i])
	}

	return text
}

type htmlStripper struct {
	policy *bluemonday.Policy
}

// HTML strips markup, keeping the text content.
func HTML() Cleaner {
	return &htmlStripper{policy: bluemonday.StrictPolicy()}
}

func (h *htmlStripper) ID() string { return "html" }

func (h *htmlStripper) Clean(text string) string {
	return html.UnescapeString(h.policy.Sanitize(text))
}

// Validate rejects cleaner lists naming the same cleaner twice.
func Validate(cleaners []Cleaner) error {
	seen := make(map[string]struct{}, len(cleaners))

	for _, cleaner := range cleaners {
		if _, exists := seen[cleaner.ID()]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateCleaner, cleaner.ID())
		}

		seen[cleaner.ID()] = struct{}{}
	}

	return nil
}

// Apply runs cleaners over text in order.
func Apply(cleaners []Cleaner, text string) string {
	for _, cleaner := range cleaners {
		text = cleaner.Clean(text)
	}

	return text
}

var catalog = map[string]func() Cleaner{
	"fileref":  FileRef,
	"url":      URL,
	"hex":      Hex,
	"dll":      DLL,
	"crash":    CrashSignature,
	"synonyms": Synonyms,
	"html":     HTML,
}

// IDs returns the known cleaner IDs, sorted.
func IDs() []string {
	ids := make([]string, 0, len(catalog))
	for id := range catalog {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

// Build instantiates the cleaners named by ids, in order.
func Build(ids []string) ([]Cleaner, error) {
	cleaners := make([]Cleaner, 0, len(ids))

	for _, id := range ids {
		factory, ok := catalog[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCleaner, id)
		}

		cleaners = append(cleaners, factory())
	}

	return cleaners, nil
}
