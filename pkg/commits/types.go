package commits

import (
	"path"
	"slices"
	"strings"

	"github.com/src-d/enry/v2"
)

// FileTypes derives commit types from touched paths: the lower-cased file
// extension, or the detected language for files without one (Makefile,
// Dockerfile). Vendored paths are skipped. The result is sorted and unique.
func FileTypes(paths []string) []string {
	types := make([]string, 0, len(paths))

	for _, name := range paths {
		if enry.IsVendor(name) {
			continue
		}

		base := path.Base(name)

		ext := strings.ToLower(path.Ext(base))
		if ext != "" && ext != base {
			types = append(types, ext)

			continue
		}

		if lang := enry.GetLanguage(base, nil); lang != "" {
			types = append(types, lang)
		}
	}

	slices.Sort(types)

	return slices.Compact(types)
}
