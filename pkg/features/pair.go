package features

import (
	"slices"
	"strings"

	"github.com/Sumatoshi-tech/bugfeat/pkg/bugzilla"
)

// CoupleCommonWhiteboardKeywords lists whiteboard tokens of the first bug
// that also appear on the second.
func CoupleCommonWhiteboardKeywords() Extractor {
	return NewPair("couple-common-whiteboard-keywords", "CoupleCommonWhiteboardKeywords", func(pair bugzilla.Pair) any {
		other := WhiteboardKeywords(pair[1].Whiteboard)

		common := []string{}
		for _, keyword := range WhiteboardKeywords(pair[0].Whiteboard) {
			if slices.Contains(other, keyword) {
				common = append(common, keyword)
			}
		}

		return common
	})
}

// IsSameProduct compares products.
func IsSameProduct() Extractor {
	return NewPair("is-same-product", "IsSameProduct", func(pair bugzilla.Pair) any {
		return pair[0].Product == pair[1].Product
	})
}

// IsSameComponent compares product and component.
func IsSameComponent() Extractor {
	return NewPair("is-same-component", "IsSameComponent", func(pair bugzilla.Pair) any {
		return pair[0].Product == pair[1].Product && pair[0].Component == pair[1].Component
	})
}

// IsSamePlatform compares platforms.
func IsSamePlatform() Extractor {
	return NewPair("is-same-platform", "IsSamePlatform", func(pair bugzilla.Pair) any {
		return pair[0].Platform == pair[1].Platform
	})
}

// IsSameVersion compares versions.
func IsSameVersion() Extractor {
	return NewPair("is-same-version", "IsSameVersion", func(pair bugzilla.Pair) any {
		return pair[0].Version == pair[1].Version
	})
}

// IsSameOS compares operating systems.
func IsSameOS() Extractor {
	return NewPair("is-same-os", "IsSameOS", func(pair bugzilla.Pair) any {
		return pair[0].OpSys == pair[1].OpSys
	})
}

// IsSameTargetMilestone compares target milestones.
func IsSameTargetMilestone() Extractor {
	return NewPair("is-same-target-milestone", "IsSameTargetMilestone", func(pair bugzilla.Pair) any {
		return pair[0].TargetMilestone == pair[1].TargetMilestone
	})
}

// IsFirstAffectedSame compares the lowest affected version of both bugs.
func IsFirstAffectedSame() Extractor {
	return NewPair("is-first-affected-same", "IsFirstAffectedSame", func(pair bugzilla.Pair) any {
		_, first := VersionStatuses(pair[0])
		_, second := VersionStatuses(pair[1])

		if len(first) == 0 || len(second) == 0 {
			return false
		}

		return slices.Min(first) == slices.Min(second)
	})
}

// CoupleDeltaCreationDate is the creation time of the first bug minus the
// second, in days.
func CoupleDeltaCreationDate() Extractor {
	return NewPair("couple-delta-creation-date", "CoupleDeltaCreationDate", func(pair bugzilla.Pair) any {
		return days(pair[0].CreationTime.Sub(pair[1].CreationTime))
	})
}

// CoupleCommonWordsSummary lists the words both summaries share, sorted.
func CoupleCommonWordsSummary() Extractor {
	return NewPair("couple-common-words-summary", "CoupleCommonWordsSummary", func(pair bugzilla.Pair) any {
		return commonWords(pair[0].Summary, pair[1].Summary)
	})
}

// CoupleCommonWordsComments lists the words both comment threads share, sorted.
func CoupleCommonWordsComments() Extractor {
	return NewPair("couple-common-words-comments", "CoupleCommonWordsComments", func(pair bugzilla.Pair) any {
		return commonWords(
			strings.Join(pair[0].CommentTexts(), " "),
			strings.Join(pair[1].CommentTexts(), " "),
		)
	})
}

// CoupleCommonKeywords lists keywords of the first bug also set on the
// second, minus toIgnore.
func CoupleCommonKeywords(toIgnore ...string) Extractor {
	return NewPair("couple-common-keywords", "CoupleCommonKeywords", func(pair bugzilla.Pair) any {
		common := []string{}

		for _, keyword := range pair[0].Keywords {
			if slices.Contains(pair[1].Keywords, keyword) && !slices.Contains(toIgnore, keyword) {
				common = append(common, keyword)
			}
		}

		return common
	})
}

func commonWords(first, second string) []string {
	words := make(map[string]struct{})
	for _, word := range strings.Fields(second) {
		words[word] = struct{}{}
	}

	common := []string{}

	for _, word := range strings.Fields(first) {
		if _, ok := words[word]; ok {
			common = append(common, word)
			delete(words, word)
		}
	}

	slices.Sort(common)

	return common
}
