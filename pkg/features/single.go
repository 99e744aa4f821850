package features

import (
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/Sumatoshi-tech/bugfeat/pkg/bugzilla"
)

var coverityPattern = regexp.MustCompile(`[CID ?\[0-9]+\]`)

var reviewRequestTypes = []string{"text/x-review-board-request", "text/x-phabricator-request"}

var mozillaDomains = []string{"@mozilla.com", "@mozilla.org"}

const (
	approvalPrefix = "approval-mozilla"
	landingHost    = "://hg.mozilla.org/"
)

// HasSTR reports the cf_has_str field.
func HasSTR() Extractor {
	return NewSingle("has-str", "Has STR", func(bug *bugzilla.Bug, _ Env) any {
		return optional(Field(bug, "cf_has_str"))
	})
}

// HasRegressionRange reports the cf_has_regression_range field.
func HasRegressionRange() Extractor {
	return NewSingle("has-regression-range", "Has Regression Range", func(bug *bugzilla.Bug, _ Env) any {
		return optional(Field(bug, "cf_has_regression_range"))
	})
}

// HasCrashSignature reports whether a crash signature is set.
func HasCrashSignature() Extractor {
	return NewSingle("has-crash-signature", "Crash signature present", func(bug *bugzilla.Bug, _ Env) any {
		return bug.Custom["cf_crash_signature"] != ""
	})
}

// Keywords lists the bug keywords minus toIgnore, followed by the "sec-" and
// "csectype-" family markers.
func Keywords(toIgnore ...string) Extractor {
	return NewSingle("keywords", "Keywords", func(bug *bugzilla.Bug, _ Env) any {
		keywords := make([]string, 0, len(bug.Keywords))

		var families []string

		for _, keyword := range bug.Keywords {
			if slices.Contains(toIgnore, keyword) {
				continue
			}

			keywords = append(keywords, keyword)

			switch {
			case strings.HasPrefix(keyword, "sec-"):
				families = append(families, "sec-")
			case strings.HasPrefix(keyword, "csectype-"):
				families = append(families, "csectype-")
			}
		}

		return append(keywords, families...)
	})
}

// Severity reports the severity unless unset.
func Severity() Extractor {
	return NewSingle("severity", "Severity", func(bug *bugzilla.Bug, _ Env) any {
		return optional(Field(bug, "severity"))
	})
}

// NumberOfBugDependencies counts depends_on.
func NumberOfBugDependencies() Extractor {
	return NewSingle("number-of-bug-dependencies", "# of bug dependencies", func(bug *bugzilla.Bug, _ Env) any {
		return len(bug.DependsOn)
	})
}

// IsCoverityIssue matches Coverity CID markers in the summary or whiteboard.
func IsCoverityIssue() Extractor {
	return NewSingle("is-coverity-issue", "Is Coverity issue", func(bug *bugzilla.Bug, _ Env) any {
		return coverityPattern.MatchString(bug.Summary) || coverityPattern.MatchString(bug.Whiteboard)
	})
}

// HasURL reports whether the URL field is set.
func HasURL() Extractor {
	return NewSingle("has-url", "Has a URL", func(bug *bugzilla.Bug, _ Env) any {
		return bug.URL != ""
	})
}

// HasW3CURL reports whether the URL points at w3c.
func HasW3CURL() Extractor {
	return NewSingle("has-w3c-url", "Has a w3c URL", func(bug *bugzilla.Bug, _ Env) any {
		return strings.Contains(bug.URL, "w3c")
	})
}

// HasGithubURL reports whether the URL points at GitHub.
func HasGithubURL() Extractor {
	return NewSingle("has-github-url", "Has a GitHub URL", func(bug *bugzilla.Bug, _ Env) any {
		return strings.Contains(bug.URL, "github")
	})
}

// Whiteboard lists the whiteboard tokens.
func Whiteboard() Extractor {
	return NewSingle("whiteboard", "Whiteboard", func(bug *bugzilla.Bug, _ Env) any {
		return WhiteboardKeywords(bug.Whiteboard)
	})
}

// Patches counts patch attachments and review requests.
func Patches() Extractor {
	return NewSingle("patches", "# of patches", func(bug *bugzilla.Bug, _ Env) any {
		count := 0

		for _, attachment := range bug.Attachments {
			if bool(attachment.IsPatch) || slices.Contains(reviewRequestTypes, attachment.ContentType) {
				count++
			}
		}

		return count
	})
}

// Landings counts comments linking a landed changeset.
func Landings() Extractor {
	return NewSingle("landings", "# of landing comments", func(bug *bugzilla.Bug, _ Env) any {
		count := 0

		for _, comment := range bug.Comments {
			if strings.Contains(comment.Text, landingHost) {
				count++
			}
		}

		return count
	})
}

// Product reports the product.
func Product() Extractor {
	return NewSingle("product", "Product", func(bug *bugzilla.Bug, _ Env) any {
		return bug.Product
	})
}

// Component reports the component.
func Component() Extractor {
	return NewSingle("component", "Component", func(bug *bugzilla.Bug, _ Env) any {
		return bug.Component
	})
}

// IsMozillian reports whether the reporter has a Mozilla address.
func IsMozillian() Extractor {
	return NewSingle("is-mozillian", "Reporter has a @mozilla email", func(bug *bugzilla.Bug, _ Env) any {
		email := bug.Email()

		return slices.ContainsFunc(mozillaDomains, func(domain string) bool {
			return strings.HasSuffix(email, domain)
		})
	})
}

// BugReporter reports the reporter address.
func BugReporter() Extractor {
	return NewSingle("bug-reporter", "Bug reporter", func(bug *bugzilla.Bug, _ Env) any {
		return bug.Email()
	})
}

// DeltaRequestMerge measures, in days, the time from the first uplift
// request to the next release.
func DeltaRequestMerge() Extractor {
	return NewSingle("delta-request-merge", "Timespan between uplift request and following merge",
		func(bug *bugzilla.Bug, env Env) any {
			if env.Releases == nil {
				return nil
			}

			for _, entry := range bug.History {
				for _, change := range entry.Changes {
					if !strings.HasPrefix(change.Added, approvalPrefix) {
						continue
					}

					release, ok := env.Releases.ClosestRelease(entry.When)
					if !ok {
						return nil
					}

					return wholeSecondDays(release.Date.Sub(entry.When))
				}
			}

			return nil
		})
}

// DeltaNightlyRequestMerge measures, in days, the time between the latest
// Nightly landing and the uplift request that followed it.
func DeltaNightlyRequestMerge() Extractor {
	return NewSingle("delta-nightly-request-merge",
		"Time delta between landing of the patch in Nightly and uplift request",
		func(bug *bugzilla.Bug, _ Env) any {
			for _, entry := range bug.History {
				for _, change := range entry.Changes {
					if !strings.HasPrefix(change.Added, approvalPrefix) || !strings.HasSuffix(change.Added, "?") {
						continue
					}

					var latest *bugzilla.Comment

					for _, landing := range LandingComments(bug.Comments, "nightly") {
						if landing.CreationTime.After(entry.When) {
							continue
						}

						if latest == nil || landing.CreationTime.After(latest.CreationTime) {
							latest = &landing
						}
					}

					if latest != nil {
						return wholeSecondDays(entry.When.Sub(latest.CreationTime))
					}
				}
			}

			return nil
		})
}

// BlockedBugsNumber counts blocks.
func BlockedBugsNumber() Extractor {
	return NewSingle("blocked-bugs-number", "# of blocked bugs", func(bug *bugzilla.Bug, _ Env) any {
		return len(bug.Blocks)
	})
}

// Priority reports the priority unless unset.
func Priority() Extractor {
	return NewSingle("priority", "Priority", func(bug *bugzilla.Bug, _ Env) any {
		return optional(Field(bug, "priority"))
	})
}

// Version collapses the version into Trunk, other or Has Value.
func Version() Extractor {
	return NewSingle("version", "Version", func(bug *bugzilla.Bug, _ Env) any {
		switch bug.Version {
		case "Default", "Trunk", "trunk":
			return "Trunk"
		case "other", "Other Branch":
			return "other"
		case "unspecified":
			return nil
		default:
			return "Has Value"
		}
	})
}

// TargetMilestone collapses the target milestone into Future or Has Value.
func TargetMilestone() Extractor {
	return NewSingle("target-milestone", "TargetMilestone", func(bug *bugzilla.Bug, _ Env) any {
		switch bug.TargetMilestone {
		case "Future":
			return "Future"
		case "---":
			return nil
		default:
			return "Has Value"
		}
	})
}

// HasCVEInAlias reports whether an alias names a CVE.
func HasCVEInAlias() Extractor {
	return NewSingle("has-cve-in-alias", "CVE in alias", func(bug *bugzilla.Bug, _ Env) any {
		return slices.ContainsFunc(bug.Alias, func(alias string) bool {
			return strings.Contains(alias, "CVE")
		})
	})
}

// CommentCount reports comment_count when the record carries it.
func CommentCount() Extractor {
	return NewSingle("comment-count", "# of comments", func(bug *bugzilla.Bug, _ Env) any {
		if bug.CommentCount == nil {
			return nil
		}

		return *bug.CommentCount
	})
}

// CommentLength sums the character length of every comment.
func CommentLength() Extractor {
	return NewSingle("comment-length", "Length of comments", func(bug *bugzilla.Bug, _ Env) any {
		total := 0
		for _, comment := range bug.Comments {
			total += utf8.RuneCountInString(comment.Text)
		}

		return total
	})
}

// ReporterExperience reports how many earlier bugs the reporter filed in this run.
func ReporterExperience() Extractor {
	return NewSingle("reporter-experience", "# of bugs previously opened by the reporter",
		func(_ *bugzilla.Bug, env Env) any {
			return env.ReporterExperience
		})
}

// EverAffected reports whether any version status was ever set to affected.
func EverAffected() Extractor {
	return NewSingle("ever-affected", "status has ever been set to 'affected'", func(bug *bugzilla.Bug, _ Env) any {
		return anyChange(bug, func(change bugzilla.Change) bool {
			return strings.HasPrefix(change.FieldName, statusFirefoxPrefix) && change.Added == "affected"
		})
	})
}

// AffectedThenUnaffected reports whether some unaffected version sorts before
// an affected one. Versions compare as strings.
func AffectedThenUnaffected() Extractor {
	return NewSingle("affected-then-unaffected", "status has ever been set to 'affected' and 'unaffected'",
		func(bug *bugzilla.Bug, _ Env) any {
			unaffected, affected := VersionStatuses(bug)

			for _, low := range unaffected {
				for _, high := range affected {
					if low < high {
						return true
					}
				}
			}

			return false
		})
}

// NumWordsTitle counts summary words.
func NumWordsTitle() Extractor {
	return NewSingle("num-words-title", "NumWordsTitle", func(bug *bugzilla.Bug, _ Env) any {
		return len(strings.Fields(bug.Summary))
	})
}

// NumWordsComments counts words over all comments.
func NumWordsComments() Extractor {
	return NewSingle("num-words-comments", "NumWordsComments", func(bug *bugzilla.Bug, _ Env) any {
		total := 0
		for _, comment := range bug.Comments {
			total += len(strings.Fields(comment.Text))
		}

		return total
	})
}

// HasAttachment reports whether the bug has attachments.
func HasAttachment() Extractor {
	return NewSingle("has-attachment", "Attachment present", func(bug *bugzilla.Bug, _ Env) any {
		return len(bug.Attachments) > 0
	})
}

// HasImageAttachmentAtBugCreation reports images attached when the bug was filed.
func HasImageAttachmentAtBugCreation() Extractor {
	return NewSingle("has-image-attachment-at-bug-creation", "Image attachment present at bug creation",
		func(bug *bugzilla.Bug, _ Env) any {
			return slices.ContainsFunc(bug.Attachments, func(attachment bugzilla.Attachment) bool {
				return strings.Contains(attachment.ContentType, "image") &&
					attachment.CreationTime.Equal(bug.CreationTime)
			})
		})
}

// HasImageAttachment reports image attachments.
func HasImageAttachment() Extractor {
	return NewSingle("has-image-attachment", "Image attachment present", func(bug *bugzilla.Bug, _ Env) any {
		return slices.ContainsFunc(bug.Attachments, func(attachment bugzilla.Attachment) bool {
			return strings.Contains(attachment.ContentType, "image")
		})
	})
}

// Platform reports the platform.
func Platform() Extractor {
	return NewSingle("platform", "Platform", func(bug *bugzilla.Bug, _ Env) any {
		return bug.Platform
	})
}

// OpSys reports the operating system.
func OpSys() Extractor {
	return NewSingle("op-sys", "OpSys", func(bug *bugzilla.Bug, _ Env) any {
		return bug.OpSys
	})
}

// FiledVia reports how the bug was filed.
func FiledVia() Extractor {
	return NewSingle("filed-via", "FiledVia", func(bug *bugzilla.Bug, _ Env) any {
		return bug.FiledVia
	})
}

// IsReporterADeveloper reports whether the reporter authored commits. It is
// omitted when no commit authors are known.
func IsReporterADeveloper() Extractor {
	return NewSingle("is-reporter-a-developer", "IsReporterADeveloper", func(bug *bugzilla.Bug, env Env) any {
		if env.AuthorIDs == nil {
			return nil
		}

		_, ok := env.AuthorIDs[strings.TrimSpace(bug.Email())]

		return ok
	})
}

// HadSeverityEnhancement reports whether severity was ever set to enhancement.
func HadSeverityEnhancement() Extractor {
	return NewSingle("had-severity-enhancement", "HadSeverityEnhancement", func(bug *bugzilla.Bug, _ Env) any {
		return anyChange(bug, func(change bugzilla.Change) bool {
			return bugzilla.NormalizeField(change.FieldName) == "severity" && change.Added == "enhancement"
		})
	})
}

// TimeToFix is the time in days from filing to resolution of fixed bugs.
func TimeToFix() Extractor {
	return NewSingle("time-to-fix", "TimeToFix", func(bug *bugzilla.Bug, _ Env) any {
		if bug.Resolution != "FIXED" {
			return nil
		}

		resolved, ok := parseTimestamp(bug.Custom["cf_last_resolved"])
		if !ok {
			return nil
		}

		return days(resolved.Sub(bug.CreationTime))
	})
}

// TimeToAssign is the time in days from filing to the first assignment.
func TimeToAssign() Extractor {
	return NewSingle("time-to-assign", "TimeToAssign", func(bug *bugzilla.Bug, _ Env) any {
		for _, entry := range bug.History {
			for _, change := range entry.Changes {
				if bugzilla.NormalizeField(change.FieldName) == "status" &&
					(change.Removed == "UNCONFIRMED" || change.Removed == "NEW") &&
					change.Added == "ASSIGNED" {
					return days(entry.When.Sub(bug.CreationTime))
				}
			}
		}

		return nil
	})
}

// CCNumber counts the CC list.
func CCNumber() Extractor {
	return NewSingle("cc-number", "CCNumber", func(bug *bugzilla.Bug, _ Env) any {
		return len(bug.CC)
	})
}

// IsUplifted reports whether an uplift was ever approved.
func IsUplifted() Extractor {
	return NewSingle("is-uplifted", "IsUplifted", func(bug *bugzilla.Bug, _ Env) any {
		return anyChange(bug, func(change bugzilla.Change) bool {
			return strings.HasPrefix(change.Added, approvalPrefix) && strings.HasSuffix(change.Added, "+")
		})
	})
}

// Resolution reports the resolution.
func Resolution() Extractor {
	return NewSingle("resolution", "Resolution", func(bug *bugzilla.Bug, _ Env) any {
		return bug.Resolution
	})
}

// Status reports the status.
func Status() Extractor {
	return NewSingle("status", "Status", func(bug *bugzilla.Bug, _ Env) any {
		return bug.Status
	})
}

func anyChange(bug *bugzilla.Bug, match func(bugzilla.Change) bool) bool {
	for _, entry := range bug.History {
		if slices.ContainsFunc(entry.Changes, match) {
			return true
		}
	}

	return false
}
