package snapshot

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Sumatoshi-tech/bugfeat/pkg/bugzilla"
)

const (
	flagsField      = "flagtypes.name"
	attachmentField = "attachments."
)

// unverifiedFields are rendered differently in history and in the record.
var unverifiedFields = map[string]bool{
	"cf_last_resolved": true,
	"assigned_to":      true,
	"qa_contact":       true,
}

type reverter struct {
	bug    *bugzilla.Bug
	assert bool
}

func (r *reverter) undo(change bugzilla.Change) error {
	name := bugzilla.NormalizeField(change.FieldName)

	switch {
	case name == flagsField:
		return r.undoFlags(change)
	case strings.HasPrefix(name, attachmentField):
		return r.undoAttachment(strings.TrimPrefix(name, attachmentField), change)
	case bugzilla.IsListField(name):
		return r.undoList(name, change)
	case bugzilla.IsCustomField(name):
		return r.undoCustom(name, change)
	case bugzilla.IsScalarField(name):
		return r.undoScalar(name, change)
	default:
		return nil
	}
}

func (r *reverter) inconsistent(field, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInconsistentHistory, field, fmt.Sprintf(format, args...))
}

func (r *reverter) undoScalar(name string, change bugzilla.Change) error {
	current, _ := r.bug.Field(name)
	if r.assert && !unverifiedFields[name] && current != change.Added {
		return r.inconsistent(name, "current value %q, history added %q", current, change.Added)
	}

	r.bug.SetField(name, change.Removed)

	return nil
}

func (r *reverter) undoCustom(name string, change bugzilla.Change) error {
	current, present := r.bug.Field(name)
	if r.assert && present && !unverifiedFields[name] && current != change.Added {
		return r.inconsistent(name, "current value %q, history added %q", current, change.Added)
	}

	if change.Removed == "" && !present {
		return nil
	}

	r.bug.SetField(name, change.Removed)

	return nil
}

func (r *reverter) undoList(name string, change bugzilla.Change) error {
	items, _ := r.bug.ListField(name)

	for _, added := range bugzilla.SplitList(change.Added) {
		index := slices.Index(items, added)
		if index < 0 {
			if r.assert {
				return r.inconsistent(name, "added item %q not found", added)
			}

			continue
		}

		items = slices.Delete(items, index, index+1)
	}

	for _, removed := range bugzilla.SplitList(change.Removed) {
		if !slices.Contains(items, removed) {
			items = append(items, removed)
		}
	}

	return r.bug.SetListField(name, items)
}

func (r *reverter) undoFlags(change bugzilla.Change) error {
	target := &r.bug.Flags

	if change.AttachmentID != nil {
		attachment, ok := r.bug.Attachment(*change.AttachmentID)
		if !ok {
			if r.assert {
				return r.inconsistent(flagsField, "attachment %d not found", *change.AttachmentID)
			}

			return nil
		}

		target = &attachment.Flags
	}

	flags := *target

	for _, added := range bugzilla.ParseFlags(change.Added) {
		index := indexFlag(flags, added)
		if index < 0 {
			if r.assert {
				return r.inconsistent(flagsField, "flag %q not found", added.Token())
			}

			continue
		}

		flags = slices.Delete(flags, index, index+1)
	}

	for _, removed := range bugzilla.ParseFlags(change.Removed) {
		if indexFlag(flags, removed) < 0 {
			flags = append(flags, removed)
		}
	}

	*target = flags

	return nil
}

// indexFlag finds a flag by its display token, falling back to name and
// status when the requestee is not recorded.
func indexFlag(flags []bugzilla.Flag, flag bugzilla.Flag) int {
	index := slices.IndexFunc(flags, func(f bugzilla.Flag) bool {
		return f.Token() == flag.Token()
	})
	if index >= 0 {
		return index
	}

	return slices.IndexFunc(flags, func(f bugzilla.Flag) bool {
		return f.Name == flag.Name && f.Status == flag.Status
	})
}

func (r *reverter) undoAttachment(attribute string, change bugzilla.Change) error {
	if change.AttachmentID == nil {
		return nil
	}

	attachment, ok := r.bug.Attachment(*change.AttachmentID)
	if !ok {
		if r.assert {
			return r.inconsistent(attachmentField+attribute, "attachment %d not found", *change.AttachmentID)
		}

		return nil
	}

	switch attribute {
	case "ispatch":
		attachment.IsPatch = change.Removed == "1"
	case "isobsolete":
		attachment.IsObsolete = change.Removed == "1"
	case "mimetype":
		attachment.ContentType = change.Removed
	case "filename":
		attachment.FileName = change.Removed
	case "description":
		attachment.Description = change.Removed
	}

	return nil
}
