package bugzilla

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// scalarFields maps REST field names to the string fields they address.
var scalarFields = map[string]func(*Bug) *string{
	"summary":          func(b *Bug) *string { return &b.Summary },
	"whiteboard":       func(b *Bug) *string { return &b.Whiteboard },
	"url":              func(b *Bug) *string { return &b.URL },
	"product":          func(b *Bug) *string { return &b.Product },
	"component":        func(b *Bug) *string { return &b.Component },
	"platform":         func(b *Bug) *string { return &b.Platform },
	"op_sys":           func(b *Bug) *string { return &b.OpSys },
	"version":          func(b *Bug) *string { return &b.Version },
	"status":           func(b *Bug) *string { return &b.Status },
	"resolution":       func(b *Bug) *string { return &b.Resolution },
	"priority":         func(b *Bug) *string { return &b.Priority },
	"severity":         func(b *Bug) *string { return &b.Severity },
	"target_milestone": func(b *Bug) *string { return &b.TargetMilestone },
	"filed_via":        func(b *Bug) *string { return &b.FiledVia },
	"type":             func(b *Bug) *string { return &b.Type },
	"assigned_to":      func(b *Bug) *string { return &b.AssignedTo },
	"qa_contact":       func(b *Bug) *string { return &b.QAContact },
	"creator":          func(b *Bug) *string { return &b.Creator },
}

// stringListFields maps REST field names to multi-valued string fields.
var stringListFields = map[string]func(*Bug) *[]string{
	"keywords": func(b *Bug) *[]string { return &b.Keywords },
	"cc":       func(b *Bug) *[]string { return &b.CC },
	"see_also": func(b *Bug) *[]string { return &b.SeeAlso },
	"groups":   func(b *Bug) *[]string { return &b.Groups },
	"alias":    func(b *Bug) *[]string { return (*[]string)(&b.Alias) },
}

// intListFields maps REST field names to multi-valued bug id fields.
var intListFields = map[string]func(*Bug) *[]int{
	"depends_on":   func(b *Bug) *[]int { return &b.DependsOn },
	"blocks":       func(b *Bug) *[]int { return &b.Blocks },
	"regressed_by": func(b *Bug) *[]int { return &b.RegressedBy },
	"regressions":  func(b *Bug) *[]int { return &b.Regressions },
}

// fieldAliases maps names used in history entries to record field names.
var fieldAliases = map[string]string{
	"bug_severity":      "severity",
	"rep_platform":      "platform",
	"bug_status":        "status",
	"status_whiteboard": "whiteboard",
	"bug_file_loc":      "url",
	"short_desc":        "summary",
	"dependson":         "depends_on",
	"blocked":           "blocks",
	"bug_type":          "type",
	"bug_group":         "groups",
}

// NormalizeField maps a history field name to the record field it changes.
func NormalizeField(name string) string {
	if alias, ok := fieldAliases[name]; ok {
		return alias
	}

	return name
}

// IsCustomField reports whether name is a Bugzilla custom field.
func IsCustomField(name string) bool {
	return strings.HasPrefix(name, customFieldPrefix)
}

// IsScalarField reports whether name addresses a single-valued field.
func IsScalarField(name string) bool {
	_, ok := scalarFields[name]

	return ok
}

// IsListField reports whether name addresses a multi-valued field.
func IsListField(name string) bool {
	_, isString := stringListFields[name]
	_, isInt := intListFields[name]

	return isString || isInt
}

// Field returns the value of a scalar or custom field and whether it is present.
func (b *Bug) Field(name string) (string, bool) {
	if accessor, ok := scalarFields[name]; ok {
		return *accessor(b), true
	}

	if IsCustomField(name) {
		value, ok := b.Custom[name]

		return value, ok
	}

	return "", false
}

// SetField assigns a scalar or custom field. It reports false for names
// that are neither.
func (b *Bug) SetField(name, value string) bool {
	if accessor, ok := scalarFields[name]; ok {
		*accessor(b) = value

		return true
	}

	if IsCustomField(name) {
		if b.Custom == nil {
			b.Custom = make(map[string]string)
		}

		b.Custom[name] = value

		return true
	}

	return false
}

// DeleteField removes a custom field.
func (b *Bug) DeleteField(name string) {
	delete(b.Custom, name)
}

// ListField returns the items of a multi-valued field in display form.
func (b *Bug) ListField(name string) ([]string, bool) {
	if accessor, ok := stringListFields[name]; ok {
		return slices.Clone(*accessor(b)), true
	}

	if accessor, ok := intListFields[name]; ok {
		ids := *accessor(b)
		items := make([]string, len(ids))

		for i, id := range ids {
			items[i] = strconv.Itoa(id)
		}

		return items, true
	}

	return nil, false
}

// SetListField replaces the items of a multi-valued field.
func (b *Bug) SetListField(name string, items []string) error {
	if accessor, ok := stringListFields[name]; ok {
		*accessor(b) = slices.Clone(items)

		return nil
	}

	accessor, ok := intListFields[name]
	if !ok {
		return fmt.Errorf("%w: %s is not a list field", ErrUnknownField, name)
	}

	ids := make([]int, len(items))

	for i, item := range items {
		id, err := strconv.Atoi(item)
		if err != nil {
			return fmt.Errorf("%w: %s item %q: %w", ErrMalformedBug, name, item, err)
		}

		ids[i] = id
	}

	*accessor(b) = ids

	return nil
}
