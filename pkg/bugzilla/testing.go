package bugzilla

import "time"

// TestEpoch is the creation time of bugs built by NewTestBug.
var TestEpoch = time.Date(2019, time.July, 1, 10, 0, 0, 0, time.UTC)

// NewTestBug creates a minimal well-formed bug for tests. Every required
// field is populated; collections are empty rather than nil.
func NewTestBug(id int, creator string) *Bug {
	return &Bug{
		ID:              id,
		CreationTime:    TestEpoch,
		Creator:         creator,
		CreatorDetail:   Person{Email: creator, Name: creator},
		Summary:         "Crash when opening the preferences",
		Whiteboard:      "",
		URL:             "",
		Keywords:        []string{},
		CC:              []string{},
		DependsOn:       []int{},
		Blocks:          []int{},
		Product:         "Firefox",
		Component:       "General",
		Platform:        "x86_64",
		OpSys:           "Linux",
		Version:         "unspecified",
		Status:          "NEW",
		Resolution:      "",
		Priority:        "--",
		Severity:        "--",
		TargetMilestone: "---",
		FiledVia:        "standard_form",
		Comments: []Comment{{
			ID:           id * 10,
			Text:         "Steps to reproduce: open the preferences.",
			Creator:      creator,
			CreationTime: TestEpoch,
		}},
		Attachments: []Attachment{},
		History:     []HistoryEntry{},
		Custom:      map[string]string{},
	}
}

// TestChange builds a change for tests.
func TestChange(field, removed, added string) Change {
	return Change{FieldName: field, Removed: removed, Added: added}
}

// WithHistory appends a history entry at TestEpoch plus offset.
func (b *Bug) WithHistory(offset time.Duration, changes ...Change) *Bug {
	b.History = append(b.History, HistoryEntry{
		When:    TestEpoch.Add(offset),
		Who:     b.Creator,
		Changes: changes,
	})

	return b
}
