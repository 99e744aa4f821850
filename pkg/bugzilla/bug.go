// Package bugzilla models Bugzilla bug records as returned by the REST API
// and provides restartable sources that read them from bug dumps.
package bugzilla

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"time"
)

// customFieldPrefix marks Bugzilla custom fields (cf_has_str, cf_status_firefox70, ...).
const customFieldPrefix = "cf_"

// Person describes a Bugzilla user as embedded in *_detail fields.
type Person struct {
	ID       int    `json:"id,omitempty"`
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	RealName string `json:"real_name,omitempty"`
}

// Comment is a single bug comment. The first comment is the bug description.
type Comment struct {
	ID           int       `json:"id"`
	Count        int       `json:"count"`
	Text         string    `json:"text"`
	Creator      string    `json:"creator"`
	CreationTime time.Time `json:"creation_time"`
	IsPrivate    bool      `json:"is_private,omitempty"`
}

// Attachment is a file attached to a bug.
type Attachment struct {
	ID           int       `json:"id"`
	ContentType  string    `json:"content_type"`
	CreationTime time.Time `json:"creation_time"`
	IsPatch      Bit       `json:"is_patch"`
	IsObsolete   Bit       `json:"is_obsolete"`
	FileName     string    `json:"file_name,omitempty"`
	Description  string    `json:"description,omitempty"`
	Creator      string    `json:"creator,omitempty"`
	Flags        []Flag    `json:"flags,omitempty"`
}

// Change is one field mutation inside a history entry.
type Change struct {
	FieldName    string `json:"field_name"`
	Removed      string `json:"removed"`
	Added        string `json:"added"`
	AttachmentID *int   `json:"attachment_id,omitempty"`
	CommentID    *int   `json:"comment_id,omitempty"`
}

// HistoryEntry is a timestamped batch of changes recorded against a bug.
type HistoryEntry struct {
	When    time.Time `json:"when"`
	Who     string    `json:"who"`
	Changes []Change  `json:"changes"`
}

// Commit is the metadata of a version-control commit linked to a bug.
type Commit struct {
	Node                     string   `json:"node,omitempty"`
	AuthorEmail              string   `json:"author_email,omitempty"`
	Added                    int      `json:"added"`
	Deleted                  int      `json:"deleted"`
	Types                    []string `json:"types"`
	FilesModifiedNum         int      `json:"files_modified_num"`
	AuthorExperience         float64  `json:"author_experience"`
	AuthorExperience90Days   float64  `json:"author_experience_90_days"`
	ReviewerExperience       float64  `json:"reviewer_experience"`
	ReviewerExperience90Days float64  `json:"reviewer_experience_90_days"`
	BackedOutBy              string   `json:"backedoutby"`
	Components               []string `json:"components"`
}

// IsBackedOut reports whether the commit was later backed out.
func (c *Commit) IsBackedOut() bool {
	return c.BackedOutBy != ""
}

// Bug is a single Bugzilla issue. Custom fields (every top-level key starting
// with "cf_") live in Custom and are flattened back on encoding.
type Bug struct {
	ID              int            `json:"id"`
	CreationTime    time.Time      `json:"creation_time"`
	Creator         string         `json:"creator"`
	CreatorDetail   Person         `json:"creator_detail"`
	Summary         string         `json:"summary"`
	Whiteboard      string         `json:"whiteboard"`
	URL             string         `json:"url"`
	Alias           Aliases        `json:"alias"`
	Keywords        []string       `json:"keywords"`
	CC              []string       `json:"cc"`
	DependsOn       []int          `json:"depends_on"`
	Blocks          []int          `json:"blocks"`
	SeeAlso         []string       `json:"see_also,omitempty"`
	Groups          []string       `json:"groups,omitempty"`
	RegressedBy     []int          `json:"regressed_by,omitempty"`
	Regressions     []int          `json:"regressions,omitempty"`
	Flags           []Flag         `json:"flags,omitempty"`
	Product         string         `json:"product"`
	Component       string         `json:"component"`
	Platform        string         `json:"platform"`
	OpSys           string         `json:"op_sys"`
	Version         string         `json:"version"`
	Status          string         `json:"status"`
	Resolution      string         `json:"resolution"`
	Priority        string         `json:"priority"`
	Severity        string         `json:"severity"`
	TargetMilestone string         `json:"target_milestone"`
	FiledVia        string         `json:"filed_via"`
	Type            string         `json:"type,omitempty"`
	AssignedTo      string         `json:"assigned_to,omitempty"`
	QAContact       string         `json:"qa_contact,omitempty"`
	CommentCount    *int           `json:"comment_count,omitempty"`
	Comments        []Comment      `json:"comments"`
	Attachments     []Attachment   `json:"attachments"`
	History         []HistoryEntry `json:"history"`
	Commits         []Commit       `json:"commits,omitempty"`

	Custom map[string]string `json:"-"`
}

// Pair is a couple of bugs fed to pair-bug extractors.
type Pair [2]*Bug

// bugAlias strips the methods of Bug so the default codec can be reused.
type bugAlias Bug

// UnmarshalJSON decodes the typed fields and collects cf_* custom fields.
func (b *Bug) UnmarshalJSON(data []byte) error {
	var typed bugAlias

	err := json.Unmarshal(data, &typed)
	if err != nil {
		return fmt.Errorf("decode bug: %w", err)
	}

	var raw map[string]json.RawMessage

	err = json.Unmarshal(data, &raw)
	if err != nil {
		return fmt.Errorf("decode bug fields: %w", err)
	}

	typed.Custom = make(map[string]string)

	for key, value := range raw {
		if !strings.HasPrefix(key, customFieldPrefix) {
			continue
		}

		str, ok := customValue(value)
		if ok {
			typed.Custom[key] = str
		}
	}

	*b = Bug(typed)

	return nil
}

// MarshalJSON encodes the typed fields and flattens custom fields to the top level.
func (b Bug) MarshalJSON() ([]byte, error) {
	typed, err := json.Marshal((*bugAlias)(&b))
	if err != nil {
		return nil, fmt.Errorf("encode bug: %w", err)
	}

	if len(b.Custom) == 0 {
		return typed, nil
	}

	var fields map[string]json.RawMessage

	err = json.Unmarshal(typed, &fields)
	if err != nil {
		return nil, fmt.Errorf("encode bug: %w", err)
	}

	for key, value := range b.Custom {
		encoded, encErr := json.Marshal(value)
		if encErr != nil {
			return nil, fmt.Errorf("encode custom field %s: %w", key, encErr)
		}

		fields[key] = encoded
	}

	return json.Marshal(fields)
}

// customValue converts a raw custom field value to its string form.
// Null values are reported as absent.
func customValue(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", false
	}

	var str string
	if json.Unmarshal(trimmed, &str) == nil {
		return str, true
	}

	// Non-string custom fields (numbers, booleans, lists) keep their JSON text.
	return string(trimmed), true
}

// Email returns the reporter e-mail address.
func (b *Bug) Email() string {
	return b.CreatorDetail.Email
}

// CustomFieldNames returns the custom field keys in sorted order.
func (b *Bug) CustomFieldNames() []string {
	names := slices.Collect(maps.Keys(b.Custom))
	sort.Strings(names)

	return names
}

// Attachment returns the attachment with the given id.
func (b *Bug) Attachment(id int) (*Attachment, bool) {
	for i := range b.Attachments {
		if b.Attachments[i].ID == id {
			return &b.Attachments[i], true
		}
	}

	return nil, false
}

// CommentTexts returns the text of every comment in order.
func (b *Bug) CommentTexts() []string {
	texts := make([]string, len(b.Comments))
	for i, comment := range b.Comments {
		texts[i] = comment.Text
	}

	return texts
}

// ActiveCommits returns the commits that were not backed out.
func (b *Bug) ActiveCommits() []Commit {
	active := make([]Commit, 0, len(b.Commits))

	for _, commit := range b.Commits {
		if !commit.IsBackedOut() {
			active = append(active, commit)
		}
	}

	return active
}

// Clone returns a deep copy of the bug. Nothing is shared with the receiver.
func (b *Bug) Clone() *Bug {
	clone := *b

	clone.Alias = slices.Clone(b.Alias)
	clone.Keywords = slices.Clone(b.Keywords)
	clone.CC = slices.Clone(b.CC)
	clone.DependsOn = slices.Clone(b.DependsOn)
	clone.Blocks = slices.Clone(b.Blocks)
	clone.SeeAlso = slices.Clone(b.SeeAlso)
	clone.Groups = slices.Clone(b.Groups)
	clone.RegressedBy = slices.Clone(b.RegressedBy)
	clone.Regressions = slices.Clone(b.Regressions)
	clone.Flags = slices.Clone(b.Flags)
	clone.Comments = slices.Clone(b.Comments)
	clone.Commits = cloneCommits(b.Commits)
	clone.Custom = maps.Clone(b.Custom)

	if b.CommentCount != nil {
		count := *b.CommentCount
		clone.CommentCount = &count
	}

	if b.Attachments != nil {
		clone.Attachments = make([]Attachment, len(b.Attachments))
		for i, attachment := range b.Attachments {
			attachment.Flags = slices.Clone(attachment.Flags)
			clone.Attachments[i] = attachment
		}
	}

	if b.History != nil {
		clone.History = make([]HistoryEntry, len(b.History))
		for i, entry := range b.History {
			entry.Changes = cloneChanges(entry.Changes)
			clone.History[i] = entry
		}
	}

	return &clone
}

func cloneChanges(changes []Change) []Change {
	if changes == nil {
		return nil
	}

	cloned := make([]Change, len(changes))

	for i, change := range changes {
		if change.AttachmentID != nil {
			id := *change.AttachmentID
			change.AttachmentID = &id
		}

		if change.CommentID != nil {
			id := *change.CommentID
			change.CommentID = &id
		}

		cloned[i] = change
	}

	return cloned
}

func cloneCommits(commits []Commit) []Commit {
	if commits == nil {
		return nil
	}

	cloned := make([]Commit, len(commits))

	for i, commit := range commits {
		commit.Types = slices.Clone(commit.Types)
		commit.Components = slices.Clone(commit.Components)
		cloned[i] = commit
	}

	return cloned
}
