package bugzilla

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// listSeparator separates items of multi-valued fields in history entries.
const listSeparator = ","

// Bit is a boolean that Bugzilla may encode either as true/false or as 1/0.
type Bit bool

// UnmarshalJSON accepts booleans and the integers 0 and 1.
func (b *Bit) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "true", "1":
		*b = true
	case "false", "0", "null":
		*b = false
	default:
		return fmt.Errorf("%w: bit value %s", ErrMalformedBug, data)
	}

	return nil
}

// Aliases holds bug aliases. Older dumps store a single string (or null),
// newer ones a list.
type Aliases []string

// UnmarshalJSON accepts null, a string or a list of strings.
func (a *Aliases) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*a = nil

		return nil
	}

	var single string
	if json.Unmarshal(trimmed, &single) == nil {
		if single == "" {
			*a = nil
		} else {
			*a = Aliases{single}
		}

		return nil
	}

	var list []string

	err := json.Unmarshal(trimmed, &list)
	if err != nil {
		return fmt.Errorf("%w: alias %s", ErrMalformedBug, data)
	}

	*a = list

	return nil
}

// Flag is a Bugzilla flag such as "needinfo?(someone@example.com)" or "review+".
type Flag struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Setter    string `json:"setter,omitempty"`
	Requestee string `json:"requestee,omitempty"`
}

// Token renders the flag the way history entries display it.
func (f Flag) Token() string {
	if f.Requestee == "" {
		return f.Name + f.Status
	}

	return f.Name + f.Status + "(" + f.Requestee + ")"
}

// ParseFlag parses a single history flag token.
func ParseFlag(token string) (Flag, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Flag{}, false
	}

	var requestee string

	if open := strings.IndexByte(token, '('); open > 0 && strings.HasSuffix(token, ")") {
		requestee = token[open+1 : len(token)-1]
		token = token[:open]
	}

	if len(token) < 2 {
		return Flag{}, false
	}

	status := token[len(token)-1:]
	if !strings.ContainsAny(status, "?+-") {
		return Flag{}, false
	}

	return Flag{Name: token[:len(token)-1], Status: status, Requestee: requestee}, true
}

// ParseFlags parses a history value holding several comma separated flag tokens.
func ParseFlags(value string) []Flag {
	var flags []Flag

	for _, token := range SplitList(value) {
		flag, ok := ParseFlag(token)
		if ok {
			flags = append(flags, flag)
		}
	}

	return flags
}

// FormatFlags renders flags the way history entries display them.
func FormatFlags(flags []Flag) string {
	tokens := make([]string, len(flags))
	for i, flag := range flags {
		tokens[i] = flag.Token()
	}

	return strings.Join(tokens, ", ")
}

// SplitList splits a history value of a multi-valued field into its items.
// Items are trimmed and empty items are dropped.
func SplitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}

	parts := strings.Split(value, listSeparator)
	items := make([]string, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			items = append(items, part)
		}
	}

	return items
}
