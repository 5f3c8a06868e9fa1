package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// ValueKind identifies which variant a ResponseValue holds.
type ValueKind int

const (
	// KindNone is the zero value; it is never valid inside Responses.
	KindNone ValueKind = iota
	KindString
	KindBool
	KindList
)

// String returns a human-readable representation of the kind.
func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	default:
		return "none"
	}
}

// ResponseValue is an opaque answer: a string, a bool, or a list of strings.
type ResponseValue struct {
	kind ValueKind
	str  string
	b    bool
	list []string
}

// StringValue returns a string response.
func StringValue(s string) ResponseValue {
	return ResponseValue{kind: KindString, str: s}
}

// BoolValue returns a boolean response.
func BoolValue(b bool) ResponseValue {
	return ResponseValue{kind: KindBool, b: b}
}

// ListValue returns a list response. The slice is copied.
func ListValue(items ...string) ResponseValue {
	list := make([]string, len(items))
	copy(list, items)
	return ResponseValue{kind: KindList, list: list}
}

// Kind returns the variant held by v.
func (v ResponseValue) Kind() ValueKind { return v.kind }

// Str returns the string variant and whether v holds one.
func (v ResponseValue) Str() (string, bool) { return v.str, v.kind == KindString }

// Bool returns the bool variant and whether v holds one.
func (v ResponseValue) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// List returns a copy of the list variant and whether v holds one.
func (v ResponseValue) List() ([]string, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return slices.Clone(v.list), true
}

// Equal reports whether two values hold the same variant and contents.
func (v ResponseValue) Equal(o ResponseValue) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindBool:
		return v.b == o.b
	case KindList:
		return slices.Equal(v.list, o.list)
	}
	return true
}

// String renders the value for display.
func (v ResponseValue) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindList:
		return fmt.Sprintf("%q", v.list)
	}
	return "<none>"
}

// MarshalJSON encodes the held variant as a plain JSON value.
func (v ResponseValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindBool:
		return json.Marshal(v.b)
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	}
	return nil, invalid("response", "value has no kind")
}

// UnmarshalJSON accepts a JSON string, boolean or array of strings.
func (v *ResponseValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return invalid("response", "empty value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return invalid("response", "bad string: %v", err)
		}
		*v = StringValue(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return invalid("response", "bad bool: %v", err)
		}
		*v = BoolValue(b)
	case '[':
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return invalid("response", "list must contain only strings: %v", err)
		}
		*v = ResponseValue{kind: KindList, list: list}
		if v.list == nil {
			v.list = []string{}
		}
	default:
		return invalid("response", "unsupported value %s (want string, bool or list of strings)", truncate(data, 32))
	}
	return nil
}

// Responses maps a question identifier to its answer.
type Responses map[string]ResponseValue

// Clone returns a deep copy. A nil map clones to nil.
func (r Responses) Clone() Responses {
	if r == nil {
		return nil
	}
	out := make(Responses, len(r))
	for k, v := range r {
		if v.kind == KindList {
			v.list = slices.Clone(v.list)
		}
		out[k] = v
	}
	return out
}

// Equal compares two response maps entry by entry.
func (r Responses) Equal(o Responses) bool {
	if len(r) != len(o) {
		return false
	}
	for k, v := range r {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Validate checks keys and value kinds.
func (r Responses) Validate() error {
	for k, v := range r {
		if k == "" {
			return invalid("responses", "empty question id")
		}
		if v.kind == KindNone {
			return invalid("responses."+k, "value has no kind")
		}
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
