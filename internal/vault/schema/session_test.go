package schema

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestResponseValue_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantKind ValueKind
		wantErr  bool
	}{
		{name: "string", input: `"hello"`, wantKind: KindString},
		{name: "true", input: `true`, wantKind: KindBool},
		{name: "false", input: `false`, wantKind: KindBool},
		{name: "list", input: `["a","b"]`, wantKind: KindList},
		{name: "empty list", input: `[]`, wantKind: KindList},
		{name: "number rejected", input: `42`, wantErr: true},
		{name: "object rejected", input: `{"a":1}`, wantErr: true},
		{name: "mixed list rejected", input: `["a",1]`, wantErr: true},
		{name: "null rejected", input: `null`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v ResponseValue
			err := json.Unmarshal([]byte(tt.input), &v)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal(%s) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalid) {
					t.Errorf("error %v is not ErrInvalid", err)
				}
				return
			}
			if v.Kind() != tt.wantKind {
				t.Errorf("Kind() = %v, want %v", v.Kind(), tt.wantKind)
			}
		})
	}
}

func TestResponses_JSONShape(t *testing.T) {
	r := Responses{
		"name":    StringValue("acme"),
		"sso":     BoolValue(true),
		"regions": ListValue("eu", "us"),
	}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}

	var generic map[string]any
	if err := json.Unmarshal(data, &generic); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	want := map[string]any{
		"name":    "acme",
		"sso":     true,
		"regions": []any{"eu", "us"},
	}
	if diff := cmp.Diff(want, generic); diff != "" {
		t.Errorf("wire shape mismatch (-want +got):\n%s", diff)
	}
}

func TestSession_Validate(t *testing.T) {
	tests := []struct {
		name    string
		session *Session
		wantErr bool
	}{
		{name: "minimal", session: &Session{ID: "s1"}},
		{name: "nil", session: nil, wantErr: true},
		{name: "missing id", session: &Session{}, wantErr: true},
		{name: "negative index", session: &Session{ID: "s1", CurrentQuestionIndex: -1}, wantErr: true},
		{name: "empty response key", session: &Session{ID: "s1", Responses: Responses{"": StringValue("x")}}, wantErr: true},
		{name: "kindless response", session: &Session{ID: "s1", Responses: Responses{"q": {}}}, wantErr: true},
		{name: "bad requirements", session: &Session{ID: "s1", Requirements: json.RawMessage(`{`)}, wantErr: true},
		{name: "opaque payloads", session: &Session{
			ID:              "s1",
			Requirements:    json.RawMessage(`{"anything":[1,2,3]}`),
			Recommendations: json.RawMessage(`[{"template":"x"}]`),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.session.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() error %v is not ErrInvalid", err)
			}
		})
	}
}

func TestSession_CloneIsDeep(t *testing.T) {
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	orig := &Session{
		ID:           "s1",
		Responses:    Responses{"regions": ListValue("eu")},
		Requirements: json.RawMessage(`{"a":1}`),
		StartedAt:    &started,
	}

	c := orig.Clone()
	c.Responses["regions"] = ListValue("us")
	c.Requirements[1] = 'X'
	*c.StartedAt = started.Add(time.Hour)

	if got, _ := orig.Responses["regions"].List(); got[0] != "eu" {
		t.Errorf("original responses mutated: %v", got)
	}
	if string(orig.Requirements) != `{"a":1}` {
		t.Errorf("original requirements mutated: %s", orig.Requirements)
	}
	if !orig.StartedAt.Equal(started) {
		t.Errorf("original StartedAt mutated: %v", orig.StartedAt)
	}
}

func TestPatch_ApplyAndMerge(t *testing.T) {
	stage1, stage2 := "intro", "details"
	idx := 3
	done := true

	first := Patch{
		CurrentStage: &stage1,
		Responses:    Responses{"a": StringValue("1"), "b": StringValue("old")},
	}
	second := Patch{
		CurrentStage:         &stage2,
		CurrentQuestionIndex: &idx,
		Responses:            Responses{"b": StringValue("new")},
	}
	third := Patch{IsComplete: &done}

	merged := first.Merge(second).Merge(third)

	s := &Session{ID: "s1", Responses: Responses{"z": BoolValue(false)}}
	merged.Apply(s)

	if s.CurrentStage != "details" {
		t.Errorf("CurrentStage = %q, want details", s.CurrentStage)
	}
	if s.CurrentQuestionIndex != 3 {
		t.Errorf("CurrentQuestionIndex = %d, want 3", s.CurrentQuestionIndex)
	}
	if !s.IsComplete {
		t.Error("IsComplete = false, want true")
	}
	want := Responses{
		"a": StringValue("1"),
		"b": StringValue("new"),
		"z": BoolValue(false),
	}
	if !s.Responses.Equal(want) {
		t.Errorf("Responses = %v, want %v", s.Responses, want)
	}

	// The merge must not alias the first patch's map.
	if v, _ := first.Responses["b"].Str(); v != "old" {
		t.Errorf("first patch mutated by Merge: b = %q", v)
	}
}

func TestPatch_IsEmpty(t *testing.T) {
	if !(Patch{}).IsEmpty() {
		t.Error("zero Patch should be empty")
	}
	if PatchFromSession(&Session{ID: "s1"}).IsEmpty() {
		t.Error("PatchFromSession should never be empty")
	}
}

func TestTransportError(t *testing.T) {
	base := errors.New("connection reset")
	err := NewTransportError("remote", "save session", base)

	if !IsTransport(err) {
		t.Fatal("IsTransport() = false, want true")
	}
	if !errors.Is(err, base) {
		t.Error("TransportError does not unwrap to cause")
	}
	if again := NewTransportError("remote", "other", err); again != err {
		t.Error("NewTransportError re-wrapped an existing TransportError")
	}
	if NewTransportError("local", "x", nil) != nil {
		t.Error("NewTransportError(nil) should be nil")
	}

	verr := &ValidationError{Field: "session_id", Reason: "is required"}
	if IsTransport(NewTransportError("local", "x", verr)) {
		t.Error("validation errors must not become transport errors")
	}
}
