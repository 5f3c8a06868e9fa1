package conflict

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mschirtzinger/sessionvault/internal/vault/schema"
)

var valueComparer = cmp.Comparer(func(a, b schema.ResponseValue) bool { return a.Equal(b) })

func at(ms int64) time.Time { return schema.FromMillis(ms) }

func sessionAt(id string, ms int64) *schema.Session {
	return &schema.Session{ID: id, LastUpdatedAt: at(ms)}
}

func TestResolveConflict(t *testing.T) {
	tests := []struct {
		name         string
		local        int64
		remote       int64
		wantWinner   Winner
		wantConflict bool
	}{
		{"remote newer", 10, 20, WinnerRemote, true},
		{"local newer", 20, 10, WinnerLocal, true},
		{"equal keeps local", 15, 15, WinnerLocal, false},
		{"both zero", 0, 0, WinnerLocal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, r := sessionAt("l", tt.local), sessionAt("r", tt.remote)
			got := ResolveConflict(l, r)
			if got.Winner != tt.wantWinner {
				t.Errorf("Winner = %s, want %s", got.Winner, tt.wantWinner)
			}
			if got.HadConflict != tt.wantConflict {
				t.Errorf("HadConflict = %v, want %v", got.HadConflict, tt.wantConflict)
			}
			want := l
			if tt.wantWinner == WinnerRemote {
				want = r
			}
			if got.Resolved != want {
				t.Errorf("Resolved = %s, want %s", got.Resolved.ID, want.ID)
			}
		})
	}
}

// Winner is local iff local >= remote; a conflict is reported iff they differ.
func TestResolveConflict_Property(t *testing.T) {
	stamps := []int64{0, 1, 10, 20, 1_700_000_000_000, 1_700_000_000_001}
	for _, a := range stamps {
		for _, b := range stamps {
			got := ResolveConflict(sessionAt("a", a), sessionAt("b", b))
			wantLocal := a >= b
			if (got.Winner == WinnerLocal) != wantLocal {
				t.Errorf("ResolveConflict(%d, %d).Winner = %s", a, b, got.Winner)
			}
			if got.HadConflict != (a != b) {
				t.Errorf("ResolveConflict(%d, %d).HadConflict = %v", a, b, got.HadConflict)
			}
		}
	}
}

func TestResolveConflict_Absent(t *testing.T) {
	r := sessionAt("r", 5)
	if got := ResolveConflict(nil, r); got.Winner != WinnerRemote || !got.HadConflict {
		t.Errorf("ResolveConflict(nil, r) = %+v, want remote with conflict", got)
	}
	l := sessionAt("l", 5)
	if got := ResolveConflict(l, nil); got.Winner != WinnerLocal || got.Resolved != l {
		t.Errorf("ResolveConflict(l, nil) = %+v, want local", got)
	}
}

func TestMergeResponses(t *testing.T) {
	local := schema.Responses{
		"shared": schema.StringValue("local"),
		"only_l": schema.BoolValue(true),
	}
	remote := schema.Responses{
		"shared": schema.StringValue("remote"),
		"only_r": schema.ListValue("a", "b"),
	}

	tests := []struct {
		name       string
		localTs    int64
		remoteTs   int64
		wantShared string
	}{
		{"local newer", 20, 10, "local"},
		{"remote newer", 10, 20, "remote"},
		{"tie goes to local", 10, 10, "local"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeResponses(local, remote, at(tt.localTs), at(tt.remoteTs))
			want := schema.Responses{
				"shared": schema.StringValue(tt.wantShared),
				"only_l": schema.BoolValue(true),
				"only_r": schema.ListValue("a", "b"),
			}
			if diff := cmp.Diff(want, got, valueComparer); diff != "" {
				t.Errorf("MergeResponses() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if s, _ := local["shared"].Str(); s != "local" {
		t.Errorf("input map was modified: shared = %q", s)
	}
}

func TestMergeResponses_Idempotent(t *testing.T) {
	m := schema.Responses{
		"q1": schema.StringValue("x"),
		"q2": schema.ListValue("a"),
		"q3": schema.BoolValue(false),
	}
	ts := at(42)
	got := MergeResponses(m, m, ts, ts)
	if diff := cmp.Diff(m, got, valueComparer); diff != "" {
		t.Errorf("MergeResponses(m, m, t, t) mismatch (-want +got):\n%s", diff)
	}

	if got := MergeResponses(nil, nil, ts, ts); len(got) != 0 {
		t.Errorf("MergeResponses(nil, nil) = %v, want empty", got)
	}
}

func TestShouldOverwriteLocal(t *testing.T) {
	for _, r := range []*schema.Session{sessionAt("r", 0), sessionAt("r", 99)} {
		if !ShouldOverwriteLocal(nil, r) {
			t.Errorf("ShouldOverwriteLocal(nil, %v) = false, want true", r.LastUpdatedAt)
		}
	}
	if !ShouldOverwriteLocal(sessionAt("l", 1), sessionAt("r", 2)) {
		t.Error("ShouldOverwriteLocal(older local) = false, want true")
	}
	if ShouldOverwriteLocal(sessionAt("l", 2), sessionAt("r", 2)) {
		t.Error("ShouldOverwriteLocal(equal) = true, want false")
	}
	if ShouldOverwriteLocal(sessionAt("l", 3), sessionAt("r", 2)) {
		t.Error("ShouldOverwriteLocal(newer local) = true, want false")
	}
}

func TestShouldPushToRemote(t *testing.T) {
	for _, l := range []*schema.Session{sessionAt("l", 0), sessionAt("l", 99)} {
		if !ShouldPushToRemote(l, nil) {
			t.Errorf("ShouldPushToRemote(%v, nil) = false, want true", l.LastUpdatedAt)
		}
	}
	if !ShouldPushToRemote(sessionAt("l", 3), sessionAt("r", 2)) {
		t.Error("ShouldPushToRemote(newer local) = false, want true")
	}
	if ShouldPushToRemote(sessionAt("l", 2), sessionAt("r", 2)) {
		t.Error("ShouldPushToRemote(equal) = true, want false")
	}
}

func TestReconcile(t *testing.T) {
	local := &schema.Session{
		ID:            "s",
		CurrentStage:  "local-stage",
		LastUpdatedAt: at(10),
		Responses:     schema.Responses{"a": schema.StringValue("old"), "l": schema.BoolValue(true)},
	}
	remote := &schema.Session{
		ID:            "s",
		CurrentStage:  "remote-stage",
		LastUpdatedAt: at(20),
		Responses:     schema.Responses{"a": schema.StringValue("new")},
	}

	got, res := Reconcile(local, remote)
	if res.Winner != WinnerRemote || !res.HadConflict {
		t.Fatalf("Reconcile() resolution = %+v, want remote with conflict", res)
	}
	if got == remote {
		t.Fatal("Reconcile() returned the input pointer, want a clone")
	}
	if got.CurrentStage != "remote-stage" {
		t.Errorf("CurrentStage = %q, want remote-stage", got.CurrentStage)
	}
	want := schema.Responses{"a": schema.StringValue("new"), "l": schema.BoolValue(true)}
	if diff := cmp.Diff(want, got.Responses, valueComparer); diff != "" {
		t.Errorf("Responses mismatch (-want +got):\n%s", diff)
	}

	if got, _ := Reconcile(nil, nil); got != nil {
		t.Errorf("Reconcile(nil, nil) = %+v, want nil", got)
	}
}
