package chat

import (
	"fmt"
	"testing"
)

func msg(user, text string, ts int64) Message {
	return Message{Username: user, Text: text, Timestamp: ts}
}

// ---------------------------------------------------------------------------
// Log.Merge
// ---------------------------------------------------------------------------

func TestLogMerge_DuplicateIsIgnored(t *testing.T) {
	var l Log
	m := msg("a", "hi", 1000)
	if !l.Merge(m) {
		t.Fatal("first merge should append")
	}
	if l.Merge(m) {
		t.Error("second merge of the same message should be a no-op")
	}
	if l.Len() != 1 {
		t.Errorf("want len=1, got %d", l.Len())
	}
}

func TestLogMerge_IdentityIsTheFullTriple(t *testing.T) {
	var l Log
	l.Merge(msg("a", "hi", 1000))

	distinct := []Message{
		msg("b", "hi", 1000),
		msg("a", "hi!", 1000),
		msg("a", "hi", 1001),
	}
	for _, m := range distinct {
		if !l.Merge(m) {
			t.Errorf("%+v differs in one field and must be appended", m)
		}
	}
	if l.Len() != 4 {
		t.Errorf("want len=4, got %d", l.Len())
	}
}

func TestLogMerge_AvatarDoesNotAffectIdentity(t *testing.T) {
	var l Log
	l.Merge(msg("a", "hi", 1000))
	echo := msg("a", "hi", 1000)
	echo.AvatarRef = "https://img.example/a.png"
	if l.Merge(echo) {
		t.Error("broadcast copy with avatar should dedup against the echo")
	}
}

func TestLogMerge_PreservesArrivalOrder(t *testing.T) {
	var l Log
	// Timestamps deliberately out of order.
	in := []Message{
		msg("a", "third", 3000),
		msg("b", "first", 1000),
		msg("c", "second", 2000),
		msg("a", "zero", 0),
	}
	for _, m := range in {
		l.Merge(m)
	}
	got := l.View()
	if len(got) != len(in) {
		t.Fatalf("want %d entries, got %d", len(in), len(got))
	}
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("entry %d: want %+v, got %+v", i, in[i], got[i])
		}
	}
}

func TestLogView_StableAcrossLaterMerges(t *testing.T) {
	var l Log
	for i := range 3 {
		l.Merge(msg("a", fmt.Sprint(i), int64(i)))
	}
	view := l.View()
	for i := 3; i < 20; i++ {
		l.Merge(msg("a", fmt.Sprint(i), int64(i)))
	}
	if len(view) != 3 {
		t.Fatalf("old view should keep len=3, got %d", len(view))
	}
	for i, m := range view {
		if m.Text != fmt.Sprint(i) {
			t.Errorf("view[%d] changed to %q", i, m.Text)
		}
	}
	// Appending to a view must not leak into the log.
	_ = append(view, msg("x", "leak", 99))
	if got := l.View()[3].Text; got != "3" {
		t.Errorf("append to view corrupted log: got %q", got)
	}
}

func TestLogReset(t *testing.T) {
	var l Log
	l.Merge(msg("a", "hi", 1))
	l.Reset()
	if l.Len() != 0 {
		t.Errorf("want empty log after reset, got %d", l.Len())
	}
	if !l.Merge(msg("a", "hi", 1)) {
		t.Error("identity index should be cleared by reset")
	}
}

// ---------------------------------------------------------------------------
// Functional Merge
// ---------------------------------------------------------------------------

func TestMerge_Idempotent(t *testing.T) {
	base := []Message{msg("x", "y", 1), msg("z", "w", 2)}
	cases := []Message{
		msg("a", "hi", 1000),
		msg("x", "y", 1), // already present
		msg("", "", 0),
	}
	for _, m := range cases {
		once := Merge(base, m)
		twice := Merge(once, m)
		if len(once) != len(twice) {
			t.Errorf("merge(merge(log, %+v)) len=%d, want %d", m, len(twice), len(once))
			continue
		}
		for i := range once {
			if once[i] != twice[i] {
				t.Errorf("entry %d differs after second merge", i)
			}
		}
	}
}

func TestMerge_DoesNotModifyInput(t *testing.T) {
	base := make([]Message, 1, 8)
	base[0] = msg("a", "1", 1)
	out := Merge(base, msg("b", "2", 2))
	if len(base) != 1 {
		t.Errorf("input slice length changed to %d", len(base))
	}
	if len(out) != 2 || out[1].Username != "b" {
		t.Errorf("unexpected merge result %+v", out)
	}
	if base[:2][1].Username == "b" {
		t.Error("merge wrote into the caller's spare capacity")
	}
}

// ---------------------------------------------------------------------------
// Roster
// ---------------------------------------------------------------------------

func TestRosterReplace_DiscardsPrevious(t *testing.T) {
	var r Roster
	r.Replace([]User{{Username: "a"}, {Username: "b"}})
	old := r.View()

	next := []User{{Username: "c", AvatarRef: "https://img/c"}}
	r.Replace(next)

	got := r.View()
	if len(got) != 1 || got[0] != next[0] {
		t.Errorf("want roster %+v, got %+v", next, got)
	}
	if len(old) != 2 {
		t.Errorf("earlier view should be untouched, got %+v", old)
	}
	next[0].Username = "mutated"
	if r.View()[0].Username != "c" {
		t.Error("roster must copy its input")
	}
}

func TestInitial(t *testing.T) {
	cases := map[string]string{
		"alice": "A",
		"élodie": "É",
		"":       "?",
	}
	for name, want := range cases {
		if got := (User{Username: name}).Initial(); got != want {
			t.Errorf("Initial(%q) = %q, want %q", name, got, want)
		}
	}
}
