package logging

import "testing"

type recorder struct{ lines []string }

func (r *recorder) Printf(format string, v ...interface{}) { r.lines = append(r.lines, format) }

func TestLevelGating(t *testing.T) {
	l := New()
	rec := &recorder{}
	l.SetSink(rec)
	l.SetLevel(Bus, LevelError)

	l.Debug(Bus, "should not appear")
	if len(rec.lines) != 0 {
		t.Fatalf("expected no output at error level, got %v", rec.lines)
	}
	l.Error(Bus, "arbitration lost")
	if len(rec.lines) != 1 {
		t.Fatalf("expected one line, got %v", rec.lines)
	}
}

func TestSetLevelAll(t *testing.T) {
	l := New()
	rec := &recorder{}
	l.SetSink(rec)
	l.SetLevel(All, LevelDebug)

	l.Debug(Net, "byte received")
	l.Debug(Bus, "byte sent")
	if len(rec.lines) != 2 {
		t.Fatalf("expected both facilities enabled, got %v", rec.lines)
	}
}

func TestParseLevel(t *testing.T) {
	if _, ok := ParseLevel("bogus"); ok {
		t.Fatal("expected unknown level to fail")
	}
	lvl, ok := ParseLevel("debug")
	if !ok || lvl != LevelDebug {
		t.Fatalf("got %v %v", lvl, ok)
	}
}
