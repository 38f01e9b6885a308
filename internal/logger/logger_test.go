package logger

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestNew_ParsesLevel(t *testing.T) {
	l := New("prod", "warn")
	if l.GetLevel() != zerolog.WarnLevel {
		t.Fatalf("expected warn level, got %s", l.GetLevel())
	}
}

func TestNew_FallsBackToInfo(t *testing.T) {
	for _, lvl := range []string{"", "loud"} {
		l := New("dev", lvl)
		if l.GetLevel() != zerolog.InfoLevel {
			t.Fatalf("level %q: expected info, got %s", lvl, l.GetLevel())
		}
	}
}
