package telegram

import (
	"strings"
	"testing"
	"unicode/utf8"

	logx "adhanbot/pkg/logx"
)

func TestSplitTextShortIsUntouched(t *testing.T) {
	t.Parallel()
	got := splitText("Fajr at 05:12", 100, "")
	if len(got) != 1 || got[0] != "Fajr at 05:12" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	line := strings.Repeat("a", 30)
	text := strings.Join([]string{line, line, line, line}, "\n")

	got := splitText(text, 70, "")
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %q", len(got), got)
	}
	for _, c := range got {
		if strings.HasPrefix(c, "\n") || strings.HasSuffix(c, "\n") {
			t.Fatalf("chunk keeps boundary newline: %q", c)
		}
		if utf8.RuneCountInString(c) > 70 {
			t.Fatalf("chunk too long: %d", utf8.RuneCountInString(c))
		}
	}
	if strings.Join(got, "\n") != text {
		t.Fatalf("content lost")
	}
}

func TestSplitTextKeepsHTMLTagsWhole(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("x", 18) + "<b>Isha</b>" + strings.Repeat("y", 20)

	got := splitText(text, 20, "HTML")
	if got[0] != strings.Repeat("x", 18) {
		t.Fatalf("first chunk cut inside a tag: %q", got[0])
	}
	if strings.Join(got, "") != text {
		t.Fatalf("content lost: %q", got)
	}
}

func TestSplitTextCountsRunes(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("ص", 25)
	got := splitText(text, 10, "")
	if len(got) != 3 || utf8.RuneCountInString(got[2]) != 5 {
		t.Fatalf("unexpected chunks: %q", got)
	}
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Token: "  "}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty token")
	}
}
