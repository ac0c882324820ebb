package logx

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestZeroLoggerIsNoop(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.Info("dropped", String("k", "v"))
}

func TestWithAppendsFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := NewWriter(&buf, "debug").With(String("comp", "engine"))
	l.Debug("recomputed", Int("entries", 7))

	out := buf.String()
	for _, want := range []string{`"comp":"engine"`, `"entries":7`, `"message":"recomputed"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %s", out, want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := NewWriter(&buf, "warn")
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}
	if l.Enabled(LevelDebug) {
		t.Fatal("debug must not be enabled at warn level")
	}
}

func TestFormatChatLineSortsFields(t *testing.T) {
	t.Parallel()
	got := formatChatLine([]byte(`{"level":"warn","message":"dispatch failed","zeta":1,"alpha":"x","time":"t"}`))
	want := "[WARN] dispatch failed\n- alpha=x\n- zeta=1"
	if got != want {
		t.Fatalf("formatChatLine = %q, want %q", got, want)
	}
}

func TestFormatChatLinePromotesComponent(t *testing.T) {
	t.Parallel()
	got := formatChatLine([]byte(`{"level":"error","comp":"notifier","caller":"service.go:12","message":"send failed","err":"timeout"}`))
	want := "[ERROR] notifier: send failed\n- err=timeout"
	if got != want {
		t.Fatalf("formatChatLine = %q, want %q", got, want)
	}
}

type recordSink struct{ ch chan string }

func (r recordSink) SendLog(_ context.Context, text string) error {
	r.ch <- text
	return nil
}

func TestServiceMirrorsWarningsToChat(t *testing.T) {
	t.Parallel()
	sink := recordSink{ch: make(chan string, 4)}
	svc, log := New(Config{Level: "debug", File: FileConfig{Enabled: true, Path: filepath.Join(t.TempDir(), "a.log")},
		Chat: ChatConfig{Enabled: true, MinLevel: "warn", RatePerSec: 10}}, sink)
	defer svc.Close()

	log.With(String("comp", "engine")).Info("quiet")
	log.With(String("comp", "engine")).Warn("solver returned none", String("date", "2026-02-18"))

	select {
	case got := <-sink.ch:
		if !strings.HasPrefix(got, "[WARN] engine: solver returned none") || !strings.Contains(got, "- date=2026-02-18") {
			t.Fatalf("unexpected chat text %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("warning was not mirrored")
	}
	select {
	case got := <-sink.ch:
		t.Fatalf("info must not be mirrored: %q", got)
	default:
	}
}
