package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "adhanbot/pkg/logx"
)

func openDrivers(t *testing.T) map[string]func() Store {
	t.Helper()
	dir := t.TempDir()
	open := func(cfg Config) func() Store {
		return func() Store {
			st, err := Open(cfg, logx.Nop())
			if err != nil {
				t.Fatalf("open %s: %v", cfg.Driver, err)
			}
			return st
		}
	}
	return map[string]func() Store{
		"memory": open(Config{Driver: "memory"}),
		"file":   open(Config{Driver: "file", Path: filepath.Join(dir, "adhanbot.db")}),
		"sqlite": open(Config{Driver: "sqlite", Path: filepath.Join(dir, "adhanbot.sqlite"), BusyTimeout: time.Second}),
	}
}

func TestStoreAlerts(t *testing.T) {
	t.Parallel()

	for name, open := range openDrivers(t) {
		name, open := name, open
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open()
			defer st.Close()

			base := time.Date(2026, 2, 18, 2, 0, 0, 0, time.UTC)
			for i, id := range []string{"adhanbot_isha_3", "adhanbot_fajr_1", "other_fajr_1", "adhanbot_dhuhr_2"} {
				a := Alert{ID: id, At: base.Add(time.Duration(i) * time.Hour), Category: "prayer", Kind: "fajr", CreatedAt: base}
				if err := st.PutAlert(ctx, a); err != nil {
					t.Fatalf("PutAlert: %v", err)
				}
			}
			got, err := st.ListAlerts(ctx, "adhanbot_")
			if err != nil {
				t.Fatalf("ListAlerts: %v", err)
			}
			if len(got) != 3 || got[0].ID != "adhanbot_isha_3" || got[2].ID != "adhanbot_dhuhr_2" {
				t.Fatalf("unexpected list order: %+v", got)
			}
			if !got[0].At.Equal(base) {
				t.Fatalf("fire time lost: %s", got[0].At)
			}

			if err := st.DeleteAlert(ctx, "adhanbot_fajr_1"); err != nil {
				t.Fatalf("DeleteAlert: %v", err)
			}
			n, err := st.DeleteAlertsWithPrefix(ctx, "adhanbot_")
			if err != nil || n != 2 {
				t.Fatalf("DeleteAlertsWithPrefix = %d, %v", n, err)
			}
			rest, _ := st.ListAlerts(ctx, "")
			if len(rest) != 1 || rest[0].ID != "other_fajr_1" {
				t.Fatalf("foreign alerts must survive: %+v", rest)
			}
		})
	}
}

func TestStorePrefsAndRuns(t *testing.T) {
	t.Parallel()

	for name, open := range openDrivers(t) {
		name, open := name, open
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open()
			defer st.Close()

			if _, ok, err := st.GetPref(ctx, "notify.asr"); ok || err != nil {
				t.Fatalf("missing pref: ok=%v err=%v", ok, err)
			}
			if err := st.PutPref(ctx, "notify.asr", "false"); err != nil {
				t.Fatalf("PutPref: %v", err)
			}
			if err := st.PutPref(ctx, "notify.asr", "true"); err != nil {
				t.Fatalf("PutPref overwrite: %v", err)
			}
			if v, ok, _ := st.GetPref(ctx, "notify.asr"); !ok || v != "true" {
				t.Fatalf("GetPref = %q %v", v, ok)
			}
			if err := st.AppendRun(ctx, RunRecord{RunID: "r1", Planned: 3, Dispatched: 2, Failed: 1, Error: "x"}); err != nil {
				t.Fatalf("AppendRun: %v", err)
			}
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := Config{Driver: "file", Path: filepath.Join(t.TempDir(), "state", "adhanbot.json")}
	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	fs := st.(*fileStore)
	fs.compactEvery = 3

	at := time.Date(2026, 2, 18, 2, 0, 0, 0, time.UTC)
	for _, id := range []string{"adhanbot_fajr_1", "adhanbot_asr_2", "adhanbot_isha_3", "adhanbot_maghrib_4"} {
		if err := st.PutAlert(ctx, Alert{ID: id, At: at}); err != nil {
			t.Fatal(err)
		}
	}
	_ = st.DeleteAlert(ctx, "adhanbot_asr_2")
	_ = st.PutPref(ctx, "notify.isha", "false")

	// Skip Close so the journal tail is replayed on reopen.
	fs.mu.Lock()
	_ = fs.journalFile.Sync()
	fs.mu.Unlock()

	st2, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()
	got, _ := st2.ListAlerts(ctx, "adhanbot_")
	if len(got) != 3 {
		t.Fatalf("expected 3 alerts after reopen, got %+v", got)
	}
	if v, ok, _ := st2.GetPref(ctx, "notify.isha"); !ok || v != "false" {
		t.Fatalf("pref lost: %q %v", v, ok)
	}
	_ = st.Close()
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	t.Parallel()

	if st, err := Open(Config{Driver: "none"}, logx.Nop()); st != nil || err != nil {
		t.Fatalf("none driver: %v %v", st, err)
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatalf("file driver without path must fail")
	}
}

func TestFileStoreCompactionKeepsTriggeringWrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := Config{Driver: "file", Path: filepath.Join(t.TempDir(), "adhanbot.json")}
	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	fs := st.(*fileStore)
	fs.compactEvery = 2

	at := time.Date(2026, 2, 18, 2, 0, 0, 0, time.UTC)
	if err := st.PutAlert(ctx, Alert{ID: "adhanbot_fajr_1", At: at}); err != nil {
		t.Fatal(err)
	}
	// Second write triggers compaction; the cancel must land in the snapshot.
	if n, err := st.DeleteAlertsWithPrefix(ctx, "adhanbot_"); err != nil || n != 1 {
		t.Fatalf("DeleteAlertsWithPrefix = %d, %v", n, err)
	}
	if err := st.PutPref(ctx, "notify.asr", "false"); err != nil {
		t.Fatal(err)
	}
	// Fourth write compacts again right after the pref.
	if err := st.PutPref(ctx, "notify.isha", "true"); err != nil {
		t.Fatal(err)
	}

	fs.mu.Lock()
	_ = fs.journalFile.Sync()
	fs.mu.Unlock()

	st2, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()
	if got, _ := st2.ListAlerts(ctx, "adhanbot_"); len(got) != 0 {
		t.Fatalf("cancelled alerts came back after reopen: %+v", got)
	}
	for key, want := range map[string]string{"notify.asr": "false", "notify.isha": "true"} {
		if v, ok, _ := st2.GetPref(ctx, key); !ok || v != want {
			t.Fatalf("pref %s = %q %v, want %q", key, v, ok, want)
		}
	}
	_ = st.Close()
}
