package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "adhanbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.runs.jsonl      (append-only JSON Lines)
//   - <prefix>.snapshot.json   (alerts + prefs image)
//   - <prefix>.journal.jsonl   (append-only mutations since the snapshot)
//
// The journal is compacted into the snapshot on open and every compactEvery writes.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	runsFile *os.File

	snapshotPath string
	journalFile  *os.File
	st           *state

	writes       int
	compactEvery int
}

// journalRecord is one mutation. Exactly one of the payload fields is set per op.
type journalRecord struct {
	Op     string `json:"op"`
	Alert  *Alert `json:"alert,omitempty"`
	ID     string `json:"id,omitempty"`
	Prefix string `json:"prefix,omitempty"`
	Key    string `json:"key,omitempty"`
	Value  string `json:"value,omitempty"`
}

const (
	opPutAlert    = "put_alert"
	opDeleteAlert = "delete_alert"
	opDeletePref  = "delete_prefix"
	opPutPref     = "put_pref"
)

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	runsPath := prefix + ".runs.jsonl"
	snapPath := prefix + ".snapshot.json"
	journalPath := prefix + ".journal.jsonl"

	rf, err := os.OpenFile(runsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	st := newState()
	if err := loadSnapshot(snapPath, st); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("snapshot unreadable, starting from journal", logx.Err(err))
	}
	if err := replayJournal(journalPath, st); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("journal replay incomplete", logx.Err(err))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = rf.Close()
		return nil, err
	}

	fs := &fileStore{
		log:          log,
		runsFile:     rf,
		snapshotPath: snapPath,
		journalFile:  jf,
		st:           st,
		compactEvery: 256,
	}
	fs.mu.Lock()
	if err := fs.compactLocked(); err != nil {
		log.Debug("initial compact failed", logx.Err(err))
	}
	fs.mu.Unlock()
	return fs, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.runsFile != nil {
		err1 = s.runsFile.Close()
		s.runsFile = nil
	}
	if s.journalFile != nil {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("final compact failed", logx.Err(err))
		}
		err2 = s.journalFile.Close()
		s.journalFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) AppendRun(ctx context.Context, r RunRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runsFile == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.runsFile).Encode(r)
}

func (s *fileStore) PutAlert(ctx context.Context, a Alert) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLocked(journalRecord{Op: opPutAlert, Alert: &a}); err != nil {
		return err
	}
	s.st.Alerts[a.ID] = a
	s.maybeCompactLocked()
	return nil
}

func (s *fileStore) DeleteAlert(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.Alerts[id]; !ok {
		return nil
	}
	if err := s.appendLocked(journalRecord{Op: opDeleteAlert, ID: id}); err != nil {
		return err
	}
	delete(s.st.Alerts, id)
	s.maybeCompactLocked()
	return nil
}

func (s *fileStore) DeleteAlertsWithPrefix(ctx context.Context, prefix string) (int, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLocked(journalRecord{Op: opDeletePref, Prefix: prefix}); err != nil {
		return 0, err
	}
	n := s.st.deletePrefix(prefix)
	s.maybeCompactLocked()
	return n, nil
}

func (s *fileStore) ListAlerts(ctx context.Context, prefix string) ([]Alert, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return nil, ErrClosed
	}
	return s.st.list(prefix), nil
}

func (s *fileStore) GetPref(ctx context.Context, key string) (string, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return "", false, ErrClosed
	}
	v, ok := s.st.Prefs[strings.TrimSpace(key)]
	return v, ok, nil
}

func (s *fileStore) PutPref(ctx context.Context, key, value string) error {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLocked(journalRecord{Op: opPutPref, Key: key, Value: value}); err != nil {
		return err
	}
	s.st.Prefs[key] = value
	s.maybeCompactLocked()
	return nil
}

func (s *fileStore) appendLocked(r journalRecord) error {
	if s.journalFile == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.journalFile).Encode(r); err != nil {
		return err
	}
	s.writes++
	return nil
}

// maybeCompactLocked folds the journal into the snapshot every compactEvery
// writes. Call it only after the mutation is applied to s.st.
func (s *fileStore) maybeCompactLocked() {
	if s.compactEvery <= 0 || s.writes%s.compactEvery != 0 {
		return
	}
	if err := s.compactLocked(); err != nil {
		s.log.Debug("compact failed", logx.Err(err))
	}
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.st); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

func loadSnapshot(path string, out *state) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var st state
	if err := json.NewDecoder(f).Decode(&st); err != nil {
		return err
	}
	for k, v := range st.Alerts {
		out.Alerts[k] = v
	}
	for k, v := range st.Prefs {
		out.Prefs[k] = v
	}
	return nil
}

func replayJournal(path string, out *state) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		switch r.Op {
		case opPutAlert:
			if r.Alert != nil && r.Alert.ID != "" {
				out.Alerts[r.Alert.ID] = *r.Alert
			}
		case opDeleteAlert:
			delete(out.Alerts, r.ID)
		case opDeletePref:
			out.deletePrefix(r.Prefix)
		case opPutPref:
			if r.Key != "" {
				out.Prefs[r.Key] = r.Value
			}
		}
	}
	return sc.Err()
}
