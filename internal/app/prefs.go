package app

import (
	"context"
	"strconv"

	"adhanbot/internal/engine"
	"adhanbot/internal/prayer"
	"adhanbot/internal/storage"
	logx "adhanbot/pkg/logx"
)

const prefNotifyPrefix = "notify."

// PrefStore is the preference half of storage.Store.
type PrefStore interface {
	GetPref(ctx context.Context, key string) (string, bool, error)
	PutPref(ctx context.Context, key, value string) error
}

var _ PrefStore = storage.Store(nil)

// prefs persists per-kind notification toggles made at runtime. A stored
// toggle wins over the config file until the file changes that kind.
type prefs struct {
	store PrefStore
	log   logx.Logger
}

func notifyKey(k prayer.Kind) string { return prefNotifyPrefix + k.String() }

// overlay applies stored toggles to a configured setup.
func (p *prefs) overlay(ctx context.Context, setup prayer.Setup) prayer.Setup {
	cfg, ok := setup.(prayer.Configured)
	if !ok || p.store == nil {
		return setup
	}
	for _, k := range prayer.Obligatory() {
		v, found, err := p.store.GetPref(ctx, notifyKey(k))
		if err != nil {
			p.log.Warn("pref read failed", logx.String("kind", k.String()), logx.Err(err))
			continue
		}
		if !found || v == "" {
			continue
		}
		on, err := strconv.ParseBool(v)
		if err != nil {
			continue
		}
		cfg.Settings.Notify[k] = on
	}
	return cfg
}

// reconcile forgets stored toggles for kinds whose config value changed
// between prev and next, so the edited file takes effect.
func (p *prefs) reconcile(ctx context.Context, prev, next prayer.Setup) {
	if p.store == nil {
		return
	}
	a, ok1 := prev.(prayer.Configured)
	b, ok2 := next.(prayer.Configured)
	if !ok1 || !ok2 {
		return
	}
	for _, k := range prayer.Obligatory() {
		if a.Settings.Notify[k] == b.Settings.Notify[k] {
			continue
		}
		if err := p.store.PutPref(ctx, notifyKey(k), ""); err != nil {
			p.log.Warn("pref reset failed", logx.String("kind", k.String()), logx.Err(err))
		}
	}
}

// toggler is the engine as seen by the API: toggles are persisted after
// the engine accepted them.
type toggler struct {
	*engine.Service
	prefs *prefs
}

func (t toggler) Toggle(ctx context.Context, k prayer.Kind, on bool) error {
	if err := t.Service.Toggle(ctx, k, on); err != nil {
		return err
	}
	if t.prefs.store == nil {
		return nil
	}
	if err := t.prefs.store.PutPref(ctx, notifyKey(k), strconv.FormatBool(on)); err != nil {
		t.prefs.log.Warn("pref write failed", logx.String("kind", k.String()), logx.Err(err))
	}
	return nil
}
