package config

import (
	"reflect"
	"sort"
	"strings"

	logx "adhanbot/pkg/logx"
)

// Config sections as reported by SummarizeConfigChange.
const (
	SectionLocation    = "location"
	SectionCalculation = "calculation"
	SectionSolver      = "solver"
	SectionTelegram    = "telegram"
	SectionLogging     = "logging"
	SectionStorage     = "storage"
	SectionNotifier    = "notifier"
	SectionScheduler   = "scheduler"
	SectionAPI         = "api"
)

// SummarizeConfigChange returns the sorted list of changed sections and
// fields that are safe to log. Tokens and coordinates are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Location, newCfg.Location) {
		changed = append(changed, SectionLocation)
		attrs = append(attrs,
			logx.String("location.name", strings.TrimSpace(newCfg.Location.Name)),
			logx.String("location.timezone", strings.TrimSpace(newCfg.Location.Timezone)),
			logx.Bool("location.set", newCfg.Location.Latitude != nil && newCfg.Location.Longitude != nil),
		)
	}
	if !reflect.DeepEqual(oldCfg.Calculation, newCfg.Calculation) {
		changed = append(changed, SectionCalculation)
		attrs = append(attrs,
			logx.String("calculation.method", newCfg.Calculation.Method),
			logx.String("calculation.madhab", newCfg.Calculation.Madhab),
			logx.Int("calculation.hijri_adjustment", newCfg.Calculation.HijriAdjustment),
		)
	}
	if oldCfg.Solver != newCfg.Solver {
		changed = append(changed, SectionSolver)
		attrs = append(attrs,
			logx.String("solver.driver", newCfg.Solver.Driver),
			logx.Bool("solver.url_set", strings.TrimSpace(newCfg.Solver.URL) != ""),
		)
	}
	if oldCfg.Telegram != newCfg.Telegram {
		changed = append(changed, SectionTelegram)
		attrs = append(attrs,
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
			logx.Bool("telegram.token_changed", strings.TrimSpace(oldCfg.Telegram.Token) != strings.TrimSpace(newCfg.Telegram.Token)),
			logx.Int64("telegram.chat_id", newCfg.Telegram.ChatID),
		)
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, SectionLogging)
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, SectionStorage)
		driver := ""
		if newCfg.Storage != nil {
			driver = newCfg.Storage.Driver
		}
		attrs = append(attrs, logx.String("storage.driver", driver))
	}
	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		changed = append(changed, SectionNotifier)
		if n := newCfg.Notifier; n != nil {
			attrs = append(attrs,
				logx.Int("notifier.workers", n.Workers),
				logx.Int("notifier.rate_per_sec", n.RatePerSec),
				logx.Int("notifier.retry_max", n.RetryMax),
			)
		}
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, SectionScheduler)
		attrs = append(attrs,
			logx.String("scheduler.refresh", newCfg.Scheduler.Refresh),
			logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
		)
	}
	if oldCfg.API != newCfg.API {
		changed = append(changed, SectionAPI)
		attrs = append(attrs,
			logx.Bool("api.enabled", newCfg.API.Enabled),
			logx.String("api.addr", newCfg.API.Addr),
			logx.Bool("api.token_set", strings.TrimSpace(newCfg.API.Token) != ""),
			logx.Bool("api.pprof", newCfg.API.Pprof),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// Changed reports whether section is in the list returned by SummarizeConfigChange.
func Changed(sections []string, section string) bool {
	i := sort.SearchStrings(sections, section)
	return i < len(sections) && sections[i] == section
}
