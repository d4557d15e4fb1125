package main

import (
	"github.com/multios/introspect/internal/stats"
)

// ServiceConfig is read from the process environment. Every field has a
// usable default so a bare `introspect` serves local development: procd
// collaborators on localhost, a Badger archive on disk and no BigQuery.
type ServiceConfig struct {
	Environment string `env:"SENTRY_ENVIRONMENT" env-default:"development"`
	Port        int    `env:"PORT" env-default:"8080"`

	SentryDSN string `env:"SENTRY_DSN"`

	// CaptureDriver selects where sessions read syscalls from: "procd"
	// proxies the introspection daemon, "probe" consumes the BPF ring
	// buffer directly (Linux only).
	CaptureDriver string `env:"INTROSPECT_CAPTURE_DRIVER" env-default:"procd"`
	// InspectorDriver selects where snapshots enumerate regions from:
	// "procd" or "procfs".
	InspectorDriver string `env:"INTROSPECT_INSPECTOR_DRIVER" env-default:"procd"`

	ProcdHost    string `env:"INTROSPECT_PROCD_HOST" env-default:"http://localhost:7779"`
	ProbePinPath string `env:"INTROSPECT_PROBE_PIN_PATH" env-default:"/sys/fs/bpf/introspect"`

	// Zero keeps the package defaults.
	SessionRingCapacity int `env:"INTROSPECT_SESSION_RING_CAPACITY"`
	HistoryCapacity     int `env:"INTROSPECT_HISTORY_CAPACITY"`

	// SnapshotsBucket switches the snapshot archive to GCS when set;
	// unset, archives land in a local Badger store under BadgerPath.
	SnapshotsBucket string `env:"INTROSPECT_SNAPSHOTS_BUCKET"`
	BadgerPath      string `env:"INTROSPECT_BADGER_PATH" env-default:"/var/lib/introspect/archive"`

	OccurrencesKafkaBrokers []string `env:"INTROSPECT_KAFKA_BROKERS_OCCURRENCES" env-default:"localhost:9092"`
	OccurrencesKafkaTopic   string   `env:"INTROSPECT_KAFKA_OCCURRENCES_TOPIC" env-default:"ingest-occurrences"`

	// Occurrences are additionally inserted into BigQuery in production.
	BigQueryProject string `env:"INTROSPECT_BIGQUERY_PROJECT" env-default:"multios-introspect"`

	// Analysis thresholds, zero keeps the package defaults.
	AnalysisSlowThresholdNS uint64  `env:"INTROSPECT_ANALYSIS_SLOW_THRESHOLD_NS"`
	AnalysisHighErrorRate   float64 `env:"INTROSPECT_ANALYSIS_HIGH_ERROR_RATE"`
	LeakThreshold           uint64  `env:"INTROSPECT_LEAK_THRESHOLD"`
}

func (c ServiceConfig) analysisOptions() stats.Options {
	return stats.Options{
		SlowThresholdNS: c.AnalysisSlowThresholdNS,
		HighErrorRate:   c.AnalysisHighErrorRate,
	}
}
