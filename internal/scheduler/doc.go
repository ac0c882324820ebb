// Package scheduler triggers recurring (cron/interval) and one-shot jobs.
//
// The daily horizon refresh is a cron registration; every armed alert is a
// one-shot registration named by its alert id.
package scheduler
