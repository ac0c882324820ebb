// Package alerts projects day schedules over a bounded horizon into a capped
// set of concrete alerts and replaces the dispatched set on every reschedule.
package alerts
