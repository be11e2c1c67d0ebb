// Package scheduler runs the poll cycle on a cron: one "@every" job per
// device plus an optional full refresh job.
//
// Each device has at most one update in flight. Ticks that arrive while the
// previous update is still running are dropped, not queued.
package scheduler
