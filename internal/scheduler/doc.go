// Package scheduler is the runner that turns due schedules into sends.
//
// A robfig/cron trigger calls Tick every Config.Tick. Tick asks the store
// what is due, appends unseen keys to a FIFO queue, then drains at most
// MaxSendsPerTick entries through the dispatcher and records each outcome
// on the store. Entries that were paused, removed or rescheduled while
// waiting are dropped from the queue without a send.
package scheduler
