// Package storage persists the bot's side records: the moderator audit log
// and the notifier's dedup windows (so repeated failure alerts stay quiet
// across restarts).
//
// Schedules themselves live in package schedule.
package storage
