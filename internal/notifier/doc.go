// Package notifier delivers short staff alerts (for example a schedule that
// keeps failing to post) to a Discord channel.
//
// Notify only enqueues. Worker goroutines drain the queue under a token
// bucket, retry with jittered exponential backoff and record a small
// history. Identical alerts inside DedupWindow are suppressed; with
// PersistDedup the windows survive restarts through package storage.
package notifier
