// Package dispatch turns a schedule into one channel message.
//
// Send never returns an error and never panics: every failure (unresolvable
// channel, empty payload, platform error, panic) comes back as a Result with
// OK=false and a short human-readable Error that the runner records on the
// schedule.
package dispatch
