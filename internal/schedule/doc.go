// Package schedule holds recurring message definitions per guild and decides
// when each one is due.
//
// The Store is the single source of truth. It persists a whole snapshot
// (file, sqlite or mysql backend) after every mutation and normalizes
// malformed records on load instead of failing. Due-time math lives in
// due.go: a schedule runs when it is active, not paused and its next run is
// not after now; after a run the next time advances by the interval at most
// CatchUpCap times before snapping to now+every.
package schedule
