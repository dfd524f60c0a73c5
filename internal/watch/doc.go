// Package watch layers fsnotify events on top of the polling monitor.
//
// The watcher follows the directories of the latest baseline snapshot. It
// never reads or writes agent state: structural events only send a coalesced
// nudge that wakes the monitor early, and events touching a tracked decoy are
// forwarded to a tamper callback.
package watch
