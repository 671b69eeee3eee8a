// Package log is a small wrapper around the standard library logger used by
// every TimeTrip component.
//
// Each component asks for a named logger once and keeps it:
//
//	l := log.ForService("query")
//	l.Infof("dispatching %s", q)
//	l.Debugf("discarding stale response token=%d", tok)
//
// Lines look like:
//
//	2025/01/02 15:04:05.000000 INFO [query] dispatching [-5000000000, 2025)
//
// Debug lines are hidden unless SetGlobalDebug(true) was called (the CLI
// --debug flag) or EnableDebugFor was called with the component name. Benign
// races such as an unknown cluster id or an event that is no longer on the
// chart are reported only at debug level.
//
// Tests redirect output with SetOutput(&bytes.Buffer{}).
package log
