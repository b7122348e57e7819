// Package audit records security-relevant events: role grants and
// revocations, denied mutations, and exclusive binding changes.
//
// Recording is best-effort: an audit sink outage must never block a
// permission or binding decision, so Recorder.Record returns nothing and
// implementations log their own failures.
//
//	recorder := audit.NewMultiRecorder(
//		audit.NewLogRecorder(logger),
//		audit.NewDBRecorder(db, logger),
//	)
package audit
