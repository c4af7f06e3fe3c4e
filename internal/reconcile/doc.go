// Package reconcile keeps the exposed state of one device consistent with
// what the device actually reports.
//
// A requested change is exposed at once and written in the background. After
// the device acknowledges the write and a settle delay has passed, the engine
// reads the device again: a match confirms the change, a mismatch is retried
// until the attempt budget is spent, after which the device value wins. A
// failed write reverts to the last confirmed value immediately.
//
// Writes are sent one at a time in request order.
//
// Routine polls feed the same Reconcile path, so a poll that arrives while a
// change is still settling never counts against it.
package reconcile
