// Package extract implements the retry controller that drives extraction
// attempts to completion.
//
// The controller is a small state machine:
//
//	ATTEMPT  → SUCCESS | CLASSIFY | FAIL
//	CLASSIFY → RECOVER | FAIL
//	RECOVER  → ATTEMPT | FAIL
//
// SUCCESS and FAIL are terminal. Each ATTEMPT consumes one unit of the
// attempt budget. Transition decisions are pure functions, so the loop can
// be exercised with a fake Runner and no subprocesses.
package extract
