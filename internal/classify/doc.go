// Package classify turns the diagnostic text of a failed tar run into an
// Outcome: either a set of "path exists as the wrong type" conflicts that
// can be removed and retried, or an unmatched failure that must be
// surfaced to the caller untouched.
//
// The wording tar uses for these diagnostics is the one fragile contract
// in the tool. All knowledge of it lives in this package, behind Classify.
package classify
