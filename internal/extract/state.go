package extract

import (
	"github.com/shinji-kodama/tarball-extract/internal/classify"
	"github.com/shinji-kodama/tarball-extract/internal/model"
)

// State is a controller state.
type State int

const (
	StateAttempt State = iota
	StateClassify
	StateRecover
	StateSuccess
	StateFail
)

// String returns the state name for log output.
func (s State) String() string {
	switch s {
	case StateAttempt:
		return "ATTEMPT"
	case StateClassify:
		return "CLASSIFY"
	case StateRecover:
		return "RECOVER"
	case StateSuccess:
		return "SUCCESS"
	case StateFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether the state ends the run.
func (s State) IsTerminal() bool {
	return s == StateSuccess || s == StateFail
}

// AfterAttempt decides what follows attempt number n (1-based) out of
// maxAttempts. A failure on the last permitted attempt goes straight to
// FAIL without classification.
func AfterAttempt(result *model.AttemptResult, n, maxAttempts int) State {
	if result.Succeeded() {
		return StateSuccess
	}
	if n >= maxAttempts {
		return StateFail
	}
	return StateClassify
}

// AfterClassify decides what follows classification.
func AfterClassify(outcome classify.Outcome) State {
	if outcome.Recoverable() {
		return StateRecover
	}
	return StateFail
}

// AfterRecover decides what follows conflict removal.
func AfterRecover(err error) State {
	if err != nil {
		return StateFail
	}
	return StateAttempt
}
