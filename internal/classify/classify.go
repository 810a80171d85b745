package classify

import (
	"regexp"

	"github.com/shinji-kodama/tarball-extract/internal/model"
)

// Kind tags the classification of a failed attempt.
type Kind int

const (
	// KindUnmatched means the diagnostics contain something other than
	// recognized conflicts. The failure is not retried.
	KindUnmatched Kind = iota

	// KindConflict means every meaningful diagnostic line reported a
	// path-exists conflict. The paths can be removed and the attempt retried.
	KindConflict
)

// String returns a short name for log output.
func (k Kind) String() string {
	switch k {
	case KindConflict:
		return "conflict"
	default:
		return "unmatched"
	}
}

// Outcome is the classifier's verdict on one attempt's diagnostics.
type Outcome struct {
	Kind Kind

	// Paths holds the conflicting paths, relative to the target directory,
	// in the order tar reported them. Duplicates within one batch are
	// dropped. Empty unless Kind is KindConflict.
	Paths []string

	// Unmatched holds the first diagnostic line that was not recognized,
	// for debug logging.
	Unmatched string
}

// Recoverable reports whether the attempt can be retried after removing
// Paths.
func (o Outcome) Recoverable() bool {
	return o.Kind == KindConflict && len(o.Paths) > 0
}

var (
	// conflictLine matches "<tool>: <path>: Cannot open: File exists".
	// The tool name is a single token; the path is everything up to the
	// fixed suffix, so paths containing ": " are kept whole.
	conflictLine = regexp.MustCompile(`^[^:\s]+: (.+): Cannot open: File exists$`)

	// trailerLine is the summary GNU tar prints after any error.
	trailerLine = regexp.MustCompile(`^[^:\s]+: Exiting with failure status due to previous errors$`)
)

// Classify inspects the diagnostics of a failed attempt whose tar ran in
// targetDir.
//
// The outcome is KindConflict only when at least one conflict line is
// present and every other non-blank line is tar's failure trailer. Any
// other content, or a conflict path that cannot be removed safely under
// targetDir, yields KindUnmatched.
func Classify(result *model.AttemptResult, targetDir string) Outcome {
	var paths []string
	seen := make(map[string]bool)

	for _, line := range result.Lines() {
		if line == "" || trailerLine.MatchString(line) {
			continue
		}
		m := conflictLine.FindStringSubmatch(line)
		if m == nil {
			return Outcome{Kind: KindUnmatched, Unmatched: line}
		}
		p := model.ConflictPath(m[1], targetDir)
		if p == "" {
			return Outcome{Kind: KindUnmatched, Unmatched: line}
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		paths = append(paths, p)
	}

	if len(paths) == 0 {
		return Outcome{Kind: KindUnmatched}
	}
	return Outcome{Kind: KindConflict, Paths: paths}
}
