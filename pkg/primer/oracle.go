package primer

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// A Classification is the oracle's judgement of one project's result.
type Classification int

const (
	// Old and new output are identical
	Equivalent Classification = iota
	// The old checker succeeded, the new one did not
	Regressed
	// The new checker succeeded, the old one did not
	Improved
	// Both succeeded, or both failed, but with different output
	Changed
	// The output contains the searched pattern
	Matched
	// The output does not contain the searched pattern
	Unmatched
)

func (c Classification) String() string {
	switch c {
	case Equivalent:
		return "equivalent"
	case Regressed:
		return "regressed"
	case Improved:
		return "improved"
	case Changed:
		return "changed"
	case Matched:
		return "matched"
	case Unmatched:
		return "unmatched"
	}
	return fmt.Sprintf("Classification(%d)", int(c))
}

// IsBad reports whether the classification flips an aggregate verdict to bad.
func (c Classification) IsBad() bool {
	return c != Equivalent && c != Unmatched
}

// A Verdict is the aggregate judgement over a whole corpus for one revision.
type Verdict int

const (
	Good Verdict = iota
	Bad
	// No verdict could be reached, e.g. since the checker could not be installed
	Inconclusive
)

func (v Verdict) String() string {
	switch v {
	case Good:
		return "good"
	case Bad:
		return "bad"
	case Inconclusive:
		return "inconclusive"
	}
	return fmt.Sprintf("Verdict(%d)", int(v))
}

func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

var ansiEscape = regexp.MustCompile("\x1b.*?m")

// StripANSI removes all terminal styling from the passed text.
func StripANSI(s string) string {
	return ansiEscape.ReplaceAllString(s, "")
}

// A Comparison is the result of comparing the old and new result of one project.
type Comparison struct {
	Classification Classification
	Diff           string // Lines only present in the old output prefixed with "- ", lines only present in the new output prefixed with "+ "
}

// Compare classifies the new result of a project against its old one.
// Results are equivalent iff their outputs are identical after removing styling.
// Otherwise, the direction is derived from which side succeeded.
func Compare(old, new CheckResult) Comparison {
	oldOutput, newOutput := StripANSI(old.Output), StripANSI(new.Output)
	if oldOutput == newOutput {
		return Comparison{Classification: Equivalent}
	}

	c := Changed
	if old.Success && !new.Success {
		c = Regressed
	} else if !old.Success && new.Success {
		c = Improved
	}

	return Comparison{
		Classification: c,
		Diff:           lineDiff(oldOutput, newOutput),
	}
}

// lineDiff lists the lines unique to either side, keeping their order of appearance
func lineDiff(old, new string) string {
	oldLines, newLines := splitLines(old), splitLines(new)
	inOld := make(map[string]bool, len(oldLines))
	for _, l := range oldLines {
		inOld[l] = true
	}
	inNew := make(map[string]bool, len(newLines))
	for _, l := range newLines {
		inNew[l] = true
	}

	var b strings.Builder
	for _, l := range oldLines {
		if !inNew[l] {
			fmt.Fprintf(&b, "- %s\n", l)
		}
	}
	for _, l := range newLines {
		if !inOld[l] {
			fmt.Fprintf(&b, "+ %s\n", l)
		}
	}
	return b.String()
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// MatchPattern classifies a result by whether its output contains the pattern.
func MatchPattern(pattern *regexp.Regexp, r CheckResult) Classification {
	if pattern.MatchString(StripANSI(r.Output)) {
		return Matched
	}
	return Unmatched
}

// FirstSuccess runs check with every candidate checker in order and returns the first one succeeding.
// If none succeeds, the returned candidate is empty.
func FirstSuccess(ctx context.Context, candidates []string, check func(ctx context.Context, checker string) (CheckResult, error)) (string, error) {
	for _, candidate := range candidates {
		res, err := check(ctx, candidate)
		if err != nil {
			return "", err
		}
		if res.Success {
			return candidate, nil
		}
	}
	return "", nil
}

// A VerdictPolicy reduces the results of a whole corpus to one verdict.
// Any single bad project makes the whole verdict bad.
type VerdictPolicy interface {
	Classify(name string, r CheckResult) Classification
	Verdict(results map[string]CheckResult) Verdict
}

// A BaselinePolicy judges results as good iff they are equivalent to a recorded baseline.
type BaselinePolicy struct {
	Baseline map[string]CheckResult
}

func (p BaselinePolicy) Classify(name string, r CheckResult) Classification {
	baseline, ok := p.Baseline[name]
	if !ok {
		return Changed
	}
	return Compare(baseline, r).Classification
}

func (p BaselinePolicy) Verdict(results map[string]CheckResult) Verdict {
	if len(results) != len(p.Baseline) {
		return Bad
	}
	return aggregate(p, results)
}

// A PatternPolicy judges results as good iff no output contains the pattern.
type PatternPolicy struct {
	Pattern *regexp.Regexp
}

func (p PatternPolicy) Classify(_ string, r CheckResult) Classification {
	return MatchPattern(p.Pattern, r)
}

func (p PatternPolicy) Verdict(results map[string]CheckResult) Verdict {
	return aggregate(p, results)
}

func aggregate(p VerdictPolicy, results map[string]CheckResult) Verdict {
	for name, r := range results {
		if p.Classify(name, r).IsBad() {
			return Bad
		}
	}
	return Good
}
