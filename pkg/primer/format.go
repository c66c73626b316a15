package primer

import (
	"fmt"
	"strings"
)

func (r PrimerResult) header() string {
	return fmt.Sprintf("%s (%s, old %.2fs, new %.2fs)", r.Project.Location, r.Comparison.Classification, r.Old.Runtime.Seconds(), r.New.Runtime.Seconds())
}

// FormatFull renders both results of the project followed by their difference.
func (r PrimerResult) FormatFull() string {
	var b strings.Builder
	fmt.Fprintln(&b, r.header())
	fmt.Fprintln(&b, "----------")
	fmt.Fprintf(&b, "\nold\n%s\n", r.Old)
	fmt.Fprintf(&b, "\nnew\n%s\n", r.New)
	if r.HasDiff() {
		fmt.Fprintf(&b, "\ndiff\n%s", r.Comparison.Diff)
	}
	return b.String()
}

// FormatDiff renders the difference of the project's results.
func (r PrimerResult) FormatDiff() string {
	if !r.HasDiff() {
		return r.header()
	}
	return fmt.Sprintf("%s\n%s", r.header(), r.Comparison.Diff)
}

// FormatConcise renders only the difference of the project's results. It is empty if there is none.
func (r PrimerResult) FormatConcise() string {
	if !r.HasDiff() {
		return ""
	}
	return fmt.Sprintf("%s\n%s", r.Project.Location, strings.TrimRight(r.Comparison.Diff, "\n"))
}
