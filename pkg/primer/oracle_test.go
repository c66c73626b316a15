package primer

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompare(t *testing.T) {
	values := []struct {
		old, new CheckResult

		expected Classification
	}{
		{CheckResult{Success: true, Output: "Success: no issues found"}, CheckResult{Success: true, Output: "Success: no issues found"}, Equivalent},
		{CheckResult{Success: true, Output: "Success"}, CheckResult{Success: false, Output: "error: x"}, Regressed},
		{CheckResult{Success: false, Output: "error: x"}, CheckResult{Success: true, Output: "Success"}, Improved},
		{CheckResult{Success: false, Output: "error: x"}, CheckResult{Success: false, Output: "error: y"}, Changed},
		{CheckResult{Success: true, Output: "\x1b[1mSuccess\x1b[0m"}, CheckResult{Success: true, Output: "Success"}, Equivalent},
		{CheckResult{Success: true, Output: "a"}, CheckResult{Success: false, Output: "a"}, Equivalent},
	}

	for i, v := range values {
		c := Compare(v.old, v.new)
		assert.Equalf(t, v.expected, c.Classification, "Compare returned wrong classification for test %d; old: %q, new: %q", i, v.old.Output, v.new.Output)
		if v.expected == Equivalent {
			assert.Emptyf(t, c.Diff, "Diff reported for equivalent results in test %d", i)
		} else {
			assert.NotEmptyf(t, c.Diff, "No diff reported for test %d", i)
		}
	}

	t.Run("Comparison is idempotent", func(t *testing.T) {
		old := CheckResult{Success: true, Output: "Success"}
		new := CheckResult{Success: false, Output: "error: x"}
		assert.Equal(t, Compare(old, new), Compare(old, new))
	})
}

func TestLineDiff(t *testing.T) {
	diff := lineDiff("a.py:1: error: x\nshared\n", "shared\na.py:2: error: y\n")
	assert.Equal(t, "- a.py:1: error: x\n+ a.py:2: error: y\n", diff)

	assert.Equal(t, "", lineDiff("same\n", "same"))
	assert.Equal(t, "+ new\n", lineDiff("", "new"))
}

func TestStripANSI(t *testing.T) {
	assert.Equal(t, "error: x", StripANSI("\x1b[31merror\x1b[0m: x"))
	assert.Equal(t, "plain", StripANSI("plain"))
}

func TestVerdictPolicy(t *testing.T) {
	good := CheckResult{Success: true, Output: "Success"}
	bad := CheckResult{Success: false, Output: "error: x"}

	t.Run("Baseline policy", func(t *testing.T) {
		policy := BaselinePolicy{Baseline: map[string]CheckResult{"a": good, "b": good}}

		assert.Equal(t, Good, policy.Verdict(map[string]CheckResult{"a": good, "b": good}))
		assert.Equal(t, Bad, policy.Verdict(map[string]CheckResult{"a": good, "b": bad}))
		assert.Equal(t, Bad, policy.Verdict(map[string]CheckResult{"a": good}), "missing project did not result in a bad verdict")
		assert.Equal(t, Bad, policy.Verdict(map[string]CheckResult{"a": good, "c": good}), "unknown project did not result in a bad verdict")

		assert.Equal(t, Regressed, policy.Classify("b", bad))
		assert.Equal(t, Changed, policy.Classify("c", good))
	})

	t.Run("Pattern policy", func(t *testing.T) {
		policy := PatternPolicy{Pattern: regexp.MustCompile(`error: \w`)}

		assert.Equal(t, Good, policy.Verdict(map[string]CheckResult{"a": good, "b": good}))
		assert.Equal(t, Bad, policy.Verdict(map[string]CheckResult{"a": good, "b": bad}))
		assert.Equal(t, Good, policy.Verdict(map[string]CheckResult{}))
		assert.Equal(t, Matched, policy.Classify("", CheckResult{Output: "\x1b[31merror\x1b[0m: x"}))
	})

	t.Run("Verdict does not depend on order", func(t *testing.T) {
		policy := PatternPolicy{Pattern: regexp.MustCompile("error")}
		results := map[string]CheckResult{"a": good, "b": good, "c": good, "d": bad, "e": good}
		for range 20 {
			assert.Equal(t, Bad, policy.Verdict(results))
		}
	})
}

func TestFirstSuccess(t *testing.T) {
	ctx := context.Background()
	succeedsWith := func(exe string) func(context.Context, string) (CheckResult, error) {
		return func(_ context.Context, checker string) (CheckResult, error) {
			return CheckResult{Success: checker == exe}, nil
		}
	}

	found, err := FirstSuccess(ctx, []string{"v1", "v2", "v3"}, succeedsWith("v2"))
	assert.Nil(t, err)
	assert.Equal(t, "v2", found)

	found, err = FirstSuccess(ctx, []string{"v1", "v2"}, succeedsWith("v9"))
	assert.Nil(t, err)
	assert.Empty(t, found)

	called := 0
	_, err = FirstSuccess(ctx, []string{"v1", "v2"}, func(context.Context, string) (CheckResult, error) {
		called++
		return CheckResult{}, errors.New("broken")
	})
	assert.NotNil(t, err)
	assert.Equal(t, 1, called, "candidates were tried after an error")
}
