package primer

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestPerformSingleProbe(t *testing.T) {
	runner := NewExecRunner(nil)
	ctx := context.Background()

	t.Run("Test script probe", func(t *testing.T) {
		t.Run("Failing script fails", func(t *testing.T) {
			probe := Probe{
				Type: ScriptProbe,
				Data: "exit 1",
			}

			ok, err := probe.performSingle(ctx, runner, "checker")

			assert.False(t, ok, "Failing script resulted in successful probe")
			assert.NotNil(t, err, "Failing script did not return an error")
		})
		t.Run("Succeeding script succeeds", func(t *testing.T) {
			probe := Probe{
				Type: ScriptProbe,
				Data: "exit 0",
			}

			ok, err := probe.performSingle(ctx, runner, "checker")

			assert.True(t, ok, "Succeeding script resulted in failed probe")
			assert.Nil(t, err, "Succeeding script resulted in an error being returned")
		})
		t.Run("Checker environment variable gets substituted correctly", func(t *testing.T) {
			probe := Probe{
				Type: ScriptProbe,
				Data: `if [ "$CHECKER" = "/venv/bin/mypy" ]; then exit 0; fi; exit 1`,
			}

			ok, _ := probe.performSingle(ctx, runner, "/venv/bin/mypy")

			assert.True(t, ok, "Checker was not passed to the probe script")
		})
	})
	t.Run("Test version probe", func(t *testing.T) {
		t.Run("Missing checker fails", func(t *testing.T) {
			probe := Probe{Type: VersionProbe}

			ok, err := probe.performSingle(ctx, runner, "/nonexistent/checker")

			assert.False(t, ok, "Missing checker resulted in successful probe")
			assert.NotNil(t, err)
		})
	})
}

func TestPerformProbe(t *testing.T) {
	runner := NewExecRunner(nil)
	log := logrus.NewEntry(logrus.New())

	t.Run("Retries until exhausted", func(t *testing.T) {
		probe := Probe{
			Type: ScriptProbe,
			Data: "exit 1",
			Config: ProbeConfig{
				Retries:          3,
				Backoff:          time.Millisecond,
				BackoffIncrement: time.Millisecond,
				MaxBackoff:       2 * time.Millisecond,
			},
		}

		ok, err := probe.perform(context.Background(), runner, "checker", log)
		assert.False(t, ok)
		assert.NotNil(t, err)
	})

	t.Run("Cancelled context stops retrying", func(t *testing.T) {
		probe := Probe{
			Type:   ScriptProbe,
			Data:   "exit 1",
			Config: ProbeConfig{Retries: 100, Backoff: time.Hour, MaxBackoff: time.Hour},
		}
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		ok, err := probe.perform(ctx, runner, "checker", log)
		assert.False(t, ok)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
