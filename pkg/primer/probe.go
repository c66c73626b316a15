package primer

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

type probeYaml struct {
	Type string `yaml:"type" default:"version"`

	Data string `yaml:"data"`

	Retries int `yaml:"retries" default:"3"`

	// In milliseconds
	Backoff          int `yaml:"backoff" default:"500"`
	BackoffIncrement int `yaml:"backoffIncrement" default:"500"`
	MaxBackoff       int `yaml:"maxBackoff" default:"2000"`
}

// ProbeConfig provides configurations for probes being performed, such as the amount of retries or backoff duration
type ProbeConfig struct {
	Retries int // How many times this probe should be retried until it is considered to have failed

	Backoff time.Duration // How long to wait between each probe retry

	BackoffIncrement time.Duration // By how much to increment the backoff on each failed attempt
	MaxBackoff       time.Duration // The maximum duration the backoff may reach after incrementing. When the backoff has reached this value, it won't increase any further
}

// A ProbeType determines how an installed checker is probed.
type ProbeType int

const (
	// Probe consists of running the checker with --version. Probe data is ignored
	VersionProbe ProbeType = iota
	// Probe consists of running the probe data as a shell script, with the checker's path in the CHECKER environment variable
	ScriptProbe
)

// A Probe checks whether an installed checker is able to run at all.
// A checker failing its probe cannot produce a meaningful result.
type Probe struct {
	Type ProbeType // The type of probe to be performed

	Data   string      // Additional data for a given probe type. Functionality depends on probe type
	Config ProbeConfig // The config for this probe
}

// DefaultProbe is the probe used when a corpus does not configure one.
var DefaultProbe = Probe{
	Type: VersionProbe,
	Config: ProbeConfig{
		Retries:          3,
		Backoff:          500 * time.Millisecond,
		BackoffIncrement: 500 * time.Millisecond,
		MaxBackoff:       2 * time.Second,
	},
}

// perform performs the probe against the passed checker, retrying with backoff.
// If the probe is unsuccessful, the returned boolean is false and the error may not be nil.
// If the returned boolean is true, the returned error is nil
func (p Probe) perform(ctx context.Context, runner ProcessRunner, checker string, log *logrus.Entry) (bool, error) {
	var lastSuccess bool
	var lastError error

	backoffDuration := p.Config.Backoff
	retries := max(p.Config.Retries, 1)
	for i := 0; i < retries; i++ {
		lastSuccess, lastError = p.performSingle(ctx, runner, checker)
		if lastSuccess {
			return true, nil
		}
		log.Debugf("Probe %d/%d of %s failed - %v", i+1, retries, checker, lastError)

		// Manage backoff
		if i != retries-1 {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(backoffDuration):
			}
			backoffDuration += p.Config.BackoffIncrement
			if backoffDuration > p.Config.MaxBackoff {
				backoffDuration = p.Config.MaxBackoff
			}
		}
	}

	return lastSuccess, lastError
}

// performSingle performs a single try of the probe against the passed checker.
// If the probe is unsuccessful, the returned boolean is false and the error may not be nil.
// If the returned boolean is true, the returned error is nil
func (p Probe) performSingle(ctx context.Context, runner ProcessRunner, checker string) (bool, error) {
	var cmd Command
	switch p.Type {
	case VersionProbe:
		cmd = Command{Args: []string{checker, "--version"}}
	case ScriptProbe:
		cmd = Command{
			Args: []string{"sh", "-c", p.Data},
			Env:  []string{fmt.Sprintf("CHECKER=%s", checker)},
		}
	default:
		return false, fmt.Errorf("unknown probe type %d", p.Type)
	}

	if _, err := RunChecked(ctx, runner, cmd); err != nil {
		return false, err
	}
	return true, nil
}
