package primer

import (
	"context"
	"fmt"
	"io"
	"math"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// A FaultPolicy decides what happens to the remaining projects of a batch once one of them failed.
type FaultPolicy int

const (
	// Every project runs to completion and yields an outcome, failed ones carrying their error
	IsolateFaults FaultPolicy = iota
	// The first failure is delivered and all other projects are cancelled. No further outcomes are delivered
	FailFast
)

func (p FaultPolicy) String() string {
	switch p {
	case IsolateFaults:
		return "isolate"
	case FailFast:
		return "fail-fast"
	}
	return fmt.Sprintf("FaultPolicy(%d)", int(p))
}

// A Scheduler describes how the projects of a batch are run concurrently.
type Scheduler struct {
	MaxConcurrent uint        // The max amount of projects that can run concurrently, or 0 if no limit
	Policy        FaultPolicy // What to do once a project failed

	Log *logrus.Logger // The log to which information gets printed to
}

// A Task is run once for every project of a batch.
type Task[T any] func(ctx context.Context, p Project) (T, error)

// An Outcome is the result of running a task for one project.
type Outcome[T any] struct {
	Project Project
	Value   T     // The task's value. Only meaningful if Err is nil
	Err     error // The fault that occurred while running the task, if any

	Elapsed time.Duration // How long the task took
}

// Stream runs the task for every project concurrently and delivers outcomes in the order of completion.
// Tasks are launched in the order of the passed projects.
//
// Under [IsolateFaults], exactly one outcome is delivered per project.
// Under [FailFast], delivery stops after the first failed outcome and the context of all other tasks is cancelled.
// The channel is closed once all tasks have returned. It is buffered to hold every outcome, so a consumer may stop reading at any point.
func Stream[T any](ctx context.Context, s Scheduler, projects []Project, task Task[T]) <-chan Outcome[T] {
	log := s.logger()
	out := make(chan Outcome[T], len(projects))

	limit := int64(s.MaxConcurrent)
	if limit == 0 {
		limit = math.MaxInt64
	}
	sem := semaphore.NewWeighted(limit)

	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	halted := false
	emit := func(o Outcome[T]) {
		mu.Lock()
		defer mu.Unlock()
		if halted {
			return
		}
		out <- o
		if o.Err != nil && s.Policy == FailFast {
			halted = true
		}
	}

	for _, p := range projects {
		g.Go(func() error {
			// Acquire the semaphore with a weight of 1
			if err := sem.Acquire(gctx, 1); err != nil {
				emit(Outcome[T]{Project: p, Err: err})
				return nil
			}
			defer sem.Release(1)

			plog := log.WithField("project", p.Name)
			plog.Debug("Starting task")

			start := time.Now()
			v, err := runTask(gctx, p, task)
			elapsed := time.Since(start)

			if err != nil {
				plog.Debugf("Task failed after %.2fs - %v", elapsed.Seconds(), err)
			} else {
				plog.Debugf("Task done after %.2fs", elapsed.Seconds())
			}

			emit(Outcome[T]{Project: p, Value: v, Err: err, Elapsed: elapsed})

			if err != nil && s.Policy == FailFast {
				// Returning the error cancels gctx for all siblings
				return err
			}
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(out)
	}()

	return out
}

// runTask runs the task, turning a panic into an error wrapping [ErrTaskPanicked]
func runTask[T any](ctx context.Context, p Project, task Task[T]) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrTaskPanicked, r, debug.Stack())
		}
	}()
	return task(ctx, p)
}

// Collect runs the task for every project concurrently and waits for all of them.
// The returned outcomes are keyed by project name.
//
// Under [FailFast], the first fault is returned as a [ProjectError] and the returned map is nil.
// Under [IsolateFaults], the returned error is always nil and faults are held by the outcomes.
func Collect[T any](ctx context.Context, s Scheduler, projects []Project, task Task[T]) (map[string]Outcome[T], error) {
	names := make(map[string]bool, len(projects))
	for _, p := range projects {
		if names[p.Name] {
			return nil, fmt.Errorf("duplicate project name %s in batch", p.Name)
		}
		names[p.Name] = true
	}

	outcomes := make(map[string]Outcome[T], len(projects))
	var fault *ProjectError
	// Keep draining after a fault, the stream only closes once the cancelled siblings have returned
	for o := range Stream(ctx, s, projects, task) {
		if o.Err != nil && s.Policy == FailFast {
			fault = &ProjectError{Project: o.Project.Name, Err: o.Err}
			continue
		}
		outcomes[o.Project.Name] = o
	}
	if fault != nil {
		return nil, fault
	}
	return outcomes, nil
}

func (s Scheduler) logger() *logrus.Logger {
	if s.Log != nil {
		return s.Log
	}
	// Mute logger
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
