package primer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/sirupsen/logrus"
)

// A Phase is the lifecycle stage of a bisection.
type Phase int

const (
	Initialized Phase = iota
	Stepping
	Done
	Aborted
)

func (p Phase) String() string {
	switch p {
	case Initialized:
		return "initialized"
	case Stepping:
		return "stepping"
	case Done:
		return "done"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// A Step is one completed bisection step.
type Step struct {
	Revision string  `json:"revision"`
	Offset   int     `json:"offset"` // The offset of the revision to the good boundary
	Verdict  Verdict `json:"verdict"`

	BadProjects []string      `json:"badProjects,omitempty"` // Names of the projects classified as bad
	Elapsed     time.Duration `json:"elapsed"`

	Err error `json:"-"` // Why the step was inconclusive
}

// A BisectionState is the search state of a bisection over an ordered list of revisions.
// The first bad revision always lies in (Good, Bad]. Every good or bad verdict strictly shrinks this interval.
type BisectionState struct {
	Revisions []string // The searched revisions, where Revisions[0] is the good boundary and Revisions[N-1] is the bad boundary

	Good int // The offset of the newest good revision
	Bad  int // The offset of the oldest bad revision

	Candidate int // The offset of the revision under test, or -1 if none is

	Skipped map[int]bool // Offsets of revisions for which no verdict could be reached

	History []Step
	Phase   Phase
}

// NewBisectionState creates the state of a bisection over the passed revisions.
// The first revision has to be known to be good, the last one is treated as bad.
func NewBisectionState(revisions []string) (*BisectionState, error) {
	if len(revisions) < 2 {
		return nil, fmt.Errorf("need at least a good and a bad revision to bisect, got %d revisions", len(revisions))
	}
	return &BisectionState{
		Revisions: revisions,
		Good:      0,
		Bad:       len(revisions) - 1,
		Candidate: -1,
		Skipped:   make(map[int]bool),
		Phase:     Initialized,
	}, nil
}

// Next selects the next revision to test and returns its offset.
// If the search space has collapsed, the state transitions to [Done] and false is returned.
//
// The midpoint of the interval is preferred. If it was skipped, the closest revision that was not skipped is chosen instead.
func (s *BisectionState) Next() (int, bool) {
	if s.Phase == Done || s.Phase == Aborted {
		return -1, false
	}

	mid := (s.Good + s.Bad) / 2
	for i := 0; mid+i < s.Bad || mid-i > s.Good; i++ {
		// Since mid rounds down, look above the middle first
		if above := mid + i; above < s.Bad && above > s.Good && !s.Skipped[above] {
			s.Candidate = above
			s.Phase = Stepping
			return above, true
		}
		if below := mid - i; below > s.Good && below < s.Bad && !s.Skipped[below] {
			s.Candidate = below
			s.Phase = Stepping
			return below, true
		}
	}

	s.Candidate = -1
	s.Phase = Done
	return -1, false
}

// Record records the verdict of the current candidate and advances the corresponding boundary.
// An inconclusive verdict marks the candidate as skipped.
func (s *BisectionState) Record(step Step) error {
	if s.Candidate < 0 || s.Phase != Stepping {
		return errors.New("no candidate under test")
	}
	if step.Offset != s.Candidate {
		return fmt.Errorf("verdict for offset %d recorded, but candidate is %d", step.Offset, s.Candidate)
	}

	switch step.Verdict {
	case Good:
		s.Good = s.Candidate
	case Bad:
		s.Bad = s.Candidate
	case Inconclusive:
		s.Skipped[s.Candidate] = true
	}
	s.History = append(s.History, step)
	s.Candidate = -1
	return nil
}

// Abort ends the bisection without a result.
func (s *BisectionState) Abort() {
	s.Candidate = -1
	s.Phase = Aborted
}

// Remaining returns how many revisions may still be the first bad one.
func (s *BisectionState) Remaining() int {
	remaining := 0
	for i := s.Good + 1; i <= s.Bad; i++ {
		if !s.Skipped[i] {
			remaining++
		}
	}
	return remaining
}

// ExpectedSteps estimates the amount of steps left, assuming no step is inconclusive.
func (s *BisectionState) ExpectedSteps() int {
	return int(math.Ceil(math.Log2(float64(s.Bad - s.Good))))
}

// Located returns the offset of the first bad revision once the bisection is done.
// The returned slice holds the offsets of skipped revisions that could be the first bad one as well.
func (s *BisectionState) Located() (int, []int) {
	var possible []int
	for i := s.Good + 1; i < s.Bad; i++ {
		if s.Skipped[i] {
			possible = append(possible, i)
		}
	}
	return s.Bad, possible
}

// An InconclusivePolicy decides how a bisection proceeds after a step was inconclusive.
type InconclusivePolicy int

const (
	// The bisection is aborted with [ErrInconclusive]
	AbortOnInconclusive InconclusivePolicy = iota
	// The revision is skipped and reported as a possible first bad revision if the search cannot exclude it
	SkipInconclusive
)

// An OffendingRevision represents a finished bisection.
type OffendingRevision struct {
	Revision string    `json:"revision"` // The revision which introduced the issue. I.e. the oldest bad revision
	Offset   int       `json:"offset"`   // The offset of the revision to the good boundary
	Message  string    `json:"message"`
	Author   string    `json:"author"`
	Date     time.Time `json:"date"`

	PossibleOtherRevisions []string `json:"possibleOtherRevisions,omitempty"` // Set if inconclusive steps cause uncertainty in the exact offending revision

	Report string `json:"report"` // The report in the format of git bisect
	Steps  []Step `json:"steps"`
}

// A Bisector locates the revision that changed the output of the corpus.
//
// By default the checker's history is searched. If a typeshed revision is configured, typeshed's history is searched with a fixed checker instead.
// Bisection steps run strictly one after another, since they share one checkout. The projects of a single step are checked concurrently.
type Bisector struct {
	Config   *Config
	Projects []Project

	Workspace *Workspace
	Installer *Installer
	Probe     Probe

	Log     *logrus.Logger
	Metrics *Metrics // Optional
	Tracker *Tracker // Optional
}

// bisectionAxis is the history being searched, together with the checker invocation used at every step
type bisectionAxis struct {
	name     string
	repo     *git.Repository
	good     plumbing.Hash
	selector string // The selector of the bad boundary
	checker  *Checker
	inv      Invocation

	rebuild bool // Whether the checker has to be rebuilt after every checkout
}

func (b *Bisector) log() *logrus.Logger {
	if b.Log == nil {
		// Mute logger
		b.Log = logrus.New()
		b.Log.SetOutput(io.Discard)
	}
	return b.Log
}

func (b *Bisector) policy(baseline map[string]CheckResult) (VerdictPolicy, error) {
	pattern, err := b.Config.bisectRegexp()
	if err != nil {
		return nil, err
	}
	if pattern != nil {
		return PatternPolicy{Pattern: pattern}, nil
	}
	return BaselinePolicy{Baseline: baseline}, nil
}

// setupAxis installs the checker and opens the repository whose history gets searched
func (b *Bisector) setupAxis(ctx context.Context) (*bisectionAxis, error) {
	cfg := b.Config
	checkerDir := filepath.Join(cfg.BaseDir, "bisect_checker")

	if cfg.NewTypeshed == "" && cfg.OldTypeshed == "" {
		checker, err := b.Installer.Setup(ctx, checkerDir, cfg.OldChecker, true)
		if err != nil {
			return nil, err
		}
		if checker.RepoDir == "" {
			return nil, fmt.Errorf("checker for bisection was not installed from source")
		}
		repo, err := git.PlainOpen(checker.RepoDir)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to open checker repository at %s", checker.RepoDir), err)
		}
		head, err := repo.Head()
		if err != nil {
			return nil, err
		}
		return &bisectionAxis{
			name:     "checker",
			repo:     repo,
			good:     head.Hash(),
			selector: cfg.NewSelector(),
			checker:  checker,
			inv:      Invocation{Checker: checker.Exe, CheckerPath: cfg.OldCheckerPath},
			rebuild:  true,
		}, nil
	}

	if cfg.NewChecker != "" || cfg.OldTypeshed == "" {
		return nil, ErrTypeshedBisect
	}
	checker, err := b.Installer.Setup(ctx, checkerDir, cfg.OldChecker, false)
	if err != nil {
		return nil, err
	}
	typeshedDir, err := EnsureRepoAtRevision(ctx, cfg.TypeshedRepo, filepath.Join(cfg.BaseDir, "bisect_typeshed"), cfg.OldTypeshed)
	if err != nil {
		return nil, &SetupFailedError{Subject: "typeshed", Err: err}
	}
	repo, err := git.PlainOpen(typeshedDir)
	if err != nil {
		return nil, err
	}
	head, err := repo.Head()
	if err != nil {
		return nil, err
	}
	return &bisectionAxis{
		name:     "typeshed",
		repo:     repo,
		good:     head.Hash(),
		selector: cfg.NewTypeshed,
		checker:  checker,
		inv:      Invocation{Checker: checker.Exe, TypeshedDir: typeshedDir, CheckerPath: cfg.OldCheckerPath},
	}, nil
}

// Run performs the bisection and returns the located revision.
//
// The results of the good boundary are recorded first and have to be judged good, otherwise [ErrBaselineNotGood] is returned.
// If a step is inconclusive and the configured policy is [AbortOnInconclusive], an error wrapping [ErrInconclusive] is returned.
func (b *Bisector) Run(ctx context.Context) (*OffendingRevision, error) {
	log := b.log()
	cfg := b.Config

	sched := cfg.Scheduler()
	sched.Policy = FailFast
	sched.Log = log

	axis, err := b.setupAxis(ctx)
	if err != nil {
		return nil, err
	}
	log.Infof("Bisecting %s history, good revision %s", axis.name, axis.good)

	log.Info("Setting up projects...")
	prepared, err := b.Workspace.SetupAll(ctx, sched, b.Projects)
	if err != nil {
		return nil, err
	}

	log.Info("Checking good revision...")
	baseline, err := b.Workspace.CheckAll(ctx, sched, prepared, b.Projects, axis.inv)
	if err != nil {
		return nil, err
	}
	if cfg.Debug {
		b.debugResults(baseline)
	}

	policy, err := b.policy(baseline)
	if err != nil {
		return nil, err
	}
	if policy.Verdict(baseline) != Good {
		return nil, errors.Join(ErrBaselineNotGood, fmt.Errorf("bad projects: %s", strings.Join(badProjects(policy, baseline), ", ")))
	}

	selector := axis.selector
	if selector == "" {
		selector = DefaultHead
	}
	bad, err := ResolveRevision(axis.repo, selector)
	if err != nil {
		return nil, err
	}
	revisions, err := RevisionsBetween(axis.repo, axis.good, bad)
	if err != nil {
		return nil, err
	}

	state, err := NewBisectionState(revisions)
	if err != nil {
		return nil, err
	}
	b.Tracker.setBisection(state)
	b.Metrics.observeStep(Good, state.Remaining())
	log.Infof("Bisecting %d revisions, roughly %d steps", len(revisions)-1, state.ExpectedSteps())

	for {
		offset, ok := state.Next()
		if !ok {
			break
		}
		b.Tracker.setBisection(state)

		step, err := b.step(ctx, axis, prepared, policy, state.Revisions[offset], offset)
		if err != nil {
			state.Abort()
			b.Tracker.setBisection(state)
			return nil, err
		}

		if step.Verdict == Inconclusive && cfg.InconclusivePolicy() == AbortOnInconclusive {
			state.Abort()
			b.Tracker.setBisection(state)
			return nil, errors.Join(fmt.Errorf("%w at revision %s", ErrInconclusive, step.Revision), step.Err)
		}

		if err := state.Record(step); err != nil {
			return nil, err
		}
		b.Tracker.setBisection(state)
		b.Metrics.observeStep(step.Verdict, state.Remaining())

		log.Infof("Revision %s is %s. Expected amount of steps left: ~%d", step.Revision, step.Verdict, state.ExpectedSteps())
	}

	b.Tracker.setBisection(state)

	located, possible := state.Located()
	info, err := DescribeRevision(axis.repo, plumbing.NewHash(state.Revisions[located]))
	if err != nil {
		return nil, err
	}

	oc := &OffendingRevision{
		Revision: info.Hash,
		Offset:   located,
		Message:  info.Message,
		Author:   info.Author,
		Date:     info.Date,

		Report: info.FirstBadReport(),
		Steps:  state.History,
	}
	for _, i := range possible {
		oc.PossibleOtherRevisions = append(oc.PossibleOtherRevisions, state.Revisions[i])
	}
	b.Tracker.setLocated(oc)

	log.Infof("Found offending revision %s with offset %d. Message: %q, Date: %q, Author: %q", oc.Revision, oc.Offset, oc.Message, oc.Date, oc.Author)

	return oc, nil
}

// step checks out the passed revision, reruns every project and judges the results.
// Only failures leaving the shared checkout in an unknown state are returned as errors.
// Everything else preventing a verdict makes the step inconclusive.
func (b *Bisector) step(ctx context.Context, axis *bisectionAxis, prepared map[string]*PreparedProject, policy VerdictPolicy, revision string, offset int) (Step, error) {
	log := b.log().WithField("revision", revision)
	sched := b.Config.Scheduler()
	sched.Policy = FailFast
	sched.Log = b.Log

	start := time.Now()
	step := Step{Revision: revision, Offset: offset}
	inconclusive := func(err error) (Step, error) {
		log.Warnf("Step is inconclusive - %v", err)
		step.Verdict = Inconclusive
		step.Err = err
		step.Elapsed = time.Since(start)
		return step, nil
	}

	if err := Checkout(ctx, axis.repo, plumbing.NewHash(revision)); err != nil {
		return step, err
	}

	if axis.rebuild {
		if err := b.Installer.Rebuild(ctx, axis.checker); err != nil {
			return inconclusive(errors.Join(fmt.Errorf("checker failed to build"), err))
		}
	}

	if ok, err := b.Probe.perform(ctx, b.Workspace.Runner, axis.checker.Exe, log); !ok {
		return inconclusive(errors.Join(fmt.Errorf("checker failed its probe"), err))
	}

	results, err := b.Workspace.CheckAll(ctx, sched, prepared, b.Projects, axis.inv)
	if err != nil {
		if ctx.Err() != nil {
			return step, ctx.Err()
		}
		return inconclusive(err)
	}
	if b.Config.Debug {
		b.debugResults(results)
	}

	step.Verdict = policy.Verdict(results)
	step.BadProjects = badProjects(policy, results)
	step.Elapsed = time.Since(start)
	return step, nil
}

// badProjects returns the sorted names of all projects the policy classifies as bad
func badProjects(policy VerdictPolicy, results map[string]CheckResult) []string {
	var bad []string
	for name, r := range results {
		if policy.Classify(name, r).IsBad() {
			bad = append(bad, name)
		}
	}
	sort.Strings(bad)
	return bad
}

func (b *Bisector) debugResults(results map[string]CheckResult) {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b.Log.Debugf("%s: %s", name, results[name])
	}
}
