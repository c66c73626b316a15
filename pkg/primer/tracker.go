package primer

import (
	"sync"
	"time"
)

// A BisectionSnapshot is a copy of a bisection's state at one point in time.
type BisectionSnapshot struct {
	Phase string `json:"phase"`

	Good      string `json:"good"`
	Bad       string `json:"bad"`
	Candidate string `json:"candidate,omitempty"`

	Remaining     int `json:"remaining"`
	ExpectedSteps int `json:"expectedSteps"`

	Skipped []string `json:"skipped,omitempty"`
	History []Step   `json:"history"`
}

// Snapshot returns a copy of the state that stays valid while the bisection continues.
func (s *BisectionState) Snapshot() BisectionSnapshot {
	snap := BisectionSnapshot{
		Phase:         s.Phase.String(),
		Good:          s.Revisions[s.Good],
		Bad:           s.Revisions[s.Bad],
		Remaining:     s.Remaining(),
		ExpectedSteps: s.ExpectedSteps(),
		History:       append([]Step(nil), s.History...),
	}
	if s.Candidate >= 0 {
		snap.Candidate = s.Revisions[s.Candidate]
	}
	for i := range s.Revisions {
		if s.Skipped[i] {
			snap.Skipped = append(snap.Skipped, s.Revisions[i])
		}
	}
	return snap
}

// A ResultSummary is the reported outcome of one project of a differential run.
type ResultSummary struct {
	Project        string  `json:"project"`
	Classification string  `json:"classification"`
	Diff           string  `json:"diff,omitempty"`
	OldFingerprint string  `json:"oldFingerprint,omitempty"`
	NewFingerprint string  `json:"newFingerprint,omitempty"`
	OldRuntime     float64 `json:"oldRuntime"`
	NewRuntime     float64 `json:"newRuntime"`
	Error          string  `json:"error,omitempty"`
}

// A Tracker records the progress of a run so it can be inspected while the run continues.
// It is safe for concurrent use. A nil *Tracker is valid and records nothing.
type Tracker struct {
	mu sync.RWMutex

	started   time.Time
	bisection *BisectionSnapshot
	results   []ResultSummary
	located   *OffendingRevision
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{started: time.Now()}
}

func (t *Tracker) setBisection(s *BisectionState) {
	if t == nil {
		return
	}
	snap := s.Snapshot()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bisection = &snap
}

func (t *Tracker) setLocated(oc *OffendingRevision) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.located = oc
}

// AddResult records the outcome of one project of a differential run.
func (t *Tracker) AddResult(o Outcome[PrimerResult]) {
	if t == nil {
		return
	}
	summary := ResultSummary{Project: o.Project.Name}
	if o.Err != nil {
		summary.Error = o.Err.Error()
	} else {
		summary.Classification = o.Value.Comparison.Classification.String()
		summary.Diff = o.Value.Comparison.Diff
		summary.OldFingerprint = o.Value.Old.Fingerprint()
		summary.NewFingerprint = o.Value.New.Fingerprint()
		summary.OldRuntime = o.Value.Old.Runtime.Seconds()
		summary.NewRuntime = o.Value.New.Runtime.Seconds()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.results = append(t.results, summary)
}

// Bisection returns the latest snapshot of the bisection, if one is running.
func (t *Tracker) Bisection() (BisectionSnapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.bisection == nil {
		return BisectionSnapshot{}, false
	}
	return *t.bisection, true
}

// Results returns the outcomes recorded so far, in the order of completion.
func (t *Tracker) Results() []ResultSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]ResultSummary(nil), t.results...)
}

// Located returns the offending revision once the bisection is done.
func (t *Tracker) Located() (*OffendingRevision, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.located, t.located != nil
}

// Uptime returns how long ago the tracker was created.
func (t *Tracker) Uptime() time.Duration {
	return time.Since(t.started)
}
