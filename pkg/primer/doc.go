/*
Package primer provides a Go interface for differential testing of a static type checker.

Two versions of the checker, an old and a new one, are run against a corpus of [Project]-s and their outputs are compared.
A corpus can most easily be read from a corpus config using [GetCorpusFromConfig], but projects can also be created manually by populating a [Project] struct.
For a manually created project to be usable, at least its Location has to be populated.

All behavior is driven by a single [Config] value, which is created once per invocation and passed to every component needing it.

Projects are checked concurrently using [Stream] or [Collect].
[Stream] delivers outcomes in completion order, whereas [Collect] waits for every project and returns a mapping keyed by project name.
Whether a failing project aborts its siblings is decided by the [FaultPolicy] of the [Scheduler] used.

A differential run is started using [Workspace.RunDifferential], whose results are classified by [Compare].

If a regression was found, a [Bisector] can be used to locate the revision of the checker which introduced it.
The [Bisector] performs a binary search over the checker's first-parent history, at every step rerunning the whole corpus and reducing all results to one [Verdict] using a [VerdictPolicy].
Once the search has collapsed to a single revision, an [OffendingRevision] is returned.
*/
package primer
