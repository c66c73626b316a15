package primer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// DefaultHead is the symbolic revision of a repository's default branch
const DefaultHead = "origin/HEAD"

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// parseDate returns the date encoded by selector, if it is one
func parseDate(selector string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, selector); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// repoDirName returns the name of the directory a repository gets cloned into
func repoDirName(url string) string {
	return strings.TrimSuffix(path.Base(strings.TrimRight(url, "/")), ".git")
}

// OpenOrClone opens the repository cloned from url inside parentDir, cloning it first if necessary.
// An existing clone is fetched to make sure new revisions are known.
func OpenOrClone(ctx context.Context, url, parentDir string) (*git.Repository, string, error) {
	repoDir := filepath.Join(parentDir, repoDirName(url))

	if _, err := os.Stat(repoDir); err == nil {
		repo, err := git.PlainOpen(repoDir)
		if err != nil {
			return nil, "", errors.Join(fmt.Errorf("failed to open repository at %s", repoDir), err)
		}
		err = repo.FetchContext(ctx, &git.FetchOptions{RemoteName: "origin", Tags: git.AllTags})
		if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
			return nil, "", errors.Join(fmt.Errorf("failed to fetch %s into %s", url, repoDir), err)
		}
		return repo, repoDir, nil
	}

	if err := os.MkdirAll(parentDir, 0o755); err != nil {
		return nil, "", err
	}
	repo, err := git.PlainCloneContext(ctx, repoDir, false, &git.CloneOptions{URL: url, Tags: git.AllTags})
	if err != nil {
		return nil, "", errors.Join(fmt.Errorf("git clone of repository %s at %s failed", url, repoDir), err)
	}
	return repo, repoDir, nil
}

// EnsureRepoAtRevision makes sure the repository cloned from url into parentDir is checked out at selector.
// An empty selector checks out the most recent tag. The returned directory holds the checkout.
func EnsureRepoAtRevision(ctx context.Context, url, parentDir, selector string) (string, error) {
	repo, repoDir, err := OpenOrClone(ctx, url, parentDir)
	if err != nil {
		return "", err
	}

	var hash plumbing.Hash
	if selector == "" {
		hash, _, err = RecentTag(repo)
	} else {
		hash, err = ResolveRevision(repo, selector)
	}
	if err != nil {
		return "", err
	}

	if err := Checkout(ctx, repo, hash); err != nil {
		return "", err
	}
	return repoDir, nil
}

// ResolveRevision resolves a revision, a symbolic reference or a date to the hash of a concrete commit.
// A date resolves to the newest commit on the default branch's first-parent history committed at or before it.
func ResolveRevision(repo *git.Repository, selector string) (plumbing.Hash, error) {
	if date, ok := parseDate(selector); ok {
		head, err := defaultHead(repo)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		return commitAtDate(repo, head, date)
	}

	if selector == DefaultHead {
		return defaultHead(repo)
	}

	hash, err := repo.ResolveRevision(plumbing.Revision(selector))
	if err != nil {
		return plumbing.ZeroHash, errors.Join(fmt.Errorf("couldn't resolve revision %s", selector), err)
	}
	return *hash, nil
}

// defaultHead returns the tip of the remote's default branch
func defaultHead(repo *git.Repository) (plumbing.Hash, error) {
	if ref, err := repo.Reference(plumbing.NewRemoteHEADReferenceName("origin"), true); err == nil {
		return ref.Hash(), nil
	}
	for _, branch := range []string{"main", "master"} {
		if ref, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", branch), true); err == nil {
			return ref.Hash(), nil
		}
	}
	for _, branch := range []string{"main", "master"} {
		if ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true); err == nil {
			return ref.Hash(), nil
		}
	}
	ref, err := repo.Head()
	if err != nil {
		return plumbing.ZeroHash, errors.Join(fmt.Errorf("couldn't determine default head"), err)
	}
	return ref.Hash(), nil
}

// commitAtDate walks the first-parent history from head to the newest commit committed at or before date
func commitAtDate(repo *git.Repository, head plumbing.Hash, date time.Time) (plumbing.Hash, error) {
	commit, err := repo.CommitObject(head)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	for {
		if !commit.Committer.When.After(date) {
			return commit.Hash, nil
		}
		if commit.NumParents() == 0 {
			return plumbing.ZeroHash, fmt.Errorf("no commit at or before %s", date.Format(time.RFC3339))
		}
		if commit, err = commit.Parent(0); err != nil {
			return plumbing.ZeroHash, err
		}
	}
}

// RecentTag returns the commit and name of the most recent tag on the first-parent history of the default head.
func RecentTag(repo *git.Repository) (plumbing.Hash, string, error) {
	tags := make(map[plumbing.Hash]string)
	iter, err := repo.Tags()
	if err != nil {
		return plumbing.ZeroHash, "", err
	}
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		target := ref.Hash()
		// Annotated tags point to a tag object rather than the commit itself
		if tag, err := repo.TagObject(ref.Hash()); err == nil {
			commit, err := tag.Commit()
			if err != nil {
				return nil
			}
			target = commit.Hash
		}
		tags[target] = ref.Name().Short()
		return nil
	})
	if err != nil {
		return plumbing.ZeroHash, "", err
	}

	head, err := defaultHead(repo)
	if err != nil {
		return plumbing.ZeroHash, "", err
	}
	commit, err := repo.CommitObject(head)
	if err != nil {
		return plumbing.ZeroHash, "", err
	}
	for {
		if name, ok := tags[commit.Hash]; ok {
			return commit.Hash, name, nil
		}
		if commit.NumParents() == 0 {
			return plumbing.ZeroHash, "", errors.New("no tag found on the history of the default head")
		}
		if commit, err = commit.Parent(0); err != nil {
			return plumbing.ZeroHash, "", err
		}
	}
}

// RevisionsBetween returns the hashes of all commits on the first-parent history from the good to the bad commit.
// The returned slice is ordered chronologically, starting from the good commit at index 0 and the bad commit at the last index
func RevisionsBetween(repo *git.Repository, good, bad plumbing.Hash) ([]string, error) {
	commit, err := repo.CommitObject(bad)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("couldn't get bad commit %s", bad), err)
	}

	revisions := []string{}
	for commit.Hash != good {
		revisions = append(revisions, commit.Hash.String())
		if commit.NumParents() == 0 {
			return nil, fmt.Errorf("good commit %s cannot be reached from bad commit %s", good, bad)
		}
		if commit, err = commit.Parent(0); err != nil {
			return nil, err
		}
	}
	revisions = append(revisions, good.String())

	// Reverse s.t. the good commit comes first
	for i, j := 0, len(revisions)-1; i < j; i, j = i+1, j-1 {
		revisions[i], revisions[j] = revisions[j], revisions[i]
	}
	return revisions, nil
}

// Checkout force checks out the passed commit and updates all submodules.
func Checkout(ctx context.Context, repo *git.Repository, hash plumbing.Hash) error {
	worktree, err := repo.Worktree()
	if err != nil {
		return err
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Hash: hash, Force: true}); err != nil {
		return errors.Join(fmt.Errorf("git checkout of hash %s failed", hash), err)
	}
	return updateSubmodules(ctx, worktree)
}

func updateSubmodules(ctx context.Context, worktree *git.Worktree) error {
	submodules, err := worktree.Submodules()
	if err != nil {
		return errors.Join(fmt.Errorf("couldn't list submodules"), err)
	}
	if len(submodules) == 0 {
		return nil
	}
	if err := submodules.UpdateContext(ctx, &git.SubmoduleUpdateOptions{
		Init:              true,
		RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
	}); err != nil {
		return errors.Join(fmt.Errorf("git submodule update failed"), err)
	}
	return nil
}

// A RevisionInfo holds additional information about a commit.
type RevisionInfo struct {
	Hash    string
	Message string
	Author  string
	Date    time.Time
	Parents int
}

// DescribeRevision returns additional information about the passed commit.
func DescribeRevision(repo *git.Repository, hash plumbing.Hash) (*RevisionInfo, error) {
	commit, err := repo.CommitObject(hash)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("couldn't get commit %s", hash), err)
	}
	return revisionInfo(commit), nil
}

func revisionInfo(commit *object.Commit) *RevisionInfo {
	return &RevisionInfo{
		Hash:    commit.Hash.String(),
		Message: strings.TrimSpace(commit.Message),
		Author:  fmt.Sprintf("%s <%s>", commit.Author.Name, commit.Author.Email),
		Date:    commit.Author.When,
		Parents: commit.NumParents(),
	}
}

// FirstBadReport renders the revision the way git reports the first bad commit of a bisection.
func (r RevisionInfo) FirstBadReport() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s is the first bad commit\n", r.Hash)
	fmt.Fprintf(&b, "commit %s\n", r.Hash)
	if r.Parents > 1 {
		fmt.Fprintf(&b, "Merge: %d parents\n", r.Parents)
	}
	fmt.Fprintf(&b, "Author: %s\n", r.Author)
	fmt.Fprintf(&b, "Date:   %s\n\n", r.Date.Format("Mon Jan 2 15:04:05 2006 -0700"))
	for _, line := range strings.Split(r.Message, "\n") {
		fmt.Fprintf(&b, "    %s\n", line)
	}
	return b.String()
}
