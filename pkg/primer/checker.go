package primer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// A Checker is an installed version of the checker.
type Checker struct {
	Exe     string // The path to the checker's executable
	Python  string // The path to the interpreter of the checker's virtualenv
	Dir     string // The directory holding the virtualenv and, if installed from source, the repository
	RepoDir string // The checkout the checker was installed from. Empty if a prebuilt release was installed

	Selector string // The revision or date this checker was installed for
}

// An Installer installs versions of the checker into virtualenvs.
type Installer struct {
	Config *Config
	Runner ProcessRunner

	Log *logrus.Logger
}

// NewInstaller creates an installer. A nil log mutes it.
func NewInstaller(config *Config, runner ProcessRunner, log *logrus.Logger) *Installer {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	return &Installer{Config: config, Runner: runner, Log: log}
}

func binDir(venvDir string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(venvDir, "Scripts")
	}
	return filepath.Join(venvDir, "bin")
}

// Setup installs the checker at selector into dir.
//
// If the selector is not empty, not installed editable and the upstream repository is used, a prebuilt release is tried first.
// If installing the release fails, the checker is installed from source instead.
// An empty selector installs the most recent tag of the repository.
func (i *Installer) Setup(ctx context.Context, dir, selector string, editable bool) (*Checker, error) {
	log := i.Log.WithField("checker", filepath.Base(dir))

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &SetupFailedError{Subject: dir, Err: err}
	}

	venvDir := filepath.Join(dir, "venv")
	if _, err := RunChecked(ctx, i.Runner, Command{Args: []string{i.Config.Python, "-m", "venv", "--clear", venvDir}}); err != nil {
		return nil, &SetupFailedError{Subject: dir, Err: errors.Join(fmt.Errorf("virtualenv creation failed"), err)}
	}
	pip := filepath.Join(binDir(venvDir), "pip")

	if i.Config.CompileLevel >= 0 {
		editable = true
	}

	checker := &Checker{
		Exe:      filepath.Join(binDir(venvDir), i.Config.ExecutableName),
		Python:   filepath.Join(binDir(venvDir), "python"),
		Dir:      dir,
		Selector: selector,
	}

	installFromRepo := true
	if selector != "" && selector != DefaultHead && !editable && i.Config.Repo == DefaultRepo {
		// Optimistically attempt to install a prebuilt release
		_, err := RunChecked(ctx, i.Runner, Command{Args: []string{pip, "install", fmt.Sprintf("%s==%s", i.Config.PackageName, selector)}})
		var failed *CommandFailedError
		if err == nil {
			installFromRepo = false
		} else if errors.As(err, &failed) {
			log.Debugf("No prebuilt release for %s, installing from source", selector)
		} else {
			return nil, &SetupFailedError{Subject: dir, Err: err}
		}
	}

	if installFromRepo {
		repoDir, err := EnsureRepoAtRevision(ctx, i.Config.Repo, dir, selector)
		if err != nil {
			return nil, &SetupFailedError{Subject: dir, Err: err}
		}
		checker.RepoDir = repoDir

		if err := i.install(ctx, checker, editable); err != nil {
			return nil, &SetupFailedError{Subject: dir, Err: err}
		}
	}

	if runtime.GOOS == "darwin" {
		// Warm up the checker, the first run on macOS is slow
		if _, err := RunChecked(ctx, i.Runner, Command{Args: []string{checker.Exe, "--version"}}); err != nil {
			return nil, &SetupFailedError{Subject: dir, Err: err}
		}
	}

	if _, err := os.Stat(checker.Exe); err != nil {
		return nil, &SetupFailedError{Subject: dir, Err: errors.Join(fmt.Errorf("checker executable missing after install"), err)}
	}

	log.Infof("Installed checker %s", checker.Exe)
	return checker, nil
}

// install installs the checker from its checkout into its virtualenv, compiling it first if configured
func (i *Installer) install(ctx context.Context, checker *Checker, editable bool) error {
	pip := filepath.Join(filepath.Dir(checker.Python), "pip")

	if i.Config.CompileLevel >= 0 {
		if _, err := RunChecked(ctx, i.Runner, Command{Args: []string{pip, "install", "typing_extensions", "mypy_extensions"}}); err != nil {
			return err
		}
		if _, err := RunChecked(ctx, i.Runner, Command{
			Args: []string{checker.Python, "setup.py", "--use-mypyc", "build_ext", "--inplace"},
			Dir:  checker.RepoDir,
			Env:  []string{fmt.Sprintf("MYPYC_OPT_LEVEL=%d", i.Config.CompileLevel)},
		}); err != nil {
			return err
		}
	}

	args := []string{pip, "install"}
	if editable {
		args = append(args, "--editable")
	}
	args = append(args, checker.RepoDir, "tomli")
	_, err := RunChecked(ctx, i.Runner, Command{Args: args})
	return err
}

// Rebuild recompiles a checker installed editable from source after its checkout changed.
// Checkers that are not compiled pick up changes without being rebuilt.
func (i *Installer) Rebuild(ctx context.Context, checker *Checker) error {
	if i.Config.CompileLevel < 0 {
		return nil
	}
	return i.install(ctx, checker, true)
}

// Version returns the version string the checker reports.
func (i *Installer) Version(ctx context.Context, checker *Checker) (string, error) {
	res, err := RunChecked(ctx, i.Runner, Command{Args: []string{checker.Exe, "--version"}})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// SetupPair installs the new and the old checker concurrently.
// Without a configured selector, the new checker is installed at the default head and the old one at the most recent tag.
func (i *Installer) SetupPair(ctx context.Context) (newChecker, oldChecker *Checker, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		newChecker, err = i.Setup(gctx, filepath.Join(i.Config.BaseDir, "new_checker"), i.Config.NewSelector(), false)
		return err
	})
	g.Go(func() error {
		var err error
		oldChecker, err = i.Setup(gctx, filepath.Join(i.Config.BaseDir, "old_checker"), i.Config.OldChecker, false)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	if i.Config.Debug {
		for name, checker := range map[string]*Checker{"new": newChecker, "old": oldChecker} {
			version, err := i.Version(ctx, checker)
			if err != nil {
				return nil, nil, err
			}
			i.Log.Debugf("%s checker version: %s", name, version)
		}
	}

	return newChecker, oldChecker, nil
}

// SetupTypeshedPair checks out the configured typeshed revisions.
// The directory of a typeshed that is not configured is empty.
func (i *Installer) SetupTypeshedPair(ctx context.Context) (newDir, oldDir string, err error) {
	setup := func(name, selector string) (string, error) {
		if selector == "" {
			return "", nil
		}
		parentDir := filepath.Join(i.Config.BaseDir, name)
		if err := os.RemoveAll(parentDir); err != nil {
			return "", err
		}
		if err := os.MkdirAll(parentDir, 0o755); err != nil {
			return "", err
		}
		dir, err := EnsureRepoAtRevision(ctx, i.Config.TypeshedRepo, parentDir, selector)
		if err != nil {
			return "", &SetupFailedError{Subject: name, Err: err}
		}
		return dir, nil
	}

	if newDir, err = setup("new_typeshed", i.Config.NewTypeshed); err != nil {
		return "", "", err
	}
	if oldDir, err = setup("old_typeshed", i.Config.OldTypeshed); err != nil {
		return "", "", err
	}
	return newDir, oldDir, nil
}
