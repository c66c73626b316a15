package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/DominicWuest/typeprimer/internal/server"
	"github.com/DominicWuest/typeprimer/pkg/primer"
	"github.com/phayes/freeport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// An environment bundles everything a command needs to run.
type environment struct {
	cfg *primer.Config
	log *logrus.Logger

	runner    primer.ProcessRunner
	workspace *primer.Workspace
	installer *primer.Installer

	registry *prometheus.Registry
	metrics  *primer.Metrics
	tracker  *primer.Tracker

	closers []io.Closer
}

// newLogger creates the logger of the command line, honouring the verbosity flags
func newLogger(debug bool) *logrus.Logger {
	formatter := prefixed.TextFormatter{
		FullTimestamp: true,
	}
	log := logrus.New()
	log.SetFormatter(&formatter)

	// Set logger verbosity
	v := verbosity
	if debug {
		v = max(v, 2)
	}
	if quiet {
		log.SetOutput(io.Discard)
	} else if v == 0 {
		log.SetLevel(logrus.WarnLevel)
	} else if v == 1 {
		log.SetLevel(logrus.InfoLevel)
	} else if v == 2 {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.TraceLevel)
	}
	return log
}

// loadConfig layers the command's flags over the config file over the defaults
func loadConfig(cmd *cobra.Command) (*primer.Config, error) {
	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Join(fmt.Errorf("couldn't read config file %s", configFile), err)
		}
	}

	cfg := primer.DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Join(fmt.Errorf("couldn't decode config"), err)
	}

	baseDir, err := filepath.Abs(cfg.BaseDir)
	if err != nil {
		return nil, err
	}
	cfg.BaseDir = baseDir

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newEnvironment(cmd *cobra.Command) (*environment, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	env := &environment{
		cfg:      cfg,
		log:      newLogger(cfg.Debug),
		registry: prometheus.NewRegistry(),
		tracker:  primer.NewTracker(),
	}
	env.metrics = primer.NewMetrics(env.registry)

	if cfg.DockerImage != "" {
		runner, err := primer.NewDockerRunner(cfg.DockerImage, cfg.BaseDir, env.log)
		if err != nil {
			return nil, err
		}
		env.runner = runner
		env.closers = append(env.closers, runner)
	} else {
		env.runner = primer.NewExecRunner(env.log)
	}

	env.workspace = primer.NewWorkspace(cfg, env.runner, env.log)
	env.workspace.Metrics = env.metrics
	env.installer = primer.NewInstaller(cfg, env.runner, env.log)
	return env, nil
}

func (e *environment) close() {
	for _, c := range e.closers {
		if err := c.Close(); err != nil {
			e.log.Warnf("Failed to close - %v", err)
		}
	}
}

// corpus reads the configured corpus. Without a corpus file, only a local project can be checked.
func (e *environment) corpus() (*primer.Corpus, error) {
	if e.cfg.ProjectsFile == "" {
		if e.cfg.LocalProject == "" {
			return nil, errors.New("no corpus configured, pass --projects or --local-project")
		}
		return &primer.Corpus{Probe: primer.DefaultProbe}, nil
	}

	file, err := os.Open(e.cfg.ProjectsFile)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to open corpus %s", e.cfg.ProjectsFile), err)
	}
	defer file.Close()

	corpus, err := primer.GetCorpusFromConfig(file)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to read corpus from %s", e.cfg.ProjectsFile), err)
	}
	return corpus, nil
}

// selectProjects returns the projects the run is restricted to, together with the corpus they were selected from
func (e *environment) selectProjects() ([]primer.Project, *primer.Corpus, error) {
	corpus, err := e.corpus()
	if err != nil {
		return nil, nil, err
	}
	projects, err := primer.SelectProjects(e.cfg, corpus.Projects)
	if err != nil {
		return nil, nil, err
	}
	e.log.Infof("Selected %d projects", len(projects))
	return projects, corpus, nil
}

func (e *environment) scheduler() primer.Scheduler {
	s := e.cfg.Scheduler()
	s.Log = e.log
	return s
}

// serve starts the progress server if it was requested
func (e *environment) serve() error {
	if servePort < 0 {
		return nil
	}
	port := servePort
	if port == 0 {
		var err error
		if port, err = freeport.GetFreePort(); err != nil {
			return errors.Join(fmt.Errorf("couldn't find a free port"), err)
		}
	}
	if _, err := server.NewServer(server.HTTP, port, e.tracker, e.registry); err != nil {
		return errors.Join(fmt.Errorf("failed to start webserver"), err)
	}
	e.log.Warnf("Serving progress on http://localhost:%d", port)
	return nil
}

// withEnvironment wraps a command's implementation, creating its environment and clearing the base directory if requested
func withEnvironment(run func(ctx context.Context, env *environment, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		env, err := newEnvironment(cmd)
		if err != nil {
			return err
		}
		defer env.close()

		if env.cfg.Clear {
			if err := os.RemoveAll(env.cfg.BaseDir); err != nil {
				return err
			}
			defer func() {
				if err := os.RemoveAll(env.cfg.BaseDir); err != nil {
					env.log.Warnf("Failed to clear %s - %v", env.cfg.BaseDir, err)
				}
			}()
		}
		if err := os.MkdirAll(env.cfg.ProjectsDir(), 0o755); err != nil {
			return err
		}

		if err := env.serve(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		return run(ctx, env, args)
	}
}
