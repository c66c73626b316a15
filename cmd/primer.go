package cmd

import (
	"context"
	"os"
)

var runPrimer = withEnvironment(func(ctx context.Context, env *environment, _ []string) error {
	projects, _, err := env.selectProjects()
	if err != nil {
		return err
	}

	env.log.Info("Installing checkers...")
	newChecker, oldChecker, err := env.installer.SetupPair(ctx)
	if err != nil {
		return err
	}
	newTypeshed, oldTypeshed, err := env.installer.SetupTypeshedPair(ctx)
	if err != nil {
		return err
	}
	newInv, oldInv := env.cfg.Invocations(newChecker, oldChecker, newTypeshed, oldTypeshed)

	s := env.scheduler()
	outcomes := env.workspace.RunDifferential(ctx, s, projects, newInv, oldInv)

	code, err := env.workspace.Report(os.Stdout, outcomes, s.Policy, env.tracker)
	exitCode = code
	return err
})
