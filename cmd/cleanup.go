package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/DominicWuest/typeprimer/pkg/primer"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/manifoldco/promptui"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cleanupContainers bool
var cleanupAgree bool

var cleanupCmd = &cobra.Command{
	Use:     "clean",
	Aliases: []string{"prune", "cleanup"},
	Short:   "Clean all artifacts created by typeprimer",
	Long: `This command cleans all artifacts created by typeprimer.
This includes docker containers, both running and stopped, as well as the base directory holding checkers and projects.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return fmt.Errorf("couldn't create docker client - %w", err)
		}
		defer cli.Close()

		containers, err := cli.ContainerList(context.Background(), container.ListOptions{
			All: true,
			Filters: filters.NewArgs(
				filters.KeyValuePair{
					Key:   "label",
					Value: primer.ContainerLabel + "=1",
				},
			),
		})
		if err != nil {
			logrus.Warnf("Couldn't list docker containers - %v", err)
			containers = nil
		}

		removeBaseDir := false
		if !cleanupContainers {
			if _, err := os.Stat(cfg.BaseDir); err == nil {
				removeBaseDir = true
			}
		}

		if len(containers) == 0 && !removeBaseDir {
			baseDirString := " or base directory"
			if cleanupContainers {
				baseDirString = ""
			}
			logrus.Infof("No containers%s to remove. Exiting...", baseDirString)
			return nil
		}

		confirmationMessage := fmt.Sprintf("About to delete %d containers", len(containers))
		if removeBaseDir {
			confirmationMessage += fmt.Sprintf(" and %s", cfg.BaseDir)
		}
		confirmationMessage += "."
		logrus.Info(confirmationMessage)

		prompt := promptui.Prompt{
			Label:     "Proceed",
			IsConfirm: true,
		}

		if !cleanupAgree {
			_, err := prompt.Run()
			if err != nil {
				logrus.Info("Exiting...")
				return nil
			}
		}

		for _, c := range containers {
			logrus.Infof("Deleting container %s (ID: %s)", c.Names[0][1:], c.ID)
			if err := cli.ContainerRemove(context.Background(), c.ID, container.RemoveOptions{Force: true}); err != nil {
				return fmt.Errorf("failed to remove container with ID %s - %w", c.ID, err)
			}
		}

		if removeBaseDir {
			logrus.Infof("Deleting %s", cfg.BaseDir)
			if err := os.RemoveAll(cfg.BaseDir); err != nil {
				return fmt.Errorf("failed to remove %s - %w", cfg.BaseDir, err)
			}
		}

		logrus.Info("Done cleaning up.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().BoolVarP(&cleanupContainers, "containers", "c", false, "Only delete containers, keep the base directory.")
	cleanupCmd.Flags().BoolVarP(&cleanupAgree, "assume-yes", "y", false, `Bypass "Are you sure?" message.`)
}
