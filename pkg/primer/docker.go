package primer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dchest/uniuri"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/sirupsen/logrus"
)

// ContainerLabel is set on every container created by typeprimer
const ContainerLabel = "typeprimer"

// A DockerRunner runs every command in a fresh container.
// The base directory is mounted at the same path inside the container, so paths are valid both inside and outside of it.
type DockerRunner struct {
	Image   string // The image every container is created from
	BaseDir string // The directory shared with the containers

	Log *logrus.Logger

	cli *client.Client
}

// NewDockerRunner creates a DockerRunner connected to the docker daemon configured in the environment.
func NewDockerRunner(imageName, baseDir string, log *logrus.Logger) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Join(fmt.Errorf("docker client creation failed"), err)
	}
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	return &DockerRunner{
		Image:   imageName,
		BaseDir: baseDir,
		Log:     log,
		cli:     cli,
	}, nil
}

// Close releases the connection to the docker daemon.
func (r *DockerRunner) Close() error {
	return r.cli.Close()
}

func (r *DockerRunner) Run(ctx context.Context, cmd Command) (*ProcessResult, error) {
	if len(cmd.Args) == 0 {
		return nil, errors.New("empty command")
	}

	containerConfig := &container.Config{
		Image:      r.Image,
		Cmd:        cmd.Args,
		Env:        cmd.Env,
		WorkingDir: cmd.Dir,
		User:       fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()),
		Labels:     map[string]string{ContainerLabel: "1"},
	}
	hostConfig := &container.HostConfig{
		Binds: []string{fmt.Sprintf("%s:%s", r.BaseDir, r.BaseDir)},
	}

	containerName := "typeprimer-" + uniuri.New()
	log := r.Log.WithField("container", containerName)

	resp, err := r.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, containerName)
	if client.IsErrNotFound(err) {
		log.Infof("Image %s not found locally, pulling it", r.Image)
		if err := r.pull(ctx); err != nil {
			return nil, err
		}
		resp, err = r.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, containerName)
	}
	if err != nil {
		return nil, errors.Join(fmt.Errorf("container creation with name %s of image %s failed", containerName, r.Image), err)
	}
	defer func() {
		// Use a fresh context, the container has to be removed even if ctx was cancelled
		if err := r.cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true}); err != nil {
			log.Warnf("Failed to remove container - %v", err)
		}
	}()

	log.Tracef("Running %s", cmd)

	statusChan, errChan := r.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNextExit)
	if err := r.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, errors.Join(fmt.Errorf("container start with name %s of image %s failed", containerName, r.Image), err)
	}

	var exitCode int
	select {
	case err := <-errChan:
		return nil, errors.Join(fmt.Errorf("waiting for container %s failed", containerName), err)
	case status := <-statusChan:
		if status.Error != nil {
			return nil, fmt.Errorf("container %s failed - %s", containerName, status.Error.Message)
		}
		exitCode = int(status.StatusCode)
	}

	logs, err := r.cli.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to get logs of container %s", containerName), err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return nil, errors.Join(fmt.Errorf("failed to read logs of container %s", containerName), err)
	}

	return &ProcessResult{
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

func (r *DockerRunner) pull(ctx context.Context) error {
	out, err := r.cli.ImagePull(ctx, r.Image, image.PullOptions{})
	if err != nil {
		return errors.Join(fmt.Errorf("failed to pull image %s", r.Image), err)
	}
	defer out.Close()
	// The pull is only done once the progress stream was consumed
	_, err = io.Copy(io.Discard, out)
	return err
}
