package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
)

func NewClient() (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return cli, nil
}

func containerName(jobID uuid.UUID) string {
	return containerNamePrefix + jobID.String()
}

func containerConfig(jobID uuid.UUID, request Request) *container.Config {
	return &container.Config{
		Image:        request.Image,
		Cmd:          request.Command,
		Env:          request.Env,
		WorkingDir:   containerWorkingDirectory,
		Tty:          false,
		AttachStdout: true,
		AttachStderr: true,
		Labels: map[string]string{
			labelManagedBy: managedByValue,
			labelJobID:     jobID.String(),
		},
	}
}

func createContainer(ctx context.Context, cli *client.Client, jobID uuid.UUID, request Request) (string, error) {
	response, err := cli.ContainerCreate(ctx, containerConfig(jobID, request), nil, nil, nil, containerName(jobID))
	if err != nil {
		return "", err
	}
	return response.ID, nil
}

func startContainer(ctx context.Context, cli *client.Client, containerID string) error {
	return cli.ContainerStart(ctx, containerID, container.StartOptions{})
}

// waitContainer blocks until the container stops or ctx ends.
func waitContainer(ctx context.Context, cli *client.Client, containerID string) (int64, error) {
	waitChannel, errorChannel := cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case response := <-waitChannel:
		if response.Error != nil && response.Error.Message != "" {
			return response.StatusCode, errors.New(response.Error.Message)
		}
		return response.StatusCode, nil
	case err := <-errorChannel:
		return -1, err
	}
}

func collectLogs(ctx context.Context, cli *client.Client, containerID string) (string, string, error) {
	reader, err := cli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", err
	}
	defer reader.Close()

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	if _, err := stdcopy.StdCopy(stdout, stderr, reader); err != nil {
		return stdout.String(), stderr.String(), err
	}
	return stdout.String(), stderr.String(), nil
}

// removeContainer kills the container if it is still running.
func removeContainer(ctx context.Context, cli *client.Client, containerID string) error {
	return cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true, RemoveVolumes: true})
}
