package container

import (
	"DispatchEngine/log"
	"DispatchEngine/pool"
	"context"
	"errors"
	"fmt"
	"github.com/docker/docker/client"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"time"
)

var ErrMissingImage = errors.New("container job requires an image")

type Request struct {
	Image   string
	Command []string
	Env     []string
	Timeout time.Duration
}

func (r Request) Validate() error {
	if r.Image == "" {
		return ErrMissingImage
	}
	if r.Timeout < 0 {
		return fmt.Errorf("negative timeout %s", r.Timeout)
	}
	return nil
}

type Result struct {
	ContainerID string
	ExitCode    int64
	Stdout      string
	Stderr      string
	Duration    time.Duration
	Err         error
}

// Job runs a single command in a throwaway container. Docker failures are
// reported through OnResult and never panic.
type Job struct {
	ID       uuid.UUID
	Client   *client.Client
	Request  Request
	OnStart  func()
	OnResult func(Result)
}

var _ pool.Job = (*Job)(nil)

func (j *Job) Execute() {
	if j.OnStart != nil {
		j.OnStart()
	}
	result := j.run(context.Background())
	if result.Err != nil {
		log.L().Warn("Container job failed", zap.String("jobID", j.ID.String()), zap.Error(result.Err))
	}
	if j.OnResult != nil {
		j.OnResult(result)
	}
}

func (j *Job) run(ctx context.Context) Result {
	if err := j.Request.Validate(); err != nil {
		return Result{ExitCode: -1, Err: err}
	}
	timeout := j.Request.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()

	log.L().Debug("Creating Docker container", zap.String("jobID", j.ID.String()), zap.String("image", j.Request.Image))
	containerID, err := createContainer(ctx, j.Client, j.ID, j.Request)
	if err != nil {
		return Result{ExitCode: -1, Err: fmt.Errorf("failed to create container: %w", err)}
	}
	defer func() {
		removeContext, cancelRemove := context.WithTimeout(context.Background(), removeTimeout)
		defer cancelRemove()
		if err := removeContainer(removeContext, j.Client, containerID); err != nil {
			log.L().Warn("Cannot remove container", zap.String("containerID", containerID), zap.Error(err))
		}
	}()

	log.L().Debug("Starting Docker container", zap.String("containerID", containerID))
	if err := startContainer(ctx, j.Client, containerID); err != nil {
		return Result{ContainerID: containerID, ExitCode: -1, Err: fmt.Errorf("failed to start container: %w", err)}
	}

	exitCode, waitErr := waitContainer(ctx, j.Client, containerID)
	if waitErr != nil {
		waitErr = fmt.Errorf("failed to wait for container: %w", waitErr)
	}

	// Logs are still readable after a timeout, so use a fresh context.
	logContext, cancelLogs := context.WithTimeout(context.Background(), removeTimeout)
	defer cancelLogs()
	stdout, stderr, logErr := collectLogs(logContext, j.Client, containerID)
	if logErr != nil {
		log.L().Warn("Cannot collect container logs", zap.String("containerID", containerID), zap.Error(logErr))
	}

	return Result{
		ContainerID: containerID,
		ExitCode:    exitCode,
		Stdout:      stdout,
		Stderr:      stderr,
		Duration:    time.Since(start),
		Err:         waitErr,
	}
}
