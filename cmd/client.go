package cmd

import (
	"DispatchEngine/server"
	"context"
	"fmt"
	"github.com/spf13/cobra"
	"io"
	"time"
)

const pollInterval = 100 * time.Millisecond

func newSubmitCommand() *cobra.Command {
	var (
		address string
		request server.JobRequest
		wait    bool
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a job to a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := server.NewClient(address)
			if err != nil {
				return err
			}
			defer client.Close()

			id, err := client.Submit(cmd.Context(), request)
			if err != nil {
				return fmt.Errorf("failed to submit job: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			if !wait {
				return nil
			}

			status, err := waitForJob(cmd.Context(), client, id)
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), status)
			if status.State == server.StateFailed {
				return fmt.Errorf("job %s failed: %s", id, status.Error)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&address, "server", defaultServerAddress, "Server address")
	flags.StringVar(&request.Kind, "kind", server.KindSleep, "Job kind: sleep or container")
	flags.DurationVar(&request.Duration, "duration", time.Second, "Sleep duration for sleep jobs")
	flags.StringVar(&request.Image, "image", "", "Image for container jobs")
	flags.StringSliceVar(&request.Command, "command", nil, "Command for container jobs")
	flags.StringSliceVar(&request.Env, "env", nil, "Environment variables for container jobs")
	flags.DurationVar(&request.Timeout, "timeout", 0, "Timeout for container jobs, 0 uses the server default")
	flags.BoolVar(&wait, "wait", false, "Wait for the job to finish and print its status")
	return cmd
}

func newStatusCommand() *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "status JOB_ID",
		Short: "Show the status of a submitted job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := server.NewClient(address)
			if err != nil {
				return err
			}
			defer client.Close()

			status, err := client.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
	cmd.Flags().StringVar(&address, "server", defaultServerAddress, "Server address")
	return cmd
}

func newStatsCommand() *cobra.Command {
	var address string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show worker pool statistics of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := server.NewClient(address)
			if err != nil {
				return err
			}
			defer client.Close()

			stats, err := client.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "workers:   %d (idle %d, busy %d)\n", stats.Workers, stats.Idle, stats.Busy)
			fmt.Fprintf(out, "backlog:   %d\n", stats.Backlog)
			fmt.Fprintf(out, "submitted: %d\n", stats.Submitted)
			fmt.Fprintf(out, "completed: %d (faulted %d)\n", stats.Completed, stats.Faulted)
			fmt.Fprintf(out, "abandoned: %d\n", stats.Abandoned)
			return nil
		},
	}
	cmd.Flags().StringVar(&address, "server", defaultServerAddress, "Server address")
	return cmd
}

func waitForJob(ctx context.Context, client *server.Client, id string) (server.JobStatus, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		status, err := client.Status(ctx, id)
		if err != nil {
			return server.JobStatus{}, err
		}
		if status.State == server.StateSucceeded || status.State == server.StateFailed {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return server.JobStatus{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func printStatus(out io.Writer, status server.JobStatus) {
	fmt.Fprintf(out, "id:    %s\n", status.ID)
	fmt.Fprintf(out, "kind:  %s\n", status.Kind)
	fmt.Fprintf(out, "state: %s\n", status.State)
	if status.Error != "" {
		fmt.Fprintf(out, "error: %s\n", status.Error)
	}
	if status.Kind == server.KindContainer {
		fmt.Fprintf(out, "exit:  %d\n", status.ExitCode)
		fmt.Fprintf(out, "stdout:\n%s\n", status.Stdout)
		fmt.Fprintf(out, "stderr:\n%s\n", status.Stderr)
	}
}
