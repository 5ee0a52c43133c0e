package cmd

import (
	"DispatchEngine/pool"
	"fmt"
	"github.com/spf13/cobra"
	"io"
	"sync"
	"time"
)

type demoOptions struct {
	workers  int
	jobs     int
	sleep    time.Duration
	ordering string
}

func newDemoCommand() *cobra.Command {
	opts := demoOptions{}

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run sleeping jobs on a local pool and report the wall-clock time",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.OutOrStdout(), opts)
		},
	}
	flags := cmd.Flags()
	flags.IntVar(&opts.workers, "workers", 10, "Number of workers")
	flags.IntVar(&opts.jobs, "jobs", 100, "Number of jobs to submit")
	flags.DurationVar(&opts.sleep, "sleep", time.Second, "How long every job sleeps")
	flags.StringVar(&opts.ordering, "ordering", "fifo", "Backlog dispatch order: fifo or lifo")
	return cmd
}

func runDemo(out io.Writer, opts demoOptions) error {
	ordering, err := pool.ParseOrdering(opts.ordering)
	if err != nil {
		return err
	}
	p, err := pool.NewPool(opts.workers, pool.WithOrdering(ordering))
	if err != nil {
		return err
	}

	// Jobs write from several workers at once.
	var mu sync.Mutex
	start := time.Now()
	for i := 0; i < opts.jobs; i++ {
		i := i
		err := p.Submit(pool.JobFunc(func() {
			time.Sleep(opts.sleep)
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintf(out, "long running task %d done\n", i)
		}))
		if err != nil {
			p.Shutdown()
			return err
		}
	}
	p.Shutdown()

	stats := p.Stats()
	fmt.Fprintf(out, "ran %d jobs on %d workers in %s\n", stats.Completed, stats.Workers, time.Since(start).Round(time.Millisecond))
	return nil
}
