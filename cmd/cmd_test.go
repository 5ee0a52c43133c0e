package cmd

import (
	"DispatchEngine/config"
	"DispatchEngine/log"
	"DispatchEngine/pool"
	"DispatchEngine/server"
	"bytes"
	"context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"net"
	"os"
	"strings"
	"testing"
	"time"
)

func TestMain(m *testing.M) {
	restore := log.ReplaceForTest(zap.NewNop())
	code := m.Run()
	restore()
	os.Exit(code)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func startServer(t *testing.T) string {
	t.Helper()

	p, err := pool.NewPool(2, pool.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		served <- server.NewServer(p, nil, time.Second).Serve(ctx, listener)
	}()
	t.Cleanup(func() {
		cancel()
		<-served
		p.Shutdown()
	})
	return listener.Addr().String()
}

func TestDemo(t *testing.T) {
	out := &bytes.Buffer{}

	err := runDemo(out, demoOptions{workers: 2, jobs: 5, sleep: 10 * time.Millisecond, ordering: "fifo"})

	require.NoError(t, err)
	assert.Equal(t, 5, strings.Count(out.String(), "long running task"))
	assert.Contains(t, out.String(), "ran 5 jobs on 2 workers")
}

func TestDemo_InvalidOptions(t *testing.T) {
	assert.Error(t, runDemo(&bytes.Buffer{}, demoOptions{workers: 0, jobs: 1}))
	assert.Error(t, runDemo(&bytes.Buffer{}, demoOptions{workers: 1, jobs: 1, ordering: "random"}))
}

func TestDemoCommand(t *testing.T) {
	out, err := execute(t, "demo", "--workers", "3", "--jobs", "4", "--sleep", "1ms", "--ordering", "lifo")

	require.NoError(t, err)
	assert.Contains(t, out, "ran 4 jobs on 3 workers")
}

func TestClientCommands(t *testing.T) {
	address := startServer(t)

	out, err := execute(t, "submit", "--server", address, "--kind", "sleep", "--duration", "5ms", "--wait")
	require.NoError(t, err)
	assert.Contains(t, out, "state: succeeded")
	id := strings.SplitN(out, "\n", 2)[0]

	out, err = execute(t, "status", "--server", address, id)
	require.NoError(t, err)
	assert.Contains(t, out, "id:    "+id)
	assert.Contains(t, out, "kind:  sleep")

	// The registry is updated from inside the job, slightly before the
	// worker reports back to the scheduler.
	require.Eventually(t, func() bool {
		out, err = execute(t, "stats", "--server", address)
		return err == nil && strings.Contains(out, "workers:   2 (idle 2, busy 0)")
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, out, "submitted: 1")
	assert.Contains(t, out, "completed: 1 (faulted 0)")
}

func TestSubmitCommand_ContainerWithoutDocker(t *testing.T) {
	address := startServer(t)

	_, err := execute(t, "submit", "--server", address, "--kind", "container", "--image", "alpine", "--command", "true")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}

func TestRunServe_StopsWhenContextEnds(t *testing.T) {
	restore := log.ReplaceForTest(log.L())
	defer restore()

	cfg := &config.Config{
		Pool:   config.Pool{Workers: 2, EventBuffer: 4, Ordering: "fifo"},
		Server: config.Server{ListenAddress: "127.0.0.1:0"},
		Log:    log.Config{Level: "error"},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	assert.NoError(t, runServe(ctx, cfg))
}
