package container

import (
	"archive/tar"
	"errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRequest_Validate(t *testing.T) {
	assert.ErrorIs(t, Request{}.Validate(), ErrMissingImage)
	assert.Error(t, Request{Image: "alpine", Timeout: -time.Second}.Validate())
	assert.NoError(t, Request{Image: "alpine", Command: []string{"true"}}.Validate())
}

func TestContainerConfig(t *testing.T) {
	id := uuid.New()
	request := Request{Image: "alpine:3", Command: []string{"echo", "hi"}, Env: []string{"A=1"}}

	cfg := containerConfig(id, request)

	assert.Equal(t, "alpine:3", cfg.Image)
	assert.Equal(t, []string{"echo", "hi"}, []string(cfg.Cmd))
	assert.Equal(t, []string{"A=1"}, cfg.Env)
	assert.Equal(t, containerWorkingDirectory, cfg.WorkingDir)
	assert.False(t, cfg.Tty)
	assert.Equal(t, managedByValue, cfg.Labels[labelManagedBy])
	assert.Equal(t, id.String(), cfg.Labels[labelJobID])
	assert.Equal(t, "dispatch-"+id.String(), containerName(id))
}

func TestJob_InvalidRequestIsReportedAsResult(t *testing.T) {
	var started bool
	var result Result
	job := &Job{
		ID:       uuid.New(),
		Request:  Request{},
		OnStart:  func() { started = true },
		OnResult: func(r Result) { result = r },
	}

	job.Execute()

	assert.True(t, started)
	assert.ErrorIs(t, result.Err, ErrMissingImage)
	assert.Equal(t, int64(-1), result.ExitCode)
}

func TestCreateBuildContext(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte("FROM alpine\n"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "scripts"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scripts", "run.sh"), []byte("echo hi\n"), 0755))

	reader, err := createBuildContext(dir)
	require.NoError(t, err)

	files := map[string]string{}
	tarReader := tar.NewReader(reader)
	for {
		header, err := tarReader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(tarReader)
		require.NoError(t, err)
		files[header.Name] = string(content)
	}

	assert.Equal(t, map[string]string{
		"Dockerfile":     "FROM alpine\n",
		"scripts/run.sh": "echo hi\n",
	}, files)
}

func TestCreateBuildContext_MissingFolder(t *testing.T) {
	_, err := createBuildContext(filepath.Join(t.TempDir(), "missing"))

	assert.Error(t, err)
}

func TestStreamBuildOutput(t *testing.T) {
	ok := `{"stream":"Step 1/2 : FROM alpine\n"}` + "\n" + `{"stream":"Successfully built abc\n"}` + "\n"
	assert.NoError(t, streamBuildOutput(strings.NewReader(ok)))

	failed := `{"stream":"Step 1/2\n"}` + "\n" + `{"errorDetail":{"message":"boom"},"error":"boom"}` + "\n"
	err := streamBuildOutput(strings.NewReader(failed))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	assert.Error(t, streamBuildOutput(strings.NewReader("not json\n")))
}
