package container

import (
	"DispatchEngine/log"
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"go.uber.org/zap"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// BuildImage builds imageName from the Dockerfile in buildContextFolder and
// streams the build output to the log.
func BuildImage(ctx context.Context, cli *client.Client, buildContextFolder, imageName string) error {
	log.L().Debug("Creating build context", zap.String("buildContextFolder", buildContextFolder))
	buildContext, err := createBuildContext(buildContextFolder)
	if err != nil {
		return fmt.Errorf("failed to create build context: %w", err)
	}

	log.L().Info("Building Docker image", zap.String("image", imageName))
	response, err := cli.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Dockerfile: "Dockerfile",
		Tags:       []string{imageName},
		Version:    types.BuilderV1,
		Remove:     true,
	})
	if err != nil {
		return fmt.Errorf("failed to build Docker image: %w", err)
	}
	defer response.Body.Close()

	return streamBuildOutput(response.Body)
}

func streamBuildOutput(body io.Reader) error {
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		var message jsonmessage.JSONMessage
		if err := json.Unmarshal(scanner.Bytes(), &message); err != nil {
			return fmt.Errorf("failed to unmarshal build message: %w", err)
		}
		if message.Error != nil {
			return message.Error
		}
		if stream := strings.TrimSpace(message.Stream); stream != "" {
			log.L().Info(stream)
		}
	}
	return scanner.Err()
}

// createBuildContext packs buildContextFolder into a tar archive.
func createBuildContext(buildContextFolder string) (io.Reader, error) {
	buffer := new(bytes.Buffer)
	tarWriter := tar.NewWriter(buffer)

	err := filepath.Walk(buildContextFolder, func(path string, fileInfo os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fileInfo.IsDir() {
			return nil
		}

		log.L().Debug("Adding file to build context", zap.String("path", path))
		header, err := tar.FileInfoHeader(fileInfo, fileInfo.Name())
		if err != nil {
			return err
		}
		relative, err := filepath.Rel(buildContextFolder, path)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relative)
		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(tarWriter, f)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk context directory: %w", err)
	}

	if err := tarWriter.Close(); err != nil {
		return nil, err
	}
	return buffer, nil
}
