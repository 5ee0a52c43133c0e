package container

import (
	"time"
)

const containerWorkingDirectory = "/workspace"

const containerNamePrefix = "dispatch-"

const (
	labelManagedBy = "dispatch-engine.managed-by"
	labelJobID     = "dispatch-engine.job-id"
	managedByValue = "dispatch-engine"
)

const defaultTimeout = 30 * time.Second

const removeTimeout = 10 * time.Second
