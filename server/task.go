package server

import (
	"DispatchEngine/container"
	"DispatchEngine/log"
	"DispatchEngine/pool"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"
	"math"
	"time"
)

const (
	KindSleep     = "sleep"
	KindContainer = "container"
)

const (
	maxSleep            = time.Hour
	maxContainerTimeout = 24 * time.Hour
)

var errDockerDisabled = errors.New("container jobs are disabled on this server")

type JobRequest struct {
	Kind     string
	Duration time.Duration
	Image    string
	Command  []string
	Env      []string
	Timeout  time.Duration
}

func (r JobRequest) toStruct() (*structpb.Struct, error) {
	fields := map[string]any{"kind": r.Kind}
	switch r.Kind {
	case KindSleep:
		fields["duration_ms"] = r.Duration.Milliseconds()
	case KindContainer:
		fields["image"] = r.Image
		fields["command"] = stringsToList(r.Command)
		fields["env"] = stringsToList(r.Env)
		if r.Timeout > 0 {
			fields["timeout_ms"] = r.Timeout.Milliseconds()
		}
	}
	return structpb.NewStruct(fields)
}

func parseJobRequest(request *structpb.Struct) (JobRequest, error) {
	fields := request.GetFields()
	parsed := JobRequest{Kind: fields["kind"].GetStringValue()}

	switch parsed.Kind {
	case KindSleep:
		duration, err := parseMillis(fields, "duration_ms", maxSleep)
		if err != nil {
			return JobRequest{}, err
		}
		parsed.Duration = duration
	case KindContainer:
		var err error
		parsed.Image = fields["image"].GetStringValue()
		if parsed.Command, err = listToStrings("command", fields["command"]); err != nil {
			return JobRequest{}, err
		}
		if parsed.Env, err = listToStrings("env", fields["env"]); err != nil {
			return JobRequest{}, err
		}
		if parsed.Timeout, err = parseMillis(fields, "timeout_ms", maxContainerTimeout); err != nil {
			return JobRequest{}, err
		}
		request := container.Request{Image: parsed.Image, Command: parsed.Command, Env: parsed.Env, Timeout: parsed.Timeout}
		if err := request.Validate(); err != nil {
			return JobRequest{}, err
		}
	default:
		return JobRequest{}, fmt.Errorf("unknown job kind %q", parsed.Kind)
	}
	return parsed, nil
}

// parseMillis reads a millisecond count and bounds it before converting, so
// huge values cannot wrap around time.Duration.
func parseMillis(fields map[string]*structpb.Value, name string, limit time.Duration) (time.Duration, error) {
	ms := fields[name].GetNumberValue()
	switch {
	case math.IsNaN(ms):
		return 0, fmt.Errorf("%s is not a number", name)
	case ms < 0:
		return 0, fmt.Errorf("%s must not be negative, got %v", name, ms)
	case ms > float64(limit.Milliseconds()):
		return 0, fmt.Errorf("%s exceeds %s", name, limit)
	}
	return time.Duration(ms * float64(time.Millisecond)), nil
}

func (s *Server) newJob(id uuid.UUID, request JobRequest) (pool.Job, error) {
	switch request.Kind {
	case KindSleep:
		return pool.JobFunc(func() {
			s.registry.markRunning(id)
			time.Sleep(request.Duration)
			s.registry.markFinished(id, nil)
		}), nil
	case KindContainer:
		if s.docker == nil {
			return nil, errDockerDisabled
		}
		timeout := request.Timeout
		if timeout == 0 {
			timeout = s.containerTimeout
		}
		return &container.Job{
			ID:     id,
			Client: s.docker,
			Request: container.Request{
				Image:   request.Image,
				Command: request.Command,
				Env:     request.Env,
				Timeout: timeout,
			},
			OnStart: func() {
				s.registry.markRunning(id)
			},
			OnResult: func(result container.Result) {
				s.registry.markFinished(id, func(status *JobStatus) {
					applyContainerResult(status, result)
				})
				log.L().Debug("Got container job output", zap.String("jobID", id.String()), zap.Int64("exitCode", result.ExitCode))
			},
		}, nil
	default:
		return nil, fmt.Errorf("unknown job kind %q", request.Kind)
	}
}

func applyContainerResult(status *JobStatus, result container.Result) {
	status.ExitCode = result.ExitCode
	status.Stdout = result.Stdout
	status.Stderr = result.Stderr
	switch {
	case result.Err != nil:
		status.State = StateFailed
		status.Error = result.Err.Error()
	case result.ExitCode != 0:
		status.State = StateFailed
		status.Error = fmt.Sprintf("container exited with code %d", result.ExitCode)
	}
}

func stringsToList(values []string) []any {
	list := make([]any, 0, len(values))
	for _, v := range values {
		list = append(list, v)
	}
	return list
}

func listToStrings(name string, value *structpb.Value) ([]string, error) {
	if value == nil {
		return nil, nil
	}
	if _, isNull := value.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, nil
	}
	list := value.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("%s must be a list of strings", name)
	}
	var out []string
	for i, v := range list.GetValues() {
		str, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be a string", name, i)
		}
		out = append(out, str.StringValue)
	}
	return out, nil
}
