package server

import (
	"DispatchEngine/pool"
	"context"
	"fmt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"time"
)

type Client struct {
	conn *grpc.ClientConn
}

func NewClient(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC client for %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Submit returns the id the server assigned to the job.
func (c *Client) Submit(ctx context.Context, request JobRequest) (string, error) {
	in, err := request.toStruct()
	if err != nil {
		return "", err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, submitMethod, in, out); err != nil {
		return "", err
	}
	return out.GetFields()["id"].GetStringValue(), nil
}

func (c *Client) Status(ctx context.Context, id string) (JobStatus, error) {
	in, err := structpb.NewStruct(map[string]any{"id": id})
	if err != nil {
		return JobStatus{}, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, statusMethod, in, out); err != nil {
		return JobStatus{}, err
	}

	fields := out.GetFields()
	return JobStatus{
		ID:        fields["id"].GetStringValue(),
		Kind:      fields["kind"].GetStringValue(),
		State:     State(fields["state"].GetStringValue()),
		Error:     fields["error"].GetStringValue(),
		ExitCode:  int64(fields["exit_code"].GetNumberValue()),
		Stdout:    fields["stdout"].GetStringValue(),
		Stderr:    fields["stderr"].GetStringValue(),
		Submitted: parseTime(fields["submitted"].GetStringValue()),
		Started:   parseTime(fields["started"].GetStringValue()),
		Finished:  parseTime(fields["finished"].GetStringValue()),
	}, nil
}

func (c *Client) Stats(ctx context.Context) (pool.Stats, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, statsMethod, &emptypb.Empty{}, out); err != nil {
		return pool.Stats{}, err
	}

	fields := out.GetFields()
	number := func(name string) float64 {
		return fields[name].GetNumberValue()
	}
	return pool.Stats{
		Workers:   int(number("workers")),
		Idle:      int(number("idle")),
		Busy:      int(number("busy")),
		Backlog:   int(number("backlog")),
		Submitted: uint64(number("submitted")),
		Completed: uint64(number("completed")),
		Faulted:   uint64(number("faulted")),
		Abandoned: uint64(number("abandoned")),
		Draining:  fields["draining"].GetBoolValue(),
		Stopped:   fields["stopped"].GetBoolValue(),
	}, nil
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
