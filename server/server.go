package server

import (
	"DispatchEngine/log"
	"DispatchEngine/pool"
	"context"
	"errors"
	"github.com/docker/docker/client"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"net"
	"time"
)

type Server struct {
	pool             pool.WorkerPool
	docker           *client.Client
	containerTimeout time.Duration
	registry         *registry
	retention        time.Duration
	grpcServer       *grpc.Server
}

type Option func(*Server)

// WithRetention keeps finished job records for d before they are swept.
// Zero keeps them for the lifetime of the server.
func WithRetention(d time.Duration) Option {
	return func(s *Server) {
		s.retention = d
	}
}

var _ JobServiceServer = (*Server)(nil)

// NewServer serves jobs on workerPool. Container jobs are rejected when
// dockerClient is nil.
func NewServer(workerPool pool.WorkerPool, dockerClient *client.Client, containerTimeout time.Duration, opts ...Option) *Server {
	s := &Server{
		pool:             workerPool,
		docker:           dockerClient,
		containerTimeout: containerTimeout,
		registry:         newRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor))
	RegisterJobServiceServer(s.grpcServer, s)
	return s
}

// Serve blocks until ctx is done, then stops accepting calls and waits for
// in-flight calls to finish.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	log.L().Info("Starting gRPC server", zap.String("listenAddress", listener.Addr().String()))

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	if s.retention > 0 {
		go s.sweep(sweepCtx)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		log.L().Info("Stopping gRPC server")
		s.grpcServer.GracefulStop()
		<-serveErr
		return nil
	case err := <-serveErr:
		return err
	}
}

func (s *Server) sweep(ctx context.Context) {
	ticker := time.NewTicker(max(s.retention/2, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if evicted := s.registry.evictFinished(now.Add(-s.retention)); evicted > 0 {
				log.L().Debug("Evicted finished jobs", zap.Int("count", evicted))
			}
		}
	}
}

func (s *Server) Submit(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	log.L().Debug("Received new gRPC call", zap.String("request", request.String()))

	parsed, err := parseJobRequest(request)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	jobID := uuid.New()
	job, err := s.newJob(jobID, parsed)
	if errors.Is(err, errDockerDisabled) {
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	s.registry.add(jobID, parsed.Kind)
	if err := s.pool.Submit(job); err != nil {
		s.registry.remove(jobID)
		if errors.Is(err, pool.ErrRejectedSubmission) {
			return nil, status.Error(codes.Unavailable, err.Error())
		}
		log.L().Error("Cannot submit job", zap.Error(err), zap.String("jobID", jobID.String()))
		return nil, status.Error(codes.Internal, err.Error())
	}

	return structpb.NewStruct(map[string]any{
		"id":    jobID.String(),
		"state": string(StateQueued),
	})
}

func (s *Server) Status(ctx context.Context, request *structpb.Struct) (*structpb.Struct, error) {
	rawID := request.GetFields()["id"].GetStringValue()
	jobID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid job id %q: %v", rawID, err)
	}

	record, ok := s.registry.get(jobID)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "job %s not found", jobID)
	}
	return statusToStruct(record)
}

func (s *Server) Stats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	stats := s.pool.Stats()
	return structpb.NewStruct(map[string]any{
		"workers":   stats.Workers,
		"idle":      stats.Idle,
		"busy":      stats.Busy,
		"backlog":   stats.Backlog,
		"submitted": stats.Submitted,
		"completed": stats.Completed,
		"faulted":   stats.Faulted,
		"abandoned": stats.Abandoned,
		"draining":  stats.Draining,
		"stopped":   stats.Stopped,
		"tracked":   s.registry.count(),
	})
}

func statusToStruct(record JobStatus) (*structpb.Struct, error) {
	fields := map[string]any{
		"id":        record.ID,
		"kind":      record.Kind,
		"state":     string(record.State),
		"error":     record.Error,
		"exit_code": record.ExitCode,
		"stdout":    record.Stdout,
		"stderr":    record.Stderr,
		"submitted": formatTime(record.Submitted),
		"started":   formatTime(record.Started),
		"finished":  formatTime(record.Finished),
	}
	return structpb.NewStruct(fields)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	log.L().Debug("Handled gRPC call",
		zap.String("method", info.FullMethod),
		zap.Stringer("code", status.Code(err)),
		zap.Duration("elapsed", time.Since(start)))
	return resp, err
}
