// Package server hosts the gRPC health endpoint for a running triage process.
// The diagnosis service reports SERVING only while an active model that
// matches the knowledge table is loaded.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/danielpatrickdp/adaptive-triage/internal/network"
	"github.com/danielpatrickdp/adaptive-triage/internal/state"
)

// ServiceName is the health-check service key for the diagnosis engine.
const ServiceName = "triage.v1.Diagnosis"

// Server couples the model holder to a gRPC health server.
type Server struct {
	listener   net.Listener
	grpcServer *grpc.Server
	health     *health.Server

	holder   *network.Holder
	store    *state.Store
	inputDim int
	labels   []string
	logger   *slog.Logger
}

// NewWithAddr listens on addr. Models loaded by Reload must have inputDim
// features and exactly labels as classes.
func NewWithAddr(addr string, holder *network.Holder, store *state.Store, inputDim int, labels []string, logger *slog.Logger) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	s := &Server{
		listener:   listener,
		grpcServer: grpcServer,
		health:     healthServer,
		holder:     holder,
		store:      store,
		inputDim:   inputDim,
		labels:     labels,
		logger:     logger.With("component", "server"),
	}
	s.setStatus()
	return s, nil
}

// Addr returns the listener address.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Health exposes the health service for in-process checks.
func (s *Server) Health() grpc_health_v1.HealthServer { return s.health }

// Reload loads the registry's active artifact and swaps it into the holder.
// A failed reload keeps serving the previous model.
func (s *Server) Reload() error {
	rec, err := s.store.GetActive()
	if err != nil {
		s.setStatus()
		return fmt.Errorf("reload: %w", err)
	}
	m, err := network.Load(rec.ArtifactPath)
	if err != nil {
		s.setStatus()
		return fmt.Errorf("reload %s: %w", rec.VersionID, err)
	}
	if err := m.CheckCompatible(s.inputDim, s.labels); err != nil {
		s.setStatus()
		return fmt.Errorf("reload %s: %w", rec.VersionID, err)
	}
	s.holder.Swap(m)
	s.setStatus()
	s.logger.Info("model loaded", "version", rec.VersionID, "artifact", rec.ArtifactPath)
	return nil
}

func (s *Server) setStatus() {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if s.holder.Current() != nil {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
}

// Serve starts the gRPC server until context cancellation.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil || s.grpcServer == nil || s.listener == nil {
		return errors.New("server not configured")
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(s.listener)
	}()
	s.logger.Info("serving", "addr", s.Addr())

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
		err := <-serveErr
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	}
}

// Close stops the server immediately.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
}
