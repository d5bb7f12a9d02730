// services/health_service.go

package services

import (
	"context"

	"github.com/sirupsen/logrus"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthCheckService implements gRPC health checks against cart storage.
type HealthCheckService struct {
	storage Pinger
	log     logrus.FieldLogger
	healthpb.UnimplementedHealthServer
}

// NewHealthCheckService constructor
func NewHealthCheckService(storage Pinger, log logrus.FieldLogger) *HealthCheckService {
	return &HealthCheckService{storage: storage, log: log}
}

// Check pings the storage backend and reports SERVING or NOT_SERVING.
func (h *HealthCheckService) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	h.log.WithField("service", req.GetService()).Debug("HealthCheckService: Check called")
	if h.storage.Ping(ctx) {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
}
