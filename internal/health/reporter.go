package health

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceBackend is the health service name reflecting assistant backend
// reachability. The empty service name reports the server itself.
const ServiceBackend = "intelliform.Backend"

// Reporter publishes serving status over grpc.health.v1.
type Reporter struct {
	srv    *health.Server
	logger *slog.Logger
}

// NewReporter returns a reporter with the server marked SERVING and the
// backend NOT_SERVING until the first probe succeeds.
func NewReporter(logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	srv := health.NewServer()
	srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	srv.SetServingStatus(ServiceBackend, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Reporter{srv: srv, logger: logger}
}

// Register installs the health service on s.
func (r *Reporter) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, r.srv)
}

// SetBackend records backend reachability.
func (r *Reporter) SetBackend(up bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if up {
		status = healthpb.HealthCheckResponse_SERVING
	}
	r.srv.SetServingStatus(ServiceBackend, status)
}

// Track wraps check so each result also updates the backend status.
func (r *Reporter) Track(check func(ctx context.Context) error) Probe {
	return func(ctx context.Context) bool {
		err := check(ctx)
		if err != nil {
			r.logger.Debug("backend probe failed", "error", err)
		}
		r.SetBackend(err == nil)
		return err == nil
	}
}

// Status returns the current status of service.
func (r *Reporter) Status(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := r.srv.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Shutdown marks every service NOT_SERVING.
func (r *Reporter) Shutdown() {
	r.srv.Shutdown()
}
