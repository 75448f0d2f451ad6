// Package health serves liveness and readiness over HTTP and the gRPC health protocol.
package health

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service key reported for the availability API.
const ServiceName = "calendly.availability"

// Check is a named dependency probe for /readyz.
type Check struct {
	Name  string
	Check func(context.Context) error
}

// Probe runs every check and returns the failures as "name: error".
func Probe(ctx context.Context, checks []Check) []string {
	var failures []string
	for _, c := range checks {
		if c.Check == nil {
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := c.Check(cctx)
		cancel()
		if err != nil {
			name := c.Name
			if name == "" {
				name = "dependency"
			}
			failures = append(failures, name+": "+err.Error())
		}
	}
	return failures
}

// NewMux returns a mux with /healthz and /readyz.
func NewMux(checks ...Check) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if failures := Probe(r.Context(), checks); len(failures) > 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(strings.Join(failures, "; ")))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	return mux
}

// Reporter keeps a gRPC health server in step with the readiness checks.
type Reporter struct {
	server *health.Server
	checks []Check
	logger *zerolog.Logger
}

func NewReporter(checks []Check, logger *zerolog.Logger) *Reporter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Reporter{server: health.NewServer(), checks: checks, logger: logger}
}

// Server is the grpc_health_v1 implementation to register on a gRPC server.
func (r *Reporter) Server() healthpb.HealthServer {
	return r.server
}

// Refresh probes once and publishes the result for ServiceName and the empty service.
func (r *Reporter) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if failures := Probe(ctx, r.checks); len(failures) > 0 {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		r.logger.Warn().Strs("failures", failures).Msg("Readiness check failed")
	}
	r.server.SetServingStatus("", status)
	r.server.SetServingStatus(ServiceName, status)
	return status
}

// Run refreshes every interval until ctx is done, then marks everything as shutting down.
func (r *Reporter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	r.Refresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.server.Shutdown()
			return
		case <-ticker.C:
			r.Refresh(ctx)
		}
	}
}
