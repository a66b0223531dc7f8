package handler

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// BotServiceName is the health service name reported alongside the overall "" entry.
const BotServiceName = "sellerbot.Bot"

// GRPCHandler exposes the standard gRPC health service.
type GRPCHandler struct {
	health *health.Server
}

func NewGRPCHandler() *GRPCHandler {
	h := &GRPCHandler{health: health.NewServer()}
	h.SetServing(false)
	return h
}

func (h *GRPCHandler) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.health)
}

func (h *GRPCHandler) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(BotServiceName, status)
}

// Shutdown reports NOT_SERVING permanently, ignoring later SetServing calls.
func (h *GRPCHandler) Shutdown() {
	h.health.Shutdown()
}
