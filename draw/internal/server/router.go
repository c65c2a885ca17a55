// Package server provides HTTP server setup for the draw service.
package server

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lottoworks/drawstack/common/middleware"
	"github.com/lottoworks/drawstack/draw/internal/handlers"
)

// NewRouter constructs a ServeMux with the draw API routes registered.
func NewRouter(h *handlers.Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoints
	mux.HandleFunc("GET /healthz", h.HealthCheck)
	mux.HandleFunc("GET /readyz", h.ReadyCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/v1/draws/run", h.RunDraws)
	mux.HandleFunc("POST /api/v1/exports/run", h.RunExports)

	mux.HandleFunc("GET /api/v1/lotteries/due", h.DueLotteries)
	mux.HandleFunc("GET /api/v1/lotteries/{id}", h.GetLottery)
	mux.HandleFunc("POST /api/v1/lotteries/{id}/draw", h.DrawLottery)
	mux.HandleFunc("GET /api/v1/lotteries/{id}/winners", h.GetWinners)
	mux.HandleFunc("GET /api/v1/lotteries/{id}/tickets", h.GetTickets)
	mux.HandleFunc("DELETE /api/v1/lotteries/{id}/tickets", h.DropTickets)

	if logger == nil {
		logger = slog.Default()
	}
	return middleware.RequestID(middleware.AccessLog(logger)(mux))
}
