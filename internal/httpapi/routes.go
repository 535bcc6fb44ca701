package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/overbid/live-auction-backend/internal/registry"
	"github.com/overbid/live-auction-backend/internal/ws"
)

func SetupRoutes(r *registry.Registry, log *zap.Logger) http.Handler {
	mux := chi.NewRouter()

	// Public routes
	mux.Get("/auctions", ListAuctions(r))
	mux.Get("/healthz", Healthz)
	mux.Get("/ws", ws.Handler(r, log))
	return mux
}
