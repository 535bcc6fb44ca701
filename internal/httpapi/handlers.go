package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/overbid/live-auction-backend/internal/registry"
)

// ListAuctions returns every live auction: product id, seller and headcount.
func ListAuctions(r *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		reply := make(chan []registry.Summary, 1)
		select {
		case r.Inbox() <- registry.List{Reply: reply}:
		case <-req.Context().Done():
			http.Error(w, "registry unavailable", http.StatusServiceUnavailable)
			return
		}

		select {
		case auctions := <-reply:
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(struct {
				Auctions []registry.Summary `json:"auctions"`
			}{Auctions: auctions})
		case <-req.Context().Done():
			http.Error(w, "registry unavailable", http.StatusServiceUnavailable)
		}
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
