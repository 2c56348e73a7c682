package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/helix-tools/ledger-go/ledger"
)

// CallerHeader carries the caller identity resolved by the upstream identity layer.
const CallerHeader = "X-Caller-Identity"

// Handler serves the ledger over HTTP.
type Handler struct {
	ledger *ledger.Ledger
	logger *zap.Logger
}

// NewRouter returns the HTTP API for l. logger may be nil.
func NewRouter(l *ledger.Ledger, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{ledger: l, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.recoverMiddleware)
	r.Use(h.loggingMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/state", h.getState)

		r.Route("/datasets", func(r chi.Router) {
			r.Post("/", h.listDataset)
			r.Post("/batch", h.batchListDatasets)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getDataset)
				r.Put("/price", h.updatePrice)
				r.Post("/deactivate", h.deactivateDataset)
				r.Post("/versions", h.addVersion)
				r.Get("/versions", h.getVersions)
				r.Put("/category", h.updateCategory)
				r.Put("/tags", h.updateTags)
				r.Get("/tags", h.getTags)
				r.Post("/purchase", h.purchase)

				r.Put("/subscription-price", h.setSubscriptionPrice)
				r.Post("/subscribe", h.subscribe)
				r.Post("/cancel-subscription", h.cancelSubscription)
				r.Get("/check-subscription/{user}", h.checkSubscription)

				r.Put("/access", h.setAccess)
				r.Get("/access", h.getAccessControl)
				r.Get("/access/{user}", h.hasAccess)
				r.Post("/grant/{user}", h.grantAccess)
				r.Delete("/grant/{user}", h.revokeAccess)
				r.Put("/groups", h.setAllowedGroups)

				r.Post("/reviews", h.review)
				r.Get("/reviews", h.getReviews)
			})
		})

		r.Route("/categories", func(r chi.Router) {
			r.Post("/", h.addCategory)
			r.Get("/{id}", h.getCategory)
			r.Post("/{id}/deactivate", h.deactivateCategory)
		})

		r.Route("/users/{user}", func(r chi.Router) {
			r.Get("/datasets", h.getUserDatasets)
			r.Get("/purchases", h.getUserPurchases)
			r.Get("/groups", h.getUserGroups)
			r.Post("/groups", h.assignUserGroup)
		})
	})

	return r
}
