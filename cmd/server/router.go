package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/PPS-H/Invoice-manager-backend/internal/api"
	apiMiddleware "github.com/PPS-H/Invoice-manager-backend/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes
// and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)
	scanHandler := api.NewScanHandler(app.scanService, app.sweeper, app.logger)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			// Scan endpoints
			r.Post("/scans", scanHandler.SubmitScan)
			r.Post("/scans/bulk", scanHandler.SubmitBulkScan)
			r.Get("/scans", scanHandler.ListScans)
			r.Get("/scans/{taskID}", scanHandler.GetScanStatus)
			r.Post("/scans/{taskID}/cancel", scanHandler.CancelScan)

			// Administrative endpoints
			r.Group(func(r chi.Router) {
				r.Use(authMiddleware.RequireAdmin)
				r.Post("/admin/scans/cleanup", scanHandler.CleanupScans)
			})
		})
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
