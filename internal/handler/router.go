package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	custommiddleware "github.com/mmeshcher/litterally/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Content-Encoding", custommiddleware.DeviceHeader},
		ExposedHeaders:   []string{custommiddleware.DeviceHeader, "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Get("/categories", h.GetCategories)
		r.Get("/categories/{id}", h.GetCategory)
		r.Get("/items", h.GetItems)

		r.Group(func(r chi.Router) {
			r.Use(h.deviceMiddleware.Middleware)

			r.Get("/profile", h.GetProfile)
			r.Put("/profile", h.UpdateProfile)
			r.Post("/profile/reset", h.ResetPoints)

			r.Get("/settings", h.GetSettings)
			r.Put("/settings", h.UpdateSettings)

			r.Route("/scan", func(r chi.Router) {
				r.Get("/", h.GetScan)
				r.Post("/permission", h.RequestPermission)
				r.Post("/flip", h.FlipCamera)
				r.Post("/capture", h.Capture)
				r.Post("/classify", h.Classify)
				r.Post("/points", h.ClaimPoints)
				r.Post("/retake", h.Retake)
				r.Post("/discard", h.Discard)
				r.Post("/confirm", h.Confirm)
			})

			r.Get("/history", h.GetHistory)
			r.Get("/photos/{name}", h.GetPhoto)
			r.Get("/events", h.Events)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
