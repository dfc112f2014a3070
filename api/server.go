/*
server.go - HTTP server and routing

PURPOSE:
  Wires chi routes to the handlers, installs standard middleware, and
  provides the health and metrics endpoints.
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the full route tree for the service.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/payments", func(r chi.Router) {
			r.Post("/initiate", h.InitiateTopUp)
			r.Post("/verify", h.VerifyPayment)
		})

		r.Route("/enrollments", func(r chi.Router) {
			r.Post("/", h.CreateEnrollment)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetEnrollment)
				r.Post("/plan", h.ChoosePlan)
				r.Get("/installments", h.ListInstallments)
				r.Post("/installments/{installmentID}/pay", h.PayInstallment)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/{userID}/wallet", h.GetWallet)
			r.Get("/{userID}/transactions", h.GetTransactions)
			r.Route("/{userID}/exams/{examID}", func(r chi.Router) {
				r.Get("/", h.GetExamStatus)
				r.Post("/participation", h.StartParticipation)
				r.Post("/complete", h.CompleteExam)
			})
		})

		r.Post("/exams", h.CreateExam)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}
