package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	redisadapter "github.com/sakan-app/sakan-backend/internal/adapters/redis"
	"github.com/sakan-app/sakan-backend/internal/observability"
	"github.com/sakan-app/sakan-backend/internal/ratelimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *ratelimit.RateLimiter, idemp *redisadapter.Idempotency, jwtSecret string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)

	// Unauthenticated surface: probes, metrics and the gateway callback.
	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Post("/v1/payments/paymob/webhook", h.PaymobWebhook)
	r.Get("/v1/properties/{id}", h.GetProperty)

	r.Group(func(r chi.Router) {
		r.Use(JWTMiddleware(jwtSecret))
		r.Use(RateLimitMiddleware(rl))
		r.Use(IdempotencyMiddleware(idemp, 24*time.Hour))

		r.Post("/v1/bookings/deposit", h.CreateBooking)
		r.Post("/v1/bookings/{id}/remaining", h.CreateRemainingPayment)
		r.Get("/v1/bookings/{id}", h.GetBooking)
		r.Post("/v1/uploads", h.CreateUploadURL)
		r.Delete("/v1/uploads", h.DeleteUpload)
	})

	return r
}

func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		observability.RequestsTotal.WithLabelValues(r.URL.Path, strconv.Itoa(ww.Status()), r.Method).Inc()
	})
}
