package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pathlight/pathlight-api/internal/api"
	apiMiddleware "github.com/pathlight/pathlight-api/internal/api/middleware"
	"github.com/pathlight/pathlight-api/internal/metrics"
)

// setupRouter creates and configures the application router with all routes and middleware.
// It accepts the application dependencies to create handlers and register routes.
// Returns the configured router.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	// Apply standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)
	r.Use(metrics.Middleware)

	// Create API handlers using the application's services
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.config.Auth.JWTSecret)
	generationHandler := api.NewGenerationHandler(app.pathService)
	taskHandler := api.NewTaskHandler(app.taskService)
	completionHandler := api.NewCompletionHandler(app.progressService)

	// Register routes
	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			// Generation endpoints
			r.Post("/paths/generate", generationHandler.GeneratePath)

			// Task polling endpoints
			r.Get("/tasks", taskHandler.ListTasks)
			r.Get("/tasks/{taskID}", taskHandler.GetTask)
			r.Get("/paths/{pathID}/tasks/latest", taskHandler.GetLatestForPath)

			// Progress endpoints
			r.Put("/cards/{cardID}/completion", completionHandler.SetCompletion)
		})
	})

	// Operational endpoints (public)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
