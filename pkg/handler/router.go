package handler

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(dbctx *DBContext) *http.ServeMux {
	mux := http.NewServeMux()

	// Error route
	mux.HandleFunc("GET /favicon.ico", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	})

	// API routes
	mux.HandleFunc("GET /api/v1/health", HealthCheck)
	mux.HandleFunc("GET /api/v1/studies", dbctx.ListStudies)
	mux.HandleFunc("POST /api/v1/query", dbctx.QueryVariantsHandler)
	mux.HandleFunc("POST /api/v1/explain", dbctx.ExplainHandler)
	mux.HandleFunc("GET /api/v1/reference/{study}", dbctx.GetReferenceHandler)

	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}
