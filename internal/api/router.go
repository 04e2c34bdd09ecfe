// Package api exposes the analysis, chat and history endpoints.
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xaenox/reviewai/internal/auth"
	"github.com/xaenox/reviewai/internal/chat"
	"github.com/xaenox/reviewai/internal/models"
	"github.com/xaenox/reviewai/internal/storage"
)

// AnalysisRunner runs the scrape-then-complete pipeline.
type AnalysisRunner interface {
	Run(ctx context.Context, userID string, input models.ProductInput) (*models.ProductAnalysis, error)
}

type Deps struct {
	Store          storage.Storage
	Pipeline       AnalysisRunner
	Chat           *chat.Service
	Auth           *auth.Resolver
	AllowedOrigins []string
	Logger         *zap.Logger
}

type handler struct {
	store    storage.Storage
	pipeline AnalysisRunner
	chat     *chat.Service
	auth     *auth.Resolver
	logger   *zap.Logger
}

// NewRouter wires every route and middleware.
func NewRouter(d Deps) *mux.Router {
	h := &handler{store: d.Store, pipeline: d.Pipeline, chat: d.Chat, auth: d.Auth, logger: d.Logger}

	router := mux.NewRouter()
	router.Use(recoverMiddleware(d.Logger), logMiddleware(d.Logger), corsMiddleware(d.AllowedOrigins))

	router.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/amazon/analyze", h.analyze).Methods(http.MethodPost, http.MethodOptions)

	private := api.NewRoute().Subrouter()
	private.Use(requireUser(d.Auth, d.Logger))
	private.HandleFunc("/chat", h.chatStream).Methods(http.MethodPost, http.MethodOptions)
	private.HandleFunc("/conversations", h.listConversations).Methods(http.MethodGet, http.MethodOptions)
	private.HandleFunc("/conversations/{id}/messages", h.listMessages).Methods(http.MethodGet, http.MethodOptions)
	private.HandleFunc("/analyses", h.listAnalyses).Methods(http.MethodGet, http.MethodOptions)

	return router
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn("Storage health check failed", zap.Error(err))
		writeJSON(w, h.logger, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ok"})
}
