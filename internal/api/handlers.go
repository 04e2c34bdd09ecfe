package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/xaenox/reviewai/internal/amazon"
	"github.com/xaenox/reviewai/internal/analysis"
	"github.com/xaenox/reviewai/internal/auth"
	"github.com/xaenox/reviewai/internal/chat"
	"github.com/xaenox/reviewai/internal/models"
	"github.com/xaenox/reviewai/internal/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
	maxBodyBytes     = 1 << 20
)

// analyze handles POST /api/amazon/analyze. Callers without a valid
// identity still get a verdict; it is just not stored.
func (h *handler) analyze(w http.ResponseWriter, r *http.Request) {
	var input models.ProductInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&input); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !amazon.IsProductURL(input.URL) {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid Amazon product URL")
		return
	}

	var userID string
	if user, err := h.auth.Resolve(r); err == nil {
		userID = user.ID
	} else if !errors.Is(err, auth.ErrMissingCredentials) && !errors.Is(err, auth.ErrNotConfigured) {
		h.logger.Info("Treating caller as anonymous", zap.Error(err))
	}

	result, err := h.pipeline.Run(r.Context(), userID, input)
	if err != nil {
		status, msg := analyzeFailure(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Product analysis failed", zap.Error(err), zap.String("url", input.URL))
		}
		writeError(w, h.logger, status, msg)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, models.NewAnalyzeResponse(result, userID == ""))
}

func analyzeFailure(err error) (int, string) {
	switch {
	case errors.Is(err, amazon.ErrUnsupportedURL):
		return http.StatusBadRequest, "Invalid Amazon product URL"
	case errors.Is(err, analysis.ErrNoReviews):
		return http.StatusUnprocessableEntity, "No reviews found for this product"
	default:
		return http.StatusBadGateway, "Analysis failed. Please try again."
	}
}

// chatStream handles POST /api/chat. Every failure is reported as JSON
// before the first event is written.
func (h *handler) chatStream(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())

	var req chat.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}

	turn, err := h.chat.Prepare(r.Context(), user.ID, req)
	if err != nil {
		status, msg := chatFailure(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Chat request failed", zap.Error(err), zap.String("user_id", user.ID))
		}
		writeError(w, h.logger, status, msg)
		return
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := h.chat.Stream(r.Context(), w, turn); err != nil {
		h.logger.Debug("Chat stream ended early",
			zap.String("conversation_id", turn.Conversation.ID),
			zap.Error(err))
	}
}

func chatFailure(err error) (int, string) {
	switch {
	case errors.Is(err, chat.ErrNoMessages):
		return http.StatusBadRequest, "Messages are required"
	case errors.Is(err, amazon.ErrUnsupportedURL):
		return http.StatusBadRequest, "Invalid Amazon product URL"
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "Conversation not found"
	case errors.Is(err, analysis.ErrNoReviews):
		return http.StatusUnprocessableEntity, "No reviews found for this product"
	case errors.Is(err, chat.ErrCompletion):
		return http.StatusBadGateway, "The assistant is unavailable right now"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func listLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	return min(limit, maxListLimit)
}

func (h *handler) listConversations(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())
	convs, err := h.store.ListConversations(r.Context(), user.ID, listLimit(r))
	if err != nil {
		h.logger.Error("Failed to list conversations", zap.Error(err), zap.String("user_id", user.ID))
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"conversations": convs})
}

func (h *handler) listMessages(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())
	id := mux.Vars(r)["id"]

	conv, err := h.store.GetConversation(r.Context(), user.ID, id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, h.logger, http.StatusNotFound, "Conversation not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to get conversation", zap.Error(err), zap.String("conversation_id", id))
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		return
	}

	msgs, err := h.store.ListMessages(r.Context(), conv.ID)
	if err != nil {
		h.logger.Error("Failed to list messages", zap.Error(err), zap.String("conversation_id", id))
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"conversation": conv, "messages": msgs})
}

func (h *handler) listAnalyses(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())
	analyses, err := h.store.ListAnalyses(r.Context(), user.ID, listLimit(r))
	if err != nil {
		h.logger.Error("Failed to list analyses", zap.Error(err), zap.String("user_id", user.ID))
		writeError(w, h.logger, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"analyses": analyses})
}
