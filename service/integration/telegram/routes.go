package telegram

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"courier/service/subscription"
	"courier/service/util"

	"github.com/go-chi/chi/v5"
)

type Handlers struct {
	store  *subscription.Store
	logger *slog.Logger
}

type registerRequest struct {
	Label  string `json:"label,omitempty"`
	ChatID string `json:"chatId"`
}

func (h *Handlers) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := util.DecodeJSON(w, r, &req); err != nil {
		util.JSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := strconv.ParseInt(req.ChatID, 10, 64); err != nil {
		util.JSONError(w, "chatId must be a numeric telegram chat id", http.StatusBadRequest)
		return
	}

	subID, err := h.store.AddSubscription(r.Context(), subscription.Subscription{
		Label:    req.Label,
		Channel:  subscription.ChannelTelegram,
		Telegram: &subscription.TelegramSubscription{ChatID: req.ChatID},
	})
	if err != nil {
		util.LogAndError(w, h.logger, "Failed to add subscription", http.StatusInternalServerError, err)
		return
	}

	h.logger.Info("Added telegram subscription", "subscriptionID", subID, "chatID", req.ChatID)
	util.JSON(w, http.StatusCreated, map[string]string{
		"channel":        subscription.ChannelTelegram.String(),
		"subscriptionId": subID,
	})
}

func (h *Handlers) HandleUnregister(w http.ResponseWriter, r *http.Request) {
	subscriptionID := chi.URLParam(r, "subscriptionId")
	if err := h.store.DeleteSubscription(r.Context(), subscriptionID); err != nil {
		if errors.Is(err, subscription.ErrNotFound) {
			util.JSONError(w, "Subscription not found", http.StatusNotFound)
			return
		}
		util.LogAndError(w, h.logger, "Failed to delete subscription", http.StatusInternalServerError, err)
		return
	}

	h.logger.Info("Deleted telegram subscription", "subscriptionID", subscriptionID)
	util.JSON(w, http.StatusOK, map[string]string{"status": "deleted", "subscriptionId": subscriptionID})
}

func RegisterRoutes(router chi.Router, store *subscription.Store, logger *slog.Logger, auth func(http.Handler) http.Handler) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	handlers := &Handlers{store: store, logger: logger}

	router.Route("/api/v1/telegram/subscriptions", func(r chi.Router) {
		r.Use(auth)
		r.Post("/", handlers.HandleRegister)
		r.Delete("/{subscriptionId}", handlers.HandleUnregister)
	})
}
