package webpush

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"courier/service/subscription"
	"courier/service/util"

	"github.com/go-chi/chi/v5"
)

type Handlers struct {
	store  *subscription.Store
	logger *slog.Logger
}

func NewHandlers(store *subscription.Store, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handlers{
		store:  store,
		logger: logger,
	}
}

type registerRequest struct {
	Label           string  `json:"label,omitempty"`
	PushEndpoint    string  `json:"pushEndpoint"`
	P256dh          *string `json:"p256dh,omitempty"`
	Auth            *string `json:"auth,omitempty"`
	VapidPrivateKey *string `json:"vapidPrivateKey,omitempty"`
}

func (h *Handlers) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		util.JSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	webPush, err := req.validate()
	if err != nil {
		util.JSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	encrypted := webPush.HasEncryption()

	subID, err := h.store.AddSubscription(r.Context(), subscription.Subscription{
		Label:   req.Label,
		Channel: subscription.ChannelWebPush,
		WebPush: webPush,
	})
	if err != nil {
		util.LogAndError(w, h.logger, "Failed to add subscription", http.StatusInternalServerError, err)
		return
	}

	h.logger.Info("Added webpush subscription", "subscriptionID", subID, "encrypted", encrypted, "pushEndpoint", req.PushEndpoint)

	util.JSON(w, http.StatusCreated, map[string]string{
		"channel":        subscription.ChannelWebPush.String(),
		"subscriptionId": subID,
	})
}

func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	subs, err := h.store.GetSubscriptionsByChannel(r.Context(), subscription.ChannelWebPush)
	if err != nil {
		util.LogAndError(w, h.logger, "Failed to list subscriptions", http.StatusInternalServerError, err)
		return
	}

	type item struct {
		ID        string `json:"id"`
		Label     string `json:"label,omitempty"`
		Endpoint  string `json:"endpoint"`
		Encrypted bool   `json:"encrypted"`
	}
	items := make([]item, 0, len(subs))
	for _, s := range subs {
		items = append(items, item{ID: s.ID, Label: s.Label, Endpoint: s.WebPush.Endpoint, Encrypted: s.WebPush.HasEncryption()})
	}
	util.JSON(w, http.StatusOK, items)
}

func (h *Handlers) HandleUnregister(w http.ResponseWriter, r *http.Request) {
	subscriptionID := chi.URLParam(r, "subscriptionId")
	if subscriptionID == "" {
		util.JSONError(w, "subscriptionId is required", http.StatusBadRequest)
		return
	}

	if err := h.store.DeleteSubscription(r.Context(), subscriptionID); err != nil {
		if errors.Is(err, subscription.ErrNotFound) {
			util.JSONError(w, "Subscription not found", http.StatusNotFound)
			return
		}
		util.LogAndError(w, h.logger, "Failed to delete subscription", http.StatusInternalServerError, err)
		return
	}

	h.logger.Info("Deleted webpush subscription", "subscriptionID", subscriptionID)

	util.JSON(w, http.StatusOK, map[string]string{
		"status":         "deleted",
		"subscriptionId": subscriptionID,
	})
}
