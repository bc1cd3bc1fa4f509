package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

// GetVAPIDKeyHandler returns the public VAPID key clients subscribe with
func (h *Handler) GetVAPIDKeyHandler(w http.ResponseWriter, r *http.Request) {
	if h.VAPIDPublicKey == "" {
		writeError(w, http.StatusInternalServerError, "Push notifications not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": h.VAPIDPublicKey})
}

// SubscribePushHandler saves a push subscription for the current user
func (h *Handler) SubscribePushHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Endpoint string `json:"endpoint"`
		Keys     struct {
			P256dh string `json:"p256dh"`
			Auth   string `json:"auth"`
		} `json:"keys"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if req.Endpoint == "" || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		writeError(w, http.StatusBadRequest, "Invalid subscription data")
		return
	}

	userID := currentUserID(r)
	if err := h.Store.SavePushSubscription(r.Context(), userID, req.Endpoint, req.Keys.P256dh, req.Keys.Auth); err != nil {
		logrus.Errorf("Failed to save subscription for user %d: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "Failed to save subscription")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Subscription saved successfully"})
}

// UnsubscribePushHandler removes one of the current user's subscriptions
func (h *Handler) UnsubscribePushHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "Endpoint is required")
		return
	}

	userID := currentUserID(r)
	if err := h.Store.DeleteUserPushSubscription(r.Context(), userID, req.Endpoint); err != nil {
		logrus.Errorf("Failed to delete subscription for user %d: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "Failed to delete subscription")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Subscription removed successfully"})
}
