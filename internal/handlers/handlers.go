package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"keepsake-go/internal/push"
	"keepsake-go/internal/reminder"
	"keepsake-go/internal/store"
)

type Handler struct {
	Store store.Store
	// Scheduler is nil when push delivery is disabled.
	Scheduler      *reminder.Scheduler
	VAPIDPublicKey string
	sessions       *sessions.CookieStore
}

func NewHandler(s store.Store, gate push.Gate, scheduler *reminder.Scheduler, sessionSecret string) *Handler {
	h := &Handler{
		Store:     s,
		Scheduler: scheduler,
		sessions:  newSessionStore(sessionSecret),
	}
	if gate.Enabled {
		h.VAPIDPublicKey = gate.Dispatcher.PublicKey()
	}
	return h
}

// Routes registers every endpoint on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", h.HealthHandler)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/login", h.LoginHandler)
	mux.HandleFunc("/api/logout", h.LogoutHandler)

	mux.HandleFunc("/api/todos", h.AuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.GetTodosHandler(w, r)
		case http.MethodPost:
			h.CreateTodoHandler(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}))
	mux.HandleFunc("/api/todos/", h.AuthMiddleware(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			h.UpdateTodoHandler(w, r)
		case http.MethodDelete:
			h.DeleteTodoHandler(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}))

	mux.HandleFunc("/api/push/vapid-public-key", h.GetVAPIDKeyHandler)
	mux.HandleFunc("/api/push/subscribe", h.AuthMiddleware(h.SubscribePushHandler))
	mux.HandleFunc("/api/push/unsubscribe", h.AuthMiddleware(h.UnsubscribePushHandler))

	// Without push credentials there is no scheduler and no manual run.
	if h.Scheduler != nil {
		mux.HandleFunc("/api/reminders/check", h.AuthMiddleware(h.CheckRemindersHandler))
	}

	return mux
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"push_enabled": h.Scheduler != nil,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// pathID parses the trailing id of /api/todos/{id}.
func pathID(path, prefix string) (int, bool) {
	idStr := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	id, err := strconv.Atoi(idStr)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
