package handlers

import (
	"errors"
	"net/http"

	"keepsake-go/internal/reminder"
)

// CheckRemindersHandler runs one reminder check cycle now. Only registered
// when push delivery is enabled.
func (h *Handler) CheckRemindersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	res := h.Scheduler.RunOnce(r.Context())
	status := http.StatusOK
	switch {
	case errors.Is(res.Err, reminder.ErrTickInProgress):
		status = http.StatusConflict
	case res.Err != nil:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, res)
}
