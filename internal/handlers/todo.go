package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"keepsake-go/internal/models"
	"keepsake-go/internal/reminder"
	"keepsake-go/internal/store"
)

type todoRequest struct {
	Title          *string `json:"title"`
	Description    *string `json:"description"`
	DueDate        *string `json:"due_date"`
	ReminderTime   *string `json:"reminder_time"`
	TimezoneOffset *int    `json:"timezone_offset"`
	Completed      *bool   `json:"completed"`
}

// normalizeLocal validates a client local time and rewrites it as
// "YYYY-MM-DDTHH:MM". Empty strings clear the field.
func normalizeLocal(v *string) (*string, error) {
	if v == nil {
		return nil, nil
	}
	if strings.TrimSpace(*v) == "" {
		empty := ""
		return &empty, nil
	}
	lt, err := reminder.ParseLocalTime(*v)
	if err != nil {
		return nil, err
	}
	s := lt.String()
	return &s, nil
}

func (req *todoRequest) normalize() error {
	var err error
	if req.DueDate, err = normalizeLocal(req.DueDate); err != nil {
		return err
	}
	if req.ReminderTime, err = normalizeLocal(req.ReminderTime); err != nil {
		return err
	}
	if req.TimezoneOffset != nil && (*req.TimezoneOffset < -14*60 || *req.TimezoneOffset > 14*60) {
		return errors.New("timezone_offset out of range")
	}
	return nil
}

func emptyToNil(v *string) *string {
	if v == nil || *v == "" {
		return nil
	}
	return v
}

func (h *Handler) GetTodosHandler(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)
	todos, err := h.Store.GetTodos(r.Context(), userID)
	if err != nil {
		logrus.Errorf("Failed to fetch todos for user %d: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch todos")
		return
	}
	writeJSON(w, http.StatusOK, todos)
}

func (h *Handler) CreateTodoHandler(w http.ResponseWriter, r *http.Request) {
	var req todoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if req.Title == nil || strings.TrimSpace(*req.Title) == "" {
		writeError(w, http.StatusBadRequest, "Title is required")
		return
	}
	if err := req.normalize(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	title := strings.TrimSpace(*req.Title)
	todo := models.Todo{
		Title:          title,
		Description:    emptyToNil(req.Description),
		DueDate:        emptyToNil(req.DueDate),
		ReminderTime:   emptyToNil(req.ReminderTime),
		TimezoneOffset: req.TimezoneOffset,
	}

	userID := currentUserID(r)
	created, err := h.Store.CreateTodo(r.Context(), userID, todo)
	if err != nil {
		logrus.Errorf("Failed to create todo for user %d: %v", userID, err)
		writeError(w, http.StatusInternalServerError, "Failed to create todo")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) UpdateTodoHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r.URL.Path, "/api/todos/")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid ID")
		return
	}

	var req todoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if req.Title != nil {
		t := strings.TrimSpace(*req.Title)
		if t == "" {
			writeError(w, http.StatusBadRequest, "Title is required")
			return
		}
		req.Title = &t
	}
	if err := req.normalize(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	update := models.TodoUpdate{
		Title:          req.Title,
		Description:    req.Description,
		DueDate:        req.DueDate,
		ReminderTime:   req.ReminderTime,
		TimezoneOffset: req.TimezoneOffset,
		Completed:      req.Completed,
	}
	if update.Empty() {
		writeError(w, http.StatusBadRequest, "No fields to update")
		return
	}

	userID := currentUserID(r)
	todo, err := h.Store.UpdateTodo(r.Context(), userID, id, update)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Todo not found")
		return
	}
	if err != nil {
		logrus.Errorf("Failed to update todo %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to update todo")
		return
	}

	writeJSON(w, http.StatusOK, todo)
}

func (h *Handler) DeleteTodoHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r.URL.Path, "/api/todos/")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid ID")
		return
	}

	err := h.Store.DeleteTodo(r.Context(), currentUserID(r), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Todo not found")
		return
	}
	if err != nil {
		logrus.Errorf("Failed to delete todo %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to delete todo")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Todo deleted successfully"})
}
