package store

import (
	"context"
	"errors"

	"keepsake-go/internal/models"
)

var ErrNotFound = errors.New("not found")

// TodoStore handles to-do operations
type TodoStore interface {
	GetTodos(ctx context.Context, userID int) ([]models.Todo, error)
	CreateTodo(ctx context.Context, userID int, t models.Todo) (models.Todo, error)
	UpdateTodo(ctx context.Context, userID, id int, u models.TodoUpdate) (models.Todo, error)
	DeleteTodo(ctx context.Context, userID, id int) error

	// Reminder scheduler
	GetReminderCandidates(ctx context.Context) ([]models.ReminderCandidate, error)
	MarkReminderSent(ctx context.Context, todoID int) error
}

// PushStore handles push subscriptions
type PushStore interface {
	SavePushSubscription(ctx context.Context, userID int, endpoint, p256dh, auth string) error
	DeleteUserPushSubscription(ctx context.Context, userID int, endpoint string) error
	GetPushSubscriptionsByUser(ctx context.Context, userID int) ([]models.PushSubscription, error)
	DeletePushSubscriptions(ctx context.Context, endpoints []string) error
}

// UserStore handles the accounts that own todos and subscriptions
type UserStore interface {
	CreateUser(ctx context.Context, username, password string) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
}

type Store interface {
	TodoStore
	PushStore
	UserStore
}
