package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"keepsake-go/internal/models"

	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// Local times go to clients in the same shape they were entered in.
const localTimeFormat = `'YYYY-MM-DD"T"HH24:MI'`

const todoColumns = `id, user_id, title, description,
	to_char(due_date, ` + localTimeFormat + `),
	to_char(reminder_time, ` + localTimeFormat + `),
	timezone_offset, reminder_sent, completed, created_at`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping checks the connection is still usable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RunMigrations creates tables if they don't exist and applies schema updates
func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return err
	}

	migrations := []string{
		`ALTER TABLE todos ADD COLUMN IF NOT EXISTS timezone_offset INTEGER;`,
		`ALTER TABLE todos ADD COLUMN IF NOT EXISTS reminder_sent BOOLEAN DEFAULT FALSE;`,
		`CREATE INDEX IF NOT EXISTS idx_todos_pending_reminders ON todos(reminder_time)
		 WHERE reminder_sent = FALSE AND completed = FALSE;`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// User methods

func (s *PostgresStore) CreateUser(ctx context.Context, username, password string) (models.User, error) {
	passwordHash, err := models.HashPassword(password)
	if err != nil {
		return models.User{}, err
	}

	var user models.User
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO users (username, password_hash, created_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (username) DO UPDATE SET password_hash = EXCLUDED.password_hash
		 RETURNING id, username, password_hash, created_at`,
		username, passwordHash,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)

	if err != nil {
		return models.User{}, err
	}

	return user, nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = $1`,
		username,
	).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)

	if err == sql.ErrNoRows {
		return models.User{}, fmt.Errorf("user %w", ErrNotFound)
	}
	if err != nil {
		return models.User{}, err
	}

	return user, nil
}

// Todo methods

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTodo(row rowScanner) (models.Todo, error) {
	var t models.Todo
	var description, dueDate, reminderTime sql.NullString
	var offset sql.NullInt64

	err := row.Scan(&t.ID, &t.UserID, &t.Title, &description, &dueDate, &reminderTime,
		&offset, &t.ReminderSent, &t.Completed, &t.CreatedAt)
	if err != nil {
		return models.Todo{}, err
	}

	if description.Valid {
		t.Description = &description.String
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.String
	}
	if reminderTime.Valid {
		t.ReminderTime = &reminderTime.String
	}
	if offset.Valid {
		v := int(offset.Int64)
		t.TimezoneOffset = &v
	}

	return t, nil
}

func (s *PostgresStore) GetTodos(ctx context.Context, userID int) ([]models.Todo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+todoColumns+`
		 FROM todos
		 WHERE user_id = $1
		 ORDER BY
		   completed ASC,
		   CASE WHEN due_date IS NULL THEN 1 ELSE 0 END,
		   due_date ASC,
		   created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	todos := []models.Todo{}
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		todos = append(todos, t)
	}

	return todos, rows.Err()
}

func (s *PostgresStore) CreateTodo(ctx context.Context, userID int, t models.Todo) (models.Todo, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO todos (user_id, title, description, due_date, reminder_time, timezone_offset, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 RETURNING `+todoColumns,
		userID, t.Title, t.Description, t.DueDate, t.ReminderTime, t.TimezoneOffset,
	)
	return scanTodo(row)
}

// UpdateTodo applies a partial edit. Changing reminder_time clears
// reminder_sent in the same statement so the new time fires.
func (s *PostgresStore) UpdateTodo(ctx context.Context, userID, id int, u models.TodoUpdate) (models.Todo, error) {
	var updates []string
	var values []any

	set := func(column string, value any) {
		values = append(values, value)
		updates = append(updates, fmt.Sprintf("%s = $%d", column, len(values)))
	}

	if u.Title != nil {
		set("title", *u.Title)
	}
	if u.Description != nil {
		set("description", *u.Description)
	}
	if u.DueDate != nil {
		set("due_date", nullIfEmpty(*u.DueDate))
	}
	if u.ReminderTime != nil {
		set("reminder_time", nullIfEmpty(*u.ReminderTime))
		updates = append(updates, "reminder_sent = FALSE")
	}
	if u.TimezoneOffset != nil {
		set("timezone_offset", *u.TimezoneOffset)
	}
	if u.Completed != nil {
		set("completed", *u.Completed)
	}

	if len(updates) == 0 {
		return models.Todo{}, errors.New("no fields to update")
	}

	values = append(values, id, userID)
	query := fmt.Sprintf(
		`UPDATE todos SET %s WHERE id = $%d AND user_id = $%d RETURNING %s`,
		strings.Join(updates, ", "), len(values)-1, len(values), todoColumns,
	)

	t, err := scanTodo(s.db.QueryRowContext(ctx, query, values...))
	if err == sql.ErrNoRows {
		return models.Todo{}, fmt.Errorf("todo %w", ErrNotFound)
	}
	return t, err
}

func (s *PostgresStore) DeleteTodo(ctx context.Context, userID, id int) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM todos WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("todo %w", ErrNotFound)
	}

	return nil
}

// GetReminderCandidates returns every todo, across all users, with a
// reminder set that is neither sent nor completed. reminder_time is
// returned as "YYYY-MM-DDTHH:MM" whatever the session DateStyle; infinite
// and BC values come back in their raw text form, which the caller rejects.
// Due-ness is decided by the caller.
func (s *PostgresStore) GetReminderCandidates(ctx context.Context) ([]models.ReminderCandidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title,
		        CASE WHEN isfinite(reminder_time) AND reminder_time >= '0001-01-01'::timestamp
		             THEN to_char(reminder_time, 'YYYY-MM-DD"T"HH24:MI')
		             ELSE reminder_time::text
		        END,
		        COALESCE(timezone_offset, 0)
		 FROM todos
		 WHERE reminder_time IS NOT NULL
		   AND reminder_sent = FALSE
		   AND completed = FALSE
		 ORDER BY reminder_time ASC, id ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []models.ReminderCandidate
	for rows.Next() {
		var c models.ReminderCandidate
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.ReminderTime, &c.TimezoneOffset); err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}

	return candidates, rows.Err()
}

// MarkReminderSent is idempotent.
func (s *PostgresStore) MarkReminderSent(ctx context.Context, todoID int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE todos SET reminder_sent = TRUE WHERE id = $1`, todoID)
	return err
}

// Push subscription methods

// SavePushSubscription upserts on endpoint: a browser re-subscribing moves
// the row to the current user and refreshes its keys.
func (s *PostgresStore) SavePushSubscription(ctx context.Context, userID int, endpoint, p256dh, auth string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth, created_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (endpoint)
		 DO UPDATE SET p256dh = EXCLUDED.p256dh, auth = EXCLUDED.auth, user_id = EXCLUDED.user_id`,
		userID, endpoint, p256dh, auth,
	)
	return err
}

func (s *PostgresStore) DeleteUserPushSubscription(ctx context.Context, userID int, endpoint string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE endpoint = $1 AND user_id = $2`,
		endpoint, userID,
	)
	return err
}

func (s *PostgresStore) GetPushSubscriptionsByUser(ctx context.Context, userID int) ([]models.PushSubscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT endpoint, user_id, p256dh, auth, created_at
		 FROM push_subscriptions
		 WHERE user_id = $1
		 ORDER BY created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []models.PushSubscription
	for rows.Next() {
		var sub models.PushSubscription
		if err := rows.Scan(&sub.Endpoint, &sub.UserID, &sub.P256dh, &sub.Auth, &sub.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}

	return subs, rows.Err()
}

// DeletePushSubscriptions removes every listed endpoint in one statement.
func (s *PostgresStore) DeletePushSubscriptions(ctx context.Context, endpoints []string) error {
	if len(endpoints) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE endpoint = ANY($1)`,
		pq.Array(endpoints),
	)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
