package models

import "time"

type Todo struct {
	ID             int       `json:"id"`
	UserID         int       `json:"-"`
	Title          string    `json:"title"`
	Description    *string   `json:"description"`
	DueDate        *string   `json:"due_date"`      // local "YYYY-MM-DDTHH:MM"
	ReminderTime   *string   `json:"reminder_time"` // local "YYYY-MM-DDTHH:MM"
	TimezoneOffset *int      `json:"timezone_offset"`
	ReminderSent   bool      `json:"reminder_sent"`
	Completed      bool      `json:"completed"`
	CreatedAt      time.Time `json:"created_at"`
}

// TodoUpdate carries the fields of a partial edit. Nil means unchanged.
type TodoUpdate struct {
	Title          *string
	Description    *string
	DueDate        *string
	ReminderTime   *string
	TimezoneOffset *int
	Completed      *bool
}

// Empty reports whether the update changes nothing.
func (u TodoUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.DueDate == nil &&
		u.ReminderTime == nil && u.TimezoneOffset == nil && u.Completed == nil
}

// ReminderCandidate is a todo with a reminder set that is neither sent nor
// completed. ReminderTime is the raw stored value; parsing it is left to
// the scheduler.
type ReminderCandidate struct {
	ID             int
	UserID         int
	Title          string
	ReminderTime   string
	TimezoneOffset int
}
