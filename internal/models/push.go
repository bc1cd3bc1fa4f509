package models

import "time"

// PushSubscription is a browser push endpoint. Endpoint is unique across
// all users; re-registering it moves the row to the new owner.
type PushSubscription struct {
	Endpoint  string    `json:"endpoint"`
	UserID    int       `json:"user_id"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	CreatedAt time.Time `json:"created_at"`
}
