// Package models defines server-side data models persisted in the Record Store
// and the views returned by its compound queries.
package models

import "time"

// User is a registered identity. Email is unique (case-insensitive).
type User struct {
	ID           string
	Email        string
	PasswordHash string
	FullName     string
	CreatedAt    time.Time
}

// Identity is the authenticated requester attached to every core call.
// It is trusted as-is; credentials were verified by the transport layer.
type Identity struct {
	UserID string
	Email  string
}
