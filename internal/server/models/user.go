// Package models defines server-side data models persisted in the database.
package models

import "time"

type User struct {
	ID        string
	Login     string
	FullName  string
	CreatedAt time.Time
}
