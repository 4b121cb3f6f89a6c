package models

import "time"

// Session is the server-side state referenced by a signed cookie. Data is
// free-form per-session storage (previous URL, auth error code, etc.).
type Session struct {
	ID        string
	UserID    string
	Data      map[string]string
	CreatedAt time.Time
}
