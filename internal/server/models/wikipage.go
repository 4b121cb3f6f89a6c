package models

import "time"

// WikiPage is one stored version of a node's wiki page. Pages are keyed by
// the normalized (lowercased) name; Version is one-based and grows by one
// on every edit. The latest version is the page's current content.
type WikiPage struct {
	ID        int64
	NodeID    string
	Key       string
	Name      string
	Version   int
	Content   string
	AuthorID  string
	CreatedAt time.Time
}
