package models

import "time"

// Permission levels a contributor can hold on a node.
const (
	PermRead  = "read"
	PermWrite = "write"
	PermAdmin = "admin"
)

// Node is a project or component that owns addons, wiki pages and file
// records. Contributors maps user ID to the highest permission granted
// ("read", "write" or "admin").
type Node struct {
	ID             string
	Title          string
	IsPublic       bool
	IsRegistration bool
	IsDeleted      bool
	Contributors   map[string]string
	Addons         []string
	CreatedAt      time.Time
}

// HasAddon reports whether the addon is enabled on the node.
func (n *Node) HasAddon(name string) bool {
	for _, a := range n.Addons {
		if a == name {
			return true
		}
	}
	return false
}

// Permission returns the permission level granted to the user, or "" when
// the user is not a contributor.
func (n *Node) Permission(userID string) string {
	if n.Contributors == nil {
		return ""
	}
	return n.Contributors[userID]
}

// HasPermission reports whether the user holds at least the given
// permission level. Levels order: read < write < admin.
func (n *Node) HasPermission(userID, perm string) bool {
	return permRank(n.Permission(userID)) >= permRank(perm)
}

func permRank(perm string) int {
	switch perm {
	case PermRead:
		return 1
	case PermWrite:
		return 2
	case PermAdmin:
		return 3
	default:
		return 0
	}
}
