// Package authz holds the access predicates the HTTP layer applies before a
// handler runs. Each predicate returns nil on success or one of the common
// sentinel errors for the boundary to map onto a status code.
package authz

import (
	"github.com/openscholar/platform/internal/common"
	"github.com/openscholar/platform/internal/server/models"
)

// MustBeContributor requires the user to be a contributor of the node.
func MustBeContributor(node *models.Node, userID string) error {
	if userID == "" || node.Permission(userID) == "" {
		return common.ErrForbidden
	}
	return nil
}

// MustBeContributorOrPublic admits any user on a public node, otherwise
// falls back to MustBeContributor.
func MustBeContributorOrPublic(node *models.Node, userID string) error {
	if node.IsPublic {
		return nil
	}
	return MustBeContributor(node, userID)
}

// MustHavePermission requires at least the given permission level.
func MustHavePermission(node *models.Node, userID, perm string) error {
	if !node.HasPermission(userID, perm) {
		return common.ErrForbidden
	}
	return nil
}

// MustNotBeRegistration rejects writes against registrations, which are
// immutable snapshots.
func MustNotBeRegistration(node *models.Node) error {
	if node.IsRegistration {
		return common.ErrForbidden
	}
	return nil
}

// MustHaveAddon requires the addon to be enabled on the node.
func MustHaveAddon(node *models.Node, addon string) error {
	if !node.HasAddon(addon) {
		return common.ErrNotFound
	}
	return nil
}
