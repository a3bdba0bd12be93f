//go:build devlogin

package service

import "pi-storefront/internal/features/session/models"

// Development-only identities. This file is compiled only with -tags devlogin,
// so production binaries cannot synthesize an unverified identity.

const devDisplayName = "dev-user"

// DevLoginEnabled reports whether this binary carries the development bypass.
func DevLoginEnabled() bool { return true }

func devLoginIdentity() (models.Identity, bool) {
	return models.Identity{SubjectID: "dev-login-001", DisplayName: devDisplayName, Role: models.RoleAdmin}, true
}

func devAutoLoginIdentity() (models.Identity, bool) {
	return models.Identity{SubjectID: "dev-local-001", DisplayName: devDisplayName, Role: models.RoleAdmin}, true
}
