//go:build !devlogin

package service

import "pi-storefront/internal/features/session/models"

// DevLoginEnabled reports whether this binary carries the development bypass.
func DevLoginEnabled() bool { return false }

func devLoginIdentity() (models.Identity, bool) { return models.Identity{}, false }

func devAutoLoginIdentity() (models.Identity, bool) { return models.Identity{}, false }
