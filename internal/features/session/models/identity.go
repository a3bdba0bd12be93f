package models

import (
	"fmt"

	"pi-storefront/internal/common/validation"
)

// Role is the marketplace role of a verified user.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleSeller   Role = "seller"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleSeller, RoleAdmin:
		return true
	}
	return false
}

// Identity is the verified application-level user.
// It is treated as immutable: a new login replaces the whole value.
type Identity struct {
	SubjectID     string  `json:"subject_id"`
	DisplayName   string  `json:"display_name"`
	WalletAddress *string `json:"wallet_address"`
	Role          Role    `json:"role"`
}

// Validate checks the fields a usable identity must carry.
func (i Identity) Validate() error {
	if err := validation.ValidateSubjectID(i.SubjectID); err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	if err := validation.ValidateDisplayName(i.DisplayName); err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	if err := validation.ValidateWalletAddress(i.WalletAddress); err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	if !i.Role.Valid() {
		return fmt.Errorf("identity: unknown role %q", i.Role)
	}
	return nil
}

// Equal compares identities field by field, including the wallet pointer target.
func (i Identity) Equal(o Identity) bool {
	if i.SubjectID != o.SubjectID || i.DisplayName != o.DisplayName || i.Role != o.Role {
		return false
	}
	switch {
	case i.WalletAddress == nil && o.WalletAddress == nil:
		return true
	case i.WalletAddress == nil || o.WalletAddress == nil:
		return false
	}
	return *i.WalletAddress == *o.WalletAddress
}

// clone copies the identity so callers never share the wallet pointer.
func (i Identity) clone() *Identity {
	c := i
	if i.WalletAddress != nil {
		w := *i.WalletAddress
		c.WalletAddress = &w
	}
	return &c
}

// Clone returns a deep copy of i, or nil.
func Clone(i *Identity) *Identity {
	if i == nil {
		return nil
	}
	return i.clone()
}
