package service

import (
	"context"
	"errors"
	"fmt"

	"pos-checkout/internal/access"
	"pos-checkout/internal/store"
)

// ErrUnknownStaff is returned for ids with no active staff record
var ErrUnknownStaff = errors.New("unknown staff member")

// StaffRoles looks up a staff member's stored role name
type StaffRoles interface {
	GetStaffRole(ctx context.Context, id string) (string, error)
}

// StaffDirectory resolves the role a request acts with
type StaffDirectory struct {
	roles StaffRoles
}

func NewStaffDirectory(roles StaffRoles) *StaffDirectory {
	return &StaffDirectory{roles: roles}
}

// Role returns the role of an active staff member
func (d *StaffDirectory) Role(ctx context.Context, userID string) (access.Role, error) {
	if userID == "" {
		return "", ErrUnknownStaff
	}
	name, err := d.roles.GetStaffRole(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrUnknownStaff, userID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up staff role: %w", err)
	}
	role, err := access.ParseRole(name)
	if err != nil {
		return "", fmt.Errorf("staff %s: %w", userID, err)
	}
	return role, nil
}
