package domain

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleSeller   Role = "seller"
	RoleAdmin    Role = "admin"
)

func ParseRole(s string) (Role, error) {
	switch role := Role(strings.ToLower(strings.TrimSpace(s))); role {
	case RoleCustomer, RoleSeller, RoleAdmin:
		return role, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrInvalidArgument, s)
}

type UpgradeStatus string

const (
	UpgradeStatusNone      UpgradeStatus = "none"
	UpgradeStatusRequested UpgradeStatus = "requested"
	UpgradeStatusVerified  UpgradeStatus = "verified"
)

type Account struct {
	ID            string
	Name          string
	Role          Role
	UpgradeStatus UpgradeStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func NewAccount(id, name string, now time.Time) (*Account, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: account id is required", ErrInvalidArgument)
	}
	return &Account{
		ID:            id,
		Name:          strings.TrimSpace(name),
		Role:          RoleCustomer,
		UpgradeStatus: UpgradeStatusNone,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Identity is the verified caller supplied by the upstream auth layer.
type Identity struct {
	AccountID     string
	Authenticated bool
}

func Anonymous() Identity { return Identity{} }

func Authenticated(accountID string) Identity {
	return Identity{AccountID: accountID, Authenticated: accountID != ""}
}
