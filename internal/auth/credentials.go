// Package auth gates the dashboards: hashed operator credentials, signed
// session tokens and role checks.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"campus-access-backend/config"
	"campus-access-backend/internal/model"
	"campus-access-backend/internal/store"
)

// ErrInvalidCredentials covers unknown users, disabled accounts and wrong
// passwords alike.
var ErrInvalidCredentials = errors.New("invalid username or password")

// RoleAdmin may use every location.
const RoleAdmin = "admin"

// ValidRole reports whether role is a location name or admin.
func ValidRole(role string) bool {
	return role == RoleAdmin || model.Location(role).Valid()
}

// CanAccess reports whether role may operate the dashboard of location.
func CanAccess(role string, location model.Location) bool {
	return role == RoleAdmin || model.Location(role) == location
}

// Principal is an authenticated operator.
type Principal struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// CredentialVerifier checks a username and password.
type CredentialVerifier interface {
	Verify(ctx context.Context, username, password string) (Principal, error)
}

// OperatorStore is where operator accounts live.
type OperatorStore interface {
	FindOperator(ctx context.Context, username string) (*model.Operator, error)
	UpsertOperator(ctx context.Context, op *model.Operator) error
}

// StoreVerifier verifies bcrypt hashes kept in the operator store.
type StoreVerifier struct {
	store OperatorStore
}

// NewStoreVerifier creates a verifier over the operators table.
func NewStoreVerifier(s OperatorStore) *StoreVerifier {
	return &StoreVerifier{store: s}
}

// dummyHash keeps the unknown-user path as slow as a real comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("campus-access-dummy"), bcrypt.DefaultCost)

func (v *StoreVerifier) Verify(ctx context.Context, username, password string) (Principal, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Principal{}, ErrInvalidCredentials
	}

	op, err := v.store.FindOperator(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return Principal{}, ErrInvalidCredentials
	}
	if err != nil {
		return Principal{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		return Principal{}, ErrInvalidCredentials
	}
	if !op.Active {
		return Principal{}, ErrInvalidCredentials
	}
	return Principal{Username: op.Username, Role: op.Role}, nil
}

// HashPassword returns a bcrypt hash suitable for the config file.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// SeedOperators upserts the accounts listed in the config. Entries must carry
// a bcrypt hash, never a plaintext password.
func SeedOperators(ctx context.Context, s OperatorStore, users []config.SeedUserConf) error {
	for _, u := range users {
		if u.Username == "" {
			return errors.New("seed user without username")
		}
		if !ValidRole(u.Role) {
			return fmt.Errorf("seed user %q: unknown role %q", u.Username, u.Role)
		}
		if _, err := bcrypt.Cost([]byte(u.PasswordHash)); err != nil {
			return fmt.Errorf("seed user %q: password_hash is not a bcrypt hash", u.Username)
		}
		if err := s.UpsertOperator(ctx, &model.Operator{
			Username:     u.Username,
			PasswordHash: u.PasswordHash,
			Role:         u.Role,
			Active:       true,
		}); err != nil {
			return err
		}
	}
	if len(users) > 0 {
		log.Printf("Seeded %d operator accounts", len(users))
	}
	return nil
}
