// Package acl keeps the set of environment operators, the highest privilege
// tier chatroute recognises. Operators are seeded from configuration and can
// be granted or revoked at runtime by other operators.
package acl

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by [Store.Revoke] when the user is not an operator.
var ErrNotFound = errors.New("acl: operator not found")

// SeedGrantor is the GrantedBy value of operators introduced by configuration.
const SeedGrantor = "config"

// Operator is one granted environment operator.
type Operator struct {
	UserID    string
	GrantedBy string
	GrantedAt time.Time
}

// Store persists operators. Implementations must be safe for concurrent use.
type Store interface {
	// IsOperator reports whether userID holds operator rights.
	IsOperator(ctx context.Context, userID string) (bool, error)

	// Grant makes userID an operator. Granting an existing operator is a
	// no-op and keeps the original grant record.
	Grant(ctx context.Context, userID, grantedBy string) error

	// Revoke removes userID. It returns [ErrNotFound] if userID is not an
	// operator.
	Revoke(ctx context.Context, userID string) error

	// List returns all operators ordered by user ID.
	List(ctx context.Context) ([]Operator, error)
}

// ApplySeed grants every added ID and revokes every removed ID on s. Removed
// IDs that are already gone are ignored. All failures are joined.
func ApplySeed(ctx context.Context, s Store, added, removed []string) error {
	var errs []error
	for _, id := range added {
		if err := s.Grant(ctx, id, SeedGrantor); err != nil {
			errs = append(errs, err)
		}
	}
	for _, id := range removed {
		if err := s.Revoke(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
