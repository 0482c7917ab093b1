package account

import (
	"context"
	"fmt"
	"net/http"
)

// LocalUsers is an in-process identity store that can drop users.
type LocalUsers interface {
	UserIDForToken(accessToken string) (string, bool)
	DeleteUser(userID string) bool
}

// ProfileRemover deletes the profile row of a user.
type ProfileRemover interface {
	Remove(ctx context.Context, userID string) error
}

// LocalInvoker performs the deletion function in process for local
// development, where no platform functions exist.
type LocalInvoker struct {
	users    LocalUsers
	profiles ProfileRemover
}

// NewLocalInvoker constructs a LocalInvoker.
func NewLocalInvoker(users LocalUsers, profiles ProfileRemover) *LocalInvoker {
	return &LocalInvoker{users: users, profiles: profiles}
}

// Invoke resolves the token's owner, removes the profile and then the user.
func (l *LocalInvoker) Invoke(ctx context.Context, name, accessToken string) error {
	userID, ok := l.users.UserIDForToken(accessToken)
	if !ok {
		return &FunctionError{Function: name, Status: http.StatusUnauthorized, Message: "Invalid or expired token"}
	}
	if l.profiles != nil {
		if err := l.profiles.Remove(ctx, userID); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if !l.users.DeleteUser(userID) {
		return &FunctionError{Function: name, Status: http.StatusNotFound, Message: "User not found"}
	}
	return nil
}
