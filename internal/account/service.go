package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nysa-project/nysa/internal/shared"
)

// ConfirmationPhrase must be typed exactly to delete an account.
const ConfirmationPhrase = "DELETE"

// DefaultFunction is the platform function that removes the account.
const DefaultFunction = "delete-user-account"

var (
	// ErrConfirmationMismatch is returned when the typed phrase is not exact.
	ErrConfirmationMismatch = fmt.Errorf("please type '%s' to confirm account deletion: %w", ConfirmationPhrase, shared.ErrValidation)
	// ErrNoAccessToken is returned when the member has no session token.
	ErrNoAccessToken = errors.New("account: no access token")
)

// Invoker calls a platform function on the member's behalf.
type Invoker interface {
	Invoke(ctx context.Context, name, accessToken string) error
}

// Deletion outcomes passed to the observer.
const (
	OutcomeDeleted = "deleted"
	OutcomeFailed  = "failed"
)

// Service deletes accounts.
type Service struct {
	invoker  Invoker
	function string
	logger   *slog.Logger
	observe  func(outcome string)
}

// Option configures a Service.
type Option func(*Service)

// WithObserver reports the outcome of every remote deletion attempt.
func WithObserver(fn func(outcome string)) Option {
	return func(s *Service) {
		s.observe = fn
	}
}

// NewService constructs a Service calling function through invoker.
func NewService(invoker Invoker, function string, logger *slog.Logger, opts ...Option) *Service {
	if function == "" {
		function = DefaultFunction
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{invoker: invoker, function: function, logger: logger, observe: func(string) {}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Delete removes the account of the token's owner when confirmation is
// exactly ConfirmationPhrase. Any other input is rejected before the call.
func (s *Service) Delete(ctx context.Context, userID, accessToken, confirmation string) error {
	if confirmation != ConfirmationPhrase {
		return ErrConfirmationMismatch
	}
	if accessToken == "" {
		return ErrNoAccessToken
	}
	if err := s.invoker.Invoke(ctx, s.function, accessToken); err != nil {
		s.logger.Error("account deletion failed", slog.String("user_id", userID), slog.Any("error", err))
		s.observe(OutcomeFailed)
		return fmt.Errorf("delete account: %w", err)
	}
	s.logger.Info("account deleted", slog.String("user_id", userID))
	s.observe(OutcomeDeleted)
	return nil
}
