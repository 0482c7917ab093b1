package profiles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nysa-project/nysa/internal/shared"
)

// Input is the profile form as submitted.
type Input struct {
	FirstName   string `json:"first_name" validate:"max=100"`
	LastName    string `json:"last_name" validate:"max=100"`
	DateOfBirth string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Bio         string `json:"bio" validate:"max=500"`
}

var fieldMessages = map[string]string{
	"FirstName":   fmt.Sprintf("First name must be no more than %d characters", MaxNameLength),
	"LastName":    fmt.Sprintf("Last name must be no more than %d characters", MaxNameLength),
	"DateOfBirth": "Date of birth must be a valid date (YYYY-MM-DD)",
	"Bio":         fmt.Sprintf("Bio must be no more than %d characters", MaxBioLength),
}

var formFields = map[string]string{
	"FirstName":   "first_name",
	"LastName":    "last_name",
	"DateOfBirth": "date_of_birth",
	"Bio":         "bio",
}

// Service validates and applies profile changes.
type Service struct {
	repo     Repository
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithClock replaces the time source used for updated_at and date checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService constructs a Service.
func NewService(repo Repository, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{repo: repo, logger: logger, validate: validator.New(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch returns the member's profile. found is false when no row exists yet,
// which callers treat as an empty form rather than an error.
func (s *Service) Fetch(ctx context.Context, userID string) (Profile, bool, error) {
	p, err := s.repo.Get(ctx, userID)
	if errors.Is(err, shared.ErrNotFound) {
		return Empty(userID), false, nil
	}
	if err != nil {
		return Profile{}, false, fmt.Errorf("fetch profile: %w", err)
	}
	return p, true, nil
}

// UpdateProfile validates in and upserts the non-empty fields.
func (s *Service) UpdateProfile(ctx context.Context, userID string, in Input) (Profile, error) {
	changes, err := s.Prepare(in)
	if err != nil {
		return Profile{}, err
	}
	p, err := s.repo.Upsert(ctx, userID, changes, s.now().UTC())
	if err != nil {
		return Profile{}, fmt.Errorf("update profile: %w", err)
	}
	s.logger.Info("profile updated", slog.String("user_id", userID), slog.Bool("fields_changed", !changes.Empty()))
	return p, nil
}

// Prepare trims and validates in, returning only the fields to write.
func (s *Service) Prepare(in Input) (Changes, error) {
	in = Input{
		FirstName:   strings.TrimSpace(in.FirstName),
		LastName:    strings.TrimSpace(in.LastName),
		DateOfBirth: strings.TrimSpace(in.DateOfBirth),
		Bio:         strings.TrimSpace(in.Bio),
	}

	fields := make(map[string]string)
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return Changes{}, err
		}
		for _, fe := range verrs {
			fields[formFields[fe.Field()]] = fieldMessages[fe.Field()]
		}
	}

	var changes Changes
	if in.DateOfBirth != "" && fields["date_of_birth"] == "" {
		dob, err := time.Parse(DateLayout, in.DateOfBirth)
		if err != nil {
			fields["date_of_birth"] = fieldMessages["DateOfBirth"]
		} else if afterToday(dob, s.now()) {
			fields["date_of_birth"] = "Date of birth cannot be in the future"
		} else {
			changes.DateOfBirth = &dob
		}
	}
	if len(fields) > 0 {
		return Changes{}, &ValidationError{Fields: fields}
	}

	changes.FirstName = nonEmpty(in.FirstName)
	changes.LastName = nonEmpty(in.LastName)
	changes.Bio = nonEmpty(in.Bio)
	return changes, nil
}

// UpdateEmailPreference sets one preference flag.
func (s *Service) UpdateEmailPreference(ctx context.Context, userID string, field PreferenceField, value bool) error {
	if _, err := ParsePreferenceField(string(field)); err != nil {
		return err
	}
	if err := s.repo.SetPreference(ctx, userID, field, value); err != nil {
		return fmt.Errorf("update email preference: %w", err)
	}
	s.logger.Info("email preference updated", slog.String("user_id", userID), slog.String("field", string(field)), slog.Bool("value", value))
	return nil
}

// Remove deletes the member's profile as part of account deletion.
func (s *Service) Remove(ctx context.Context, userID string) error {
	if err := s.repo.Delete(ctx, userID); err != nil {
		return fmt.Errorf("remove profile: %w", err)
	}
	s.logger.Info("profile removed", slog.String("user_id", userID))
	return nil
}

// afterToday compares calendar dates in the location of now.
func afterToday(date, now time.Time) bool {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	dy, dm, dd := date.Date()
	return time.Date(dy, dm, dd, 0, 0, 0, 0, time.UTC).After(today)
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
