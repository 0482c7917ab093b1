package profiles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nysa-project/nysa/internal/shared"
)

// Repository persists profiles.
type Repository interface {
	Get(ctx context.Context, userID string) (Profile, error)
	Upsert(ctx context.Context, userID string, changes Changes, at time.Time) (Profile, error)
	SetPreference(ctx context.Context, userID string, field PreferenceField, value bool) error
	Delete(ctx context.Context, userID string) error
}

// PGRepository stores profiles in PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a repository wrapper.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const profileColumns = `user_id::text, COALESCE(first_name,''), COALESCE(last_name,''), date_of_birth, COALESCE(bio,''),
receive_community_events_emails, receive_volunteering_events_emails, receive_newsletter, created_at, updated_at`

// Get loads the profile of userID or shared.ErrNotFound.
func (r *PGRepository) Get(ctx context.Context, userID string) (Profile, error) {
	if r == nil || r.pool == nil {
		return Profile{}, fmt.Errorf("profiles: repository not initialised")
	}
	id, err := parseUserID(userID)
	if err != nil {
		return Profile{}, err
	}
	const query = `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1`
	p, err := scanProfile(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, shared.ErrNotFound
		}
		return Profile{}, err
	}
	return p, nil
}

// Upsert writes the given fields and updated_at, creating the row on first write.
func (r *PGRepository) Upsert(ctx context.Context, userID string, changes Changes, at time.Time) (Profile, error) {
	if r == nil || r.pool == nil {
		return Profile{}, fmt.Errorf("profiles: repository not initialised")
	}
	id, err := parseUserID(userID)
	if err != nil {
		return Profile{}, err
	}
	const query = `INSERT INTO profiles (user_id, first_name, last_name, date_of_birth, bio, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)
ON CONFLICT (user_id) DO UPDATE SET
    first_name = COALESCE(EXCLUDED.first_name, profiles.first_name),
    last_name = COALESCE(EXCLUDED.last_name, profiles.last_name),
    date_of_birth = COALESCE(EXCLUDED.date_of_birth, profiles.date_of_birth),
    bio = COALESCE(EXCLUDED.bio, profiles.bio),
    updated_at = EXCLUDED.updated_at
RETURNING ` + profileColumns
	return scanProfile(r.pool.QueryRow(ctx, query, id, changes.FirstName, changes.LastName, changes.DateOfBirth, changes.Bio, at))
}

// SetPreference upserts one preference column and nothing else.
func (r *PGRepository) SetPreference(ctx context.Context, userID string, field PreferenceField, value bool) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("profiles: repository not initialised")
	}
	id, err := parseUserID(userID)
	if err != nil {
		return err
	}
	if _, err := ParsePreferenceField(string(field)); err != nil {
		return err
	}
	// field is one of the whitelisted column names above.
	query := fmt.Sprintf(`INSERT INTO profiles (user_id, %[1]s) VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE SET %[1]s = EXCLUDED.%[1]s`, field)
	_, err = r.pool.Exec(ctx, query, id, value)
	return err
}

// Delete removes the profile row. Deleting a missing row is not an error.
func (r *PGRepository) Delete(ctx context.Context, userID string) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("profiles: repository not initialised")
	}
	id, err := parseUserID(userID)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `DELETE FROM profiles WHERE user_id = $1`, id)
	return err
}

func parseUserID(userID string) (uuid.UUID, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("profiles: invalid user id %q: %w", userID, shared.ErrValidation)
	}
	return id, nil
}

func scanProfile(row pgx.Row) (Profile, error) {
	var p Profile
	var dob *time.Time
	if err := row.Scan(&p.UserID, &p.FirstName, &p.LastName, &dob, &p.Bio,
		&p.ReceiveCommunityEventsEmails, &p.ReceiveVolunteeringEventsEmails, &p.ReceiveNewsletter,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		return Profile{}, err
	}
	p.DateOfBirth = dob
	return p, nil
}
