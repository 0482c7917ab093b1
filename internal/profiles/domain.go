// Package profiles stores the member-owned profile row and its email
// preferences.
package profiles

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nysa-project/nysa/internal/shared"
)

// Field limits.
const (
	MaxNameLength = 100
	MaxBioLength  = 500
)

// DateLayout is the wire format of dates of birth.
const DateLayout = "2006-01-02"

// Profile is the single row owned by a member.
type Profile struct {
	UserID                          string     `json:"user_id"`
	FirstName                       string     `json:"first_name,omitempty"`
	LastName                        string     `json:"last_name,omitempty"`
	DateOfBirth                     *time.Time `json:"date_of_birth,omitempty"`
	Bio                             string     `json:"bio,omitempty"`
	ReceiveCommunityEventsEmails    bool       `json:"receive_community_events_emails"`
	ReceiveVolunteeringEventsEmails bool       `json:"receive_volunteering_events_emails"`
	ReceiveNewsletter               bool       `json:"receive_newsletter"`
	CreatedAt                       time.Time  `json:"created_at"`
	UpdatedAt                       time.Time  `json:"updated_at"`
}

// Empty returns the profile a member sees before saving anything: no
// fields set and every email preference on.
func Empty(userID string) Profile {
	return Profile{
		UserID:                          userID,
		ReceiveCommunityEventsEmails:    true,
		ReceiveVolunteeringEventsEmails: true,
		ReceiveNewsletter:               true,
	}
}

// DisplayName renders the name shown in navigation.
func DisplayName(p *Profile) string {
	if p == nil {
		return "User"
	}
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	case p.LastName != "":
		return p.LastName
	}
	return "User"
}

// Initials renders the avatar letters shown in navigation.
func Initials(p *Profile) string {
	if p == nil {
		return "U"
	}
	initials := firstLetter(p.FirstName) + firstLetter(p.LastName)
	if initials == "" {
		return "U"
	}
	return strings.ToUpper(initials)
}

func firstLetter(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 || r == utf8.RuneError {
		return ""
	}
	return string(r)
}

// Changes lists the profile fields to write. Nil fields keep their stored value.
type Changes struct {
	FirstName   *string
	LastName    *string
	DateOfBirth *time.Time
	Bio         *string
}

// Empty reports whether there is nothing to write besides the timestamp.
func (c Changes) Empty() bool {
	return c.FirstName == nil && c.LastName == nil && c.DateOfBirth == nil && c.Bio == nil
}

// PreferenceField names one email preference column.
type PreferenceField string

const (
	PrefCommunityEvents    PreferenceField = "receive_community_events_emails"
	PrefVolunteeringEvents PreferenceField = "receive_volunteering_events_emails"
	PrefNewsletter         PreferenceField = "receive_newsletter"
)

// PreferenceFields lists the toggles in display order.
var PreferenceFields = []PreferenceField{PrefCommunityEvents, PrefVolunteeringEvents, PrefNewsletter}

// ParsePreferenceField validates a preference name.
func ParsePreferenceField(raw string) (PreferenceField, error) {
	field := PreferenceField(strings.TrimSpace(raw))
	for _, known := range PreferenceFields {
		if field == known {
			return field, nil
		}
	}
	return "", &ValidationError{Fields: map[string]string{"field": fmt.Sprintf("Unknown email preference %q", raw)}}
}

// Value reads the preference from p.
func (f PreferenceField) Value(p Profile) bool {
	switch f {
	case PrefCommunityEvents:
		return p.ReceiveCommunityEventsEmails
	case PrefVolunteeringEvents:
		return p.ReceiveVolunteeringEventsEmails
	case PrefNewsletter:
		return p.ReceiveNewsletter
	}
	return false
}

func (f PreferenceField) apply(p *Profile, value bool) {
	switch f {
	case PrefCommunityEvents:
		p.ReceiveCommunityEventsEmails = value
	case PrefVolunteeringEvents:
		p.ReceiveVolunteeringEventsEmails = value
	case PrefNewsletter:
		p.ReceiveNewsletter = value
	}
}

// ValidationError carries per-field messages. Nothing is written when it
// is returned.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "profiles: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return shared.ErrValidation }

// FieldErrors exposes the messages for problem responses and forms.
func (e *ValidationError) FieldErrors() map[string]string { return e.Fields }
