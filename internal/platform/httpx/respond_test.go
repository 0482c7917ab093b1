package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fieldErr struct{ fields map[string]string }

func (e fieldErr) Error() string                  { return "bio too long" }
func (e fieldErr) Unwrap() error                  { return ErrValidation }
func (e fieldErr) FieldErrors() map[string]string { return e.fields }

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("article: %w", ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("topic: %w", ErrValidation), http.StatusBadRequest},
		{ErrUnauthorized, http.StatusUnauthorized},
		{ErrUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	}
}

func TestRespondErrorIncludesFieldErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, fieldErr{fields: map[string]string{"bio": "Bio must be no more than 500 characters"}})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Bio must be no more than 500 characters", body.Errors["bio"])
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"field":"receive_newsletter","extra":1}`))
	var target struct {
		Field string `json:"field"`
	}
	require.Error(t, DecodeJSON(req, &target))
}

func TestWantsJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	assert.True(t, WantsJSON(req))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	assert.False(t, WantsJSON(req))
}
