package shared_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nysa-project/nysa/internal/shared"
)

func TestCSRFTokenLifecycle(t *testing.T) {
	sm, _ := newSessionManager(t)
	csrf := shared.NewCSRFManager("csrf-secret")
	ctx := context.Background()

	sess, err := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	token, err := csrf.EnsureToken(ctx, sess)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	again, err := csrf.EnsureToken(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, token, again, "token is stable within a session")

	assert.NoError(t, csrf.VerifyToken(ctx, sess, token))
	assert.ErrorIs(t, csrf.VerifyToken(ctx, sess, token+"x"), shared.ErrCSRFTokenMismatch)
	assert.ErrorIs(t, csrf.VerifyToken(ctx, sess, ""), shared.ErrCSRFTokenMissing)
	assert.ErrorIs(t, csrf.VerifyToken(ctx, nil, token), shared.ErrCSRFTokenMissing)
}

func TestCSRFEnsureTokenWithoutSession(t *testing.T) {
	csrf := shared.NewCSRFManager("csrf-secret")
	_, err := csrf.EnsureToken(context.Background(), nil)
	assert.ErrorIs(t, err, shared.ErrSessionMissing)
}

func TestFaultSlotKeepsFirstError(t *testing.T) {
	slot := &shared.FaultSlot{}
	ctx := shared.ContextWithFaultSlot(context.Background(), slot)

	first := assert.AnError
	shared.ReportFault(ctx, first)
	shared.ReportFault(ctx, context.Canceled)
	assert.Equal(t, first, slot.Err())

	// Outside the boundary reporting is a no-op.
	shared.ReportFault(context.Background(), first)
}
