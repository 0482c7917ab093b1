package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMachineSignInSucceeds(t *testing.T) {
	m := NewMachine(StateUnauthenticated)
	assert.Equal(t, StateAuthenticating, m.Apply(StepAttempt))
	assert.Equal(t, StateAuthenticated, m.Apply(StepSucceeded))
	assert.Equal(t, StateUnauthenticated, m.Apply(StepSignedOut))
}

func TestMachineFailureSettlesToOrigin(t *testing.T) {
	for _, origin := range []State{StateUnauthenticated, StateAuthenticated} {
		m := NewMachine(origin)
		m.Apply(StepAttempt)
		assert.Equal(t, StateError, m.Apply(StepFailed))
		assert.Equal(t, origin, m.Apply(StepSettle), "origin %s", origin)
	}
}

func TestMachineIgnoresOutOfOrderSteps(t *testing.T) {
	m := NewMachine(StateUnauthenticated)
	assert.Equal(t, StateUnauthenticated, m.Apply(StepSucceeded))
	assert.Equal(t, StateUnauthenticated, m.Apply(StepFailed))
	assert.Equal(t, StateUnauthenticated, m.Apply(StepSettle))

	m.Apply(StepAttempt)
	assert.Equal(t, StateAuthenticating, m.Apply(StepAttempt), "second attempt while in flight")
}

func TestDestination(t *testing.T) {
	assert.Equal(t, "/dashboard", Destination(EventSignedIn))
	assert.Equal(t, "/", Destination(EventSignedOut))
	assert.Equal(t, "/auth?mode=reset-password", Destination(EventPasswordRecovery))
	assert.Empty(t, Destination(EventTokenRefreshed))
}
