package identity

// State is the auth state of a browser context.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StateAuthenticated   State = "authenticated"
	StateError           State = "error"
)

// Step is an input to the state machine.
type Step int

const (
	StepAttempt Step = iota
	StepSucceeded
	StepFailed
	StepSignedOut
	StepSettle
)

// Machine tracks one attempt from its starting state. It never retries; a
// failure moves to StateError and settling returns to the starting state.
type Machine struct {
	origin  State
	current State
}

// NewMachine starts a machine in the given state.
func NewMachine(from State) *Machine {
	return &Machine{origin: from, current: from}
}

// Current returns the state the machine is in.
func (m *Machine) Current() State {
	return m.current
}

// Apply advances the machine and returns the new state. Invalid steps leave
// the state unchanged.
func (m *Machine) Apply(step Step) State {
	switch step {
	case StepAttempt:
		if m.current != StateAuthenticating {
			m.origin = m.current
			m.current = StateAuthenticating
		}
	case StepSucceeded:
		if m.current == StateAuthenticating {
			m.current = StateAuthenticated
		}
	case StepFailed:
		if m.current == StateAuthenticating {
			m.current = StateError
		}
	case StepSignedOut:
		m.current = StateUnauthenticated
	case StepSettle:
		if m.current == StateError {
			m.current = m.origin
		}
	}
	return m.current
}
