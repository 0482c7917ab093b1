package shared

import (
	"context"
	"sync"
)

// FaultSlot records the last fatal error raised while producing a response.
// The fault boundary middleware checks it once the handler returns.
type FaultSlot struct {
	mu  sync.Mutex
	err error
}

// Report stores err, keeping the first one reported.
func (s *FaultSlot) Report(err error) {
	if s == nil || err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// Err returns the recorded error, if any.
func (s *FaultSlot) Err() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

type faultContextKey struct{}

// ContextWithFaultSlot attaches a fault slot to ctx.
func ContextWithFaultSlot(ctx context.Context, slot *FaultSlot) context.Context {
	return context.WithValue(ctx, faultContextKey{}, slot)
}

// ReportFault records a fatal rendering error for the current request.
// It is a no-op outside the fault boundary.
func ReportFault(ctx context.Context, err error) {
	slot, _ := ctx.Value(faultContextKey{}).(*FaultSlot)
	slot.Report(err)
}
