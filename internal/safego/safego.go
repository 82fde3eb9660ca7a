// Package safego runs work that must not take the process down with it:
// fire-and-forget goroutines (notification delivery) and pluggable code
// called from long-running loops (task processors).
package safego

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/MURUGANQA/auth-service/internal/telemetry"
)

// PanicError is returned by Call when fn panicked.
type PanicError struct {
	Task  string
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Task, e.Value)
}

// Go launches fn in a new goroutine. A panic is recovered, logged under name
// and counted in panics_recovered_total.
func Go(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				recordPanic(name, r)
			}
		}()
		fn()
	}()
}

// Call runs fn on the calling goroutine and turns a panic into a
// *PanicError.
func Call[T any](name string, fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			recordPanic(name, r)
			var zero T
			result, err = zero, &PanicError{Task: name, Value: r}
		}
	}()
	return fn()
}

func recordPanic(name string, r interface{}) {
	telemetry.PanicsRecoveredTotal.WithLabelValues(name).Inc()
	slog.Error("recovered panic", "task", name, "panic", r, "stack", string(debug.Stack()))
}
