package observability

import (
	"fmt"
	"runtime/debug"

	"github.com/sirupsen/logrus"
)

// RecoverPanic recovers from a panic and logs it with the stack trace.
//
// Usage in defer statements:
//
//	func worker() {
//	    defer observability.RecoverPanic(logger, "rescan job")
//	    // ... code that might panic
//	}
//
// The panic is NOT re-raised.
func RecoverPanic(logger logrus.FieldLogger, context string) {
	if r := recover(); r != nil {
		logPanic(logger, context, r)
	}
}

// RecoverPanicWithCallback is like RecoverPanic and runs callback after logging
func RecoverPanicWithCallback(logger logrus.FieldLogger, context string, callback func()) {
	if r := recover(); r != nil {
		logPanic(logger, context, r)
		if callback != nil {
			callback()
		}
	}
}

func logPanic(logger logrus.FieldLogger, context string, r any) {
	logger.WithFields(logrus.Fields{
		"panic":   r,
		"stack":   string(debug.Stack()),
		"context": context,
	}).Error("PANIC recovered")
}

// MustRecover converts a recovered value to an error.
//
//	func call() (err error) {
//	    defer func() {
//	        if r := recover(); r != nil {
//	            err = observability.MustRecover(r)
//	        }
//	    }()
//	    ...
//	}
//
// A nil value returns nil. The stack trace is not part of the error.
func MustRecover(r any) error {
	if r == nil {
		return nil
	}
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}
