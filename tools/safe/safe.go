package safe

import (
	"ChatRelay/logger"
	"runtime/debug"
)

// Go starts a goroutine that recovers from panic,
// so that panics don't crash the entire program.
func Go(name string, f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[safe.Go] %s panic recovered: %v\n%s", name, r, debug.Stack())
			}
		}()
		f()
	}()
}

// Call runs f inline and converts a panic into a recovered value.
// Used by per-connection event handlers: a handler panic must stay
// isolated to the connection that triggered it.
func Call(f func()) (recovered any) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[safe.Call] panic recovered: %v\n%s", r, debug.Stack())
			recovered = r
		}
	}()
	f()
	return nil
}
