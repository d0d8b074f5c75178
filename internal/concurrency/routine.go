package concurrency

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// SafeGo runs fn in a goroutine. A panic is logged under the given task name
// and handed to onPanic as an error instead of crashing the process.
func SafeGo(task string, fn func(), onPanic func(error)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Panic recovered", "task", task, "panic", r, "stack", string(debug.Stack()))
				if onPanic != nil {
					onPanic(fmt.Errorf("%s panicked: %v", task, r))
				}
			}
		}()
		fn()
	}()
}
