// Package errors classifies errors raised across the dispatch engine,
// gateway registry, and data-item core into the three categories the core's
// fault-handling policy distinguishes:
//
//   - ClassInvalid: programmer and messaging errors. Rejected synchronously
//     at the call site (invalid topic, unknown gateway, dependency cycle,
//     readonly data item); never logged-and-swallowed.
//   - ClassTransient: persistence faults and data-item sync faults. Logged
//     by the dispatch loop and absorbed; the caller continues with its
//     prior state.
//   - ClassFatal: gateway onStart failures. Aborts application startup
//     rather than being swallowed. A panic raised by a listener during
//     delivery is not classified: the dispatch loop recovers it, logs it
//     and goes on with the next action.
//
// Use the sentinel errors for known conditions and Classify/IsInvalid/
// IsTransient/IsFatal to make handling decisions without string matching:
//
//	if _, err := app.SubscribeWithPriority(filter, listener, 0); err != nil {
//	    if errors.IsInvalid(err) {
//	        return err // reject synchronously, do not retry
//	    }
//	}
//
// Wrap, WrapInvalid, WrapTransient, and WrapFatal attach "component.operation"
// context while preserving errors.Is/As chains to the original error.
package errors
