// Package exitcodes defines the standard exit codes used by op-harness.
package exitcodes

// Exit code constants used by op-harness
// These constants define the exit codes that the application uses to indicate
// various states when it exits:
//
// * Success (0): Used when every executed test passes or is skipped
// * TestFailure (1): Used when one or more tests fail or time out
// * RuntimeErr (2): Used for runtime errors such as panics or configuration failures
const (
	Success     = 0 // All tests pass
	TestFailure = 1 // Test failures or timeouts
	RuntimeErr  = 2 // Runtime errors
)
