package llm

import (
	"fmt"
)

// UnknownBackendError is returned when a backend name matches no implementation.
type UnknownBackendError struct {
	Name string
}

func (e *UnknownBackendError) Error() string {
	return fmt.Sprintf("unknown LLM backend requested: %q", e.Name)
}

// MissingCredentialError is returned when a remote backend has no API key.
type MissingCredentialError struct {
	Backend string
	EnvVar  string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("trying to use %s without an API key; set %s", e.Backend, e.EnvVar)
}

// SubprocessFailureError reports a local generation process that could not
// be started or exited non-zero without being stopped by the loop guard.
// ExitCode is -1 when the process never ran to an exit status.
type SubprocessFailureError struct {
	Command  string
	ExitCode int
	Err      error
}

func (e *SubprocessFailureError) Error() string {
	if e.ExitCode < 0 {
		return fmt.Sprintf("failed to run %s: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
}

func (e *SubprocessFailureError) Unwrap() error {
	return e.Err
}
