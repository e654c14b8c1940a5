package models

import "time"

// CommandResult holds the outcome of a single remote command.
type CommandResult struct {
	Succeeded bool
	Output    string // stdout on success, human readable failure text otherwise
	Stdout    string
	Stderr    string
	ExitCode  int // -1 when the command never reported an exit status
	Duration  time.Duration
	Err       error // underlying cause, for logging
}

// ServiceControlResult holds the outcome of a service control operation.
type ServiceControlResult struct {
	Succeeded bool
	Message   string
	Status    string // trimmed output of the status query
	Err       error
}
