package models

import "time"

// Action is an operation the runner can perform against a target.
type Action string

// Supported actions.
const (
	ActionExec   Action = "exec"
	ActionEnsure Action = "ensure"
	ActionStatus Action = "status"
	ActionStop   Action = "stop"
	ActionTest   Action = "test"
)

// Job describes one runner invocation.
type Job struct {
	Action  Action
	Target  ConnectionTarget
	Command string // only for ActionExec
	Wake    bool   // send WOL first when the target has it configured
}

// JobReport is what the runner hands back to its caller.
type JobReport struct {
	RunID      string        `json:"run_id"`
	Action     Action        `json:"action"`
	Target     string        `json:"target"`
	Succeeded  bool          `json:"succeeded"`
	Output     string        `json:"output"`
	FailedStep string        `json:"failed_step,omitempty"`
	StartTime  time.Time     `json:"start_time"`
	Duration   time.Duration `json:"duration"`
}
