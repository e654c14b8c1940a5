package models

import "time"

// HostKeyPolicy selects how remote host identities are verified.
type HostKeyPolicy string

// Host key policies.
const (
	// HostKeyTOFU accepts and records unknown hosts, rejects changed keys.
	HostKeyTOFU HostKeyPolicy = "tofu"
	// HostKeyInsecure accepts any host key without recording it.
	HostKeyInsecure HostKeyPolicy = "insecure"
	// HostKeyStrict requires a matching known_hosts entry.
	HostKeyStrict HostKeyPolicy = "strict"
)

// Classification selects how a finished command is judged successful.
type Classification string

// Classification modes.
const (
	// ClassifyStderr treats any stderr output as failure, regardless of exit status.
	ClassifyStderr Classification = "stderr"
	// ClassifyExitStatus treats a zero exit status as success.
	ClassifyExitStatus Classification = "exit_status"
)

// DefaultSSHPort is used when a target has no port set.
const DefaultSSHPort = 22

// ConnectionTarget identifies a single remote endpoint.
type ConnectionTarget struct {
	Name       string
	Host       string
	Port       int
	Username   string
	Password   string
	PrivateKey []byte     // optional, loaded from KeyPath
	KeyPath    string     // optional path to a private key
	WOL        *WOLConfig // nil if the target is never woken
}

// ExecOptions holds the knobs applied to every remote session.
type ExecOptions struct {
	ConnectTimeout time.Duration
	CommandTimeout time.Duration // 0 disables the bound
	HostKeyPolicy  HostKeyPolicy
	KnownHostsPath string // empty keeps TOFU records in memory only
	Classification Classification
}

// DefaultExecOptions returns the options used when nothing is configured.
func DefaultExecOptions() ExecOptions {
	return ExecOptions{
		ConnectTimeout: 10 * time.Second,
		CommandTimeout: 5 * time.Minute,
		HostKeyPolicy:  HostKeyTOFU,
		Classification: ClassifyStderr,
	}
}
