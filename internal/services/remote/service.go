// Package remote runs commands on remote hosts over SSH.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fgeck/homelab-remote/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// DefaultServiceName is the web-server unit managed when nothing is configured.
const DefaultServiceName = "apache2"

// Service defines the interface for remote operations.
type Service interface {
	RunCommand(ctx context.Context, target models.ConnectionTarget, command string) *models.CommandResult
	EnsureServiceRunning(ctx context.Context, target models.ConnectionTarget) *models.ServiceControlResult
	ServiceStatus(ctx context.Context, target models.ConnectionTarget) *models.CommandResult
	StopService(ctx context.Context, target models.ConnectionTarget) *models.CommandResult
	TestConnection(ctx context.Context, target models.ConnectionTarget) *models.CommandResult
}

// SSHClient wraps ssh.Client for mocking.
type SSHClient interface {
	NewSession() (SSHSession, error)
	Close() error
}

// SSHSession wraps ssh.Session for mocking.
type SSHSession interface {
	// Run executes cmd, copying its output streams into stdout and stderr.
	// A non-zero exit status is reported as *ExitError.
	Run(cmd string, stdout, stderr io.Writer) error
	Signal(sig ssh.Signal) error
	Close() error
}

// ClientFactory creates SSH clients.
type ClientFactory interface {
	NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error)
}

// ExitError reports a command that exited with a non-zero status.
type ExitError struct {
	Status int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Status)
}

// DefaultClientFactory is the default SSH client factory.
type DefaultClientFactory struct{}

// NewClient creates a new SSH client.
func (f *DefaultClientFactory) NewClient(network, addr string, config *ssh.ClientConfig) (SSHClient, error) {
	client, err := ssh.Dial(network, addr, config)
	if err != nil {
		return nil, err
	}
	return &defaultSSHClient{client: client}, nil
}

type defaultSSHClient struct {
	client *ssh.Client
}

func (c *defaultSSHClient) NewSession() (SSHSession, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, err
	}
	return &defaultSSHSession{session: session}, nil
}

func (c *defaultSSHClient) Close() error {
	return c.client.Close()
}

type defaultSSHSession struct {
	session *ssh.Session
}

func (s *defaultSSHSession) Run(cmd string, stdout, stderr io.Writer) error {
	s.session.Stdout = stdout
	s.session.Stderr = stderr

	err := s.session.Run(cmd)
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Status: exitErr.ExitStatus()}
	}
	return err
}

func (s *defaultSSHSession) Signal(sig ssh.Signal) error {
	return s.session.Signal(sig)
}

func (s *defaultSSHSession) Close() error {
	return s.session.Close()
}

// Impl implements the remote Service interface.
type Impl struct {
	clientFactory ClientFactory
	opts          models.ExecOptions
	serviceName   string
	hostKeys      *hostKeyStore
	logger        zerolog.Logger
}

// New creates a new remote service.
func New(logger zerolog.Logger, opts models.ExecOptions, serviceName string) *Impl {
	return NewWithClientFactory(logger, opts, serviceName, &DefaultClientFactory{})
}

// NewWithClientFactory creates a new remote service with a custom client factory (for testing).
func NewWithClientFactory(logger zerolog.Logger, opts models.ExecOptions, serviceName string, factory ClientFactory) *Impl {
	if serviceName == "" {
		serviceName = DefaultServiceName
	}
	if opts.Classification == "" {
		opts.Classification = models.ClassifyStderr
	}
	if opts.HostKeyPolicy == "" {
		opts.HostKeyPolicy = models.HostKeyTOFU
	}
	return &Impl{
		clientFactory: factory,
		opts:          opts,
		serviceName:   serviceName,
		hostKeys:      newHostKeyStore(opts.KnownHostsPath, logger),
		logger:        logger,
	}
}

// ServiceName returns the unit managed by the service control operations.
func (s *Impl) ServiceName() string {
	return s.serviceName
}

func (s *Impl) buildConfig(target models.ConnectionTarget) (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod

	key := target.PrivateKey
	if len(key) == 0 && target.KeyPath != "" {
		var err error
		key, err = os.ReadFile(target.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key from %s: %w", target.KeyPath, err)
		}
	}
	if len(key) > 0 {
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}

	if target.Password != "" {
		password := target.Password
		auth = append(auth,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}

	if len(auth) == 0 {
		return nil, fmt.Errorf("no credentials provided")
	}

	hostKeyCallback, err := s.hostKeys.callback(s.opts.HostKeyPolicy)
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		User:            target.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         s.opts.ConnectTimeout,
	}, nil
}

func targetAddr(target models.ConnectionTarget) string {
	port := target.Port
	if port == 0 {
		port = models.DefaultSSHPort
	}
	return net.JoinHostPort(target.Host, strconv.Itoa(port))
}

// connect dials the target. The handshake is bounded by ConnectTimeout and ctx.
func (s *Impl) connect(ctx context.Context, target models.ConnectionTarget) (SSHClient, error) {
	sshConfig, err := s.buildConfig(target)
	if err != nil {
		return nil, err
	}

	addr := targetAddr(target)

	dialCtx := ctx
	if s.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, s.opts.ConnectTimeout)
		defer cancel()
	}

	type dialResult struct {
		client SSHClient
		err    error
	}
	clientChan := make(chan dialResult, 1)

	go func() {
		client, err := s.clientFactory.NewClient("tcp", addr, sshConfig)
		clientChan <- dialResult{client, err}
	}()

	select {
	case <-dialCtx.Done():
		// The dial may still succeed after we gave up on it.
		go func() {
			if res := <-clientChan; res.client != nil {
				_ = res.client.Close()
			}
		}()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("timed out after %s connecting to %s", s.opts.ConnectTimeout, addr)
	case res := <-clientChan:
		if res.err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", addr, res.err)
		}
		return res.client, nil
	}
}

// outcome is what a finished remote command left behind.
type outcome struct {
	stdout   string
	stderr   string
	exitCode int
	duration time.Duration
}

// timeoutError reports a command that outlived CommandTimeout.
type timeoutError struct {
	after time.Duration
}

func (e *timeoutError) Error() string {
	return fmt.Sprintf("command timed out after %s", e.after)
}

// execute runs command in a fresh session on client. The returned error is set only
// when the command could not be run to completion.
func (s *Impl) execute(ctx context.Context, client SSHClient, command string) (*outcome, error) {
	start := time.Now()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	defer func() { _ = session.Close() }()

	s.logger.Debug().Str("command", command).Msg("executing remote command")

	var stdout, stderr bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- session.Run(command, &stdout, &stderr)
	}()

	var timeout <-chan time.Time
	if s.opts.CommandTimeout > 0 {
		timer := time.NewTimer(s.opts.CommandTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var runErr error
	select {
	case runErr = <-done:
	case <-timeout:
		_ = session.Signal(ssh.SIGKILL)
		return nil, &timeoutError{after: s.opts.CommandTimeout}
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return nil, ctx.Err()
	}

	out := &outcome{
		stdout:   stdout.String(),
		stderr:   stderr.String(),
		duration: time.Since(start),
	}

	var exitErr *ExitError
	var missingErr *ssh.ExitMissingError
	switch {
	case runErr == nil:
	case errors.As(runErr, &exitErr):
		out.exitCode = exitErr.Status
	case errors.As(runErr, &missingErr):
		out.exitCode = -1
	default:
		return nil, fmt.Errorf("failed to run command: %w", runErr)
	}

	return out, nil
}

// failed reports whether out counts as a failure under the configured classification.
func (s *Impl) failed(out *outcome) bool {
	if s.opts.Classification == models.ClassifyExitStatus {
		return out.exitCode != 0
	}
	return out.stderr != ""
}

// errorText is the text shown for a failed command.
func (s *Impl) errorText(out *outcome) string {
	if out.stderr == "" && out.exitCode != 0 {
		return fmt.Sprintf("exit status %d", out.exitCode)
	}
	return out.stderr
}

func (s *Impl) classify(out *outcome) *models.CommandResult {
	result := &models.CommandResult{
		Stdout:   out.stdout,
		Stderr:   out.stderr,
		ExitCode: out.exitCode,
		Duration: out.duration,
	}

	if s.failed(out) {
		result.Output = "Error: " + s.errorText(out)
		return result
	}

	result.Succeeded = true
	result.Output = out.stdout
	return result
}

// failure builds the result for a command that never finished.
func failure(err error) *models.CommandResult {
	msg := "Connection failed: " + err.Error()
	var timeoutErr *timeoutError
	if errors.As(err, &timeoutErr) {
		msg = fmt.Sprintf("Command timed out after %s", timeoutErr.after)
	}
	return &models.CommandResult{
		Output:   msg,
		ExitCode: -1,
		Err:      err,
	}
}

// RunCommand runs a single command on target. It never returns nil.
func (s *Impl) RunCommand(ctx context.Context, target models.ConnectionTarget, command string) *models.CommandResult {
	s.logger.Info().
		Str("host", target.Host).
		Int("port", target.Port).
		Str("user", target.Username).
		Msg("running remote command")

	client, err := s.connect(ctx, target)
	if err != nil {
		s.logger.Error().Err(err).Str("host", target.Host).Msg("connection failed")
		return failure(err)
	}
	defer func() { _ = client.Close() }()

	out, err := s.execute(ctx, client, command)
	if err != nil {
		s.logger.Error().Err(err).Str("host", target.Host).Msg("remote command did not complete")
		return failure(err)
	}

	result := s.classify(out)

	s.logger.Info().
		Bool("succeeded", result.Succeeded).
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Msg("remote command completed")

	return result
}

// EnsureServiceRunning starts the managed service, falling back to the legacy
// service command once, then trusts only the status query.
func (s *Impl) EnsureServiceRunning(ctx context.Context, target models.ConnectionTarget) *models.ServiceControlResult {
	result := &models.ServiceControlResult{}

	s.logger.Info().
		Str("host", target.Host).
		Str("service", s.serviceName).
		Msg("ensuring service is running")

	client, err := s.connect(ctx, target)
	if err != nil {
		result.Message = failure(err).Output
		result.Err = err
		return result
	}
	defer func() { _ = client.Close() }()

	// All three steps share one connection, each in its own session.
	start, err := s.execute(ctx, client, "sudo systemctl start "+s.serviceName)
	if err != nil {
		result.Message = failure(err).Output
		result.Err = err
		return result
	}

	var errText string
	if s.failed(start) {
		errText = s.errorText(start)
		s.logger.Warn().
			Str("error", strings.TrimSpace(errText)).
			Msg("systemctl start failed, trying service command")

		fallback, err := s.execute(ctx, client, "sudo service "+s.serviceName+" start")
		if err != nil {
			result.Message = failure(err).Output
			result.Err = err
			return result
		}
		errText = ""
		if s.failed(fallback) {
			errText = s.errorText(fallback)
		}
	}

	status, err := s.execute(ctx, client, "systemctl is-active "+s.serviceName)
	if err != nil {
		result.Message = failure(err).Output
		result.Err = err
		return result
	}
	result.Status = strings.TrimSpace(status.stdout)

	if result.Status == "active" {
		result.Succeeded = true
		result.Message = fmt.Sprintf("%s is now running and accessible", s.serviceName)
	} else {
		result.Message = fmt.Sprintf("Failed to start %s: %s", s.serviceName, errText)
	}

	s.logger.Info().
		Bool("succeeded", result.Succeeded).
		Str("status", result.Status).
		Msg("service control completed")

	return result
}

// ServiceStatus reports the managed service's status output.
func (s *Impl) ServiceStatus(ctx context.Context, target models.ConnectionTarget) *models.CommandResult {
	return s.RunCommand(ctx, target, "systemctl status "+s.serviceName)
}

// StopService stops the managed service.
func (s *Impl) StopService(ctx context.Context, target models.ConnectionTarget) *models.CommandResult {
	return s.RunCommand(ctx, target, "sudo systemctl stop "+s.serviceName)
}

// TestConnection verifies SSH connectivity.
func (s *Impl) TestConnection(ctx context.Context, target models.ConnectionTarget) *models.CommandResult {
	return s.RunCommand(ctx, target, "echo OK")
}
