// Package wol wakes sleeping targets and waits until their SSH port answers.
package wol

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/fgeck/homelab-remote/internal/models"
	"github.com/mdlayher/wol"
	"github.com/rs/zerolog"
)

// magicPacketPort is the discard port magic packets are broadcast to.
const magicPacketPort = "9"

const defaultPollInterval = time.Second

// ErrNotConfigured reports a wake request for a target without WOL settings.
var ErrNotConfigured = errors.New("wake-on-lan is not configured for this target")

// Service defines the interface for Wake-on-LAN operations.
type Service interface {
	Wake(ctx context.Context, cfg models.WOLConfig) (*models.WOLResult, error)
}

// Client wraps the wol library for mocking.
type Client interface {
	Wake(broadcastIP string, mac net.HardwareAddr) error
}

// Dialer opens the TCP connection used to probe the target's SSH port.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// DefaultClient broadcasts magic packets with mdlayher/wol.
type DefaultClient struct{}

// Wake broadcasts a magic packet for mac on broadcastIP.
func (c *DefaultClient) Wake(broadcastIP string, mac net.HardwareAddr) error {
	ip := net.ParseIP(broadcastIP)
	if ip == nil {
		return fmt.Errorf("invalid broadcast IP: %s", broadcastIP)
	}

	client, err := wol.NewClient()
	if err != nil {
		return fmt.Errorf("failed to create WOL client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if err := client.Wake(net.JoinHostPort(ip.String(), magicPacketPort), mac); err != nil {
		return fmt.Errorf("failed to send WOL packet: %w", err)
	}
	return nil
}

// Impl implements the WOL Service interface.
type Impl struct {
	wolClient Client
	dialer    Dialer
	logger    zerolog.Logger
}

// New creates a new WOL service.
func New(logger zerolog.Logger) *Impl {
	return NewWithClients(logger, &DefaultClient{}, &net.Dialer{Timeout: 5 * time.Second})
}

// NewWithClients creates a new WOL service with custom clients (for testing).
func NewWithClients(logger zerolog.Logger, wolClient Client, dialer Dialer) *Impl {
	return &Impl{
		wolClient: wolClient,
		dialer:    dialer,
		logger:    logger,
	}
}

// Wake sends the magic packet and, when cfg.PollAddr is set, blocks until sshd
// on the target accepts connections. Failures are reported in the result.
func (s *Impl) Wake(ctx context.Context, cfg models.WOLConfig) (*models.WOLResult, error) {
	start := time.Now()
	result := &models.WOLResult{}
	finish := func(err error) (*models.WOLResult, error) {
		result.Error = err
		result.WaitDuration = time.Since(start)
		return result, nil
	}

	mac, err := net.ParseMAC(cfg.MACAddress)
	if err != nil {
		return finish(fmt.Errorf("invalid MAC address %q: %w", cfg.MACAddress, err))
	}

	logger := s.logger.With().Str("mac", cfg.MACAddress).Logger()
	logger.Info().Str("broadcast", cfg.BroadcastIP).Msg("sending WOL packet")

	if err := s.wolClient.Wake(cfg.BroadcastIP, mac); err != nil {
		return finish(err)
	}
	result.PacketSent = true

	if cfg.PollAddr == "" {
		result.TargetReady = true
		return finish(nil)
	}

	attempts, err := s.awaitSSH(ctx, logger, cfg)
	result.Attempts = attempts
	if err != nil {
		return finish(err)
	}

	// give sshd time to finish starting
	if err := sleep(ctx, cfg.StabilizeWait); err != nil {
		return finish(err)
	}

	result.TargetReady = true
	logger.Info().
		Int("attempts", attempts).
		Dur("duration", time.Since(start)).
		Msg("target is ready")

	return finish(nil)
}

// awaitSSH dials cfg.PollAddr every PollInterval until a connection is
// accepted or cfg.Timeout elapses. It returns the number of dials made.
func (s *Impl) awaitSSH(ctx context.Context, logger zerolog.Logger, cfg models.WOLConfig) (int, error) {
	logger.Info().
		Str("addr", cfg.PollAddr).
		Dur("timeout", cfg.Timeout).
		Msg("waiting for SSH port")

	waitCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	attempts := 0
	for {
		attempts++
		conn, err := s.dialer.DialContext(waitCtx, "tcp", cfg.PollAddr)
		if err == nil {
			_ = conn.Close()
			return attempts, nil
		}
		logger.Debug().Err(err).Int("attempt", attempts).Msg("SSH port not answering yet")

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return attempts, ctx.Err()
			}
			return attempts, fmt.Errorf("timeout waiting for target at %s after %d attempts", cfg.PollAddr, attempts)
		case <-ticker.C:
		}
	}
}

// sleep waits for d unless ctx ends first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
